package query

import (
	"github.com/pwilkin/grizabella/internal/grizerr"
	"github.com/pwilkin/grizabella/internal/registry"
	"github.com/pwilkin/grizabella/internal/store"
	"github.com/pwilkin/grizabella/internal/types"
)

// Step is one ordered operation a PlannedComponent runs against its
// running CandidateSet. Kinds are emitted in the selectivity order the
// planner chooses: equality on unique/indexed properties, other
// relational filters, graph hops with a pinned target id, embedding
// searches, then unbounded graph hops.
type Step interface {
	stepNode()
	selectivityClass() int
}

// RelStep intersects the candidate set with relational.find(type, filters).
type RelStep struct {
	Filters []RelFilter
	// pinned reports whether every filter is an equality on a unique or
	// indexed property, placing this step first in execution order.
	pinned bool
}

func (RelStep) stepNode() {}
func (s RelStep) selectivityClass() int {
	if s.pinned {
		return 0
	}
	return 1
}

// VecStep intersects with the thresholded result of an embedding search.
type VecStep struct {
	Search EmbeddingSearch
}

func (VecStep) stepNode() {}
func (VecStep) selectivityClass() int { return 3 }

// GraphStep traverses a GraphHop; pinned (has TargetID) hops run before
// unbounded ones and before embedding searches.
type GraphStep struct {
	Hop GraphHop
}

func (GraphStep) stepNode() {}
func (s GraphStep) selectivityClass() int {
	if s.Hop.TargetID != nil {
		return 2
	}
	return 4
}

// PlannedClause mirrors Clause, with each Component replaced by a
// PlannedComponent carrying its ordered Steps.
type PlannedClause interface {
	plannedNode()
}

type PlannedAnd struct{ Clauses []PlannedClause }

func (PlannedAnd) plannedNode() {}

type PlannedOr struct{ Clauses []PlannedClause }

func (PlannedOr) plannedNode() {}

type PlannedNot struct{ Clause PlannedClause }

func (PlannedNot) plannedNode() {}

type PlannedComponent struct {
	ObjectType string
	Steps      []Step
}

func (PlannedComponent) plannedNode() {}

// PlannedQuery is the Planner's output: a tree isomorphic to the input
// Query, ready for the Executor.
type PlannedQuery struct {
	Root PlannedClause
}

// Planner type-checks a Query against the schema registry and emits a
// PlannedQuery with steps ordered by estimated selectivity.
type Planner struct {
	registry *registry.Registry
}

// NewPlanner builds a Planner backed by reg.
func NewPlanner(reg *registry.Registry) *Planner {
	return &Planner{registry: reg}
}

// Plan compiles q into a PlannedQuery, or a QueryError if any property is
// unknown, an operator/type mismatch is found, or a Not appears outside
// the top-level And. A free-standing Not at the query root is rejected:
// there is no enclosing And to give its complement a bounded universe.
func (p *Planner) Plan(q Query) (*PlannedQuery, error) {
	root, err := p.planClause(q.Root, false)
	if err != nil {
		return nil, err
	}
	return &PlannedQuery{Root: root}, nil
}

// planClause walks the clause tree. topLevelAnd is true only while
// descending through an explicit And's direct children, the one position
// where a Not is permitted (its complement universe, the Not's own
// Component's object type, is well-defined there).
func (p *Planner) planClause(c Clause, topLevelAnd bool) (PlannedClause, error) {
	switch v := c.(type) {
	case And:
		children := make([]PlannedClause, len(v.Clauses))
		for i, child := range v.Clauses {
			planned, err := p.planClause(child, true)
			if err != nil {
				return nil, err
			}
			children[i] = planned
		}
		return PlannedAnd{Clauses: children}, nil

	case Or:
		children := make([]PlannedClause, len(v.Clauses))
		for i, child := range v.Clauses {
			planned, err := p.planClause(child, false)
			if err != nil {
				return nil, err
			}
			children[i] = planned
		}
		return PlannedOr{Clauses: children}, nil

	case Not:
		if !topLevelAnd {
			return nil, grizerr.Query("a free-standing Not is only permitted directly below a top-level And")
		}
		inner, err := p.planClause(v.Clause, false)
		if err != nil {
			return nil, err
		}
		return PlannedNot{Clause: inner}, nil

	case Component:
		return p.planComponent(v)

	default:
		return nil, grizerr.Query("unknown clause type %T", c)
	}
}

func (p *Planner) planComponent(c Component) (PlannedClause, error) {
	def, err := p.registry.GetObjectType(c.ObjectType)
	if err != nil {
		return nil, grizerr.Query("component references unknown object type %q", c.ObjectType)
	}

	var steps []Step
	for _, f := range c.RelationalFilters {
		pd, ok := def.Property(f.Property)
		if !ok {
			return nil, grizerr.Query("object type %q has no property %q", c.ObjectType, f.Property)
		}
		if err := checkOperatorType(pd, f.Operator); err != nil {
			return nil, err
		}
		pinned := f.Operator == store.OpEqual && (pd.IsUnique || pd.IsIndexed)
		steps = append(steps, RelStep{Filters: []RelFilter{f}, pinned: pinned})
	}
	for _, hop := range c.GraphTraversals {
		if _, err := p.registry.GetRelationType(hop.RelationType); err != nil {
			return nil, grizerr.Query("unknown relation type %q in graph hop", hop.RelationType)
		}
		steps = append(steps, GraphStep{Hop: hop})
	}
	for _, search := range c.EmbeddingSearches {
		if _, err := p.registry.GetEmbeddingDefinition(search.EmbeddingDefName); err != nil {
			return nil, grizerr.Query("unknown embedding definition %q", search.EmbeddingDefName)
		}
		steps = append(steps, VecStep{Search: search})
	}

	orderSteps(steps)
	return PlannedComponent{ObjectType: c.ObjectType, Steps: steps}, nil
}

// orderSteps sorts by selectivityClass, stable so filters within the same
// class keep their original relative order.
func orderSteps(steps []Step) {
	for i := 1; i < len(steps); i++ {
		for j := i; j > 0 && steps[j].selectivityClass() < steps[j-1].selectivityClass(); j-- {
			steps[j], steps[j-1] = steps[j-1], steps[j]
		}
	}
}

func checkOperatorType(pd types.PropertyDefinition, op store.Operator) error {
	switch op {
	case store.OpEqual, store.OpNotEqual:
		return nil
	case store.OpGreater, store.OpGreaterEqual, store.OpLess, store.OpLessEqual:
		switch pd.DataType {
		case types.TypeInteger, types.TypeFloat, types.TypeDateTime:
			return nil
		default:
			return grizerr.Query("operator %s is not valid for property %q of type %s", op, pd.Name, pd.DataType)
		}
	case store.OpLike:
		if pd.DataType != types.TypeText {
			return grizerr.Query("operator LIKE is only valid for TEXT properties, got %q of type %s", pd.Name, pd.DataType)
		}
		return nil
	case store.OpIn:
		return nil
	case store.OpContains:
		switch pd.DataType {
		case types.TypeJSON, types.TypeText:
			return nil
		default:
			return grizerr.Query("operator CONTAINS is not valid for property %q of type %s", pd.Name, pd.DataType)
		}
	default:
		return grizerr.Query("unknown operator %q", op)
	}
}
