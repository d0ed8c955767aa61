package query

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/pwilkin/grizabella/internal/grizerr"
	"github.com/pwilkin/grizabella/internal/store"
	"github.com/pwilkin/grizabella/internal/types"
)

// Result is the Executor's output: the hydrated instances surviving the
// plan, plus any non-fatal per-step errors accumulated along the way.
type Result struct {
	Instances []types.ObjectInstance
	Errors    []string
}

// Executor evaluates a PlannedQuery bottom-up against the store adapters,
// maintaining a candidate id-set per Component and combining sets with the
// And/Or/Not boolean algebra.
type Executor struct {
	relational store.RelationalStore
	vector     store.VectorStore
	graph      store.GraphStore
}

// NewExecutor builds an Executor over the given adapters.
func NewExecutor(relational store.RelationalStore, vector store.VectorStore, graph store.GraphStore) *Executor {
	return &Executor{relational: relational, vector: vector, graph: graph}
}

// idSet carries an ordered list of ids plus the object type they belong to
// (a Component's candidate set is always homogeneous in type) and, when an
// embedding search drove the ordering, the best-first order to preserve
// through hydration.
type idSet struct {
	objectType string
	ids        []uuid.UUID
	// ordered is true when ids reflects a meaningful ranking (embedding
	// search) that hydration should preserve rather than re-sort.
	ordered bool
}

func newIDSet(objectType string) idSet {
	return idSet{objectType: objectType}
}

func (s idSet) contains(id uuid.UUID) bool {
	for _, x := range s.ids {
		if x == id {
			return true
		}
	}
	return false
}

// intersect returns the set intersection, preferring ordering from whichever
// side is ordered (the planner places ordered steps, i.e. embedding
// searches, after every relational filter and pinned graph hop, so later
// intersections naturally narrow an existing ranking).
func intersect(a, b idSet) idSet {
	out := idSet{objectType: a.objectType, ordered: a.ordered || b.ordered}
	base, probe := a, b
	if b.ordered && !a.ordered {
		base, probe = b, a
	}
	for _, id := range base.ids {
		if probe.contains(id) {
			out.ids = append(out.ids, id)
		}
	}
	return out
}

func union(a, b idSet) idSet {
	out := idSet{objectType: a.objectType, ids: append([]uuid.UUID{}, a.ids...)}
	for _, id := range b.ids {
		if !out.contains(id) {
			out.ids = append(out.ids, id)
		}
	}
	return out
}

func subtract(universe, excluded idSet) idSet {
	out := idSet{objectType: universe.objectType, ordered: universe.ordered}
	for _, id := range universe.ids {
		if !excluded.contains(id) {
			out.ids = append(out.ids, id)
		}
	}
	return out
}

// Execute evaluates plan and hydrates the surviving ids into full
// ObjectInstance values, preserving embedding-search ranking when the
// winning set carries one.
func (e *Executor) Execute(ctx context.Context, plan *PlannedQuery, limit int) (*Result, error) {
	set, errs, err := e.evalClause(ctx, plan.Root)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		partial, herr := e.hydrate(ctx, set, limit)
		result := &Result{Instances: partial, Errors: errs}
		if herr != nil {
			result.Errors = append(result.Errors, herr.Error())
		}
		return result, grizerr.Cancelled(ctx.Err())
	}

	instances, err := e.hydrate(ctx, set, limit)
	if err != nil {
		errs = append(errs, err.Error())
	}
	return &Result{Instances: instances, Errors: errs}, nil
}

// evalClause walks the planned clause tree post-order, evaluating each
// Component into an idSet and combining siblings per the node kind. And
// short-circuits to an empty set once any child is empty (set intersection
// with the empty set is always empty); Or continues, unioning whatever
// children survive.
func (e *Executor) evalClause(ctx context.Context, c PlannedClause) (idSet, []string, error) {
	if err := ctx.Err(); err != nil {
		return idSet{}, nil, nil
	}

	switch v := c.(type) {
	case PlannedComponent:
		return e.evalComponent(ctx, v)

	case PlannedAnd:
		var acc idSet
		var errs []string
		for i, child := range v.Clauses {
			set, childErrs, err := e.evalClause(ctx, child)
			if err != nil {
				return idSet{}, errs, err
			}
			errs = append(errs, childErrs...)
			if i == 0 {
				acc = set
				continue
			}
			acc = intersect(acc, set)
			if len(acc.ids) == 0 {
				break
			}
		}
		return acc, errs, nil

	case PlannedOr:
		var acc idSet
		var errs []string
		first := true
		for _, child := range v.Clauses {
			set, childErrs, err := e.evalClause(ctx, child)
			errs = append(errs, childErrs...)
			if err != nil {
				// Or survives a failing branch; record and keep going.
				errs = append(errs, err.Error())
				continue
			}
			if first {
				acc = set
				first = false
				continue
			}
			acc = union(acc, set)
		}
		return acc, errs, nil

	case PlannedNot:
		// Not's complement universe is every id of its clause's object
		// type currently known to the relational store; the caller (an
		// enclosing And) intersects this against its own running set, so
		// only ids sharing the And's object type ever survive.
		inner, errs, err := e.evalClause(ctx, v.Clause)
		if err != nil {
			return idSet{}, errs, err
		}
		universe, uerr := e.allIDs(ctx, inner.objectType)
		if uerr != nil {
			return idSet{}, errs, uerr
		}
		return subtract(universe, inner), errs, nil

	default:
		return idSet{}, nil, grizerr.Query("executor: unknown planned clause %T", c)
	}
}

func (e *Executor) allIDs(ctx context.Context, objectType string) (idSet, error) {
	instances, err := e.relational.Find(ctx, objectType, nil, 0)
	if err != nil {
		return idSet{}, err
	}
	out := newIDSet(objectType)
	for _, inst := range instances {
		out.ids = append(out.ids, inst.ID)
	}
	return out, nil
}

// evalComponent runs a Component's Steps in the planner's chosen order.
// The running set starts at ⊤ ("any id of ObjectType"); RelStep/VecStep
// narrow it by intersection, while GraphStep consumes it as the hop's
// anchor set and replaces it with the hop's result: the reached targets
// for a hop to the same object type, or the anchors that have a
// qualifying neighbour for a hop to a different type (an existence filter).
func (e *Executor) evalComponent(ctx context.Context, c PlannedComponent) (idSet, []string, error) {
	set := idSet{objectType: c.ObjectType}
	isTop := true
	var errs []string

	for _, step := range c.Steps {
		if err := ctx.Err(); err != nil {
			return set, errs, nil
		}

		if hop, ok := step.(GraphStep); ok {
			next, err := e.evalGraphStep(ctx, c.ObjectType, hop, set, isTop)
			if err != nil {
				errs = append(errs, err.Error())
				continue
			}
			set = next
			isTop = false
			if len(set.ids) == 0 {
				break
			}
			continue
		}

		next, err := e.evalStep(ctx, c.ObjectType, step)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if isTop {
			set = next
			isTop = false
			continue
		}
		set = intersect(set, next)
		if len(set.ids) == 0 {
			break
		}
	}

	if isTop {
		// No steps at all: the component selects every instance of its type.
		return e.allIDs(ctx, c.ObjectType)
	}
	return set, errs, nil
}

// anchorsFor materializes the NodeRef anchor list a GraphStep hops from:
// every id of objectType when the running set is still ⊤, else the
// running set's own ids.
func (e *Executor) anchorsFor(ctx context.Context, objectType string, set idSet, isTop bool) ([]store.NodeRef, error) {
	ids := set.ids
	if isTop {
		all, err := e.allIDs(ctx, objectType)
		if err != nil {
			return nil, err
		}
		ids = all.ids
	}
	anchors := make([]store.NodeRef, len(ids))
	for i, id := range ids {
		anchors[i] = store.NodeRef{Type: objectType, ID: id}
	}
	return anchors, nil
}

// evalGraphStep implements the GraphStep Step kind: if target_type equals
// the component's own object_type, the running set becomes the hop's
// target ids directly; otherwise the hop acts as an existence filter,
// retaining only anchors that produced at least one qualifying target.
func (e *Executor) evalGraphStep(ctx context.Context, objectType string, hop GraphHop, set idSet, isTop bool) (idSet, error) {
	anchors, err := e.anchorsFor(ctx, objectType, set, isTop)
	if err != nil {
		return idSet{}, err
	}
	targetFilters := make([]store.Filter, len(hop.TargetFilters))
	for i, f := range hop.TargetFilters {
		targetFilters[i] = store.Filter{Property: f.Property, Operator: f.Operator, Value: f.Value}
	}

	if hop.TargetType == objectType {
		ids, err := e.graph.Neighbors(ctx, anchors, hop.RelationType, hop.Direction, hop.TargetType, hop.TargetID, targetFilters, 0)
		if err != nil {
			return idSet{}, err
		}
		return idSet{objectType: objectType, ids: ids}, nil
	}

	// Existence filter: the Neighbors contract returns distinct target ids
	// without the anchor that produced them, so survivorship is checked
	// one anchor at a time.
	out := idSet{objectType: objectType}
	for _, anchor := range anchors {
		if err := ctx.Err(); err != nil {
			return out, nil
		}
		ids, err := e.graph.Neighbors(ctx, []store.NodeRef{anchor}, hop.RelationType, hop.Direction, hop.TargetType, hop.TargetID, targetFilters, 1)
		if err != nil {
			return idSet{}, err
		}
		if len(ids) > 0 {
			out.ids = append(out.ids, anchor.ID)
		}
	}
	return out, nil
}

func (e *Executor) evalStep(ctx context.Context, objectType string, step Step) (idSet, error) {
	switch v := step.(type) {
	case RelStep:
		filters := make([]store.Filter, len(v.Filters))
		for i, f := range v.Filters {
			filters[i] = store.Filter{Property: f.Property, Operator: f.Operator, Value: f.Value}
		}
		instances, err := e.relational.Find(ctx, objectType, filters, 0)
		if err != nil {
			return idSet{}, err
		}
		out := newIDSet(objectType)
		for _, inst := range instances {
			out.ids = append(out.ids, inst.ID)
		}
		return out, nil

	case VecStep:
		hits, err := e.vector.Search(ctx, v.Search.EmbeddingDefName, v.Search.QueryVector, v.Search.Limit, v.Search.Threshold, v.Search.IsL2)
		if err != nil {
			return idSet{}, err
		}
		sort.SliceStable(hits, func(i, j int) bool {
			if v.Search.IsL2 {
				return hits[i].Score < hits[j].Score
			}
			return hits[i].Score > hits[j].Score
		})
		out := idSet{objectType: objectType, ordered: true}
		for _, h := range hits {
			out.ids = append(out.ids, h.ObjectID)
		}
		return out, nil

	default:
		return idSet{}, grizerr.Query("executor: unknown step %T", step)
	}
}

// hydrate loads full ObjectInstance values for set's ids, preserving set's
// order when it was produced by an embedding search, and truncating to
// limit (0 meaning unbounded).
func (e *Executor) hydrate(ctx context.Context, set idSet, limit int) ([]types.ObjectInstance, error) {
	ids := set.ids
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]types.ObjectInstance, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		inst, err := e.relational.GetObject(ctx, set.objectType, id)
		if err != nil {
			continue
		}
		if inst != nil {
			out = append(out, *inst)
		}
	}
	return out, nil
}
