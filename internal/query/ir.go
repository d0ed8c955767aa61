// Package query implements the Query IR, Planner, and Executor: the
// algebraic query tree clients submit, its compilation into a
// per-adapter plan, and the plan's evaluation into a hydrated result set.
package query

import (
	"github.com/google/uuid"

	"github.com/pwilkin/grizabella/internal/store"
)

// Clause is the closed tagged variant `And | Or | Not | Component`
// design note §9 calls for: an interface with an unexported marker so no
// package outside query can add a fifth variant.
type Clause interface {
	clauseNode()
}

// And is the conjunction of one or more clauses (set intersection).
type And struct {
	Clauses []Clause
}

func (And) clauseNode() {}

// Or is the disjunction of one or more clauses (set union).
type Or struct {
	Clauses []Clause
}

func (Or) clauseNode() {}

// Not is the complement of a clause within its object type's universe.
// Only permitted directly below an And at the top level; a free-standing
// Not is rejected by the planner with a QueryError.
type Not struct {
	Clause Clause
}

func (Not) clauseNode() {}

// Component is a leaf clause: all intra-component sub-clauses are
// conjoined and scoped to a single declared object type.
type Component struct {
	ObjectType         string
	RelationalFilters  []RelFilter
	EmbeddingSearches  []EmbeddingSearch
	GraphTraversals    []GraphHop
}

func (Component) clauseNode() {}

// RelFilter is a single (property, operator, value) predicate, evaluated
// by the relational adapter.
type RelFilter struct {
	Property string
	Operator store.Operator
	Value    interface{}
}

// EmbeddingSearch narrows a component to ids whose embedding-definition
// vector is within threshold of query_vector.
type EmbeddingSearch struct {
	EmbeddingDefName string
	QueryVector      []float32
	Limit            int
	Threshold        *float64
	IsL2             bool
}

// GraphHop traverses relationType in direction from the component's
// running candidate set, optionally pinned to a single target_id and/or
// filtered by target-side RelFilters.
type GraphHop struct {
	RelationType  string
	Direction     store.Direction
	TargetType    string
	TargetID      *uuid.UUID
	TargetFilters []RelFilter
}

// Query is the root of a client-submitted query tree.
type Query struct {
	Root Clause
}

// FromComponents builds the legacy flat `components: Component[]` form,
// interpreted as And(components), per spec §4.5.
func FromComponents(components ...Component) Query {
	clauses := make([]Clause, len(components))
	for i, c := range components {
		clauses[i] = c
	}
	return Query{Root: And{Clauses: clauses}}
}

// Builder helpers for ergonomic construction (design note §9).

// NewComponent starts a Component for objectType.
func NewComponent(objectType string) *Component {
	return &Component{ObjectType: objectType}
}

// WithFilter appends a relational filter and returns c for chaining.
func (c *Component) WithFilter(property string, op store.Operator, value interface{}) *Component {
	c.RelationalFilters = append(c.RelationalFilters, RelFilter{Property: property, Operator: op, Value: value})
	return c
}

// WithEmbeddingSearch appends an embedding search and returns c for chaining.
func (c *Component) WithEmbeddingSearch(search EmbeddingSearch) *Component {
	c.EmbeddingSearches = append(c.EmbeddingSearches, search)
	return c
}

// WithGraphHop appends a graph traversal and returns c for chaining.
func (c *Component) WithGraphHop(hop GraphHop) *Component {
	c.GraphTraversals = append(c.GraphTraversals, hop)
	return c
}

// Build finalizes the component as a Clause value.
func (c *Component) Build() Component { return *c }
