// Package store defines the abstract relational, vector, and graph store
// contracts the write coordinator and query executor program against.
// Concrete backends (sqlitestore, pgvectorstore, falkordbstore) are
// interchangeable behind these interfaces.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/pwilkin/grizabella/internal/types"
)

// Operator is a relational/graph filter comparison operator.
type Operator string

const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpLike         Operator = "LIKE"
	OpIn           Operator = "IN"
	OpContains     Operator = "CONTAINS"
)

// Filter is a single (property, operator, value) predicate.
type Filter struct {
	Property string
	Operator Operator
	Value    interface{}
}

// Direction is a graph traversal direction relative to the anchor set.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// SearchHit is one (object_id, score) result from a vector similarity
// search, sorted best-first by the adapter.
type SearchHit struct {
	ObjectID uuid.UUID
	Score    float64
}

// RelationalStore is the authoritative store for schema metadata and
// object/relation property values.
type RelationalStore interface {
	// Schema metadata persistence (the _meta_* reserved tables).
	SaveObjectType(ctx context.Context, def types.ObjectTypeDefinition) error
	LoadObjectTypes(ctx context.Context) ([]types.ObjectTypeDefinition, error)
	DeleteObjectTypeMeta(ctx context.Context, name string) error

	SaveRelationType(ctx context.Context, def types.RelationTypeDefinition) error
	LoadRelationTypes(ctx context.Context) ([]types.RelationTypeDefinition, error)
	DeleteRelationTypeMeta(ctx context.Context, name string) error

	SaveEmbeddingDefinition(ctx context.Context, def types.EmbeddingDefinition) error
	LoadEmbeddingDefinitions(ctx context.Context) ([]types.EmbeddingDefinition, error)
	DeleteEmbeddingDefinitionMeta(ctx context.Context, name string) error

	// EnsureObjectTable provisions the storage for objectType's instances,
	// idempotently, including indexes for is_indexed properties.
	EnsureObjectTable(ctx context.Context, def types.ObjectTypeDefinition) error
	// EnsureRelationTable provisions storage for a relation type's
	// instances, idempotently.
	EnsureRelationTable(ctx context.Context, def types.RelationTypeDefinition) error

	// UpsertObject is idempotent by id; enforces uniqueness and PK
	// constraints declared on objectType.
	UpsertObject(ctx context.Context, objectType string, obj types.ObjectInstance) error
	GetObject(ctx context.Context, objectType string, id uuid.UUID) (*types.ObjectInstance, error)
	DeleteObject(ctx context.Context, objectType string, id uuid.UUID) error
	Find(ctx context.Context, objectType string, filters []Filter, limit int) ([]types.ObjectInstance, error)
	// CountInstances supports the registry's InUse delete policy.
	CountInstances(ctx context.Context, objectType string) (int, error)

	UpsertRelation(ctx context.Context, relationType string, rel types.RelationInstance) error
	DeleteRelation(ctx context.Context, relationType string, id uuid.UUID) error
	FindRelations(ctx context.Context, q RelationQuery) ([]types.RelationInstance, error)

	// RecordCoherenceRepair appends a row to the reserved
	// _coherence_repair table, returning its row id.
	RecordCoherenceRepair(ctx context.Context, entry CoherenceRepairEntry) (string, error)
	// ListCoherenceRepairs returns every row still pending in
	// _coherence_repair, for a background repair worker to retry.
	ListCoherenceRepairs(ctx context.Context) ([]CoherenceRepairRow, error)
	// ResolveCoherenceRepair removes a row once the repair worker has
	// re-established coherence for it.
	ResolveCoherenceRepair(ctx context.Context, id string) error

	Close() error
}

// RelationQuery is the parameter bundle for FindRelations /
// query_relations: every field is optional except Limit<=0 meaning
// unbounded.
type RelationQuery struct {
	RelationType    string
	SourceID        *uuid.UUID
	TargetID        *uuid.UUID
	PropertyFilters []Filter
	Limit           int
}

// CoherenceRepairEntry is one pending cross-store divergence, keyed by
// (store, operation, id). ObjectType is the schema object type of ID,
// needed by the repair worker to re-issue UpsertNode against the right
// table; Store is the name of the store that diverged ("graph"), not
// the object type.
type CoherenceRepairEntry struct {
	Store      string
	Operation  string
	ID         uuid.UUID
	ObjectType string
	Detail     string
}

// CoherenceRepairRow is a persisted CoherenceRepairEntry plus its row id,
// as read back from _coherence_repair.
type CoherenceRepairRow struct {
	RowID      string
	Store      string
	Operation  string
	RecordID   uuid.UUID
	ObjectType string
	Detail     string
}

// VectorStore holds one collection per (object type, embedding definition)
// pair of fixed-length float vectors.
type VectorStore interface {
	// EnsureCollection is idempotent; dimensions is fixed on first call.
	EnsureCollection(ctx context.Context, embeddingDef string, dimensions int) error
	// Upsert persists vector alongside preview (the source text, truncated
	// to previewLimit) and hash (the sha256 of the full source text, set
	// only when preview had to be truncated).
	Upsert(ctx context.Context, embeddingDef string, objectID uuid.UUID, vector []float32, preview, hash string) error
	Delete(ctx context.Context, embeddingDef string, objectID uuid.UUID) error
	// Search returns hits sorted best-first. threshold, if non-nil, is a
	// cutoff: similarity >= threshold for cosine, distance <= threshold for
	// L2 (isL2 true).
	Search(ctx context.Context, embeddingDef string, queryVector []float32, limit int, threshold *float64, isL2 bool) ([]SearchHit, error)

	Close() error
}

// GraphStore stores typed directed edges between nodes that mirror
// relational objects via opaque (type, id) pairs.
type GraphStore interface {
	UpsertNode(ctx context.Context, objectType string, id uuid.UUID) error
	// DeleteNode cascades: all edges touching (objectType, id) are removed.
	DeleteNode(ctx context.Context, objectType string, id uuid.UUID) error

	UpsertEdge(ctx context.Context, relationType string, source, target NodeRef, id uuid.UUID, properties map[string]types.Value) error
	DeleteEdge(ctx context.Context, relationType string, id uuid.UUID) error

	// Neighbors returns, for the anchor set, the qualifying target ids
	// reachable via relationType in the given direction, optionally
	// narrowed to a single targetID and/or target property filters. The
	// executor consumes only the resulting target-id set.
	Neighbors(ctx context.Context, anchors []NodeRef, relationType string, direction Direction, targetType string, targetID *uuid.UUID, targetFilters []Filter, limit int) ([]uuid.UUID, error)

	Close() error
}

// NodeRef is an opaque (type, id) pair identifying a graph mirror node.
type NodeRef struct {
	Type string
	ID   uuid.UUID
}
