// Package engine implements Grizabella's public API surface: schema CRUD,
// instance/relation CRUD, and the query operations, wiring the registry,
// write coordinator, embedding coordinator, and query planner/executor
// behind one entry point per spec §6.
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pwilkin/grizabella/internal/coordinator"
	"github.com/pwilkin/grizabella/internal/grizerr"
	"github.com/pwilkin/grizabella/internal/query"
	"github.com/pwilkin/grizabella/internal/registry"
	"github.com/pwilkin/grizabella/internal/store"
	"github.com/pwilkin/grizabella/internal/types"
	"github.com/pwilkin/grizabella/pkg/embedder"
)

// ScoredObject pairs a hydrated ObjectInstance with its similarity score,
// the return shape of search_similar_objects and find_similar.
type ScoredObject struct {
	Object types.ObjectInstance
	Score  float64
}

// Engine is Grizabella's public API: one instance per opened database.
type Engine struct {
	adapters   *store.Adapters
	registry   *registry.Registry
	write      *coordinator.WriteCoordinator
	embeddings *coordinator.EmbeddingCoordinator
	models     *embedder.Registry
	planner    *query.Planner
	executor   *query.Executor

	repair *coordinator.RepairWorker
	cancel context.CancelFunc
}

// Open wires every layer over adapters: the schema registry (loading any
// persisted schema; no embedding backfill runs at open), the embedding and
// write coordinators, and the query planner/executor. It also starts the
// background coherence-repair worker, stopped by Close.
func Open(ctx context.Context, adapters *store.Adapters, embedderCfg *embedder.Config) (*Engine, error) {
	models := embedder.NewRegistry(embedderCfg)
	embeddings := coordinator.NewEmbeddingCoordinator(nil, adapters.Vector, models)

	backfill := func(ctx context.Context, def types.EmbeddingDefinition) error {
		_, err := embeddings.Backfill(ctx, def, adapters.Relational)
		return err
	}
	reg, err := registry.New(ctx, adapters.Relational, backfill)
	if err != nil {
		return nil, fmt.Errorf("engine: open registry: %w", err)
	}
	embeddings.SetRegistry(reg)

	write := coordinator.New(reg, adapters.Relational, adapters.Graph, embeddings)
	planner := query.NewPlanner(reg)
	executor := query.NewExecutor(adapters.Relational, adapters.Vector, adapters.Graph)

	repairCtx, cancel := context.WithCancel(context.Background())
	repair := coordinator.NewRepairWorker(adapters.Relational, adapters.Graph, coordinator.DefaultRepairInterval)
	go repair.Run(repairCtx)

	return &Engine{
		adapters:   adapters,
		registry:   reg,
		write:      write,
		embeddings: embeddings,
		models:     models,
		planner:    planner,
		executor:   executor,
		repair:     repair,
		cancel:     cancel,
	}, nil
}

// Close stops the repair worker and releases every store connection.
func (e *Engine) Close() error {
	e.cancel()
	return e.adapters.Close()
}

// --- Schema: object types ---

func (e *Engine) CreateObjectType(ctx context.Context, def types.ObjectTypeDefinition) error {
	return e.registry.CreateObjectType(ctx, def)
}

func (e *Engine) GetObjectType(name string) (types.ObjectTypeDefinition, error) {
	return e.registry.GetObjectType(name)
}

func (e *Engine) ListObjectTypes() []types.ObjectTypeDefinition {
	return e.registry.ListObjectTypes()
}

func (e *Engine) DeleteObjectType(ctx context.Context, name string) error {
	return e.registry.DeleteObjectType(ctx, name)
}

// --- Schema: relation types ---

func (e *Engine) CreateRelationType(ctx context.Context, def types.RelationTypeDefinition) error {
	return e.registry.CreateRelationType(ctx, def)
}

func (e *Engine) GetRelationType(name string) (types.RelationTypeDefinition, error) {
	return e.registry.GetRelationType(name)
}

func (e *Engine) ListRelationTypes() []types.RelationTypeDefinition {
	return e.registry.ListRelationTypes()
}

func (e *Engine) DeleteRelationType(ctx context.Context, name string) error {
	return e.registry.DeleteRelationType(ctx, name)
}

// --- Schema: embedding definitions ---

func (e *Engine) CreateEmbeddingDefinition(ctx context.Context, def types.EmbeddingDefinition) error {
	return e.registry.CreateEmbeddingDefinition(ctx, def)
}

func (e *Engine) GetEmbeddingDefinition(name string) (types.EmbeddingDefinition, error) {
	return e.registry.GetEmbeddingDefinition(name)
}

func (e *Engine) ListEmbeddingDefinitions() []types.EmbeddingDefinition {
	return e.registry.ListEmbeddingDefinitions()
}

func (e *Engine) DeleteEmbeddingDefinition(ctx context.Context, name string) error {
	return e.registry.DeleteEmbeddingDefinition(ctx, name)
}

// --- Instances ---

func (e *Engine) UpsertObject(ctx context.Context, obj types.ObjectInstance) (types.ObjectInstance, []error, error) {
	return e.write.UpsertObject(ctx, obj)
}

func (e *Engine) GetObjectByID(ctx context.Context, objectType string, id uuid.UUID) (*types.ObjectInstance, error) {
	if _, err := e.registry.GetObjectType(objectType); err != nil {
		return nil, err
	}
	return e.adapters.Relational.GetObject(ctx, objectType, id)
}

func (e *Engine) DeleteObject(ctx context.Context, objectType string, id uuid.UUID) (bool, error) {
	return e.write.DeleteObject(ctx, objectType, id)
}

func (e *Engine) FindObjects(ctx context.Context, objectType string, filters []store.Filter, limit int) ([]types.ObjectInstance, error) {
	if _, err := e.registry.GetObjectType(objectType); err != nil {
		return nil, err
	}
	return e.adapters.Relational.Find(ctx, objectType, filters, limit)
}

// --- Relations ---

func (e *Engine) AddRelation(ctx context.Context, rel types.RelationInstance, sourceType, targetType string) (types.RelationInstance, error) {
	return e.write.AddRelation(ctx, rel, sourceType, targetType)
}

func (e *Engine) GetRelation(ctx context.Context, sourceID, targetID uuid.UUID, relationType string) ([]types.RelationInstance, error) {
	return e.adapters.Relational.FindRelations(ctx, store.RelationQuery{
		RelationType: relationType,
		SourceID:     &sourceID,
		TargetID:     &targetID,
	})
}

func (e *Engine) DeleteRelation(ctx context.Context, relationType string, id uuid.UUID) (bool, error) {
	return e.write.DeleteRelation(ctx, relationType, id)
}

func (e *Engine) GetOutgoingRelations(ctx context.Context, id uuid.UUID, objectType, relationType string) ([]types.RelationInstance, error) {
	return e.adapters.Relational.FindRelations(ctx, store.RelationQuery{
		RelationType: relationType,
		SourceID:     &id,
	})
}

func (e *Engine) GetIncomingRelations(ctx context.Context, id uuid.UUID, objectType, relationType string) ([]types.RelationInstance, error) {
	return e.adapters.Relational.FindRelations(ctx, store.RelationQuery{
		RelationType: relationType,
		TargetID:     &id,
	})
}

func (e *Engine) QueryRelations(ctx context.Context, q store.RelationQuery) ([]types.RelationInstance, error) {
	return e.adapters.Relational.FindRelations(ctx, q)
}

// --- Queries ---

// SearchSimilarObjects finds the n nearest neighbors of an existing
// object's own embedding(s). searchProperties, if given, restricts the
// search to embedding definitions sourced from those properties; otherwise
// every embedding definition on the object's type is tried and results are
// merged by score, best first.
func (e *Engine) SearchSimilarObjects(ctx context.Context, objectType string, id uuid.UUID, n int, searchProperties []string) ([]ScoredObject, error) {
	obj, err := e.adapters.Relational.GetObject(ctx, objectType, id)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, grizerr.NotFound("object %s/%s not found", objectType, id)
	}

	defs := e.registry.EmbeddingDefinitionsFor(objectType)
	var results []ScoredObject
	for _, def := range defs {
		if len(searchProperties) > 0 && !containsString(searchProperties, def.SourcePropertyName) {
			continue
		}
		v, ok := obj.Properties[def.SourcePropertyName]
		if !ok || v.Null {
			continue
		}
		model, err := e.models.Resolve(def.EmbeddingModelID)
		if err != nil {
			return nil, grizerr.Embedding(err, "resolve model %q", def.EmbeddingModelID)
		}
		vec, err := model.EmbedQuery(ctx, v.Text)
		if err != nil {
			return nil, grizerr.Embedding(err, "embed object %s property %q", id, def.SourcePropertyName)
		}
		hits, err := e.adapters.Vector.Search(ctx, def.Name, vec, n, nil, false)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			if h.ObjectID == id {
				continue
			}
			inst, err := e.adapters.Relational.GetObject(ctx, objectType, h.ObjectID)
			if err != nil || inst == nil {
				continue
			}
			results = append(results, ScoredObject{Object: *inst, Score: h.Score})
		}
	}
	sortScoredDesc(results)
	if n > 0 && len(results) > n {
		results = results[:n]
	}
	return results, nil
}

// FindSimilar embeds queryText via embeddingDef's model and returns the
// nearest objectType instances, optionally narrowed by filter.
func (e *Engine) FindSimilar(ctx context.Context, embeddingDefName, queryText string, limit int, filter []store.Filter) ([]ScoredObject, error) {
	def, err := e.registry.GetEmbeddingDefinition(embeddingDefName)
	if err != nil {
		return nil, err
	}
	model, err := e.models.Resolve(def.EmbeddingModelID)
	if err != nil {
		return nil, grizerr.Embedding(err, "resolve model %q", def.EmbeddingModelID)
	}
	vec, err := model.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, grizerr.Embedding(err, "embed query text")
	}
	hits, err := e.adapters.Vector.Search(ctx, embeddingDefName, vec, limit, nil, false)
	if err != nil {
		return nil, err
	}

	var filterSet map[uuid.UUID]bool
	if len(filter) > 0 {
		matches, err := e.adapters.Relational.Find(ctx, def.ObjectTypeName, filter, 0)
		if err != nil {
			return nil, err
		}
		filterSet = make(map[uuid.UUID]bool, len(matches))
		for _, m := range matches {
			filterSet[m.ID] = true
		}
	}

	var results []ScoredObject
	for _, h := range hits {
		if filterSet != nil && !filterSet[h.ObjectID] {
			continue
		}
		inst, err := e.adapters.Relational.GetObject(ctx, def.ObjectTypeName, h.ObjectID)
		if err != nil || inst == nil {
			continue
		}
		results = append(results, ScoredObject{Object: *inst, Score: h.Score})
	}
	return results, nil
}

// GetEmbeddingVectorForText computes the raw vector text would produce
// under embeddingDefName's model, without storing anything.
func (e *Engine) GetEmbeddingVectorForText(ctx context.Context, text, embeddingDefName string) ([]float32, error) {
	def, err := e.registry.GetEmbeddingDefinition(embeddingDefName)
	if err != nil {
		return nil, err
	}
	model, err := e.models.Resolve(def.EmbeddingModelID)
	if err != nil {
		return nil, grizerr.Embedding(err, "resolve model %q", def.EmbeddingModelID)
	}
	vec, err := model.EmbedQuery(ctx, text)
	if err != nil {
		return nil, grizerr.Embedding(err, "embed text")
	}
	return vec, nil
}

// ExecuteComplexQuery type-checks and plans q, then evaluates it, returning
// a partial result with a Cancelled error if ctx's deadline is hit mid-plan.
func (e *Engine) ExecuteComplexQuery(ctx context.Context, q query.Query, limit int) (*query.Result, error) {
	plan, err := e.planner.Plan(q)
	if err != nil {
		return nil, err
	}
	return e.executor.Execute(ctx, plan, limit)
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func sortScoredDesc(results []ScoredObject) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}
