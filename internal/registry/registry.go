// Package registry implements the Schema Registry: the authoritative,
// in-memory catalog of object types, relation types, and embedding
// definitions, backed by the relational adapter's reserved metadata
// tables. All schema reads take the reader lock; create/delete operations
// take the writer lock, per spec §5's concurrency model.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/pwilkin/grizabella/internal/grizerr"
	"github.com/pwilkin/grizabella/internal/store"
	"github.com/pwilkin/grizabella/internal/types"
)

// BackfillFunc is invoked by CreateEmbeddingDefinition after the
// definition is durably recorded, so the embedding coordinator can enumerate
// existing instances of the target type and compute their vectors. The
// registry has no embedder of its own; it only triggers the coordinator.
type BackfillFunc func(ctx context.Context, def types.EmbeddingDefinition) error

// Registry is the process's schema catalog. One Registry belongs to one
// engine instance (not process-wide, unlike the adapter Pool).
type Registry struct {
	relational store.RelationalStore

	mu         sync.RWMutex
	objectTypes map[string]types.ObjectTypeDefinition
	relationTypes map[string]types.RelationTypeDefinition
	embeddingDefs map[string]types.EmbeddingDefinition

	backfill BackfillFunc
}

// New creates a Registry backed by relational and loads any previously
// persisted schema from its metadata tables.
func New(ctx context.Context, relational store.RelationalStore, backfill BackfillFunc) (*Registry, error) {
	r := &Registry{
		relational:    relational,
		objectTypes:   make(map[string]types.ObjectTypeDefinition),
		relationTypes: make(map[string]types.RelationTypeDefinition),
		embeddingDefs: make(map[string]types.EmbeddingDefinition),
		backfill:      backfill,
	}
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) load(ctx context.Context) error {
	objectTypes, err := r.relational.LoadObjectTypes(ctx)
	if err != nil {
		return fmt.Errorf("registry: load object types: %w", err)
	}
	for _, def := range objectTypes {
		r.objectTypes[def.Name] = def
		if err := r.relational.EnsureObjectTable(ctx, def); err != nil {
			return fmt.Errorf("registry: ensure table for %q: %w", def.Name, err)
		}
	}

	relationTypes, err := r.relational.LoadRelationTypes(ctx)
	if err != nil {
		return fmt.Errorf("registry: load relation types: %w", err)
	}
	for _, def := range relationTypes {
		r.relationTypes[def.Name] = def
		if err := r.relational.EnsureRelationTable(ctx, def); err != nil {
			return fmt.Errorf("registry: ensure table for %q: %w", def.Name, err)
		}
	}

	embeddingDefs, err := r.relational.LoadEmbeddingDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("registry: load embedding definitions: %w", err)
	}
	for _, def := range embeddingDefs {
		r.embeddingDefs[def.Name] = def
	}
	return nil
}

// CreateObjectType validates def and persists it; fails with SchemaConflict
// if the name already exists.
func (r *Registry) CreateObjectType(ctx context.Context, def types.ObjectTypeDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.objectTypes[def.Name]; exists {
		return grizerr.SchemaConflict("object type %q already exists", def.Name)
	}
	if err := def.Validate(); err != nil {
		return grizerr.Validation("%v", err)
	}
	if err := r.relational.EnsureObjectTable(ctx, def); err != nil {
		return fmt.Errorf("registry: create object type %q: %w", def.Name, err)
	}
	if err := r.relational.SaveObjectType(ctx, def); err != nil {
		return fmt.Errorf("registry: persist object type %q: %w", def.Name, err)
	}
	r.objectTypes[def.Name] = def
	return nil
}

// GetObjectType returns the named type definition, or NotFound.
func (r *Registry) GetObjectType(name string) (types.ObjectTypeDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.objectTypes[name]
	if !ok {
		return types.ObjectTypeDefinition{}, grizerr.NotFound("object type %q not found", name)
	}
	return def, nil
}

// ListObjectTypes returns every registered object type.
func (r *Registry) ListObjectTypes() []types.ObjectTypeDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ObjectTypeDefinition, 0, len(r.objectTypes))
	for _, def := range r.objectTypes {
		out = append(out, def)
	}
	return out
}

// DeleteObjectType removes the named type; fails with SchemaConflict if
// instances of it remain.
func (r *Registry) DeleteObjectType(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.objectTypes[name]; !ok {
		return grizerr.NotFound("object type %q not found", name)
	}
	count, err := r.relational.CountInstances(ctx, name)
	if err != nil {
		return fmt.Errorf("registry: count instances of %q: %w", name, err)
	}
	if count > 0 {
		return grizerr.SchemaConflict("object type %q has %d remaining instances", name, count)
	}
	if err := r.relational.DeleteObjectTypeMeta(ctx, name); err != nil {
		return fmt.Errorf("registry: delete object type %q: %w", name, err)
	}
	delete(r.objectTypes, name)
	return nil
}

// CreateRelationType validates def and persists it; fails with a
// ValidationError if any endpoint type is undefined.
func (r *Registry) CreateRelationType(ctx context.Context, def types.RelationTypeDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.relationTypes[def.Name]; exists {
		return grizerr.SchemaConflict("relation type %q already exists", def.Name)
	}
	if err := def.Validate(); err != nil {
		return grizerr.Validation("%v", err)
	}
	for _, t := range append(append([]string{}, def.SourceTypes...), def.TargetTypes...) {
		if _, ok := r.objectTypes[t]; !ok {
			return grizerr.Validation("relation type %q references undefined object type %q", def.Name, t)
		}
	}
	if err := r.relational.EnsureRelationTable(ctx, def); err != nil {
		return fmt.Errorf("registry: create relation type %q: %w", def.Name, err)
	}
	if err := r.relational.SaveRelationType(ctx, def); err != nil {
		return fmt.Errorf("registry: persist relation type %q: %w", def.Name, err)
	}
	r.relationTypes[def.Name] = def
	return nil
}

func (r *Registry) GetRelationType(name string) (types.RelationTypeDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.relationTypes[name]
	if !ok {
		return types.RelationTypeDefinition{}, grizerr.NotFound("relation type %q not found", name)
	}
	return def, nil
}

func (r *Registry) ListRelationTypes() []types.RelationTypeDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.RelationTypeDefinition, 0, len(r.relationTypes))
	for _, def := range r.relationTypes {
		out = append(out, def)
	}
	return out
}

func (r *Registry) DeleteRelationType(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.relationTypes[name]; !ok {
		return grizerr.NotFound("relation type %q not found", name)
	}
	rels, err := r.relational.FindRelations(ctx, store.RelationQuery{RelationType: name, Limit: 1})
	if err != nil {
		return fmt.Errorf("registry: find instances of relation type %q: %w", name, err)
	}
	if len(rels) > 0 {
		return grizerr.SchemaConflict("relation type %q has remaining instances", name)
	}
	if err := r.relational.DeleteRelationTypeMeta(ctx, name); err != nil {
		return fmt.Errorf("registry: delete relation type %q: %w", name, err)
	}
	delete(r.relationTypes, name)
	return nil
}

// CreateEmbeddingDefinition validates def (object type exists,
// source_property_name is a TEXT property of it), persists it, then
// triggers backfill for all existing instances of the target type.
func (r *Registry) CreateEmbeddingDefinition(ctx context.Context, def types.EmbeddingDefinition) error {
	r.mu.Lock()
	if _, exists := r.embeddingDefs[def.Name]; exists {
		r.mu.Unlock()
		return grizerr.SchemaConflict("embedding definition %q already exists", def.Name)
	}
	if err := def.Validate(); err != nil {
		r.mu.Unlock()
		return grizerr.Validation("%v", err)
	}
	objectType, ok := r.objectTypes[def.ObjectTypeName]
	if !ok {
		r.mu.Unlock()
		return grizerr.Validation("embedding definition %q references undefined object type %q", def.Name, def.ObjectTypeName)
	}
	prop, ok := objectType.Property(def.SourcePropertyName)
	if !ok {
		r.mu.Unlock()
		return grizerr.Validation("embedding definition %q: object type %q has no property %q", def.Name, def.ObjectTypeName, def.SourcePropertyName)
	}
	if prop.DataType != types.TypeText {
		r.mu.Unlock()
		return grizerr.Validation("embedding definition %q: source property %q must be TEXT, got %s", def.Name, def.SourcePropertyName, prop.DataType)
	}
	if err := r.relational.SaveEmbeddingDefinition(ctx, def); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("registry: persist embedding definition %q: %w", def.Name, err)
	}
	r.embeddingDefs[def.Name] = def
	r.mu.Unlock()

	if r.backfill != nil {
		if err := r.backfill(ctx, def); err != nil {
			return grizerr.Embedding(err, "backfill for embedding definition %q", def.Name)
		}
	}
	return nil
}

func (r *Registry) GetEmbeddingDefinition(name string) (types.EmbeddingDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.embeddingDefs[name]
	if !ok {
		return types.EmbeddingDefinition{}, grizerr.NotFound("embedding definition %q not found", name)
	}
	return def, nil
}

func (r *Registry) ListEmbeddingDefinitions() []types.EmbeddingDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.EmbeddingDefinition, 0, len(r.embeddingDefs))
	for _, def := range r.embeddingDefs {
		out = append(out, def)
	}
	return out
}

func (r *Registry) DeleteEmbeddingDefinition(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.embeddingDefs[name]; !ok {
		return grizerr.NotFound("embedding definition %q not found", name)
	}
	if err := r.relational.DeleteEmbeddingDefinitionMeta(ctx, name); err != nil {
		return fmt.Errorf("registry: delete embedding definition %q: %w", name, err)
	}
	delete(r.embeddingDefs, name)
	return nil
}

// EmbeddingDefinitionsFor returns every embedding definition whose
// source_property_name belongs to objectType, used by the embedding
// coordinator to compute the write-time delta.
func (r *Registry) EmbeddingDefinitionsFor(objectType string) []types.EmbeddingDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.EmbeddingDefinition
	for _, def := range r.embeddingDefs {
		if def.ObjectTypeName == objectType {
			out = append(out, def)
		}
	}
	return out
}

// SetDimensions fixes an embedding definition's dimensions at first
// successful computation, per the registry's invariant that dimensions
// are immutable thereafter.
func (r *Registry) SetDimensions(ctx context.Context, name string, dimensions int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	def, ok := r.embeddingDefs[name]
	if !ok {
		return grizerr.NotFound("embedding definition %q not found", name)
	}
	if def.Dimensions != 0 {
		return nil
	}
	def.Dimensions = dimensions
	if err := r.relational.SaveEmbeddingDefinition(ctx, def); err != nil {
		return fmt.Errorf("registry: persist dimensions for %q: %w", name, err)
	}
	r.embeddingDefs[name] = def
	return nil
}
