package coordinator

import (
	"context"

	"github.com/google/uuid"

	"github.com/pwilkin/grizabella/internal/store"
	"github.com/pwilkin/grizabella/internal/types"
)

// fakeRelationalStore is an in-memory RelationalStore used across the
// coordinator tests: objects/relations are kept in plain maps, Find
// ignores filters and returns every instance of the requested type, and
// failure injection flags let write_test.go exercise the compensation
// path deterministically.
type fakeRelationalStore struct {
	objects   map[string]map[uuid.UUID]types.ObjectInstance
	relations map[string]map[uuid.UUID]types.RelationInstance
	repairs   []store.CoherenceRepairEntry

	failDeleteObject bool
}

func newFakeRelationalStore() *fakeRelationalStore {
	return &fakeRelationalStore{
		objects:   make(map[string]map[uuid.UUID]types.ObjectInstance),
		relations: make(map[string]map[uuid.UUID]types.RelationInstance),
	}
}

func (f *fakeRelationalStore) put(objectType string, obj types.ObjectInstance) {
	if f.objects[objectType] == nil {
		f.objects[objectType] = make(map[uuid.UUID]types.ObjectInstance)
	}
	f.objects[objectType][obj.ID] = obj
}

func (f *fakeRelationalStore) SaveObjectType(context.Context, types.ObjectTypeDefinition) error {
	return nil
}
func (f *fakeRelationalStore) LoadObjectTypes(context.Context) ([]types.ObjectTypeDefinition, error) {
	return nil, nil
}
func (f *fakeRelationalStore) DeleteObjectTypeMeta(context.Context, string) error { return nil }
func (f *fakeRelationalStore) SaveRelationType(context.Context, types.RelationTypeDefinition) error {
	return nil
}
func (f *fakeRelationalStore) LoadRelationTypes(context.Context) ([]types.RelationTypeDefinition, error) {
	return nil, nil
}
func (f *fakeRelationalStore) DeleteRelationTypeMeta(context.Context, string) error { return nil }
func (f *fakeRelationalStore) SaveEmbeddingDefinition(context.Context, types.EmbeddingDefinition) error {
	return nil
}
func (f *fakeRelationalStore) LoadEmbeddingDefinitions(context.Context) ([]types.EmbeddingDefinition, error) {
	return nil, nil
}
func (f *fakeRelationalStore) DeleteEmbeddingDefinitionMeta(context.Context, string) error {
	return nil
}
func (f *fakeRelationalStore) EnsureObjectTable(context.Context, types.ObjectTypeDefinition) error {
	return nil
}
func (f *fakeRelationalStore) EnsureRelationTable(context.Context, types.RelationTypeDefinition) error {
	return nil
}

func (f *fakeRelationalStore) UpsertObject(_ context.Context, objectType string, obj types.ObjectInstance) error {
	f.put(objectType, obj)
	return nil
}

func (f *fakeRelationalStore) GetObject(_ context.Context, objectType string, id uuid.UUID) (*types.ObjectInstance, error) {
	obj, ok := f.objects[objectType][id]
	if !ok {
		return nil, nil
	}
	return &obj, nil
}

func (f *fakeRelationalStore) DeleteObject(_ context.Context, objectType string, id uuid.UUID) error {
	if f.failDeleteObject {
		return fakeErr("relational delete object failed")
	}
	delete(f.objects[objectType], id)
	return nil
}

func (f *fakeRelationalStore) Find(_ context.Context, objectType string, _ []store.Filter, limit int) ([]types.ObjectInstance, error) {
	var out []types.ObjectInstance
	for _, obj := range f.objects[objectType] {
		out = append(out, obj)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRelationalStore) CountInstances(_ context.Context, objectType string) (int, error) {
	return len(f.objects[objectType]), nil
}

func (f *fakeRelationalStore) UpsertRelation(_ context.Context, relationType string, rel types.RelationInstance) error {
	if f.relations[relationType] == nil {
		f.relations[relationType] = make(map[uuid.UUID]types.RelationInstance)
	}
	f.relations[relationType][rel.ID] = rel
	return nil
}

func (f *fakeRelationalStore) DeleteRelation(_ context.Context, relationType string, id uuid.UUID) error {
	delete(f.relations[relationType], id)
	return nil
}

func (f *fakeRelationalStore) FindRelations(_ context.Context, q store.RelationQuery) ([]types.RelationInstance, error) {
	var out []types.RelationInstance
	for relType, rels := range f.relations {
		if q.RelationType != "" && q.RelationType != relType {
			continue
		}
		for _, rel := range rels {
			if q.SourceID != nil && rel.SourceID != *q.SourceID {
				continue
			}
			if q.TargetID != nil && rel.TargetID != *q.TargetID {
				continue
			}
			out = append(out, rel)
		}
	}
	return out, nil
}

func (f *fakeRelationalStore) RecordCoherenceRepair(_ context.Context, entry store.CoherenceRepairEntry) (string, error) {
	f.repairs = append(f.repairs, entry)
	return "repair-1", nil
}

func (f *fakeRelationalStore) ListCoherenceRepairs(context.Context) ([]store.CoherenceRepairRow, error) {
	return nil, nil
}
func (f *fakeRelationalStore) ResolveCoherenceRepair(context.Context, string) error { return nil }
func (f *fakeRelationalStore) Close() error                                        { return nil }

// fakeGraphStore is an in-memory GraphStore with failure injection for
// UpsertNode/UpsertEdge, used to exercise the write coordinator's
// compensation path.
type fakeGraphStore struct {
	nodes map[store.NodeRef]bool
	edges map[uuid.UUID]bool

	failUpsertNode bool
	failUpsertEdge bool
	failDeleteEdge bool
}

func newFakeGraphStore() *fakeGraphStore {
	return &fakeGraphStore{nodes: make(map[store.NodeRef]bool), edges: make(map[uuid.UUID]bool)}
}

func (g *fakeGraphStore) UpsertNode(_ context.Context, objectType string, id uuid.UUID) error {
	if g.failUpsertNode {
		return fakeErr("graph upsert node failed")
	}
	g.nodes[store.NodeRef{Type: objectType, ID: id}] = true
	return nil
}

func (g *fakeGraphStore) DeleteNode(_ context.Context, objectType string, id uuid.UUID) error {
	delete(g.nodes, store.NodeRef{Type: objectType, ID: id})
	return nil
}

func (g *fakeGraphStore) UpsertEdge(_ context.Context, _ string, _ store.NodeRef, _ store.NodeRef, id uuid.UUID, _ map[string]types.Value) error {
	if g.failUpsertEdge {
		return fakeErr("graph upsert edge failed")
	}
	g.edges[id] = true
	return nil
}

func (g *fakeGraphStore) DeleteEdge(_ context.Context, _ string, id uuid.UUID) error {
	if g.failDeleteEdge {
		return fakeErr("graph delete edge failed")
	}
	delete(g.edges, id)
	return nil
}

func (g *fakeGraphStore) Neighbors(context.Context, []store.NodeRef, string, store.Direction, string, *uuid.UUID, []store.Filter, int) ([]uuid.UUID, error) {
	return nil, nil
}

func (g *fakeGraphStore) Close() error { return nil }
