package coordinator

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/pwilkin/grizabella/internal/grizerr"
	"github.com/pwilkin/grizabella/internal/registry"
	"github.com/pwilkin/grizabella/internal/store"
	"github.com/pwilkin/grizabella/internal/types"
	"github.com/pwilkin/grizabella/pkg/embedder"
)

func newTestRegistryNoEmbeddings(t *testing.T, rel *fakeRelationalStore) *registry.Registry {
	t.Helper()
	ctx := context.Background()
	reg, err := registry.New(ctx, rel, nil)
	if err != nil {
		t.Fatalf("registry.New() error = %v", err)
	}
	if err := reg.CreateObjectType(ctx, types.ObjectTypeDefinition{
		Name: "Person",
		Properties: []types.PropertyDefinition{
			{Name: "name", DataType: types.TypeText, IsNullable: true},
		},
	}); err != nil {
		t.Fatalf("CreateObjectType(Person) error = %v", err)
	}
	if err := reg.CreateObjectType(ctx, types.ObjectTypeDefinition{
		Name: "Company",
		Properties: []types.PropertyDefinition{
			{Name: "label", DataType: types.TypeText, IsNullable: true},
		},
	}); err != nil {
		t.Fatalf("CreateObjectType(Company) error = %v", err)
	}
	if err := reg.CreateRelationType(ctx, types.RelationTypeDefinition{
		Name:        "works_at",
		SourceTypes: []string{"Person"},
		TargetTypes: []string{"Company"},
	}); err != nil {
		t.Fatalf("CreateRelationType() error = %v", err)
	}
	return reg
}

func newWriteCoordinator(t *testing.T, rel *fakeRelationalStore, graph *fakeGraphStore) (*WriteCoordinator, *registry.Registry) {
	t.Helper()
	reg := newTestRegistryNoEmbeddings(t, rel)
	embed := NewEmbeddingCoordinator(reg, newFakeVectorStore(), &fakeModels{embedders: map[string]embedder.Embedder{}})
	return New(reg, rel, graph, embed), reg
}

func newPersonObject(name string) types.ObjectInstance {
	inst := types.ObjectInstance{
		ObjectTypeName: "Person",
		Properties:     map[string]types.Value{"name": types.TextValue(name)},
	}
	return inst
}

func TestUpsertObjectWritesRelationalAndGraph(t *testing.T) {
	rel := newFakeRelationalStore()
	graph := newFakeGraphStore()
	wc, _ := newWriteCoordinator(t, rel, graph)

	obj, embedErrs, err := wc.UpsertObject(context.Background(), newPersonObject("Alice"))
	if err != nil {
		t.Fatalf("UpsertObject() error = %v", err)
	}
	if len(embedErrs) != 0 {
		t.Errorf("embedErrs = %v, want none", embedErrs)
	}
	if obj.ID == uuid.Nil {
		t.Error("UpsertObject() did not assign an id")
	}
	if _, ok := rel.objects["Person"][obj.ID]; !ok {
		t.Error("object not found in relational store after upsert")
	}
	if !graph.nodes[store.NodeRef{Type: "Person", ID: obj.ID}] {
		t.Error("graph node not found after upsert")
	}
}

func TestUpsertObjectCompensatesWhenGraphFails(t *testing.T) {
	rel := newFakeRelationalStore()
	graph := newFakeGraphStore()
	graph.failUpsertNode = true
	wc, _ := newWriteCoordinator(t, rel, graph)

	_, _, err := wc.UpsertObject(context.Background(), newPersonObject("Alice"))
	if err == nil {
		t.Fatal("UpsertObject() error = nil, want an error when the graph mirror write fails")
	}
	// The relational row should have been rolled back by compensation.
	if len(rel.objects["Person"]) != 0 {
		t.Errorf("relational store has %d objects, want 0 after compensated rollback", len(rel.objects["Person"]))
	}
}

func TestUpsertObjectRecordsCoherenceRepairWhenCompensationFails(t *testing.T) {
	rel := newFakeRelationalStore()
	rel.failDeleteObject = true
	graph := newFakeGraphStore()
	graph.failUpsertNode = true
	wc, _ := newWriteCoordinator(t, rel, graph)

	_, _, err := wc.UpsertObject(context.Background(), newPersonObject("Alice"))
	if !grizerr.Is(err, grizerr.KindPartialWrite) {
		t.Fatalf("UpsertObject() error = %v, want KindPartialWrite", err)
	}
	if len(rel.repairs) != 1 {
		t.Fatalf("len(repairs) = %d, want 1", len(rel.repairs))
	}
	if rel.repairs[0].ObjectType != "Person" {
		t.Errorf("repairs[0].ObjectType = %q, want Person so the repair worker can replay UpsertNode", rel.repairs[0].ObjectType)
	}
	if rel.repairs[0].Store != "graph" {
		t.Errorf("repairs[0].Store = %q, want graph", rel.repairs[0].Store)
	}
}

func TestUpsertObjectRejectsUnknownProperty(t *testing.T) {
	rel := newFakeRelationalStore()
	graph := newFakeGraphStore()
	wc, _ := newWriteCoordinator(t, rel, graph)

	obj := newPersonObject("Alice")
	obj.Properties["ghost"] = types.TextValue("x")
	_, _, err := wc.UpsertObject(context.Background(), obj)
	if !grizerr.Is(err, grizerr.KindValidation) {
		t.Errorf("UpsertObject() error = %v, want KindValidation", err)
	}
}

func TestDeleteObjectCascadesRelationsAndGraphNode(t *testing.T) {
	rel := newFakeRelationalStore()
	graph := newFakeGraphStore()
	wc, _ := newWriteCoordinator(t, rel, graph)
	ctx := context.Background()

	person, _, err := wc.UpsertObject(ctx, newPersonObject("Alice"))
	if err != nil {
		t.Fatalf("UpsertObject(person) error = %v", err)
	}
	company, _, err := wc.UpsertObject(ctx, types.ObjectInstance{ObjectTypeName: "Company"})
	if err != nil {
		t.Fatalf("UpsertObject(company) error = %v", err)
	}

	rel0 := types.RelationInstance{RelationTypeName: "works_at", SourceID: person.ID, TargetID: company.ID}
	added, err := wc.AddRelation(ctx, rel0, "Person", "Company")
	if err != nil {
		t.Fatalf("AddRelation() error = %v", err)
	}

	deleted, err := wc.DeleteObject(ctx, "Person", person.ID)
	if err != nil {
		t.Fatalf("DeleteObject() error = %v", err)
	}
	if !deleted {
		t.Error("DeleteObject() deleted = false, want true")
	}
	if _, ok := rel.relations["works_at"][added.ID]; ok {
		t.Error("relation still present after its source object was deleted")
	}
	if _, ok := rel.objects["Person"][person.ID]; ok {
		t.Error("object still present in relational store after delete")
	}
}

func TestDeleteObjectIsIdempotentForUnknownID(t *testing.T) {
	rel := newFakeRelationalStore()
	graph := newFakeGraphStore()
	wc, _ := newWriteCoordinator(t, rel, graph)

	deleted, err := wc.DeleteObject(context.Background(), "Person", uuid.New())
	if err != nil {
		t.Fatalf("DeleteObject() error = %v", err)
	}
	if deleted {
		t.Error("DeleteObject() deleted = true, want false for an unknown id")
	}
}

func TestAddRelationRequiresBothEndpointsToExist(t *testing.T) {
	rel := newFakeRelationalStore()
	graph := newFakeGraphStore()
	wc, _ := newWriteCoordinator(t, rel, graph)
	ctx := context.Background()

	person, _, err := wc.UpsertObject(ctx, newPersonObject("Alice"))
	if err != nil {
		t.Fatalf("UpsertObject() error = %v", err)
	}

	_, err = wc.AddRelation(ctx, types.RelationInstance{
		RelationTypeName: "works_at",
		SourceID:         person.ID,
		TargetID:         uuid.New(),
	}, "Person", "Company")
	if !grizerr.Is(err, grizerr.KindNotFound) {
		t.Errorf("AddRelation() error = %v, want KindNotFound for a missing target", err)
	}
}

func TestAddRelationRejectsDisallowedEndpointTypes(t *testing.T) {
	rel := newFakeRelationalStore()
	graph := newFakeGraphStore()
	wc, _ := newWriteCoordinator(t, rel, graph)
	ctx := context.Background()

	person, _, err := wc.UpsertObject(ctx, newPersonObject("Alice"))
	if err != nil {
		t.Fatalf("UpsertObject() error = %v", err)
	}
	company, _, err := wc.UpsertObject(ctx, types.ObjectInstance{ObjectTypeName: "Company"})
	if err != nil {
		t.Fatalf("UpsertObject() error = %v", err)
	}

	_, err = wc.AddRelation(ctx, types.RelationInstance{
		RelationTypeName: "works_at",
		SourceID:         company.ID,
		TargetID:         person.ID,
	}, "Company", "Person")
	if !grizerr.Is(err, grizerr.KindValidation) {
		t.Errorf("AddRelation() error = %v, want KindValidation for reversed endpoint types", err)
	}
}

func TestDeleteRelationRemovesEdgeThenRow(t *testing.T) {
	rel := newFakeRelationalStore()
	graph := newFakeGraphStore()
	wc, _ := newWriteCoordinator(t, rel, graph)
	ctx := context.Background()

	person, _, err := wc.UpsertObject(ctx, newPersonObject("Alice"))
	if err != nil {
		t.Fatalf("UpsertObject() error = %v", err)
	}
	company, _, err := wc.UpsertObject(ctx, types.ObjectInstance{ObjectTypeName: "Company"})
	if err != nil {
		t.Fatalf("UpsertObject() error = %v", err)
	}
	added, err := wc.AddRelation(ctx, types.RelationInstance{
		RelationTypeName: "works_at", SourceID: person.ID, TargetID: company.ID,
	}, "Person", "Company")
	if err != nil {
		t.Fatalf("AddRelation() error = %v", err)
	}

	deleted, err := wc.DeleteRelation(ctx, "works_at", added.ID)
	if err != nil {
		t.Fatalf("DeleteRelation() error = %v", err)
	}
	if !deleted {
		t.Error("DeleteRelation() deleted = false, want true")
	}
	if graph.edges[added.ID] {
		t.Error("graph edge still present after DeleteRelation")
	}
}
