package engine

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/pwilkin/grizabella/internal/query"
	"github.com/pwilkin/grizabella/internal/store"
	"github.com/pwilkin/grizabella/internal/types"
	"github.com/pwilkin/grizabella/pkg/embedder"
)

// openTestEngine wires a fresh in-memory Engine: one shared sqlitestore
// instance serves all three store kinds, and the embedder config is never
// dialed unless a test registers an embedding definition and writes a
// matching property.
func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	ctx := context.Background()
	pool := store.NewPool()
	adapters, err := store.Open(ctx, pool, store.BackendConfig{
		RelationalPath: ":memory:",
		VectorBackend:  store.BackendSQLite,
		VectorDSN:      ":memory:",
		GraphBackend:   store.BackendSQLite,
		GraphDSN:       ":memory:",
	})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	e, err := Open(ctx, adapters, &embedder.Config{OllamaURL: "http://127.0.0.1:0"})
	if err != nil {
		t.Fatalf("engine.Open() error = %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func createPersonType(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()
	if err := e.CreateObjectType(ctx, types.ObjectTypeDefinition{
		Name: "Person",
		Properties: []types.PropertyDefinition{
			{Name: "name", DataType: types.TypeText, IsIndexed: true},
			{Name: "age", DataType: types.TypeInteger, IsIndexed: true},
		},
	}); err != nil {
		t.Fatalf("CreateObjectType() error = %v", err)
	}
}

func newPersonObj(name string, age int64) types.ObjectInstance {
	return types.ObjectInstance{
		ObjectTypeName: "Person",
		Properties: map[string]types.Value{
			"name": types.TextValue(name),
			"age":  types.IntValue(age),
		},
	}
}

func TestOpenAndCloseSucceeds(t *testing.T) {
	e := openTestEngine(t)
	if e == nil {
		t.Fatal("Open() returned a nil engine")
	}
}

func TestCreateObjectTypeListGetDelete(t *testing.T) {
	e := openTestEngine(t)
	createPersonType(t, e)

	types_ := e.ListObjectTypes()
	if len(types_) != 1 || types_[0].Name != "Person" {
		t.Fatalf("ListObjectTypes() = %v, want [Person]", types_)
	}

	def, err := e.GetObjectType("Person")
	if err != nil {
		t.Fatalf("GetObjectType() error = %v", err)
	}
	if def.Name != "Person" {
		t.Errorf("GetObjectType().Name = %q, want Person", def.Name)
	}

	if err := e.DeleteObjectType(context.Background(), "Person"); err != nil {
		t.Fatalf("DeleteObjectType() error = %v", err)
	}
	if len(e.ListObjectTypes()) != 0 {
		t.Error("ListObjectTypes() after delete should be empty")
	}
}

func TestUpsertFindAndDeleteObject(t *testing.T) {
	e := openTestEngine(t)
	createPersonType(t, e)
	ctx := context.Background()

	obj, embedErrs, err := e.UpsertObject(ctx, newPersonObj("Alice", 30))
	if err != nil {
		t.Fatalf("UpsertObject() error = %v", err)
	}
	if len(embedErrs) != 0 {
		t.Errorf("embedErrs = %v, want none (no embedding definitions registered)", embedErrs)
	}

	got, err := e.GetObjectByID(ctx, "Person", obj.ID)
	if err != nil {
		t.Fatalf("GetObjectByID() error = %v", err)
	}
	if got == nil || got.Properties["name"].Text != "Alice" {
		t.Fatalf("GetObjectByID() = %v, want Alice", got)
	}

	found, err := e.FindObjects(ctx, "Person", []store.Filter{{Property: "age", Operator: store.OpGreaterEqual, Value: int64(18)}}, 0)
	if err != nil {
		t.Fatalf("FindObjects() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("FindObjects() = %v, want one adult", found)
	}

	deleted, err := e.DeleteObject(ctx, "Person", obj.ID)
	if err != nil {
		t.Fatalf("DeleteObject() error = %v", err)
	}
	if !deleted {
		t.Error("DeleteObject() deleted = false, want true")
	}
	got, err = e.GetObjectByID(ctx, "Person", obj.ID)
	if err != nil {
		t.Fatalf("GetObjectByID() after delete error = %v", err)
	}
	if got != nil {
		t.Error("GetObjectByID() after delete should be nil")
	}
}

func TestGetObjectByIDRejectsUnknownType(t *testing.T) {
	e := openTestEngine(t)
	if _, err := e.GetObjectByID(context.Background(), "Ghost", uuid.New()); err == nil {
		t.Error("GetObjectByID() for an undeclared object type should error")
	}
}

func TestRelationLifecycle(t *testing.T) {
	e := openTestEngine(t)
	createPersonType(t, e)
	ctx := context.Background()
	if err := e.CreateObjectType(ctx, types.ObjectTypeDefinition{
		Name:       "Company",
		Properties: []types.PropertyDefinition{{Name: "label", DataType: types.TypeText, IsNullable: true}},
	}); err != nil {
		t.Fatalf("CreateObjectType(Company) error = %v", err)
	}
	if err := e.CreateRelationType(ctx, types.RelationTypeDefinition{
		Name: "works_at", SourceTypes: []string{"Person"}, TargetTypes: []string{"Company"},
	}); err != nil {
		t.Fatalf("CreateRelationType() error = %v", err)
	}

	person, _, err := e.UpsertObject(ctx, newPersonObj("Alice", 30))
	if err != nil {
		t.Fatalf("UpsertObject(person) error = %v", err)
	}
	company, _, err := e.UpsertObject(ctx, types.ObjectInstance{ObjectTypeName: "Company"})
	if err != nil {
		t.Fatalf("UpsertObject(company) error = %v", err)
	}

	rel, err := e.AddRelation(ctx, types.RelationInstance{
		RelationTypeName: "works_at", SourceID: person.ID, TargetID: company.ID,
	}, "Person", "Company")
	if err != nil {
		t.Fatalf("AddRelation() error = %v", err)
	}

	got, err := e.GetRelation(ctx, person.ID, company.ID, "works_at")
	if err != nil {
		t.Fatalf("GetRelation() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("GetRelation() = %v, want one relation", got)
	}

	outgoing, err := e.GetOutgoingRelations(ctx, person.ID, "Person", "works_at")
	if err != nil {
		t.Fatalf("GetOutgoingRelations() error = %v", err)
	}
	if len(outgoing) != 1 {
		t.Errorf("GetOutgoingRelations() = %v, want one relation", outgoing)
	}

	incoming, err := e.GetIncomingRelations(ctx, company.ID, "Company", "works_at")
	if err != nil {
		t.Fatalf("GetIncomingRelations() error = %v", err)
	}
	if len(incoming) != 1 {
		t.Errorf("GetIncomingRelations() = %v, want one relation", incoming)
	}

	deleted, err := e.DeleteRelation(ctx, "works_at", rel.ID)
	if err != nil {
		t.Fatalf("DeleteRelation() error = %v", err)
	}
	if !deleted {
		t.Error("DeleteRelation() deleted = false, want true")
	}
}

func TestExecuteComplexQueryFiltersByProperty(t *testing.T) {
	e := openTestEngine(t)
	createPersonType(t, e)
	ctx := context.Background()

	if _, _, err := e.UpsertObject(ctx, newPersonObj("Alice", 30)); err != nil {
		t.Fatalf("UpsertObject(Alice) error = %v", err)
	}
	if _, _, err := e.UpsertObject(ctx, newPersonObj("Bob", 15)); err != nil {
		t.Fatalf("UpsertObject(Bob) error = %v", err)
	}

	comp := query.NewComponent("Person").WithFilter("age", store.OpGreaterEqual, int64(18)).Build()
	q := query.FromComponents(comp)

	result, err := e.ExecuteComplexQuery(ctx, q, 0)
	if err != nil {
		t.Fatalf("ExecuteComplexQuery() error = %v", err)
	}
	if len(result.Instances) != 1 || result.Instances[0].Properties["name"].Text != "Alice" {
		t.Fatalf("ExecuteComplexQuery() = %v, want only Alice", result.Instances)
	}
}

func TestExecuteComplexQueryRejectsUnknownObjectType(t *testing.T) {
	e := openTestEngine(t)
	comp := query.NewComponent("Ghost").Build()
	_, err := e.ExecuteComplexQuery(context.Background(), query.FromComponents(comp), 0)
	if err == nil {
		t.Error("ExecuteComplexQuery() against an undeclared object type should error")
	}
}
