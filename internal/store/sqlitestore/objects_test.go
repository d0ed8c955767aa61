package sqlitestore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pwilkin/grizabella/internal/store"
	"github.com/pwilkin/grizabella/internal/types"
)

func newPerson(name string, age int64) types.ObjectInstance {
	return types.ObjectInstance{
		MemoryInstance: types.MemoryInstance{ID: uuid.New(), Weight: types.DefaultWeight, UpsertDate: time.Now().UTC()},
		ObjectTypeName: "Person",
		Properties: map[string]types.Value{
			"name": types.TextValue(name),
			"age":  types.IntValue(age),
		},
	}
}

func setupPersonTable(t *testing.T) *Store {
	t.Helper()
	s := openTestStore(t)
	if err := s.EnsureObjectTable(context.Background(), personType()); err != nil {
		t.Fatalf("EnsureObjectTable() error = %v", err)
	}
	return s
}

func TestUpsertAndGetObjectRoundTrips(t *testing.T) {
	s := setupPersonTable(t)
	ctx := context.Background()
	obj := newPerson("Alice", 30)

	if err := s.UpsertObject(ctx, "Person", obj); err != nil {
		t.Fatalf("UpsertObject() error = %v", err)
	}
	got, err := s.GetObject(ctx, "Person", obj.ID)
	if err != nil {
		t.Fatalf("GetObject() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetObject() = nil, want the object just upserted")
	}
	if got.Properties["name"].Text != "Alice" {
		t.Errorf("name = %q, want Alice", got.Properties["name"].Text)
	}
	if got.Properties["age"].Int != 30 {
		t.Errorf("age = %d, want 30", got.Properties["age"].Int)
	}
	if !got.Properties["bio"].Null {
		t.Error("bio should be Null when never set")
	}
}

func TestUpsertObjectUpdatesExistingRow(t *testing.T) {
	s := setupPersonTable(t)
	ctx := context.Background()
	obj := newPerson("Alice", 30)
	if err := s.UpsertObject(ctx, "Person", obj); err != nil {
		t.Fatalf("UpsertObject() error = %v", err)
	}

	obj.Properties["age"] = types.IntValue(31)
	if err := s.UpsertObject(ctx, "Person", obj); err != nil {
		t.Fatalf("UpsertObject() (update) error = %v", err)
	}

	got, err := s.GetObject(ctx, "Person", obj.ID)
	if err != nil {
		t.Fatalf("GetObject() error = %v", err)
	}
	if got.Properties["age"].Int != 31 {
		t.Errorf("age = %d, want 31 after update", got.Properties["age"].Int)
	}
	n, err := s.CountInstances(ctx, "Person")
	if err != nil {
		t.Fatalf("CountInstances() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CountInstances() = %d, want 1 (upsert should not duplicate)", n)
	}
}

func TestGetObjectReturnsNilForUnknownID(t *testing.T) {
	s := setupPersonTable(t)
	got, err := s.GetObject(context.Background(), "Person", uuid.New())
	if err != nil {
		t.Fatalf("GetObject() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetObject() = %v, want nil for an unknown id", got)
	}
}

func TestDeleteObjectRemovesRow(t *testing.T) {
	s := setupPersonTable(t)
	ctx := context.Background()
	obj := newPerson("Alice", 30)
	if err := s.UpsertObject(ctx, "Person", obj); err != nil {
		t.Fatalf("UpsertObject() error = %v", err)
	}
	if err := s.DeleteObject(ctx, "Person", obj.ID); err != nil {
		t.Fatalf("DeleteObject() error = %v", err)
	}
	got, err := s.GetObject(ctx, "Person", obj.ID)
	if err != nil {
		t.Fatalf("GetObject() error = %v", err)
	}
	if got != nil {
		t.Error("GetObject() after delete = non-nil, want nil")
	}
}

func TestFindAppliesFiltersAndLimit(t *testing.T) {
	s := setupPersonTable(t)
	ctx := context.Background()
	for _, p := range []struct {
		name string
		age  int64
	}{
		{"Alice", 30}, {"Bob", 40}, {"Carol", 40},
	} {
		if err := s.UpsertObject(ctx, "Person", newPerson(p.name, p.age)); err != nil {
			t.Fatalf("UpsertObject(%s) error = %v", p.name, err)
		}
	}

	found, err := s.Find(ctx, "Person", []store.Filter{{Property: "age", Operator: store.OpEqual, Value: int64(40)}}, 0)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("Find(age=40) returned %d rows, want 2", len(found))
	}

	limited, err := s.Find(ctx, "Person", nil, 1)
	if err != nil {
		t.Fatalf("Find() with limit error = %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("Find() with limit=1 returned %d rows, want 1", len(limited))
	}
}

func TestFindWithInOperator(t *testing.T) {
	s := setupPersonTable(t)
	ctx := context.Background()
	a := newPerson("Alice", 30)
	b := newPerson("Bob", 40)
	if err := s.UpsertObject(ctx, "Person", a); err != nil {
		t.Fatalf("UpsertObject(a) error = %v", err)
	}
	if err := s.UpsertObject(ctx, "Person", b); err != nil {
		t.Fatalf("UpsertObject(b) error = %v", err)
	}

	found, err := s.Find(ctx, "Person", []store.Filter{
		{Property: "name", Operator: store.OpIn, Value: []interface{}{"Alice", "Bob"}},
	}, 0)
	if err != nil {
		t.Fatalf("Find() with IN error = %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("Find() with IN returned %d rows, want 2", len(found))
	}
}

func TestFindRejectsUnknownProperty(t *testing.T) {
	s := setupPersonTable(t)
	_, err := s.Find(context.Background(), "Person", []store.Filter{
		{Property: "ghost", Operator: store.OpEqual, Value: "x"},
	}, 0)
	if err == nil {
		t.Error("Find() with an undeclared property should error")
	}
}
