package sqlitestore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pwilkin/grizabella/internal/store"
	"github.com/pwilkin/grizabella/internal/types"
)

func worksAtType() types.RelationTypeDefinition {
	return types.RelationTypeDefinition{
		Name:        "works_at",
		SourceTypes: []string{"Person"},
		TargetTypes: []string{"Company"},
		Properties: []types.PropertyDefinition{
			{Name: "role", DataType: types.TypeText, IsNullable: true},
		},
	}
}

func newWorksAt(sourceID, targetID uuid.UUID, role string) types.RelationInstance {
	return types.RelationInstance{
		MemoryInstance:   types.MemoryInstance{ID: uuid.New(), Weight: types.DefaultWeight, UpsertDate: time.Now().UTC()},
		RelationTypeName: "works_at",
		SourceID:         sourceID,
		TargetID:         targetID,
		Properties:       map[string]types.Value{"role": types.TextValue(role)},
	}
}

func setupWorksAtTable(t *testing.T) *Store {
	t.Helper()
	s := openTestStore(t)
	if err := s.EnsureRelationTable(context.Background(), worksAtType()); err != nil {
		t.Fatalf("EnsureRelationTable() error = %v", err)
	}
	return s
}

func TestUpsertRelationAndFindRelations(t *testing.T) {
	s := setupWorksAtTable(t)
	ctx := context.Background()
	person, company := uuid.New(), uuid.New()
	rel := newWorksAt(person, company, "engineer")

	if err := s.UpsertRelation(ctx, "works_at", rel); err != nil {
		t.Fatalf("UpsertRelation() error = %v", err)
	}

	found, err := s.FindRelations(ctx, store.RelationQuery{RelationType: "works_at", SourceID: &person})
	if err != nil {
		t.Fatalf("FindRelations() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("FindRelations() returned %d rows, want 1", len(found))
	}
	if found[0].Properties["role"].Text != "engineer" {
		t.Errorf("role = %q, want engineer", found[0].Properties["role"].Text)
	}
}

func TestFindRelationsFiltersByTargetID(t *testing.T) {
	s := setupWorksAtTable(t)
	ctx := context.Background()
	person1, person2, company := uuid.New(), uuid.New(), uuid.New()
	if err := s.UpsertRelation(ctx, "works_at", newWorksAt(person1, company, "engineer")); err != nil {
		t.Fatalf("UpsertRelation(1) error = %v", err)
	}
	if err := s.UpsertRelation(ctx, "works_at", newWorksAt(person2, company, "manager")); err != nil {
		t.Fatalf("UpsertRelation(2) error = %v", err)
	}

	found, err := s.FindRelations(ctx, store.RelationQuery{TargetID: &company})
	if err != nil {
		t.Fatalf("FindRelations() error = %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("FindRelations(target) returned %d rows, want 2", len(found))
	}
}

func TestDeleteRelationRemovesRow(t *testing.T) {
	s := setupWorksAtTable(t)
	ctx := context.Background()
	rel := newWorksAt(uuid.New(), uuid.New(), "engineer")
	if err := s.UpsertRelation(ctx, "works_at", rel); err != nil {
		t.Fatalf("UpsertRelation() error = %v", err)
	}
	if err := s.DeleteRelation(ctx, "works_at", rel.ID); err != nil {
		t.Fatalf("DeleteRelation() error = %v", err)
	}
	found, err := s.FindRelations(ctx, store.RelationQuery{RelationType: "works_at"})
	if err != nil {
		t.Fatalf("FindRelations() error = %v", err)
	}
	if len(found) != 0 {
		t.Errorf("FindRelations() after delete = %v, want empty", found)
	}
}

func TestCoherenceRepairLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	entry := store.CoherenceRepairEntry{Store: "graph", Operation: "upsert_node", ID: uuid.New(), ObjectType: "Person", Detail: "graph write failed"}

	rowID, err := s.RecordCoherenceRepair(ctx, entry)
	if err != nil {
		t.Fatalf("RecordCoherenceRepair() error = %v", err)
	}
	if rowID == "" {
		t.Fatal("RecordCoherenceRepair() returned an empty row id")
	}

	rows, err := s.ListCoherenceRepairs(ctx)
	if err != nil {
		t.Fatalf("ListCoherenceRepairs() error = %v", err)
	}
	if len(rows) != 1 || rows[0].RowID != rowID {
		t.Fatalf("ListCoherenceRepairs() = %v, want one row with id %q", rows, rowID)
	}
	if rows[0].ObjectType != "Person" {
		t.Errorf("ListCoherenceRepairs()[0].ObjectType = %q, want Person", rows[0].ObjectType)
	}

	if err := s.ResolveCoherenceRepair(ctx, rowID); err != nil {
		t.Fatalf("ResolveCoherenceRepair() error = %v", err)
	}
	rows, err = s.ListCoherenceRepairs(ctx)
	if err != nil {
		t.Fatalf("ListCoherenceRepairs() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("ListCoherenceRepairs() after resolve = %v, want empty", rows)
	}
}
