package registry

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/pwilkin/grizabella/internal/grizerr"
	"github.com/pwilkin/grizabella/internal/store"
	"github.com/pwilkin/grizabella/internal/types"
)

// fakeStore is a no-op RelationalStore that also tracks instance counts
// per object type, so DeleteObjectType's in-use check can be exercised.
type fakeStore struct {
	counts map[string]int
}

func newFakeStore() *fakeStore { return &fakeStore{counts: make(map[string]int)} }

func (f *fakeStore) SaveObjectType(context.Context, types.ObjectTypeDefinition) error { return nil }
func (f *fakeStore) LoadObjectTypes(context.Context) ([]types.ObjectTypeDefinition, error) {
	return nil, nil
}
func (f *fakeStore) DeleteObjectTypeMeta(context.Context, string) error { return nil }
func (f *fakeStore) SaveRelationType(context.Context, types.RelationTypeDefinition) error {
	return nil
}
func (f *fakeStore) LoadRelationTypes(context.Context) ([]types.RelationTypeDefinition, error) {
	return nil, nil
}
func (f *fakeStore) DeleteRelationTypeMeta(context.Context, string) error { return nil }
func (f *fakeStore) SaveEmbeddingDefinition(context.Context, types.EmbeddingDefinition) error {
	return nil
}
func (f *fakeStore) LoadEmbeddingDefinitions(context.Context) ([]types.EmbeddingDefinition, error) {
	return nil, nil
}
func (f *fakeStore) DeleteEmbeddingDefinitionMeta(context.Context, string) error { return nil }
func (f *fakeStore) EnsureObjectTable(context.Context, types.ObjectTypeDefinition) error {
	return nil
}
func (f *fakeStore) EnsureRelationTable(context.Context, types.RelationTypeDefinition) error {
	return nil
}
func (f *fakeStore) UpsertObject(context.Context, string, types.ObjectInstance) error { return nil }
func (f *fakeStore) GetObject(context.Context, string, uuid.UUID) (*types.ObjectInstance, error) {
	return nil, nil
}
func (f *fakeStore) DeleteObject(context.Context, string, uuid.UUID) error { return nil }
func (f *fakeStore) Find(context.Context, string, []store.Filter, int) ([]types.ObjectInstance, error) {
	return nil, nil
}
func (f *fakeStore) CountInstances(_ context.Context, objectType string) (int, error) {
	return f.counts[objectType], nil
}
func (f *fakeStore) UpsertRelation(context.Context, string, types.RelationInstance) error {
	return nil
}
func (f *fakeStore) DeleteRelation(context.Context, string, uuid.UUID) error { return nil }
func (f *fakeStore) FindRelations(context.Context, store.RelationQuery) ([]types.RelationInstance, error) {
	return nil, nil
}
func (f *fakeStore) RecordCoherenceRepair(context.Context, store.CoherenceRepairEntry) (string, error) {
	return "", nil
}
func (f *fakeStore) ListCoherenceRepairs(context.Context) ([]store.CoherenceRepairRow, error) {
	return nil, nil
}
func (f *fakeStore) ResolveCoherenceRepair(context.Context, string) error { return nil }
func (f *fakeStore) Close() error                                        { return nil }

func personType() types.ObjectTypeDefinition {
	return types.ObjectTypeDefinition{
		Name: "Person",
		Properties: []types.PropertyDefinition{
			{Name: "id", DataType: types.TypeUUID, IsPrimaryKey: true},
			{Name: "name", DataType: types.TypeText},
			{Name: "bio", DataType: types.TypeText},
		},
	}
}

func TestCreateObjectTypeAndGet(t *testing.T) {
	ctx := context.Background()
	reg, err := New(ctx, newFakeStore(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := reg.CreateObjectType(ctx, personType()); err != nil {
		t.Fatalf("CreateObjectType() error = %v", err)
	}

	def, err := reg.GetObjectType("Person")
	if err != nil {
		t.Fatalf("GetObjectType() error = %v", err)
	}
	if def.Name != "Person" {
		t.Errorf("GetObjectType().Name = %q, want Person", def.Name)
	}

	if _, err := reg.GetObjectType("Ghost"); !grizerr.Is(err, grizerr.KindNotFound) {
		t.Errorf("GetObjectType(Ghost) error = %v, want KindNotFound", err)
	}
}

func TestCreateObjectTypeRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	reg, _ := New(ctx, newFakeStore(), nil)
	if err := reg.CreateObjectType(ctx, personType()); err != nil {
		t.Fatalf("CreateObjectType() error = %v", err)
	}
	err := reg.CreateObjectType(ctx, personType())
	if !grizerr.Is(err, grizerr.KindSchemaConflict) {
		t.Errorf("second CreateObjectType() error = %v, want KindSchemaConflict", err)
	}
}

func TestCreateObjectTypeRejectsInvalidDefinition(t *testing.T) {
	ctx := context.Background()
	reg, _ := New(ctx, newFakeStore(), nil)
	err := reg.CreateObjectType(ctx, types.ObjectTypeDefinition{Name: "Empty"})
	if !grizerr.Is(err, grizerr.KindValidation) {
		t.Errorf("CreateObjectType(no properties) error = %v, want KindValidation", err)
	}
}

func TestDeleteObjectTypeRejectedWhileInstancesExist(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStore()
	reg, _ := New(ctx, fs, nil)
	if err := reg.CreateObjectType(ctx, personType()); err != nil {
		t.Fatalf("CreateObjectType() error = %v", err)
	}
	fs.counts["Person"] = 3

	err := reg.DeleteObjectType(ctx, "Person")
	if !grizerr.Is(err, grizerr.KindSchemaConflict) {
		t.Errorf("DeleteObjectType() error = %v, want KindSchemaConflict", err)
	}

	fs.counts["Person"] = 0
	if err := reg.DeleteObjectType(ctx, "Person"); err != nil {
		t.Errorf("DeleteObjectType() error = %v, want nil once instances are gone", err)
	}
	if _, err := reg.GetObjectType("Person"); !grizerr.Is(err, grizerr.KindNotFound) {
		t.Errorf("GetObjectType() after delete error = %v, want KindNotFound", err)
	}
}

func TestCreateRelationTypeRequiresKnownEndpoints(t *testing.T) {
	ctx := context.Background()
	reg, _ := New(ctx, newFakeStore(), nil)
	if err := reg.CreateObjectType(ctx, personType()); err != nil {
		t.Fatalf("CreateObjectType() error = %v", err)
	}

	err := reg.CreateRelationType(ctx, types.RelationTypeDefinition{
		Name:        "knows",
		SourceTypes: []string{"Person"},
		TargetTypes: []string{"Ghost"},
	})
	if !grizerr.Is(err, grizerr.KindValidation) {
		t.Errorf("CreateRelationType() error = %v, want KindValidation for undefined target type", err)
	}

	err = reg.CreateRelationType(ctx, types.RelationTypeDefinition{
		Name:        "knows",
		SourceTypes: []string{"Person"},
		TargetTypes: []string{"Person"},
	})
	if err != nil {
		t.Errorf("CreateRelationType() error = %v, want nil", err)
	}
}

func TestCreateEmbeddingDefinitionValidatesSourceProperty(t *testing.T) {
	ctx := context.Background()
	reg, _ := New(ctx, newFakeStore(), nil)
	if err := reg.CreateObjectType(ctx, personType()); err != nil {
		t.Fatalf("CreateObjectType() error = %v", err)
	}

	err := reg.CreateEmbeddingDefinition(ctx, types.EmbeddingDefinition{
		Name:               "bad_embedding",
		ObjectTypeName:     "Person",
		SourcePropertyName: "id",
		EmbeddingModelID:   "nomic-embed-text",
	})
	if !grizerr.Is(err, grizerr.KindValidation) {
		t.Errorf("CreateEmbeddingDefinition() error = %v, want KindValidation for a non-TEXT source property", err)
	}

	err = reg.CreateEmbeddingDefinition(ctx, types.EmbeddingDefinition{
		Name:               "bio_embedding",
		ObjectTypeName:     "Person",
		SourcePropertyName: "bio",
		EmbeddingModelID:   "nomic-embed-text",
	})
	if err != nil {
		t.Errorf("CreateEmbeddingDefinition() error = %v, want nil", err)
	}
}

func TestCreateEmbeddingDefinitionTriggersBackfill(t *testing.T) {
	ctx := context.Background()
	var backfilled []string
	backfill := func(_ context.Context, def types.EmbeddingDefinition) error {
		backfilled = append(backfilled, def.Name)
		return nil
	}
	reg, _ := New(ctx, newFakeStore(), backfill)
	if err := reg.CreateObjectType(ctx, personType()); err != nil {
		t.Fatalf("CreateObjectType() error = %v", err)
	}
	if err := reg.CreateEmbeddingDefinition(ctx, types.EmbeddingDefinition{
		Name:               "bio_embedding",
		ObjectTypeName:     "Person",
		SourcePropertyName: "bio",
		EmbeddingModelID:   "nomic-embed-text",
	}); err != nil {
		t.Fatalf("CreateEmbeddingDefinition() error = %v", err)
	}
	if len(backfilled) != 1 || backfilled[0] != "bio_embedding" {
		t.Errorf("backfilled = %v, want [bio_embedding]", backfilled)
	}
}

func TestSetDimensionsIsImmutableOnceSet(t *testing.T) {
	ctx := context.Background()
	reg, _ := New(ctx, newFakeStore(), nil)
	if err := reg.CreateObjectType(ctx, personType()); err != nil {
		t.Fatalf("CreateObjectType() error = %v", err)
	}
	if err := reg.CreateEmbeddingDefinition(ctx, types.EmbeddingDefinition{
		Name:               "bio_embedding",
		ObjectTypeName:     "Person",
		SourcePropertyName: "bio",
		EmbeddingModelID:   "nomic-embed-text",
	}); err != nil {
		t.Fatalf("CreateEmbeddingDefinition() error = %v", err)
	}

	if err := reg.SetDimensions(ctx, "bio_embedding", 768); err != nil {
		t.Fatalf("SetDimensions() error = %v", err)
	}
	if err := reg.SetDimensions(ctx, "bio_embedding", 1536); err != nil {
		t.Fatalf("SetDimensions() error = %v", err)
	}
	def, err := reg.GetEmbeddingDefinition("bio_embedding")
	if err != nil {
		t.Fatalf("GetEmbeddingDefinition() error = %v", err)
	}
	if def.Dimensions != 768 {
		t.Errorf("Dimensions = %d, want 768 (first-write-wins)", def.Dimensions)
	}
}

func TestValidateObjectInstanceFillsNullableDefaultsAndRejectsUnknownProperty(t *testing.T) {
	ctx := context.Background()
	reg, _ := New(ctx, newFakeStore(), nil)
	def := types.ObjectTypeDefinition{
		Name: "Person",
		Properties: []types.PropertyDefinition{
			{Name: "id", DataType: types.TypeUUID, IsPrimaryKey: true},
			{Name: "name", DataType: types.TypeText},
			{Name: "nickname", DataType: types.TypeText, IsNullable: true},
		},
	}
	if err := reg.CreateObjectType(ctx, def); err != nil {
		t.Fatalf("CreateObjectType() error = %v", err)
	}

	id := uuid.New()
	obj := &types.ObjectInstance{
		ObjectTypeName: "Person",
		Properties: map[string]types.Value{
			"id":   types.UUIDValue(id),
			"name": types.TextValue("Alice"),
		},
	}
	obj.EnsureDefaults()
	if err := reg.ValidateObjectInstance(obj); err != nil {
		t.Fatalf("ValidateObjectInstance() error = %v", err)
	}
	if v, ok := obj.Properties["nickname"]; !ok || !v.Null {
		t.Errorf("nickname = %v, want an implicit Null value", v)
	}

	bad := &types.ObjectInstance{
		ObjectTypeName: "Person",
		Properties: map[string]types.Value{
			"id":      types.UUIDValue(id),
			"name":    types.TextValue("Alice"),
			"unknown": types.TextValue("x"),
		},
	}
	bad.EnsureDefaults()
	if err := reg.ValidateObjectInstance(bad); !grizerr.Is(err, grizerr.KindValidation) {
		t.Errorf("ValidateObjectInstance(unknown property) error = %v, want KindValidation", err)
	}
}

func TestCheckEndpointTypes(t *testing.T) {
	ctx := context.Background()
	reg, _ := New(ctx, newFakeStore(), nil)
	if err := reg.CreateObjectType(ctx, personType()); err != nil {
		t.Fatalf("CreateObjectType() error = %v", err)
	}
	company := types.ObjectTypeDefinition{
		Name:       "Company",
		Properties: []types.PropertyDefinition{{Name: "id", DataType: types.TypeUUID, IsPrimaryKey: true}},
	}
	if err := reg.CreateObjectType(ctx, company); err != nil {
		t.Fatalf("CreateObjectType() error = %v", err)
	}
	if err := reg.CreateRelationType(ctx, types.RelationTypeDefinition{
		Name:        "works_at",
		SourceTypes: []string{"Person"},
		TargetTypes: []string{"Company"},
	}); err != nil {
		t.Fatalf("CreateRelationType() error = %v", err)
	}

	if err := reg.CheckEndpointTypes("works_at", "Person", "Company"); err != nil {
		t.Errorf("CheckEndpointTypes() error = %v, want nil", err)
	}
	if err := reg.CheckEndpointTypes("works_at", "Company", "Person"); !grizerr.Is(err, grizerr.KindValidation) {
		t.Errorf("CheckEndpointTypes(reversed) error = %v, want KindValidation", err)
	}
}
