package mcpserver

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pwilkin/grizabella/internal/query"
	"github.com/pwilkin/grizabella/internal/store"
	"github.com/pwilkin/grizabella/internal/types"
)

// --- Schema wire types ---

type PropertyDefinitionWire struct {
	Name         string `json:"name"`
	DataType     string `json:"data_type"`
	IsPrimaryKey bool   `json:"is_primary_key,omitempty"`
	IsNullable   bool   `json:"is_nullable,omitempty"`
	IsIndexed    bool   `json:"is_indexed,omitempty"`
	IsUnique     bool   `json:"is_unique,omitempty"`
	Description  string `json:"description,omitempty"`
}

func (p PropertyDefinitionWire) toDomain() types.PropertyDefinition {
	return types.PropertyDefinition{
		Name:         p.Name,
		DataType:     types.PropertyDataType(p.DataType),
		IsPrimaryKey: p.IsPrimaryKey,
		IsNullable:   p.IsNullable,
		IsIndexed:    p.IsIndexed,
		IsUnique:     p.IsUnique,
		Description:  p.Description,
	}
}

func propertyDefinitionFromDomain(p types.PropertyDefinition) PropertyDefinitionWire {
	return PropertyDefinitionWire{
		Name:         p.Name,
		DataType:     string(p.DataType),
		IsPrimaryKey: p.IsPrimaryKey,
		IsNullable:   p.IsNullable,
		IsIndexed:    p.IsIndexed,
		IsUnique:     p.IsUnique,
		Description:  p.Description,
	}
}

type CreateObjectTypeInput struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description,omitempty"`
	Properties  []PropertyDefinitionWire `json:"properties"`
}

func (in CreateObjectTypeInput) toDomain() types.ObjectTypeDefinition {
	props := make([]types.PropertyDefinition, len(in.Properties))
	for i, p := range in.Properties {
		props[i] = p.toDomain()
	}
	return types.ObjectTypeDefinition{Name: in.Name, Description: in.Description, Properties: props}
}

func objectTypeToWire(def types.ObjectTypeDefinition) CreateObjectTypeInput {
	props := make([]PropertyDefinitionWire, len(def.Properties))
	for i, p := range def.Properties {
		props[i] = propertyDefinitionFromDomain(p)
	}
	return CreateObjectTypeInput{Name: def.Name, Description: def.Description, Properties: props}
}

type GetObjectTypeInput struct {
	Name string `json:"name"`
}

type DeleteObjectTypeInput struct {
	Name string `json:"name"`
}

type ListObjectTypesInput struct{}

type CreateRelationTypeInput struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description,omitempty"`
	SourceTypes []string                 `json:"source_types"`
	TargetTypes []string                 `json:"target_types"`
	Properties  []PropertyDefinitionWire `json:"properties,omitempty"`
}

func (in CreateRelationTypeInput) toDomain() types.RelationTypeDefinition {
	props := make([]types.PropertyDefinition, len(in.Properties))
	for i, p := range in.Properties {
		props[i] = p.toDomain()
	}
	return types.RelationTypeDefinition{
		Name:        in.Name,
		Description: in.Description,
		SourceTypes: in.SourceTypes,
		TargetTypes: in.TargetTypes,
		Properties:  props,
	}
}

func relationTypeToWire(def types.RelationTypeDefinition) CreateRelationTypeInput {
	props := make([]PropertyDefinitionWire, len(def.Properties))
	for i, p := range def.Properties {
		props[i] = propertyDefinitionFromDomain(p)
	}
	return CreateRelationTypeInput{
		Name:        def.Name,
		Description: def.Description,
		SourceTypes: def.SourceTypes,
		TargetTypes: def.TargetTypes,
		Properties:  props,
	}
}

type GetRelationTypeInput struct {
	Name string `json:"name"`
}

type DeleteRelationTypeInput struct {
	Name string `json:"name"`
}

type ListRelationTypesInput struct{}

type CreateEmbeddingDefinitionInput struct {
	Name               string `json:"name"`
	ObjectTypeName     string `json:"object_type_name"`
	SourcePropertyName string `json:"source_property_name"`
	EmbeddingModelID   string `json:"embedding_model_id"`
	Dimensions         int    `json:"dimensions,omitempty"`
	Description        string `json:"description,omitempty"`
}

func (in CreateEmbeddingDefinitionInput) toDomain() types.EmbeddingDefinition {
	return types.EmbeddingDefinition{
		Name:               in.Name,
		ObjectTypeName:      in.ObjectTypeName,
		SourcePropertyName: in.SourcePropertyName,
		EmbeddingModelID:   in.EmbeddingModelID,
		Dimensions:         in.Dimensions,
		Description:        in.Description,
	}
}

func embeddingDefinitionToWire(def types.EmbeddingDefinition) CreateEmbeddingDefinitionInput {
	return CreateEmbeddingDefinitionInput{
		Name:               def.Name,
		ObjectTypeName:     def.ObjectTypeName,
		SourcePropertyName: def.SourcePropertyName,
		EmbeddingModelID:   def.EmbeddingModelID,
		Dimensions:         def.Dimensions,
		Description:        def.Description,
	}
}

type GetEmbeddingDefinitionInput struct {
	Name string `json:"name"`
}

type DeleteEmbeddingDefinitionInput struct {
	Name string `json:"name"`
}

type ListEmbeddingDefinitionsInput struct{}

// --- Instance wire types ---

// ObjectInstanceWire is the JSON wire form of types.ObjectInstance: dates
// as RFC-3339 UTC strings, decimals as strings, UUIDs as canonical hex,
// BLOB properties as base64, and typed properties flattened to a plain
// map of native JSON values.
type ObjectInstanceWire struct {
	ID             string                 `json:"id,omitempty"`
	ObjectTypeName string                 `json:"object_type_name"`
	Weight         string                 `json:"weight,omitempty"`
	UpsertDate     string                 `json:"upsert_date,omitempty"`
	Properties     map[string]interface{} `json:"properties"`
}

func objectInstanceFromWire(w ObjectInstanceWire, objType types.ObjectTypeDefinition) (types.ObjectInstance, error) {
	var inst types.ObjectInstance
	inst.ObjectTypeName = w.ObjectTypeName
	if w.ID != "" {
		id, err := uuid.Parse(w.ID)
		if err != nil {
			return inst, fmt.Errorf("invalid id %q: %w", w.ID, err)
		}
		inst.ID = id
	}
	if w.Weight != "" {
		wt, err := decimal.NewFromString(w.Weight)
		if err != nil {
			return inst, fmt.Errorf("invalid weight %q: %w", w.Weight, err)
		}
		inst.Weight = wt
	} else {
		inst.Weight = types.DefaultWeight
	}
	if w.UpsertDate != "" {
		t, err := time.Parse(time.RFC3339, w.UpsertDate)
		if err != nil {
			return inst, fmt.Errorf("invalid upsert_date %q: %w", w.UpsertDate, err)
		}
		inst.UpsertDate = t
	}
	props, err := propertiesFromWire(w.Properties, objType)
	if err != nil {
		return inst, err
	}
	inst.Properties = props
	return inst, nil
}

func objectInstanceToWire(inst types.ObjectInstance) ObjectInstanceWire {
	return ObjectInstanceWire{
		ID:             inst.ID.String(),
		ObjectTypeName: inst.ObjectTypeName,
		Weight:         inst.Weight.String(),
		UpsertDate:     inst.UpsertDate.UTC().Format(time.RFC3339),
		Properties:     propertiesToWire(inst.Properties),
	}
}

// propertiesFromWire coerces a raw JSON properties map into typed Values
// using objType's declared data types, base64-decoding BLOB values first.
func propertiesFromWire(raw map[string]interface{}, objType types.ObjectTypeDefinition) (map[string]types.Value, error) {
	out := make(map[string]types.Value, len(raw))
	for name, v := range raw {
		pd, ok := objType.Property(name)
		if !ok {
			return nil, fmt.Errorf("object type %q has no property %q", objType.Name, name)
		}
		if pd.DataType == types.TypeBlob {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("property %q: expected base64 BLOB string, got %T", name, v)
			}
			decoded, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("property %q: invalid base64: %w", name, err)
			}
			v = decoded
		}
		val, err := types.Coerce(pd.DataType, v)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		out[name] = val
	}
	return out, nil
}

func propertiesToWire(props map[string]types.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	for name, v := range props {
		if v.Null {
			out[name] = nil
			continue
		}
		if v.DataType == types.TypeBlob {
			out[name] = base64.StdEncoding.EncodeToString(v.Blob)
			continue
		}
		if v.DataType == types.TypeDateTime {
			out[name] = v.Time.UTC().Format(time.RFC3339)
			continue
		}
		out[name] = v.Native()
	}
	return out
}

type UpsertObjectInput struct {
	Object ObjectInstanceWire `json:"object"`
}

type GetObjectByIDInput struct {
	ObjectType string `json:"object_type"`
	ID         string `json:"id"`
}

type DeleteObjectInput struct {
	ObjectType string `json:"object_type"`
	ID         string `json:"id"`
}

type FilterWire struct {
	Property string      `json:"property"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

func filtersFromWire(raw []FilterWire) []store.Filter {
	out := make([]store.Filter, len(raw))
	for i, f := range raw {
		out[i] = store.Filter{Property: f.Property, Operator: store.Operator(f.Operator), Value: f.Value}
	}
	return out
}

type FindObjectsInput struct {
	ObjectType string       `json:"object_type"`
	Filters    []FilterWire `json:"filters,omitempty"`
	Limit      int          `json:"limit,omitempty"`
}

// --- Relation wire types ---

type RelationInstanceWire struct {
	ID               string                 `json:"id,omitempty"`
	RelationTypeName string                 `json:"relation_type_name"`
	SourceID         string                 `json:"source_id"`
	TargetID         string                 `json:"target_id"`
	Weight           string                 `json:"weight,omitempty"`
	UpsertDate       string                 `json:"upsert_date,omitempty"`
	Properties       map[string]interface{} `json:"properties,omitempty"`
}

func relationInstanceFromWire(w RelationInstanceWire, relType types.RelationTypeDefinition) (types.RelationInstance, error) {
	var rel types.RelationInstance
	rel.RelationTypeName = w.RelationTypeName
	if w.ID != "" {
		id, err := uuid.Parse(w.ID)
		if err != nil {
			return rel, fmt.Errorf("invalid id %q: %w", w.ID, err)
		}
		rel.ID = id
	}
	sourceID, err := uuid.Parse(w.SourceID)
	if err != nil {
		return rel, fmt.Errorf("invalid source_id %q: %w", w.SourceID, err)
	}
	rel.SourceID = sourceID
	targetID, err := uuid.Parse(w.TargetID)
	if err != nil {
		return rel, fmt.Errorf("invalid target_id %q: %w", w.TargetID, err)
	}
	rel.TargetID = targetID
	if w.Weight != "" {
		wt, err := decimal.NewFromString(w.Weight)
		if err != nil {
			return rel, fmt.Errorf("invalid weight %q: %w", w.Weight, err)
		}
		rel.Weight = wt
	} else {
		rel.Weight = types.DefaultWeight
	}
	if w.UpsertDate != "" {
		t, err := time.Parse(time.RFC3339, w.UpsertDate)
		if err != nil {
			return rel, fmt.Errorf("invalid upsert_date %q: %w", w.UpsertDate, err)
		}
		rel.UpsertDate = t
	}
	relObjType := types.ObjectTypeDefinition{Name: relType.Name, Properties: relType.Properties}
	props, err := propertiesFromWire(w.Properties, relObjType)
	if err != nil {
		return rel, err
	}
	rel.Properties = props
	return rel, nil
}

func relationInstanceToWire(rel types.RelationInstance) RelationInstanceWire {
	return RelationInstanceWire{
		ID:               rel.ID.String(),
		RelationTypeName: rel.RelationTypeName,
		SourceID:         rel.SourceID.String(),
		TargetID:         rel.TargetID.String(),
		Weight:           rel.Weight.String(),
		UpsertDate:       rel.UpsertDate.UTC().Format(time.RFC3339),
		Properties:       propertiesToWire(rel.Properties),
	}
}

func relationsToWire(rels []types.RelationInstance) []RelationInstanceWire {
	out := make([]RelationInstanceWire, len(rels))
	for i, r := range rels {
		out[i] = relationInstanceToWire(r)
	}
	return out
}

type AddRelationInput struct {
	Relation   RelationInstanceWire `json:"relation"`
	SourceType string               `json:"source_type"`
	TargetType string               `json:"target_type"`
}

type GetRelationInput struct {
	SourceID     string `json:"source_id"`
	TargetID     string `json:"target_id"`
	RelationType string `json:"relation_type"`
}

type DeleteRelationInput struct {
	RelationType string `json:"relation_type"`
	ID           string `json:"id"`
}

type GetOutgoingRelationsInput struct {
	ID           string `json:"id"`
	ObjectType   string `json:"object_type,omitempty"`
	RelationType string `json:"relation_type,omitempty"`
}

type GetIncomingRelationsInput struct {
	ID           string `json:"id"`
	ObjectType   string `json:"object_type,omitempty"`
	RelationType string `json:"relation_type,omitempty"`
}

type QueryRelationsInput struct {
	RelationType    string       `json:"relation_type,omitempty"`
	SourceID        string       `json:"source_id,omitempty"`
	TargetID        string       `json:"target_id,omitempty"`
	PropertyFilters []FilterWire `json:"property_filters,omitempty"`
	Limit           int          `json:"limit,omitempty"`
}

func (in QueryRelationsInput) toDomain() (store.RelationQuery, error) {
	q := store.RelationQuery{
		RelationType:    in.RelationType,
		PropertyFilters: filtersFromWire(in.PropertyFilters),
		Limit:           in.Limit,
	}
	if in.SourceID != "" {
		id, err := uuid.Parse(in.SourceID)
		if err != nil {
			return q, fmt.Errorf("invalid source_id %q: %w", in.SourceID, err)
		}
		q.SourceID = &id
	}
	if in.TargetID != "" {
		id, err := uuid.Parse(in.TargetID)
		if err != nil {
			return q, fmt.Errorf("invalid target_id %q: %w", in.TargetID, err)
		}
		q.TargetID = &id
	}
	return q, nil
}

// --- Query wire types ---

type SearchSimilarObjectsInput struct {
	ObjectType       string   `json:"object_type"`
	ID               string   `json:"id"`
	N                int      `json:"n,omitempty"`
	SearchProperties []string `json:"search_properties,omitempty"`
}

type FindSimilarInput struct {
	EmbeddingDefName string       `json:"embedding_definition_name"`
	QueryText        string       `json:"query_text"`
	Limit            int          `json:"limit,omitempty"`
	Filter           []FilterWire `json:"filter,omitempty"`
}

type GetEmbeddingVectorForTextInput struct {
	Text             string `json:"text"`
	EmbeddingDefName string `json:"embedding_definition_name"`
}

type ScoredObjectWire struct {
	Object ObjectInstanceWire `json:"object"`
	Score  float64            `json:"score"`
}

// ExecuteComplexQueryInput carries the raw JSON query tree; clauseFromWire
// decodes it into the query package's Clause variants.
type ExecuteComplexQueryInput struct {
	Query json.RawMessage `json:"query"`
	Limit int             `json:"limit,omitempty"`
}

// clauseWire is the tagged-union JSON shape for one query.Clause node:
// exactly one of And, Or, Not, Component should be set.
type clauseWire struct {
	And       []json.RawMessage `json:"and,omitempty"`
	Or        []json.RawMessage `json:"or,omitempty"`
	Not       json.RawMessage   `json:"not,omitempty"`
	Component *componentWire    `json:"component,omitempty"`
}

type componentWire struct {
	ObjectType        string             `json:"object_type"`
	Filters           []FilterWire       `json:"filters,omitempty"`
	EmbeddingSearches []embeddingSearchWire `json:"embedding_searches,omitempty"`
	GraphTraversals   []graphHopWire     `json:"graph_traversals,omitempty"`
}

type embeddingSearchWire struct {
	EmbeddingDefName string    `json:"embedding_definition_name"`
	QueryVector      []float32 `json:"query_vector"`
	Limit            int       `json:"limit,omitempty"`
	Threshold        *float64  `json:"threshold,omitempty"`
	IsL2             bool      `json:"is_l2,omitempty"`
}

type graphHopWire struct {
	RelationType  string       `json:"relation_type"`
	Direction     string       `json:"direction"`
	TargetType    string       `json:"target_type"`
	TargetID      string       `json:"target_id,omitempty"`
	TargetFilters []FilterWire `json:"target_filters,omitempty"`
}

func clauseFromWire(raw json.RawMessage) (query.Clause, error) {
	var w clauseWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("invalid query clause: %w", err)
	}
	switch {
	case w.And != nil:
		clauses := make([]query.Clause, len(w.And))
		for i, c := range w.And {
			parsed, err := clauseFromWire(c)
			if err != nil {
				return nil, err
			}
			clauses[i] = parsed
		}
		return query.And{Clauses: clauses}, nil
	case w.Or != nil:
		clauses := make([]query.Clause, len(w.Or))
		for i, c := range w.Or {
			parsed, err := clauseFromWire(c)
			if err != nil {
				return nil, err
			}
			clauses[i] = parsed
		}
		return query.Or{Clauses: clauses}, nil
	case w.Not != nil:
		inner, err := clauseFromWire(w.Not)
		if err != nil {
			return nil, err
		}
		return query.Not{Clause: inner}, nil
	case w.Component != nil:
		return componentFromWire(*w.Component)
	default:
		return nil, fmt.Errorf("query clause must set exactly one of and/or/not/component")
	}
}

func componentFromWire(w componentWire) (query.Component, error) {
	c := query.Component{ObjectType: w.ObjectType}
	for _, f := range w.Filters {
		c.RelationalFilters = append(c.RelationalFilters, query.RelFilter{
			Property: f.Property, Operator: store.Operator(f.Operator), Value: f.Value,
		})
	}
	for _, s := range w.EmbeddingSearches {
		c.EmbeddingSearches = append(c.EmbeddingSearches, query.EmbeddingSearch{
			EmbeddingDefName: s.EmbeddingDefName,
			QueryVector:      s.QueryVector,
			Limit:            s.Limit,
			Threshold:        s.Threshold,
			IsL2:             s.IsL2,
		})
	}
	for _, h := range w.GraphTraversals {
		hop := query.GraphHop{
			RelationType: h.RelationType,
			Direction:    store.Direction(h.Direction),
			TargetType:   h.TargetType,
		}
		if h.TargetID != "" {
			id, err := uuid.Parse(h.TargetID)
			if err != nil {
				return c, fmt.Errorf("invalid graph hop target_id %q: %w", h.TargetID, err)
			}
			hop.TargetID = &id
		}
		for _, f := range h.TargetFilters {
			hop.TargetFilters = append(hop.TargetFilters, query.RelFilter{
				Property: f.Property, Operator: store.Operator(f.Operator), Value: f.Value,
			})
		}
		c.GraphTraversals = append(c.GraphTraversals, hop)
	}
	return c, nil
}
