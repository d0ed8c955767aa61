package types

import "fmt"

// PropertyDefinition describes one named, typed property on an object or
// relation type.
type PropertyDefinition struct {
	Name         string           `json:"name"`
	DataType     PropertyDataType `json:"data_type"`
	IsPrimaryKey bool             `json:"is_primary_key,omitempty"`
	IsNullable   bool             `json:"is_nullable,omitempty"`
	IsIndexed    bool             `json:"is_indexed,omitempty"`
	IsUnique     bool             `json:"is_unique,omitempty"`
	Description  string           `json:"description,omitempty"`
}

// Validate checks the PK/unique/nullable invariants for a single property
// definition in isolation (type-level invariants, e.g. at-most-one PK, are
// checked by ObjectTypeDefinition.Validate).
func (p PropertyDefinition) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("property name must not be empty")
	}
	if !p.DataType.Valid() {
		return fmt.Errorf("property %q: unknown data type %q", p.Name, p.DataType)
	}
	if p.IsPrimaryKey && p.IsNullable {
		return fmt.Errorf("property %q: primary-key properties cannot be nullable", p.Name)
	}
	if p.IsUnique && p.IsNullable {
		return fmt.Errorf("property %q: unique properties cannot be nullable", p.Name)
	}
	return nil
}

// ObjectTypeDefinition declares a named object type and its property set.
type ObjectTypeDefinition struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Properties  []PropertyDefinition `json:"properties"`
}

// Validate enforces: at least one property, unique property names within
// the type, at most one primary-key property, and per-property invariants.
func (o ObjectTypeDefinition) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("object type name must not be empty")
	}
	if len(o.Properties) == 0 {
		return fmt.Errorf("object type %q: must declare at least one property", o.Name)
	}
	seen := make(map[string]bool, len(o.Properties))
	pkCount := 0
	for _, p := range o.Properties {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("object type %q: %w", o.Name, err)
		}
		if seen[p.Name] {
			return fmt.Errorf("object type %q: duplicate property %q", o.Name, p.Name)
		}
		seen[p.Name] = true
		if p.IsPrimaryKey {
			pkCount++
		}
	}
	if pkCount > 1 {
		return fmt.Errorf("object type %q: at most one primary-key property is allowed, found %d", o.Name, pkCount)
	}
	return nil
}

// Property returns the named property definition, if declared.
func (o ObjectTypeDefinition) Property(name string) (PropertyDefinition, bool) {
	for _, p := range o.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return PropertyDefinition{}, false
}

// RelationTypeDefinition declares a named, directed relation type between
// one or more source object types and one or more target object types.
type RelationTypeDefinition struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	SourceTypes []string             `json:"source_types"`
	TargetTypes []string             `json:"target_types"`
	Properties  []PropertyDefinition `json:"properties,omitempty"`
}

// Validate enforces non-empty endpoint lists and per-property invariants.
func (r RelationTypeDefinition) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("relation type name must not be empty")
	}
	if len(r.SourceTypes) == 0 {
		return fmt.Errorf("relation type %q: must declare at least one source type", r.Name)
	}
	if len(r.TargetTypes) == 0 {
		return fmt.Errorf("relation type %q: must declare at least one target type", r.Name)
	}
	seen := make(map[string]bool, len(r.Properties))
	for _, p := range r.Properties {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("relation type %q: %w", r.Name, err)
		}
		if seen[p.Name] {
			return fmt.Errorf("relation type %q: duplicate property %q", r.Name, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// Property returns the named property definition, if declared.
func (r RelationTypeDefinition) Property(name string) (PropertyDefinition, bool) {
	for _, p := range r.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return PropertyDefinition{}, false
}

// AllowsSource reports whether objectType may be a source endpoint.
func (r RelationTypeDefinition) AllowsSource(objectType string) bool {
	return containsString(r.SourceTypes, objectType)
}

// AllowsTarget reports whether objectType may be a target endpoint.
func (r RelationTypeDefinition) AllowsTarget(objectType string) bool {
	return containsString(r.TargetTypes, objectType)
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// EmbeddingDefinition declares an automatic text-to-vector embedding over a
// single TEXT property of an object type. Dimensions is fixed at first
// successful embedding computation if left unset at creation.
type EmbeddingDefinition struct {
	Name               string `json:"name"`
	ObjectTypeName     string `json:"object_type_name"`
	SourcePropertyName string `json:"source_property_name"`
	EmbeddingModelID   string `json:"embedding_model_id"`
	Dimensions         int    `json:"dimensions,omitempty"`
	Description        string `json:"description,omitempty"`
}

// Validate checks the definition's own fields; cross-referencing against
// the object type's property set is the registry's job (it alone knows
// whether the source property exists and is TEXT).
func (e EmbeddingDefinition) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("embedding definition name must not be empty")
	}
	if e.ObjectTypeName == "" {
		return fmt.Errorf("embedding definition %q: object_type_name must not be empty", e.Name)
	}
	if e.SourcePropertyName == "" {
		return fmt.Errorf("embedding definition %q: source_property_name must not be empty", e.Name)
	}
	if e.EmbeddingModelID == "" {
		return fmt.Errorf("embedding definition %q: embedding_model_id must not be empty", e.Name)
	}
	if e.Dimensions < 0 {
		return fmt.Errorf("embedding definition %q: dimensions must not be negative", e.Name)
	}
	return nil
}
