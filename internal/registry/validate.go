package registry

import (
	"github.com/google/uuid"

	"github.com/pwilkin/grizabella/internal/grizerr"
	"github.com/pwilkin/grizabella/internal/types"
)

// ValidateObjectInstance coerces obj.Properties against its declared
// object type, returning a ValidationError if the property set is not
// exactly (required properties) ∪ (subset of nullable properties), or any
// value fails to coerce to its data_type.
func (r *Registry) ValidateObjectInstance(obj *types.ObjectInstance) error {
	def, err := r.GetObjectType(obj.ObjectTypeName)
	if err != nil {
		return err
	}

	coerced := make(map[string]types.Value, len(def.Properties))
	seen := make(map[string]bool, len(obj.Properties))
	for name, raw := range obj.Properties {
		pd, ok := def.Property(name)
		if !ok {
			return grizerr.Validation("object type %q has no property %q", def.Name, name)
		}
		seen[name] = true
		if raw.Null {
			if !pd.IsNullable {
				return grizerr.Validation("property %q of %q is not nullable", name, def.Name)
			}
			coerced[name] = types.NullValue(pd.DataType)
			continue
		}
		v, err := types.Coerce(pd.DataType, raw.Native())
		if err != nil {
			return grizerr.Validation("property %q of %q: %v", name, def.Name, err)
		}
		coerced[name] = v
	}
	for _, pd := range def.Properties {
		if !seen[pd.Name] {
			if !pd.IsNullable {
				return grizerr.Validation("object type %q missing required property %q", def.Name, pd.Name)
			}
			coerced[pd.Name] = types.NullValue(pd.DataType)
		}
	}

	if !types.ValidWeight(obj.Weight) {
		return grizerr.Validation("weight %s is outside [0, 10]", obj.Weight.String())
	}

	obj.Properties = coerced
	return nil
}

// ValidateRelationInstance coerces rel.Properties against its relation
// type and checks that Source/TargetID are set (endpoint existence is
// verified by the write coordinator, which alone can query the relational
// adapter for both endpoints atomically with the write).
func (r *Registry) ValidateRelationInstance(rel *types.RelationInstance) error {
	def, err := r.GetRelationType(rel.RelationTypeName)
	if err != nil {
		return err
	}
	if rel.SourceID == uuid.Nil {
		return grizerr.Validation("relation %q: source_id is required", def.Name)
	}
	if rel.TargetID == uuid.Nil {
		return grizerr.Validation("relation %q: target_id is required", def.Name)
	}

	coerced := make(map[string]types.Value, len(def.Properties))
	seen := make(map[string]bool, len(rel.Properties))
	for name, raw := range rel.Properties {
		pd, ok := def.Property(name)
		if !ok {
			return grizerr.Validation("relation type %q has no property %q", def.Name, name)
		}
		seen[name] = true
		if raw.Null {
			if !pd.IsNullable {
				return grizerr.Validation("property %q of %q is not nullable", name, def.Name)
			}
			coerced[name] = types.NullValue(pd.DataType)
			continue
		}
		v, err := types.Coerce(pd.DataType, raw.Native())
		if err != nil {
			return grizerr.Validation("property %q of %q: %v", name, def.Name, err)
		}
		coerced[name] = v
	}
	for _, pd := range def.Properties {
		if !seen[pd.Name] {
			if !pd.IsNullable {
				return grizerr.Validation("relation type %q missing required property %q", def.Name, pd.Name)
			}
			coerced[pd.Name] = types.NullValue(pd.DataType)
		}
	}

	if !types.ValidWeight(rel.Weight) {
		return grizerr.Validation("weight %s is outside [0, 10]", rel.Weight.String())
	}

	rel.Properties = coerced
	return nil
}

// CheckEndpointTypes verifies sourceType/targetType are permitted
// endpoints for relationType, per the relation type's source_types and
// target_types lists.
func (r *Registry) CheckEndpointTypes(relationType, sourceType, targetType string) error {
	def, err := r.GetRelationType(relationType)
	if err != nil {
		return err
	}
	if !def.AllowsSource(sourceType) {
		return grizerr.Validation("relation type %q does not allow source type %q", relationType, sourceType)
	}
	if !def.AllowsTarget(targetType) {
		return grizerr.Validation("relation type %q does not allow target type %q", relationType, targetType)
	}
	return nil
}
