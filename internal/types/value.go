// Package types defines the schema and instance data model shared by the
// schema registry, store adapters, coordinators, and query engine: property
// data types, type definitions, and the memory/object/relation/embedding
// instance hierarchy.
package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PropertyDataType enumerates the canonical property types a schema may
// declare. Storage form: DATETIME is UTC ISO-8601 with explicit offset,
// UUID is a 16-byte value, JSON is stored as canonical-form text.
type PropertyDataType string

const (
	TypeText     PropertyDataType = "TEXT"
	TypeInteger  PropertyDataType = "INTEGER"
	TypeFloat    PropertyDataType = "FLOAT"
	TypeBoolean  PropertyDataType = "BOOLEAN"
	TypeDateTime PropertyDataType = "DATETIME"
	TypeBlob     PropertyDataType = "BLOB"
	TypeJSON     PropertyDataType = "JSON"
	TypeUUID     PropertyDataType = "UUID"
)

// Valid reports whether t is one of the eight recognized data types.
func (t PropertyDataType) Valid() bool {
	switch t {
	case TypeText, TypeInteger, TypeFloat, TypeBoolean, TypeDateTime, TypeBlob, TypeJSON, TypeUUID:
		return true
	}
	return false
}

// Value is a tagged property value: exactly one of the typed fields is set,
// matching DataType. It replaces the untyped property maps the wire format
// uses with an explicit, registry-checked sum type on ingress.
type Value struct {
	DataType PropertyDataType

	Text     string
	Int      int64
	Float    float64
	Bool     bool
	Time     time.Time
	Blob     []byte
	JSONText string
	UUID     uuid.UUID

	// Null indicates an explicit nullable-property null value; when true the
	// typed fields above are zero and must not be read.
	Null bool
}

// NullValue builds the null value for dataType.
func NullValue(dataType PropertyDataType) Value {
	return Value{DataType: dataType, Null: true}
}

func TextValue(s string) Value    { return Value{DataType: TypeText, Text: s} }
func IntValue(i int64) Value      { return Value{DataType: TypeInteger, Int: i} }
func FloatValue(f float64) Value  { return Value{DataType: TypeFloat, Float: f} }
func BoolValue(b bool) Value      { return Value{DataType: TypeBoolean, Bool: b} }
func TimeValue(t time.Time) Value { return Value{DataType: TypeDateTime, Time: t.UTC()} }
func BlobValue(b []byte) Value    { return Value{DataType: TypeBlob, Blob: b} }
func JSONValue(s string) Value    { return Value{DataType: TypeJSON, JSONText: s} }
func UUIDValue(id uuid.UUID) Value {
	return Value{DataType: TypeUUID, UUID: id}
}

// Coerce converts an arbitrary Go value (as received over the wire or from
// an untyped map) into a Value of the given data type, or a non-nil error
// if the value cannot be represented as that type.
func Coerce(dataType PropertyDataType, v interface{}) (Value, error) {
	if v == nil {
		return NullValue(dataType), nil
	}
	switch dataType {
	case TypeText:
		s, ok := v.(string)
		if !ok {
			return Value{}, fmt.Errorf("expected TEXT, got %T", v)
		}
		return TextValue(s), nil
	case TypeInteger:
		switch n := v.(type) {
		case int64:
			return IntValue(n), nil
		case int:
			return IntValue(int64(n)), nil
		case float64:
			return IntValue(int64(n)), nil
		default:
			return Value{}, fmt.Errorf("expected INTEGER, got %T", v)
		}
	case TypeFloat:
		switch n := v.(type) {
		case float64:
			return FloatValue(n), nil
		case float32:
			return FloatValue(float64(n)), nil
		case int64:
			return FloatValue(float64(n)), nil
		default:
			return Value{}, fmt.Errorf("expected FLOAT, got %T", v)
		}
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return Value{}, fmt.Errorf("expected BOOLEAN, got %T", v)
		}
		return BoolValue(b), nil
	case TypeDateTime:
		switch t := v.(type) {
		case time.Time:
			return TimeValue(t), nil
		case string:
			parsed, err := time.Parse(time.RFC3339, t)
			if err != nil {
				return Value{}, fmt.Errorf("invalid DATETIME %q: %w", t, err)
			}
			return TimeValue(parsed), nil
		default:
			return Value{}, fmt.Errorf("expected DATETIME, got %T", v)
		}
	case TypeBlob:
		b, ok := v.([]byte)
		if !ok {
			return Value{}, fmt.Errorf("expected BLOB, got %T", v)
		}
		return BlobValue(b), nil
	case TypeJSON:
		switch j := v.(type) {
		case string:
			return JSONValue(j), nil
		default:
			return Value{}, fmt.Errorf("expected JSON text, got %T", v)
		}
	case TypeUUID:
		switch u := v.(type) {
		case uuid.UUID:
			return UUIDValue(u), nil
		case string:
			parsed, err := uuid.Parse(u)
			if err != nil {
				return Value{}, fmt.Errorf("invalid UUID %q: %w", u, err)
			}
			return UUIDValue(parsed), nil
		default:
			return Value{}, fmt.Errorf("expected UUID, got %T", v)
		}
	default:
		return Value{}, fmt.Errorf("unknown property data type %q", dataType)
	}
}

// Native returns the value as a plain Go value suitable for JSON wire
// encoding or adapter parameter binding.
func (v Value) Native() interface{} {
	if v.Null {
		return nil
	}
	switch v.DataType {
	case TypeText:
		return v.Text
	case TypeInteger:
		return v.Int
	case TypeFloat:
		return v.Float
	case TypeBoolean:
		return v.Bool
	case TypeDateTime:
		return v.Time
	case TypeBlob:
		return v.Blob
	case TypeJSON:
		return v.JSONText
	case TypeUUID:
		return v.UUID
	default:
		return nil
	}
}

// MinWeight and MaxWeight bound MemoryInstance.Weight per the data model.
var (
	MinWeight = decimal.NewFromInt(0)
	MaxWeight = decimal.NewFromInt(10)
	// DefaultWeight is applied when a caller omits Weight on upsert.
	DefaultWeight = decimal.NewFromFloat(1.0)
)

// ValidWeight reports whether w lies in the inclusive [0, 10] range.
func ValidWeight(w decimal.Decimal) bool {
	return w.GreaterThanOrEqual(MinWeight) && w.LessThanOrEqual(MaxWeight)
}
