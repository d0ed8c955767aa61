package sqlitestore

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pwilkin/grizabella/internal/types"
)

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("sqlitestore: invalid weight %q: %w", s, err)
	}
	return d, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlitestore: invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// bindValue converts a typed property Value into a driver-compatible
// parameter for database/sql.
func bindValue(v types.Value) interface{} {
	if v.Null {
		return nil
	}
	switch v.DataType {
	case types.TypeBoolean:
		if v.Bool {
			return int64(1)
		}
		return int64(0)
	case types.TypeDateTime:
		return v.Time.UTC().Format("2006-01-02T15:04:05.999999999Z07:00")
	case types.TypeUUID:
		return v.UUID.String()
	default:
		return v.Native()
	}
}

// scanValue converts a raw column value (as returned by database/sql) back
// into a typed property Value per dataType.
func scanValue(dataType types.PropertyDataType, raw interface{}) (types.Value, error) {
	if raw == nil {
		return types.NullValue(dataType), nil
	}
	switch dataType {
	case types.TypeText, types.TypeJSON:
		s, err := asString(raw)
		if err != nil {
			return types.Value{}, err
		}
		if dataType == types.TypeJSON {
			return types.JSONValue(s), nil
		}
		return types.TextValue(s), nil
	case types.TypeInteger:
		i, err := asInt(raw)
		if err != nil {
			return types.Value{}, err
		}
		return types.IntValue(i), nil
	case types.TypeFloat:
		f, err := asFloat(raw)
		if err != nil {
			return types.Value{}, err
		}
		return types.FloatValue(f), nil
	case types.TypeBoolean:
		i, err := asInt(raw)
		if err != nil {
			return types.Value{}, err
		}
		return types.BoolValue(i != 0), nil
	case types.TypeDateTime:
		s, err := asString(raw)
		if err != nil {
			return types.Value{}, err
		}
		return types.Coerce(types.TypeDateTime, s)
	case types.TypeBlob:
		b, ok := raw.([]byte)
		if !ok {
			return types.Value{}, fmt.Errorf("sqlitestore: expected BLOB column, got %T", raw)
		}
		return types.BlobValue(b), nil
	case types.TypeUUID:
		s, err := asString(raw)
		if err != nil {
			return types.Value{}, err
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return types.Value{}, fmt.Errorf("sqlitestore: invalid UUID column %q: %w", s, err)
		}
		return types.UUIDValue(id), nil
	default:
		return types.Value{}, fmt.Errorf("sqlitestore: unknown data type %q", dataType)
	}
}

func asString(raw interface{}) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("sqlitestore: expected string-like column, got %T", raw)
	}
}

func asInt(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("sqlitestore: expected integer column, got %T", raw)
	}
}

func asFloat(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("sqlitestore: expected float column, got %T", raw)
	}
}
