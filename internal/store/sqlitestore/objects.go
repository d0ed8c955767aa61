package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pwilkin/grizabella/internal/store"
	"github.com/pwilkin/grizabella/internal/types"
)

func (s *Store) UpsertObject(ctx context.Context, objectType string, obj types.ObjectInstance) error {
	def, ok := s.objectTypeDef(objectType)
	if !ok {
		return fmt.Errorf("sqlitestore: unknown object type %q", objectType)
	}

	cols := []string{`"id"`, `"weight"`, `"upsert_date"`}
	placeholders := []string{"?", "?", "?"}
	args := []interface{}{obj.ID.String(), obj.Weight.String(), obj.UpsertDate.UTC().Format("2006-01-02T15:04:05.999999999Z07:00")}

	var updates []string
	for _, p := range def.Properties {
		v := obj.Properties[p.Name]
		cols = append(cols, quoteIdent(p.Name))
		placeholders = append(placeholders, "?")
		args = append(args, bindValue(v))
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", quoteIdent(p.Name), quoteIdent(p.Name)))
	}
	updates = append(updates, `"weight" = excluded."weight"`, `"upsert_date" = excluded."upsert_date"`)

	stmt := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT("id") DO UPDATE SET %s`,
		objectTable(objectType), strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))

	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("sqlitestore: upsert object %s/%s: %w", objectType, obj.ID, err)
	}
	return nil
}

func (s *Store) selectColumns(def types.ObjectTypeDefinition) []string {
	cols := []string{`"id"`, `"weight"`, `"upsert_date"`}
	for _, p := range def.Properties {
		cols = append(cols, quoteIdent(p.Name))
	}
	return cols
}

func (s *Store) scanObject(def types.ObjectTypeDefinition, scan func(dest ...interface{}) error) (types.ObjectInstance, error) {
	rawID := ""
	rawWeight := ""
	rawUpsert := ""
	raws := make([]interface{}, len(def.Properties))
	dest := []interface{}{&rawID, &rawWeight, &rawUpsert}
	for i := range raws {
		dest = append(dest, &raws[i])
	}
	if err := scan(dest...); err != nil {
		return types.ObjectInstance{}, err
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return types.ObjectInstance{}, fmt.Errorf("sqlitestore: invalid row id %q: %w", rawID, err)
	}
	weight, err := parseDecimal(rawWeight)
	if err != nil {
		return types.ObjectInstance{}, err
	}
	upsertDate, err := parseTime(rawUpsert)
	if err != nil {
		return types.ObjectInstance{}, err
	}

	props := make(map[string]types.Value, len(def.Properties))
	for i, p := range def.Properties {
		v, err := scanValue(p.DataType, raws[i])
		if err != nil {
			return types.ObjectInstance{}, fmt.Errorf("sqlitestore: object %s property %q: %w", def.Name, p.Name, err)
		}
		props[p.Name] = v
	}

	return types.ObjectInstance{
		MemoryInstance: types.MemoryInstance{ID: id, Weight: weight, UpsertDate: upsertDate},
		ObjectTypeName: def.Name,
		Properties:     props,
	}, nil
}

func (s *Store) GetObject(ctx context.Context, objectType string, id uuid.UUID) (*types.ObjectInstance, error) {
	def, ok := s.objectTypeDef(objectType)
	if !ok {
		return nil, fmt.Errorf("sqlitestore: unknown object type %q", objectType)
	}
	cols := s.selectColumns(def)
	stmt := fmt.Sprintf(`SELECT %s FROM %s WHERE "id" = ?`, strings.Join(cols, ", "), objectTable(objectType))
	row := s.db.QueryRowContext(ctx, stmt, id.String())
	obj, err := s.scanObject(def, row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: get object %s/%s: %w", objectType, id, err)
	}
	return &obj, nil
}

func (s *Store) DeleteObject(ctx context.Context, objectType string, id uuid.UUID) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE "id" = ?`, objectTable(objectType))
	if _, err := s.db.ExecContext(ctx, stmt, id.String()); err != nil {
		return fmt.Errorf("sqlitestore: delete object %s/%s: %w", objectType, id, err)
	}
	return nil
}

func (s *Store) CountInstances(ctx context.Context, objectType string) (int, error) {
	stmt := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, objectTable(objectType))
	var n int
	if err := s.db.QueryRowContext(ctx, stmt).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlitestore: count instances of %q: %w", objectType, err)
	}
	return n, nil
}

func operatorSQL(op store.Operator, col string, arg interface{}) (string, []interface{}, error) {
	switch op {
	case store.OpEqual:
		return col + " = ?", []interface{}{arg}, nil
	case store.OpNotEqual:
		return col + " != ?", []interface{}{arg}, nil
	case store.OpGreater:
		return col + " > ?", []interface{}{arg}, nil
	case store.OpGreaterEqual:
		return col + " >= ?", []interface{}{arg}, nil
	case store.OpLess:
		return col + " < ?", []interface{}{arg}, nil
	case store.OpLessEqual:
		return col + " <= ?", []interface{}{arg}, nil
	case store.OpLike:
		return col + " LIKE ?", []interface{}{arg}, nil
	case store.OpIn:
		list, ok := arg.([]interface{})
		if !ok {
			return "", nil, fmt.Errorf("sqlitestore: IN operator requires a list value")
		}
		placeholders := make([]string, len(list))
		args := make([]interface{}, len(list))
		for i, v := range list {
			placeholders[i] = "?"
			args[i] = v
		}
		return col + " IN (" + strings.Join(placeholders, ", ") + ")", args, nil
	case store.OpContains:
		return col + " LIKE ('%' || ? || '%')", []interface{}{arg}, nil
	default:
		return "", nil, fmt.Errorf("sqlitestore: unsupported operator %q", op)
	}
}

// propertyLookup resolves a property name to its data type for a single
// object or relation type, letting buildFilterSQL serve both Find and
// FindRelations.
type propertyLookup func(name string) (types.PropertyDefinition, bool)

func buildFilterSQL(lookup propertyLookup, filters []store.Filter) (string, []interface{}, error) {
	var clauses []string
	var args []interface{}
	for _, f := range filters {
		pd, ok := lookup(f.Property)
		if !ok {
			return "", nil, fmt.Errorf("sqlitestore: unknown property %q", f.Property)
		}

		if f.Operator == store.OpIn {
			list, ok := f.Value.([]interface{})
			if !ok {
				return "", nil, fmt.Errorf("sqlitestore: IN operator requires a list value")
			}
			bindArgs := make([]interface{}, len(list))
			for i, v := range list {
				bindArgs[i] = bindValue(mustCoerce(pd.DataType, v))
			}
			placeholders := make([]string, len(bindArgs))
			for i := range bindArgs {
				placeholders[i] = "?"
			}
			clauses = append(clauses, quoteIdent(f.Property)+" IN ("+strings.Join(placeholders, ", ")+")")
			args = append(args, bindArgs...)
			continue
		}

		bound := bindValue(mustCoerce(pd.DataType, f.Value))
		clause, a, err := operatorSQL(f.Operator, quoteIdent(f.Property), bound)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
		args = append(args, a...)
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func mustCoerce(dt types.PropertyDataType, v interface{}) types.Value {
	val, err := types.Coerce(dt, v)
	if err != nil {
		// Filter values are validated by the planner before reaching the
		// adapter; a coercion failure here means the caller bypassed that
		// check, so fall back to a null to avoid a panic on a hot path.
		return types.NullValue(dt)
	}
	return val
}

func (s *Store) Find(ctx context.Context, objectType string, filters []store.Filter, limit int) ([]types.ObjectInstance, error) {
	def, ok := s.objectTypeDef(objectType)
	if !ok {
		return nil, fmt.Errorf("sqlitestore: unknown object type %q", objectType)
	}
	where, args, err := buildFilterSQL(def.Property, filters)
	if err != nil {
		return nil, err
	}
	cols := s.selectColumns(def)
	stmt := fmt.Sprintf(`SELECT %s FROM %s%s`, strings.Join(cols, ", "), objectTable(objectType), where)
	if limit > 0 {
		stmt += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: find %q: %w", objectType, err)
	}
	defer rows.Close()

	var out []types.ObjectInstance
	for rows.Next() {
		obj, err := s.scanObject(def, rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: find %q: %w", objectType, err)
		}
		out = append(out, obj)
	}
	return out, rows.Err()
}
