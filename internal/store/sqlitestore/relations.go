package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pwilkin/grizabella/internal/store"
	"github.com/pwilkin/grizabella/internal/types"
)

func (s *Store) UpsertRelation(ctx context.Context, relationType string, rel types.RelationInstance) error {
	def, ok := s.relationTypeDef(relationType)
	if !ok {
		return fmt.Errorf("sqlitestore: unknown relation type %q", relationType)
	}

	cols := []string{`"id"`, `"weight"`, `"upsert_date"`, `"source_id"`, `"target_id"`}
	placeholders := []string{"?", "?", "?", "?", "?"}
	args := []interface{}{
		rel.ID.String(), rel.Weight.String(), rel.UpsertDate.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"),
		rel.SourceID.String(), rel.TargetID.String(),
	}
	var updates []string
	for _, p := range def.Properties {
		v := rel.Properties[p.Name]
		cols = append(cols, quoteIdent(p.Name))
		placeholders = append(placeholders, "?")
		args = append(args, bindValue(v))
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", quoteIdent(p.Name), quoteIdent(p.Name)))
	}
	updates = append(updates, `"weight" = excluded."weight"`, `"upsert_date" = excluded."upsert_date"`,
		`"source_id" = excluded."source_id"`, `"target_id" = excluded."target_id"`)

	stmt := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT("id") DO UPDATE SET %s`,
		relationTable(relationType), strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("sqlitestore: upsert relation %s/%s: %w", relationType, rel.ID, err)
	}
	return nil
}

func (s *Store) DeleteRelation(ctx context.Context, relationType string, id uuid.UUID) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE "id" = ?`, relationTable(relationType))
	if _, err := s.db.ExecContext(ctx, stmt, id.String()); err != nil {
		return fmt.Errorf("sqlitestore: delete relation %s/%s: %w", relationType, id, err)
	}
	return nil
}

func (s *Store) scanRelation(def types.RelationTypeDefinition, scan func(dest ...interface{}) error) (types.RelationInstance, error) {
	var rawID, rawWeight, rawUpsert, rawSource, rawTarget string
	raws := make([]interface{}, len(def.Properties))
	dest := []interface{}{&rawID, &rawWeight, &rawUpsert, &rawSource, &rawTarget}
	for i := range raws {
		dest = append(dest, &raws[i])
	}
	if err := scan(dest...); err != nil {
		return types.RelationInstance{}, err
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return types.RelationInstance{}, fmt.Errorf("sqlitestore: invalid relation id %q: %w", rawID, err)
	}
	weight, err := parseDecimal(rawWeight)
	if err != nil {
		return types.RelationInstance{}, err
	}
	upsertDate, err := parseTime(rawUpsert)
	if err != nil {
		return types.RelationInstance{}, err
	}
	sourceID, err := uuid.Parse(rawSource)
	if err != nil {
		return types.RelationInstance{}, fmt.Errorf("sqlitestore: invalid source_id %q: %w", rawSource, err)
	}
	targetID, err := uuid.Parse(rawTarget)
	if err != nil {
		return types.RelationInstance{}, fmt.Errorf("sqlitestore: invalid target_id %q: %w", rawTarget, err)
	}

	props := make(map[string]types.Value, len(def.Properties))
	for i, p := range def.Properties {
		v, err := scanValue(p.DataType, raws[i])
		if err != nil {
			return types.RelationInstance{}, fmt.Errorf("sqlitestore: relation %s property %q: %w", def.Name, p.Name, err)
		}
		props[p.Name] = v
	}

	return types.RelationInstance{
		MemoryInstance:   types.MemoryInstance{ID: id, Weight: weight, UpsertDate: upsertDate},
		RelationTypeName: def.Name,
		SourceID:         sourceID,
		TargetID:         targetID,
		Properties:       props,
	}, nil
}

func (s *Store) FindRelations(ctx context.Context, q store.RelationQuery) ([]types.RelationInstance, error) {
	var relationTypeNames []string
	if q.RelationType != "" {
		relationTypeNames = []string{q.RelationType}
	} else {
		s.mu.RLock()
		for name := range s.relationTypes {
			relationTypeNames = append(relationTypeNames, name)
		}
		s.mu.RUnlock()
	}

	var out []types.RelationInstance
	for _, rt := range relationTypeNames {
		def, ok := s.relationTypeDef(rt)
		if !ok {
			continue
		}
		cols := []string{`"id"`, `"weight"`, `"upsert_date"`, `"source_id"`, `"target_id"`}
		for _, p := range def.Properties {
			cols = append(cols, quoteIdent(p.Name))
		}

		var clauses []string
		var args []interface{}
		if q.SourceID != nil {
			clauses = append(clauses, `"source_id" = ?`)
			args = append(args, q.SourceID.String())
		}
		if q.TargetID != nil {
			clauses = append(clauses, `"target_id" = ?`)
			args = append(args, q.TargetID.String())
		}
		if len(q.PropertyFilters) > 0 {
			where, fargs, err := buildFilterSQL(def.Property, q.PropertyFilters)
			if err != nil {
				return nil, err
			}
			if where != "" {
				clauses = append(clauses, strings.TrimPrefix(where, " WHERE "))
				args = append(args, fargs...)
			}
		}

		stmt := fmt.Sprintf(`SELECT %s FROM %s`, strings.Join(cols, ", "), relationTable(rt))
		if len(clauses) > 0 {
			stmt += " WHERE " + strings.Join(clauses, " AND ")
		}
		if q.Limit > 0 {
			stmt += fmt.Sprintf(" LIMIT %d", q.Limit)
		}

		rows, err := s.db.QueryContext(ctx, stmt, args...)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: find relations %q: %w", rt, err)
		}
		for rows.Next() {
			rel, err := s.scanRelation(def, rows.Scan)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("sqlitestore: find relations %q: %w", rt, err)
			}
			out = append(out, rel)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
		if q.Limit > 0 && len(out) >= q.Limit {
			out = out[:q.Limit]
			break
		}
	}
	return out, nil
}

func (s *Store) RecordCoherenceRepair(ctx context.Context, entry store.CoherenceRepairEntry) (string, error) {
	rowID := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO _coherence_repair(id, store, operation, record_id, object_type, detail, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rowID, entry.Store, entry.Operation, entry.ID.String(), entry.ObjectType, entry.Detail, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("sqlitestore: record coherence repair: %w", err)
	}
	return rowID, nil
}

func (s *Store) ListCoherenceRepairs(ctx context.Context) ([]store.CoherenceRepairRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, store, operation, record_id, object_type, detail FROM _coherence_repair ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list coherence repairs: %w", err)
	}
	defer rows.Close()

	var out []store.CoherenceRepairRow
	for rows.Next() {
		var rowID, st, op, recordID, detail string
		var objectType sql.NullString
		if err := rows.Scan(&rowID, &st, &op, &recordID, &objectType, &detail); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan coherence repair: %w", err)
		}
		id, err := uuid.Parse(recordID)
		if err != nil {
			continue
		}
		out = append(out, store.CoherenceRepairRow{RowID: rowID, Store: st, Operation: op, RecordID: id, ObjectType: objectType.String, Detail: detail})
	}
	return out, rows.Err()
}

func (s *Store) ResolveCoherenceRepair(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM _coherence_repair WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlitestore: resolve coherence repair %q: %w", id, err)
	}
	return nil
}
