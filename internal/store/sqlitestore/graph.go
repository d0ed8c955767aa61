package sqlitestore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pwilkin/grizabella/internal/store"
	"github.com/pwilkin/grizabella/internal/types"
)

func (s *Store) UpsertNode(ctx context.Context, objectType string, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO _graph_nodes(object_type, id) VALUES (?, ?) ON CONFLICT(object_type, id) DO NOTHING`,
		objectType, id.String())
	if err != nil {
		return fmt.Errorf("sqlitestore: upsert node %s/%s: %w", objectType, id, err)
	}
	return nil
}

func (s *Store) DeleteNode(ctx context.Context, objectType string, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: delete node %s/%s: %w", objectType, id, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM _graph_edges WHERE (source_type = ? AND source_id = ?) OR (target_type = ? AND target_id = ?)`,
		objectType, id.String(), objectType, id.String()); err != nil {
		return fmt.Errorf("sqlitestore: cascade delete edges for %s/%s: %w", objectType, id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM _graph_nodes WHERE object_type = ? AND id = ?`, objectType, id.String()); err != nil {
		return fmt.Errorf("sqlitestore: delete node %s/%s: %w", objectType, id, err)
	}
	return tx.Commit()
}

func (s *Store) UpsertEdge(ctx context.Context, relationType string, source, target store.NodeRef, id uuid.UUID, properties map[string]types.Value) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO _graph_edges(id, relation_type, source_type, source_id, target_type, target_id)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET relation_type = excluded.relation_type,
			source_type = excluded.source_type, source_id = excluded.source_id,
			target_type = excluded.target_type, target_id = excluded.target_id`,
		id.String(), relationType, source.Type, source.ID.String(), target.Type, target.ID.String())
	if err != nil {
		return fmt.Errorf("sqlitestore: upsert edge %s/%s: %w", relationType, id, err)
	}
	return nil
}

func (s *Store) DeleteEdge(ctx context.Context, relationType string, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM _graph_edges WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("sqlitestore: delete edge %s/%s: %w", relationType, id, err)
	}
	return nil
}

// Neighbors returns, for the given anchor set, the target ids reachable
// via relationType in direction, optionally narrowed by a single targetID
// or target-side property filters (requires def to resolve target
// property types, pulled from the registered object type cache).
func (s *Store) Neighbors(ctx context.Context, anchors []store.NodeRef, relationType string, direction store.Direction, targetType string, targetID *uuid.UUID, targetFilters []store.Filter, limit int) ([]uuid.UUID, error) {
	anchorCol, otherCol := "source_id", "target_id"
	anchorTypeCol, otherTypeCol := "source_type", "target_type"
	if direction == store.DirectionIncoming {
		anchorCol, otherCol = "target_id", "source_id"
		anchorTypeCol, otherTypeCol = "target_type", "source_type"
	}

	clauses := []string{`relation_type = ?`}
	args := []interface{}{relationType}
	if len(anchors) > 0 {
		placeholders := make([]string, len(anchors))
		for i, a := range anchors {
			placeholders[i] = "?"
			args = append(args, a.ID.String())
		}
		clauses = append(clauses, anchorCol+" IN ("+strings.Join(placeholders, ", ")+")")
		clauses = append(clauses, anchorTypeCol+" = ?")
		args = append(args, anchors[0].Type)
	}
	clauses = append(clauses, otherTypeCol+" = ?")
	args = append(args, targetType)
	if targetID != nil {
		clauses = append(clauses, otherCol+" = ?")
		args = append(args, targetID.String())
	}

	stmt := fmt.Sprintf(`SELECT DISTINCT %s FROM _graph_edges WHERE %s`, otherCol, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: neighbors %q: %w", relationType, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("sqlitestore: neighbors %q: %w", relationType, err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(targetFilters) > 0 {
		ids, err = s.filterObjectIDs(ctx, targetType, ids, targetFilters)
		if err != nil {
			return nil, err
		}
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// filterObjectIDs keeps only the ids whose relational row satisfies
// filters, used to apply GraphHop.target_property_filters.
func (s *Store) filterObjectIDs(ctx context.Context, objectType string, ids []uuid.UUID, filters []store.Filter) ([]uuid.UUID, error) {
	def, ok := s.objectTypeDef(objectType)
	if !ok || len(ids) == 0 {
		return nil, nil
	}
	where, args, err := buildFilterSQL(def.Property, filters)
	if err != nil {
		return nil, err
	}
	placeholders := make([]string, len(ids))
	idArgs := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		idArgs[i] = id.String()
	}
	clause := `"id" IN (` + strings.Join(placeholders, ", ") + `)`
	stmt := fmt.Sprintf(`SELECT "id" FROM %s WHERE %s`, objectTable(objectType), clause)
	allArgs := idArgs
	if where != "" {
		stmt += " AND " + strings.TrimPrefix(where, " WHERE ")
		allArgs = append(allArgs, args...)
	}
	rows, err := s.db.QueryContext(ctx, stmt, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: filter object ids for %q: %w", objectType, err)
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
