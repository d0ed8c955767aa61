package sqlitestore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pwilkin/grizabella/internal/types"
)

func (s *Store) SaveObjectType(ctx context.Context, def types.ObjectTypeDefinition) error {
	blob, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal object type %q: %w", def.Name, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO _meta_object_types(name, definition) VALUES(?, ?)
		 ON CONFLICT(name) DO UPDATE SET definition = excluded.definition`,
		def.Name, string(blob))
	if err != nil {
		return fmt.Errorf("sqlitestore: save object type %q: %w", def.Name, err)
	}
	s.mu.Lock()
	s.objectTypes[def.Name] = def
	s.mu.Unlock()
	return nil
}

func (s *Store) LoadObjectTypes(ctx context.Context) ([]types.ObjectTypeDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT definition FROM _meta_object_types`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: load object types: %w", err)
	}
	defer rows.Close()

	var out []types.ObjectTypeDefinition
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan object type: %w", err)
		}
		var def types.ObjectTypeDefinition
		if err := json.Unmarshal([]byte(blob), &def); err != nil {
			return nil, fmt.Errorf("sqlitestore: unmarshal object type: %w", err)
		}
		s.mu.Lock()
		s.objectTypes[def.Name] = def
		s.mu.Unlock()
		out = append(out, def)
	}
	return out, rows.Err()
}

func (s *Store) DeleteObjectTypeMeta(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM _meta_object_types WHERE name = ?`, name); err != nil {
		return fmt.Errorf("sqlitestore: delete object type %q: %w", name, err)
	}
	s.mu.Lock()
	delete(s.objectTypes, name)
	s.mu.Unlock()
	return nil
}

func (s *Store) SaveRelationType(ctx context.Context, def types.RelationTypeDefinition) error {
	blob, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal relation type %q: %w", def.Name, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO _meta_relation_types(name, definition) VALUES(?, ?)
		 ON CONFLICT(name) DO UPDATE SET definition = excluded.definition`,
		def.Name, string(blob))
	if err != nil {
		return fmt.Errorf("sqlitestore: save relation type %q: %w", def.Name, err)
	}
	s.mu.Lock()
	s.relationTypes[def.Name] = def
	s.mu.Unlock()
	return nil
}

func (s *Store) LoadRelationTypes(ctx context.Context) ([]types.RelationTypeDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT definition FROM _meta_relation_types`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: load relation types: %w", err)
	}
	defer rows.Close()

	var out []types.RelationTypeDefinition
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan relation type: %w", err)
		}
		var def types.RelationTypeDefinition
		if err := json.Unmarshal([]byte(blob), &def); err != nil {
			return nil, fmt.Errorf("sqlitestore: unmarshal relation type: %w", err)
		}
		s.mu.Lock()
		s.relationTypes[def.Name] = def
		s.mu.Unlock()
		out = append(out, def)
	}
	return out, rows.Err()
}

func (s *Store) DeleteRelationTypeMeta(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM _meta_relation_types WHERE name = ?`, name); err != nil {
		return fmt.Errorf("sqlitestore: delete relation type %q: %w", name, err)
	}
	s.mu.Lock()
	delete(s.relationTypes, name)
	s.mu.Unlock()
	return nil
}

func (s *Store) SaveEmbeddingDefinition(ctx context.Context, def types.EmbeddingDefinition) error {
	blob, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal embedding definition %q: %w", def.Name, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO _meta_embedding_definitions(name, definition) VALUES(?, ?)
		 ON CONFLICT(name) DO UPDATE SET definition = excluded.definition`,
		def.Name, string(blob))
	if err != nil {
		return fmt.Errorf("sqlitestore: save embedding definition %q: %w", def.Name, err)
	}
	return nil
}

func (s *Store) LoadEmbeddingDefinitions(ctx context.Context) ([]types.EmbeddingDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT definition FROM _meta_embedding_definitions`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: load embedding definitions: %w", err)
	}
	defer rows.Close()

	var out []types.EmbeddingDefinition
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan embedding definition: %w", err)
		}
		var def types.EmbeddingDefinition
		if err := json.Unmarshal([]byte(blob), &def); err != nil {
			return nil, fmt.Errorf("sqlitestore: unmarshal embedding definition: %w", err)
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

func (s *Store) DeleteEmbeddingDefinitionMeta(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM _meta_embedding_definitions WHERE name = ?`, name); err != nil {
		return fmt.Errorf("sqlitestore: delete embedding definition %q: %w", name, err)
	}
	return nil
}

// EnsureObjectTable creates obj_<Name> with one column per declared
// property, typed per sqlType, plus id/weight/upsert_date. Property
// definitions are immutable after creation, so a single CREATE TABLE
// covers the type's lifetime.
func (s *Store) EnsureObjectTable(ctx context.Context, def types.ObjectTypeDefinition) error {
	var cols []string
	cols = append(cols, `"id" TEXT PRIMARY KEY`, `"weight" TEXT NOT NULL`, `"upsert_date" TEXT NOT NULL`)
	var indexStmts []string
	for _, p := range def.Properties {
		col := fmt.Sprintf("%s %s", quoteIdent(p.Name), sqlType(p.DataType))
		if !p.IsNullable {
			col += " NOT NULL"
		}
		if p.IsUnique {
			col += " UNIQUE"
		}
		cols = append(cols, col)
		if p.IsIndexed && !p.IsUnique {
			indexStmts = append(indexStmts, fmt.Sprintf(
				`CREATE INDEX IF NOT EXISTS %s ON %s(%s)`,
				quoteIdent("idx_obj_"+def.Name+"_"+p.Name), objectTable(def.Name), quoteIdent(p.Name)))
		}
	}
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`, objectTable(def.Name), strings.Join(cols, ", "))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlitestore: ensure object table %q: %w", def.Name, err)
	}
	for _, idx := range indexStmts {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("sqlitestore: ensure index for %q: %w", def.Name, err)
		}
	}
	s.mu.Lock()
	s.objectTypes[def.Name] = def
	s.mu.Unlock()
	return nil
}

// EnsureRelationTable creates rel_<Name> with source_id/target_id plus one
// column per declared relation property.
func (s *Store) EnsureRelationTable(ctx context.Context, def types.RelationTypeDefinition) error {
	cols := []string{
		`"id" TEXT PRIMARY KEY`,
		`"weight" TEXT NOT NULL`,
		`"upsert_date" TEXT NOT NULL`,
		`"source_id" TEXT NOT NULL`,
		`"target_id" TEXT NOT NULL`,
	}
	for _, p := range def.Properties {
		col := fmt.Sprintf("%s %s", quoteIdent(p.Name), sqlType(p.DataType))
		if !p.IsNullable {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`, relationTable(def.Name), strings.Join(cols, ", "))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlitestore: ensure relation table %q: %w", def.Name, err)
	}
	idxSrc := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s("source_id")`,
		quoteIdent("idx_rel_"+def.Name+"_source"), relationTable(def.Name))
	idxTgt := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s("target_id")`,
		quoteIdent("idx_rel_"+def.Name+"_target"), relationTable(def.Name))
	for _, idx := range []string{idxSrc, idxTgt} {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("sqlitestore: ensure relation index for %q: %w", def.Name, err)
		}
	}
	s.mu.Lock()
	s.relationTypes[def.Name] = def
	s.mu.Unlock()
	return nil
}

func (s *Store) objectTypeDef(name string) (types.ObjectTypeDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.objectTypes[name]
	return def, ok
}

func (s *Store) relationTypeDef(name string) (types.RelationTypeDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.relationTypes[name]
	return def, ok
}
