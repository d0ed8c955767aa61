// Package sqlitestore is Grizabella's default embedded backend: a single
// cgo-free modernc.org/sqlite database file backs the relational, vector,
// and graph adapters all at once, mirroring the teacher's "one connection,
// several concerns split by file" storage layout.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/pwilkin/grizabella/internal/types"
)

// Store implements store.RelationalStore, store.VectorStore, and
// store.GraphStore against one *sql.DB. Vector search is brute-force
// cosine/L2 over BLOB-packed float32 rows, appropriate for the embedded,
// single-node default; pgvectorstore takes over once scale demands an
// indexed ANN search.
type Store struct {
	db *sql.DB

	mu           sync.RWMutex
	objectTypes  map[string]types.ObjectTypeDefinition
	relationTypes map[string]types.RelationTypeDefinition
}

// Open creates (if absent) and opens the sqlite database file at path.
// path is typically "<instance_root>/relational/data.db" (or vector/graph,
// since all three adapters may point at the same file for the embedded
// default).
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid lock contention
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: enable foreign keys: %w", err)
	}

	s := &Store{
		db:            db,
		objectTypes:   make(map[string]types.ObjectTypeDefinition),
		relationTypes: make(map[string]types.RelationTypeDefinition),
	}
	if err := s.ensureMetaTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying *sql.DB.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureMetaTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _meta_object_types (
			name TEXT PRIMARY KEY,
			definition TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS _meta_relation_types (
			name TEXT PRIMARY KEY,
			definition TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS _meta_embedding_definitions (
			name TEXT PRIMARY KEY,
			definition TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS _coherence_repair (
			id TEXT PRIMARY KEY,
			store TEXT NOT NULL,
			operation TEXT NOT NULL,
			record_id TEXT NOT NULL,
			object_type TEXT,
			detail TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS _vectors (
			embedding_def TEXT NOT NULL,
			object_id TEXT NOT NULL,
			vector BLOB NOT NULL,
			preview TEXT,
			source_hash TEXT,
			PRIMARY KEY (embedding_def, object_id)
		)`,
		`CREATE TABLE IF NOT EXISTS _graph_nodes (
			object_type TEXT NOT NULL,
			id TEXT NOT NULL,
			PRIMARY KEY (object_type, id)
		)`,
		`CREATE TABLE IF NOT EXISTS _graph_edges (
			id TEXT PRIMARY KEY,
			relation_type TEXT NOT NULL,
			source_type TEXT NOT NULL,
			source_id TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_graph_edges_source ON _graph_edges(relation_type, source_type, source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_graph_edges_target ON _graph_edges(relation_type, target_type, target_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlitestore: create meta tables: %w", err)
		}
	}
	return nil
}

// sqlType maps a PropertyDataType onto a SQLite storage class.
func sqlType(dt types.PropertyDataType) string {
	switch dt {
	case types.TypeInteger, types.TypeBoolean:
		return "INTEGER"
	case types.TypeFloat:
		return "REAL"
	case types.TypeBlob:
		return "BLOB"
	default: // TEXT, DATETIME, JSON, UUID
		return "TEXT"
	}
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

func objectTable(objectType string) string {
	return quoteIdent("obj_" + objectType)
}

func relationTable(relationType string) string {
	return quoteIdent("rel_" + relationType)
}
