// Package pgvectorstore is an alternate store.VectorStore backed by
// Postgres + pgvector, for deployments that need a shared, networked
// vector index instead of the embedded sqlitestore default.
package pgvectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/pwilkin/grizabella/internal/store"
)

// Store implements store.VectorStore against one Postgres database. Each
// embedding definition gets its own table (grizabella_vec_<def>), created
// lazily by EnsureCollection with a vector column sized to dimensions.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres at dsn (a standard libpq connection string)
// and registers the pgvector type.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvectorstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvectorstore: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvectorstore: enable vector extension: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func tableName(embeddingDef string) string {
	return `"grizabella_vec_` + embeddingDef + `"`
}

func (s *Store) EnsureCollection(ctx context.Context, embeddingDef string, dimensions int) error {
	stmt := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			object_id UUID PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			preview TEXT,
			source_hash TEXT
		)`, tableName(embeddingDef), dimensions)
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("pgvectorstore: ensure collection %q: %w", embeddingDef, err)
	}
	idx := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON %s USING ivfflat (embedding vector_cosine_ops)`,
		`"idx_`+embeddingDef+`_embedding"`, tableName(embeddingDef))
	if _, err := s.pool.Exec(ctx, idx); err != nil {
		return fmt.Errorf("pgvectorstore: ensure index for %q: %w", embeddingDef, err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, embeddingDef string, objectID uuid.UUID, vector []float32, preview, hash string) error {
	stmt := fmt.Sprintf(
		`INSERT INTO %s (object_id, embedding, preview, source_hash) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (object_id) DO UPDATE SET embedding = excluded.embedding, preview = excluded.preview, source_hash = excluded.source_hash`,
		tableName(embeddingDef))
	if _, err := s.pool.Exec(ctx, stmt, objectID, pgvector.NewVector(vector), preview, hash); err != nil {
		return fmt.Errorf("pgvectorstore: upsert %s/%s: %w", embeddingDef, objectID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, embeddingDef string, objectID uuid.UUID) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE object_id = $1`, tableName(embeddingDef))
	if _, err := s.pool.Exec(ctx, stmt, objectID); err != nil {
		return fmt.Errorf("pgvectorstore: delete %s/%s: %w", embeddingDef, objectID, err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, embeddingDef string, queryVector []float32, limit int, threshold *float64, isL2 bool) ([]store.SearchHit, error) {
	op, scoreExpr := "<=>", "1 - (embedding <=> $1)" // cosine distance operator, similarity = 1 - distance
	if isL2 {
		op, scoreExpr = "<->", "embedding <-> $1"
	}
	stmt := fmt.Sprintf(
		`SELECT object_id, %s AS score FROM %s ORDER BY embedding %s $1 LIMIT $2`,
		scoreExpr, tableName(embeddingDef), op)

	rows, err := s.pool.Query(ctx, stmt, pgvector.NewVector(queryVector), limit)
	if err != nil {
		return nil, fmt.Errorf("pgvectorstore: search %q: %w", embeddingDef, err)
	}
	defer rows.Close()

	var hits []store.SearchHit
	for rows.Next() {
		var id uuid.UUID
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("pgvectorstore: search %q: %w", embeddingDef, err)
		}
		if threshold != nil {
			if isL2 && score > *threshold {
				continue
			}
			if !isL2 && score < *threshold {
				continue
			}
		}
		hits = append(hits, store.SearchHit{ObjectID: id, Score: score})
	}
	return hits, rows.Err()
}
