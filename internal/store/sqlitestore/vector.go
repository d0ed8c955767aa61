package sqlitestore

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/pwilkin/grizabella/internal/store"
)

// EnsureCollection is a no-op for the embedded backend: the shared
// _vectors table is created at Open, and brute-force search needs no
// per-collection index.
func (s *Store) EnsureCollection(ctx context.Context, embeddingDef string, dimensions int) error {
	return nil
}

func packVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func unpackVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

func (s *Store) Upsert(ctx context.Context, embeddingDef string, objectID uuid.UUID, vector []float32, preview, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO _vectors(embedding_def, object_id, vector, preview, source_hash) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(embedding_def, object_id) DO UPDATE SET vector = excluded.vector, preview = excluded.preview, source_hash = excluded.source_hash`,
		embeddingDef, objectID.String(), packVector(vector), preview, hash)
	if err != nil {
		return fmt.Errorf("sqlitestore: upsert vector %s/%s: %w", embeddingDef, objectID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, embeddingDef string, objectID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM _vectors WHERE embedding_def = ? AND object_id = ?`, embeddingDef, objectID.String())
	if err != nil {
		return fmt.Errorf("sqlitestore: delete vector %s/%s: %w", embeddingDef, objectID, err)
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func (s *Store) Search(ctx context.Context, embeddingDef string, queryVector []float32, limit int, threshold *float64, isL2 bool) ([]store.SearchHit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT object_id, vector FROM _vectors WHERE embedding_def = ?`, embeddingDef)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: search %q: %w", embeddingDef, err)
	}
	defer rows.Close()

	var hits []store.SearchHit
	for rows.Next() {
		var rawID string
		var blob []byte
		if err := rows.Scan(&rawID, &blob); err != nil {
			return nil, fmt.Errorf("sqlitestore: search %q: %w", embeddingDef, err)
		}
		objectID, err := uuid.Parse(rawID)
		if err != nil {
			continue
		}
		vec := unpackVector(blob)
		var score float64
		if isL2 {
			score = l2Distance(vec, queryVector)
			if threshold != nil && score > *threshold {
				continue
			}
		} else {
			score = cosineSimilarity(vec, queryVector)
			if threshold != nil && score < *threshold {
				continue
			}
		}
		hits = append(hits, store.SearchHit{ObjectID: objectID, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if isL2 {
		sort.Slice(hits, func(i, j int) bool { return hits[i].Score < hits[j].Score })
	} else {
		sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
