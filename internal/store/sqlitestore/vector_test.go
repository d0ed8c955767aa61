package sqlitestore

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestPackUnpackVectorRoundTrips(t *testing.T) {
	v := []float32{0.1, -0.2, 3.5, 0}
	got := unpackVector(packVector(v))
	if len(got) != len(v) {
		t.Fatalf("unpackVector() length = %d, want %d", len(got), len(v))
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("index %d: got %v, want %v", i, got[i], v[i])
		}
	}
}

func TestUpsertAndSearchOrdersByCosineDescending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	close_ := uuid.New()
	far := uuid.New()
	if err := s.Upsert(ctx, "bio_embedding", close_, []float32{1, 0, 0}, "close", ""); err != nil {
		t.Fatalf("Upsert(close) error = %v", err)
	}
	if err := s.Upsert(ctx, "bio_embedding", far, []float32{0, 1, 0}, "far", ""); err != nil {
		t.Fatalf("Upsert(far) error = %v", err)
	}

	hits, err := s.Search(ctx, "bio_embedding", []float32{1, 0, 0}, 0, nil, false)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("Search() returned %d hits, want 2", len(hits))
	}
	if hits[0].ObjectID != close_ {
		t.Errorf("Search()[0] = %s, want the closer vector %s first", hits[0].ObjectID, close_)
	}
}

func TestSearchRespectsLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.Upsert(ctx, "bio_embedding", uuid.New(), []float32{float32(i), 0, 0}, "", ""); err != nil {
			t.Fatalf("Upsert(%d) error = %v", i, err)
		}
	}
	hits, err := s.Search(ctx, "bio_embedding", []float32{1, 0, 0}, 2, nil, false)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("Search() with limit=2 returned %d hits, want 2", len(hits))
	}
}

func TestSearchL2OrdersAscendingAndRespectsThreshold(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	near := uuid.New()
	far := uuid.New()
	if err := s.Upsert(ctx, "bio_embedding", near, []float32{0, 0, 0}, "", ""); err != nil {
		t.Fatalf("Upsert(near) error = %v", err)
	}
	if err := s.Upsert(ctx, "bio_embedding", far, []float32{10, 10, 10}, "", ""); err != nil {
		t.Fatalf("Upsert(far) error = %v", err)
	}

	threshold := 1.0
	hits, err := s.Search(ctx, "bio_embedding", []float32{0, 0, 0}, 0, &threshold, true)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 || hits[0].ObjectID != near {
		t.Fatalf("Search() L2 with threshold=1.0 = %v, want only the near vector", hits)
	}
}

func TestDeleteVectorRemovesFromSearch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := uuid.New()
	if err := s.Upsert(ctx, "bio_embedding", id, []float32{1, 2, 3}, "", ""); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := s.Delete(ctx, "bio_embedding", id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	hits, err := s.Search(ctx, "bio_embedding", []float32{1, 2, 3}, 0, nil, false)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("Search() after delete = %v, want empty", hits)
	}
}
