// Package coordinator implements the Embedding Coordinator and Write
// Coordinator: the machinery that keeps the relational, vector, and graph
// stores coherent on every object/relation mutation.
package coordinator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/pwilkin/grizabella/internal/grizerr"
	"github.com/pwilkin/grizabella/internal/registry"
	"github.com/pwilkin/grizabella/internal/store"
	"github.com/pwilkin/grizabella/internal/types"
	"github.com/pwilkin/grizabella/pkg/embedder"
)

// previewLimit bounds how much source text is kept verbatim in
// source_text_preview before falling back to a hash for change detection.
const previewLimit = 2048

// Embedder is the subset of embedder.Registry the coordinator depends on,
// narrowed for testability.
type Embedder interface {
	Resolve(modelID string) (embedder.Embedder, error)
}

// EmbeddingCoordinator maps an object type's writes onto its embedding
// definitions, (re)computing vectors only when the source text actually
// changed.
type EmbeddingCoordinator struct {
	registry *registry.Registry
	vector   store.VectorStore
	models   Embedder
}

// NewEmbeddingCoordinator builds a coordinator over reg's embedding
// definitions, writing vectors to vector and resolving models via models.
// reg may be nil at construction time and fixed up later with SetRegistry,
// to break the registry/coordinator construction cycle: the registry's
// backfill callback is this coordinator's Backfill method, which does not
// itself dereference registry.
func NewEmbeddingCoordinator(reg *registry.Registry, vector store.VectorStore, models Embedder) *EmbeddingCoordinator {
	return &EmbeddingCoordinator{registry: reg, vector: vector, models: models}
}

// SetRegistry fixes the coordinator's registry reference once the registry
// has finished constructing (see NewEmbeddingCoordinator).
func (c *EmbeddingCoordinator) SetRegistry(reg *registry.Registry) {
	c.registry = reg
}

func previewAndHash(text string) (preview string, hash string) {
	if len(text) <= previewLimit {
		return text, ""
	}
	sum := sha256.Sum256([]byte(text))
	return text[:previewLimit], hex.EncodeToString(sum[:])
}

// stale reports whether newText differs from the text a (storedPreview,
// storedHash) pair was computed from. storedHash is empty when that text fit
// within previewLimit, in which case storedPreview holds it verbatim and a
// direct comparison decides staleness; otherwise storedHash is the sha256 of
// the full original text and comparing hashes avoids re-truncating an
// already-truncated preview.
func stale(storedPreview, storedHash, newText string) bool {
	if storedHash == "" {
		return !bytes.Equal([]byte(storedPreview), []byte(newText))
	}
	_, newHash := previewAndHash(newText)
	return newHash != storedHash
}

// OnObjectWrite computes the write-time embedding delta for obj: for every
// embedding definition on its type whose source property is present and
// whose stored vector (if any) is stale, re-embed and upsert. Embedding
// failures are reported but do not fail the call (step 5 of the write
// coordinator never rolls back on an EmbeddingError).
func (c *EmbeddingCoordinator) OnObjectWrite(ctx context.Context, obj types.ObjectInstance, previous *types.ObjectInstance) []error {
	defs := c.registry.EmbeddingDefinitionsFor(obj.ObjectTypeName)

	var mu sync.Mutex
	var errs []error
	var wg sync.WaitGroup
	for _, def := range defs {
		def := def
		v, ok := obj.Properties[def.SourcePropertyName]
		if !ok || v.Null {
			continue
		}
		text := v.Text
		if previous != nil {
			if prevV, ok := previous.Properties[def.SourcePropertyName]; ok && !prevV.Null {
				prevPreview, prevHash := previewAndHash(prevV.Text)
				if !stale(prevPreview, prevHash, text) {
					continue
				}
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.embedAndUpsert(ctx, def, obj.ID, text); err != nil {
				mu.Lock()
				errs = append(errs, grizerr.Embedding(err, "object %s embedding %q", obj.ID, def.Name))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errs
}

func (c *EmbeddingCoordinator) embedAndUpsert(ctx context.Context, def types.EmbeddingDefinition, objectID uuid.UUID, text string) error {
	model, err := c.models.Resolve(def.EmbeddingModelID)
	if err != nil {
		return fmt.Errorf("resolve embedding model %q: %w", def.EmbeddingModelID, err)
	}
	vec, err := model.EmbedQuery(ctx, text)
	if err != nil {
		return fmt.Errorf("encode text: %w", err)
	}
	if def.Dimensions != 0 && len(vec) != def.Dimensions {
		return fmt.Errorf("dimension mismatch: embedding definition %q expects %d, model produced %d", def.Name, def.Dimensions, len(vec))
	}
	if def.Dimensions == 0 {
		if err := c.registry.SetDimensions(ctx, def.Name, len(vec)); err != nil {
			return fmt.Errorf("fix dimensions: %w", err)
		}
	}
	if err := c.vector.EnsureCollection(ctx, def.Name, len(vec)); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	preview, hash := previewAndHash(text)
	if err := c.vector.Upsert(ctx, def.Name, objectID, vec, preview, hash); err != nil {
		return fmt.Errorf("upsert vector: %w", err)
	}
	return nil
}

// OnObjectDelete removes every embedding definition's vector row for
// objectID across objectType's definitions.
func (c *EmbeddingCoordinator) OnObjectDelete(ctx context.Context, objectType string, objectID uuid.UUID) []error {
	defs := c.registry.EmbeddingDefinitionsFor(objectType)
	var errs []error
	for _, def := range defs {
		if err := c.vector.Delete(ctx, def.Name, objectID); err != nil {
			errs = append(errs, grizerr.Embedding(err, "delete embedding %q for object %s", def.Name, objectID))
		}
	}
	return errs
}

// Backfill enumerates every existing instance of def's object type,
// encodes in batches, and upserts. Errors accumulate in the returned
// report instead of aborting the whole run, matching the teacher's
// batch-oriented indexing style.
type BackfillReport struct {
	Attempted int
	Succeeded int
	Errors    []error
}

const backfillBatchSize = 64

// Backfill runs synchronously (the registry calls it inline from
// create_embedding_definition), encoding in batches so a single slow
// model call doesn't block cancellation checks for long.
func (c *EmbeddingCoordinator) Backfill(ctx context.Context, def types.EmbeddingDefinition, relational store.RelationalStore) (*BackfillReport, error) {
	report := &BackfillReport{}
	instances, err := relational.Find(ctx, def.ObjectTypeName, nil, 0)
	if err != nil {
		return report, fmt.Errorf("coordinator: backfill %q: list instances: %w", def.Name, err)
	}

	for i := 0; i < len(instances); i += backfillBatchSize {
		if err := ctx.Err(); err != nil {
			return report, grizerr.Cancelled(err)
		}
		end := i + backfillBatchSize
		if end > len(instances) {
			end = len(instances)
		}
		for _, obj := range instances[i:end] {
			report.Attempted++
			v, ok := obj.Properties[def.SourcePropertyName]
			if !ok || v.Null {
				continue
			}
			if err := c.embedAndUpsert(ctx, def, obj.ID, v.Text); err != nil {
				report.Errors = append(report.Errors, grizerr.Embedding(err, "backfill object %s", obj.ID))
				continue
			}
			report.Succeeded++
		}
	}
	return report, nil
}
