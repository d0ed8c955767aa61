package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pwilkin/grizabella/internal/grizerr"
	"github.com/pwilkin/grizabella/internal/registry"
	"github.com/pwilkin/grizabella/internal/store"
	"github.com/pwilkin/grizabella/internal/types"
)

// nowUTC is overridable in tests; production always uses time.Now().
var nowUTC = func() time.Time { return time.Now().UTC() }

// WriteCoordinator orders per-store writes to keep the relational, graph,
// and vector stores coherent best-effort, per spec §4.4: relational is
// authoritative, the graph mirror follows, and embeddings follow last
// without rolling back the write on failure.
type WriteCoordinator struct {
	registry   *registry.Registry
	relational store.RelationalStore
	graph      store.GraphStore
	embeddings *EmbeddingCoordinator

	locks *idLock
}

// New builds a WriteCoordinator over the given registry and adapters.
func New(reg *registry.Registry, relational store.RelationalStore, graph store.GraphStore, embeddings *EmbeddingCoordinator) *WriteCoordinator {
	return &WriteCoordinator{
		registry:   reg,
		relational: relational,
		graph:      graph,
		embeddings: embeddings,
		locks:      newIDLock(),
	}
}

// UpsertObject validates, assigns defaults, writes the relational row,
// mirrors the graph node, and (re)computes embeddings. EmbeddingErrors are
// returned alongside a successful object but never roll back the write.
func (w *WriteCoordinator) UpsertObject(ctx context.Context, obj types.ObjectInstance) (types.ObjectInstance, []error, error) {
	if err := ctx.Err(); err != nil {
		return types.ObjectInstance{}, nil, grizerr.Cancelled(err)
	}

	if err := w.registry.ValidateObjectInstance(&obj); err != nil {
		return types.ObjectInstance{}, nil, err
	}
	obj.EnsureDefaults()
	obj.UpsertDate = nowUTC()

	unlock := w.locks.Lock(obj.ID)
	defer unlock()

	previous, _ := w.relational.GetObject(ctx, obj.ObjectTypeName, obj.ID)

	if err := w.relational.UpsertObject(ctx, obj.ObjectTypeName, obj); err != nil {
		return types.ObjectInstance{}, nil, fmt.Errorf("write coordinator: relational upsert %s/%s: %w", obj.ObjectTypeName, obj.ID, err)
	}

	if err := w.graph.UpsertNode(ctx, obj.ObjectTypeName, obj.ID); err != nil {
		return types.ObjectInstance{}, nil, w.compensate(ctx, "graph", "upsert_node", obj.ObjectTypeName, obj.ObjectTypeName, obj.ID, err, func() error {
			return w.relational.DeleteObject(ctx, obj.ObjectTypeName, obj.ID)
		})
	}

	embedErrs := w.embeddings.OnObjectWrite(ctx, obj, previous)
	return obj, embedErrs, nil
}

// compensate attempts to undo step (3) after step (4) fails; if the
// compensation also fails, it records a _coherence_repair row and returns
// a PartialWrite error, per spec §4.4. objectType is the schema object
// type the repair worker must use to re-issue UpsertNode; it is only
// meaningful for an "upsert_node" op and left empty for "upsert_edge",
// which the repair worker never replays (it lacks the endpoints).
func (w *WriteCoordinator) compensate(ctx context.Context, divergedStore, op, detailType, objectType string, id uuid.UUID, cause error, undo func() error) error {
	if undoErr := undo(); undoErr != nil {
		repairID, recErr := w.relational.RecordCoherenceRepair(ctx, store.CoherenceRepairEntry{
			Store:      divergedStore,
			Operation:  op,
			ID:         id,
			ObjectType: objectType,
			Detail:     fmt.Sprintf("type=%s cause=%v compensation_failed=%v", detailType, cause, undoErr),
		})
		if recErr != nil {
			repairID = ""
		}
		return grizerr.PartialWrite([]string{divergedStore}, repairID, cause)
	}
	return fmt.Errorf("write coordinator: %s %s failed, compensated: %w", divergedStore, op, cause)
}

// DeleteObject cascades per spec §4.4: find and delete all relations
// naming id as source or target, delete embeddings, delete the graph
// mirror node, then delete the relational row.
func (w *WriteCoordinator) DeleteObject(ctx context.Context, objectType string, id uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, grizerr.Cancelled(err)
	}

	unlock := w.locks.Lock(id)
	defer unlock()

	existing, err := w.relational.GetObject(ctx, objectType, id)
	if err != nil {
		return false, fmt.Errorf("write coordinator: get object %s/%s: %w", objectType, id, err)
	}
	if existing == nil {
		return false, nil
	}

	if err := w.deleteReferencingRelations(ctx, id); err != nil {
		return false, err
	}

	for _, err := range w.embeddings.OnObjectDelete(ctx, objectType, id) {
		_ = err // EmbeddingError never blocks a delete; best-effort cleanup
	}

	if err := w.graph.DeleteNode(ctx, objectType, id); err != nil {
		return false, fmt.Errorf("write coordinator: delete graph node %s/%s: %w", objectType, id, err)
	}

	if err := w.relational.DeleteObject(ctx, objectType, id); err != nil {
		return false, fmt.Errorf("write coordinator: delete object %s/%s: %w", objectType, id, err)
	}
	return true, nil
}

// deleteReferencingRelations removes every relation instance (of any
// relation type) naming id as source or target, concurrently across
// relation types via errgroup.
func (w *WriteCoordinator) deleteReferencingRelations(ctx context.Context, id uuid.UUID) error {
	asSource, err := w.relational.FindRelations(ctx, store.RelationQuery{SourceID: &id})
	if err != nil {
		return fmt.Errorf("write coordinator: find relations sourced from %s: %w", id, err)
	}
	asTarget, err := w.relational.FindRelations(ctx, store.RelationQuery{TargetID: &id})
	if err != nil {
		return fmt.Errorf("write coordinator: find relations targeting %s: %w", id, err)
	}
	all := append(asSource, asTarget...)
	if len(all) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, rel := range all {
		rel := rel
		g.Go(func() error {
			_, err := w.DeleteRelation(gctx, rel.RelationTypeName, rel.ID)
			return err
		})
	}
	return g.Wait()
}

// AddRelation validates both endpoints exist and conform to the relation
// type's source/target lists, then writes the relational row and the
// graph edge.
func (w *WriteCoordinator) AddRelation(ctx context.Context, rel types.RelationInstance, sourceType, targetType string) (types.RelationInstance, error) {
	if err := ctx.Err(); err != nil {
		return types.RelationInstance{}, grizerr.Cancelled(err)
	}

	if err := w.registry.ValidateRelationInstance(&rel); err != nil {
		return types.RelationInstance{}, err
	}
	if err := w.registry.CheckEndpointTypes(rel.RelationTypeName, sourceType, targetType); err != nil {
		return types.RelationInstance{}, err
	}

	source, err := w.relational.GetObject(ctx, sourceType, rel.SourceID)
	if err != nil {
		return types.RelationInstance{}, fmt.Errorf("write coordinator: get source %s/%s: %w", sourceType, rel.SourceID, err)
	}
	if source == nil {
		return types.RelationInstance{}, grizerr.NotFound("source object %s/%s not found", sourceType, rel.SourceID)
	}
	target, err := w.relational.GetObject(ctx, targetType, rel.TargetID)
	if err != nil {
		return types.RelationInstance{}, fmt.Errorf("write coordinator: get target %s/%s: %w", targetType, rel.TargetID, err)
	}
	if target == nil {
		return types.RelationInstance{}, grizerr.NotFound("target object %s/%s not found", targetType, rel.TargetID)
	}

	rel.EnsureDefaults()
	rel.UpsertDate = nowUTC()

	unlock := w.locks.Lock(rel.ID)
	defer unlock()

	if err := w.relational.UpsertRelation(ctx, rel.RelationTypeName, rel); err != nil {
		return types.RelationInstance{}, fmt.Errorf("write coordinator: relational upsert relation %s/%s: %w", rel.RelationTypeName, rel.ID, err)
	}

	sourceRef := store.NodeRef{Type: sourceType, ID: rel.SourceID}
	targetRef := store.NodeRef{Type: targetType, ID: rel.TargetID}
	if err := w.graph.UpsertEdge(ctx, rel.RelationTypeName, sourceRef, targetRef, rel.ID, rel.Properties); err != nil {
		return types.RelationInstance{}, w.compensate(ctx, "graph", "upsert_edge", rel.RelationTypeName, "", rel.ID, err, func() error {
			return w.relational.DeleteRelation(ctx, rel.RelationTypeName, rel.ID)
		})
	}

	return rel, nil
}

// DeleteRelation removes the graph edge then the relational row, per the
// reverse-order delete symmetry spec §4.4 describes.
func (w *WriteCoordinator) DeleteRelation(ctx context.Context, relationType string, id uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, grizerr.Cancelled(err)
	}

	unlock := w.locks.Lock(id)
	defer unlock()

	if err := w.graph.DeleteEdge(ctx, relationType, id); err != nil {
		return false, fmt.Errorf("write coordinator: delete graph edge %s/%s: %w", relationType, id, err)
	}
	if err := w.relational.DeleteRelation(ctx, relationType, id); err != nil {
		return false, fmt.Errorf("write coordinator: delete relation %s/%s: %w", relationType, id, err)
	}
	return true, nil
}
