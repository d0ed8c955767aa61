package coordinator

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/pwilkin/grizabella/internal/store"
)

// repairTestStore is a RelationalStore stub dedicated to repair_test.go:
// it serves a fixed, mutable set of pending _coherence_repair rows and
// records which row ids get resolved.
type repairTestStore struct {
	fakeRelationalStore
	pending  []store.CoherenceRepairRow
	resolved []string
}

func newRepairTestStore() *repairTestStore {
	return &repairTestStore{fakeRelationalStore: *newFakeRelationalStore()}
}

func (s *repairTestStore) ListCoherenceRepairs(context.Context) ([]store.CoherenceRepairRow, error) {
	return s.pending, nil
}

func (s *repairTestStore) ResolveCoherenceRepair(_ context.Context, id string) error {
	s.resolved = append(s.resolved, id)
	return nil
}

func TestRunOnceResolvesSuccessfulUpsertNodeRetry(t *testing.T) {
	rel := newRepairTestStore()
	id := uuid.New()
	rel.pending = []store.CoherenceRepairRow{
		{RowID: "row-1", Store: "graph", Operation: "upsert_node", RecordID: id, ObjectType: "Person"},
	}
	graph := newFakeGraphStore()

	w := NewRepairWorker(rel, graph, DefaultRepairInterval)
	w.runOnce(context.Background())

	if !graph.nodes[store.NodeRef{Type: "Person", ID: id}] {
		t.Error("runOnce did not retry the upsert_node operation against the graph store")
	}
	if len(rel.resolved) != 1 || rel.resolved[0] != "row-1" {
		t.Errorf("resolved = %v, want [row-1]", rel.resolved)
	}
}

func TestRunOnceLeavesRowPendingWhenRetryFails(t *testing.T) {
	rel := newRepairTestStore()
	id := uuid.New()
	rel.pending = []store.CoherenceRepairRow{
		{RowID: "row-1", Store: "graph", Operation: "upsert_node", RecordID: id, ObjectType: "Person"},
	}
	graph := newFakeGraphStore()
	graph.failUpsertNode = true

	w := NewRepairWorker(rel, graph, DefaultRepairInterval)
	w.runOnce(context.Background())

	if len(rel.resolved) != 0 {
		t.Errorf("resolved = %v, want none when every retry attempt fails", rel.resolved)
	}
}

func TestRunOnceLeavesEdgeRowsForOperatorInspection(t *testing.T) {
	rel := newRepairTestStore()
	id := uuid.New()
	rel.pending = []store.CoherenceRepairRow{
		{RowID: "row-1", Store: "graph", Operation: "upsert_edge", RecordID: id},
	}
	graph := newFakeGraphStore()

	w := NewRepairWorker(rel, graph, DefaultRepairInterval)
	w.runOnce(context.Background())

	// runOnce skips upsert_edge rows, so the row stays pending and nothing
	// in the graph store changes for it.
	if len(rel.resolved) != 0 {
		t.Errorf("resolved = %v, want none: edge rows stay pending", rel.resolved)
	}
	if len(graph.edges) != 0 {
		t.Errorf("graph.edges = %v, want untouched for upsert_edge rows", graph.edges)
	}
}

func TestRunOnceHandlesMultipleRows(t *testing.T) {
	rel := newRepairTestStore()
	idA := uuid.New()
	idB := uuid.New()
	rel.pending = []store.CoherenceRepairRow{
		{RowID: "row-a", Store: "graph", Operation: "upsert_node", RecordID: idA, ObjectType: "Person"},
		{RowID: "row-b", Store: "graph", Operation: "upsert_node", RecordID: idB, ObjectType: "Company"},
	}
	graph := newFakeGraphStore()

	w := NewRepairWorker(rel, graph, DefaultRepairInterval)
	w.runOnce(context.Background())

	if !graph.nodes[store.NodeRef{Type: "Person", ID: idA}] {
		t.Error("row-a's node was not upserted")
	}
	if !graph.nodes[store.NodeRef{Type: "Company", ID: idB}] {
		t.Error("row-b's node was not upserted")
	}
	if len(rel.resolved) != 2 {
		t.Errorf("resolved = %v, want 2 rows resolved", rel.resolved)
	}
}
