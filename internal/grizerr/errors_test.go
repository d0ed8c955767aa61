package grizerr

import (
	"errors"
	"testing"
)

func TestKindRetryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindValidation, false},
		{KindSchemaConflict, false},
		{KindNotFound, false},
		{KindPartialWrite, false},
		{KindEmbedding, false},
		{KindQuery, false},
		{KindUnavailable, true},
		{KindCancelled, false},
	}
	for _, tt := range tests {
		if got := tt.kind.Retryable(); got != tt.want {
			t.Errorf("Kind(%s).Retryable() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestKindExitCode(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, 2},
		{KindSchemaConflict, 3},
		{KindNotFound, 4},
		{KindUnavailable, 5},
		{KindCancelled, 5},
		{KindEmbedding, 1},
		{KindQuery, 1},
		{KindPartialWrite, 1},
	}
	for _, tt := range tests {
		if got := tt.kind.ExitCode(); got != tt.want {
			t.Errorf("Kind(%s).ExitCode() = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestIsAndAs(t *testing.T) {
	err := Validation("missing property %q", "name")
	if !Is(err, KindValidation) {
		t.Errorf("Is(err, KindValidation) = false, want true")
	}
	if Is(err, KindNotFound) {
		t.Errorf("Is(err, KindNotFound) = true, want false")
	}

	wrapped := errors.New("wrapped context")
	ua := Unavailable(wrapped, "connection refused")
	ge, ok := As(ua)
	if !ok {
		t.Fatalf("As(ua) ok = false, want true")
	}
	if ge.Kind != KindUnavailable {
		t.Errorf("ge.Kind = %v, want %v", ge.Kind, KindUnavailable)
	}
	if !errors.Is(ua, wrapped) {
		t.Errorf("errors.Is(ua, wrapped) = false, want true")
	}
	if !ua.Retryable() {
		t.Errorf("ua.Retryable() = false, want true")
	}
}

func TestPartialWriteCarriesRepairDetail(t *testing.T) {
	err := PartialWrite([]string{"graph"}, "repair-42", errors.New("graph unreachable"))
	if err.Kind != KindPartialWrite {
		t.Errorf("Kind = %v, want %v", err.Kind, KindPartialWrite)
	}
	if err.RepairID != "repair-42" {
		t.Errorf("RepairID = %q, want %q", err.RepairID, "repair-42")
	}
	if len(err.DivergedStores) != 1 || err.DivergedStores[0] != "graph" {
		t.Errorf("DivergedStores = %v, want [graph]", err.DivergedStores)
	}
	if err.Retryable() {
		t.Errorf("PartialWrite.Retryable() = true, want false")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Embedding(cause, "encode failed")
	if errors.Unwrap(err) != cause {
		t.Errorf("Unwrap() = %v, want %v", errors.Unwrap(err), cause)
	}
}
