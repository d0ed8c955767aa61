package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryInstance is embedded by every stored record kind. ID is server
// generated if absent on write; UpsertDate is refreshed on every
// successful write.
type MemoryInstance struct {
	ID         uuid.UUID       `json:"id"`
	Weight     decimal.Decimal `json:"weight"`
	UpsertDate time.Time       `json:"upsert_date"`
}

// EnsureDefaults fills in a server-generated ID, matching the write
// coordinator's "assign" step. Weight is not defaulted here: a
// decimal.Decimal zero value is indistinguishable from an explicitly
// supplied weight of 0 (both valid per the inclusive [0,10] range), so only
// a caller that actually knows whether weight was omitted can default it
// correctly. The MCP wire layer does that at ObjectInstanceWire/
// RelationInstanceWire conversion time, before the domain value ever loses
// that information.
func (m *MemoryInstance) EnsureDefaults() {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
}

// ObjectInstance is a single record of a declared ObjectTypeDefinition.
type ObjectInstance struct {
	MemoryInstance
	ObjectTypeName string           `json:"object_type_name"`
	Properties     map[string]Value `json:"properties"`
}

// RelationInstance is a directed, typed edge between two ObjectInstances,
// identified by their (type, id) pairs via SourceID/TargetID.
type RelationInstance struct {
	MemoryInstance
	RelationTypeName string           `json:"relation_type_name"`
	SourceID         uuid.UUID        `json:"source_id"`
	TargetID         uuid.UUID        `json:"target_id"`
	Properties       map[string]Value `json:"properties"`
}

// EmbeddingInstance is the internal record of one computed vector for one
// (object instance, embedding definition) pair.
type EmbeddingInstance struct {
	MemoryInstance
	ObjectInstanceID        uuid.UUID `json:"object_instance_id"`
	EmbeddingDefinitionName string    `json:"embedding_definition_name"`
	Vector                  []float32 `json:"vector"`
	SourceTextPreview       string    `json:"source_text_preview,omitempty"`
	// SourceTextHash is the sha256 of the full source text, set only when
	// SourceTextPreview had to be truncated to previewLimit; it lets a
	// later write detect a change even though the preview alone can't.
	SourceTextHash string `json:"source_text_hash,omitempty"`
}
