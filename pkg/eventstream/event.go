package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeDocumentIngested is emitted after a document is stored.
	EventTypeDocumentIngested = "kb.document.ingested"

	// EventTypeDocumentDeleted is emitted after a document is removed.
	EventTypeDocumentDeleted = "kb.document.deleted"
)

// DocumentEvent is a transport-neutral event payload for a store mutation.
type DocumentEvent struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	EventID       string       `json:"event_id"`
	EmittedAt     time.Time    `json:"emitted_at"`
	Source        EventSource  `json:"source"`
	Document      DocumentMeta `json:"document"`
}

// EventSource identifies where the mutation originated.
type EventSource struct {
	// Transport is the surface that received the request: "http", "mcp",
	// or "walker".
	Transport string `json:"transport"`
	Host      string `json:"host,omitempty"`
}

// DocumentMeta describes the affected document. The embedding itself is not
// carried.
type DocumentMeta struct {
	ID         string         `json:"id"`
	TextBytes  int            `json:"text_bytes,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Dimensions int            `json:"dimensions,omitempty"`
	Degraded   bool           `json:"degraded,omitempty"`
	Persisted  bool           `json:"persisted"`
}

// NewDocumentEvent builds an event with a fresh ID and the current time.
func NewDocumentEvent(eventType string, source EventSource, doc DocumentMeta) *DocumentEvent {
	return &DocumentEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Document:      doc,
	}
}
