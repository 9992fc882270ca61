package notify

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies what happened to a document.
type EventType string

const (
	EventDocumentCreated       EventType = "document.created"
	EventDocumentDeleted       EventType = "document.deleted"
	EventDocumentChanged       EventType = "document.changed"
	EventDocumentSyncState     EventType = "document.sync_state"
	EventDocumentSnapshotState EventType = "document.snapshot_state"
	EventDocumentReplicated    EventType = "document.replicated"
)

// Event is the envelope for every document event.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	DocumentID  string    `json:"document_id"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
	UserID      int64     `json:"user_id,omitempty"`

	// Payload carries type specific fields, e.g. "clock" and "target" for
	// changes or "state" for sync transitions.
	Payload map[string]any `json:"payload,omitempty"`
}

// NewEvent stamps a new event with an id and the current time.
func NewEvent(eventType EventType, documentID string, payload map[string]any) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		DocumentID: documentID,
		Payload:    payload,
	}
}

// partitionKey keeps all events about one document in order.
func partitionKey(ev Event) string {
	if ev.DocumentID != "" {
		return "doc:" + ev.DocumentID
	}
	return "event:" + ev.ID
}
