package document

import (
	"context"
	"time"

	"github.com/hashicorp-forge/collabdocs/pkg/collab"
	"github.com/hashicorp-forge/collabdocs/pkg/docid"
)

// AwarenessUpdate is the caller supplied part of a local awareness state.
type AwarenessUpdate struct {
	Selection *collab.Selection `json:"selection,omitempty"`
	Metadata  string            `json:"metadata,omitempty"`
}

// SetDocumentAwarenessLocalState publishes the acting user's presence on an
// open document. It returns false, without error, when the document is not
// open.
func (m *Manager) SetDocumentAwarenessLocalState(ctx context.Context, id docid.UUID, update AwarenessUpdate) (bool, error) {
	const op = "SetDocumentAwarenessLocalState"

	uid, err := m.user.UserID()
	if err != nil {
		return false, newError(op, ErrResourceUnavailable, id.String(), err, "failed to resolve user")
	}
	deviceID, err := m.user.DeviceID()
	if err != nil {
		return false, newError(op, ErrResourceUnavailable, id.String(), err, "failed to resolve device")
	}

	h, err := m.EditableDocument(ctx, id)
	if err != nil {
		if IsPreconditionNotMet(err) {
			return false, nil
		}
		return false, err
	}

	state := collab.AwarenessState{
		Version:   collab.AwarenessVersion,
		User:      collab.AwarenessUser{UID: uid, DeviceID: deviceID},
		Selection: update.Selection,
		Metadata:  update.Metadata,
		Timestamp: m.awarenessTimestamp(),
	}
	_ = h.Write(func(doc *collab.Document) error {
		doc.SetAwarenessLocalState(state)
		return nil
	})
	return true, nil
}

// awarenessTimestamp returns the current time in milliseconds, bumped so
// that it is strictly greater than any value it returned before.
func (m *Manager) awarenessTimestamp() int64 {
	for {
		now := time.Now().UnixMilli()
		last := m.lastAwarenessMillis.Load()
		if now <= last {
			now = last + 1
		}
		if m.lastAwarenessMillis.CompareAndSwap(last, now) {
			return now
		}
	}
}
