package document

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hashicorp-forge/collabdocs/pkg/collab"
	"github.com/hashicorp-forge/collabdocs/pkg/docid"
)

// Reader is the read-only view shared by cached and ephemeral handles.
type Reader interface {
	DocumentID() docid.UUID
	SyncEnabled() bool
	DocumentData() (collab.DocumentData, error)
	Paragraphs() []string
	Text() string
	EncodeCollab() (collab.EncodedCollab, error)
}

var (
	_ Reader = (*Handle)(nil)
	_ Reader = (*EphemeralHandle)(nil)
)

// guarded wraps a content-model document behind a readers/writer lock.
type guarded struct {
	id  docid.UUID
	mu  sync.RWMutex
	doc *collab.Document
}

// DocumentID returns the id of the document.
func (g *guarded) DocumentID() docid.UUID {
	return g.id
}

// SyncEnabled reports whether the document was built for a sync session.
func (g *guarded) SyncEnabled() bool {
	return g.doc.SyncEnabled()
}

// DocumentData returns a copy of the document's structured data.
func (g *guarded) DocumentData() (collab.DocumentData, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.doc.GetDocumentData()
}

// Paragraphs returns the plain text of each text block in document order.
func (g *guarded) Paragraphs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.doc.Paragraphs()
}

// Text returns the paragraphs joined by newlines.
func (g *guarded) Text() string {
	return strings.Join(g.Paragraphs(), "\n")
}

// EncodeCollab serializes the current state.
func (g *guarded) EncodeCollab() (collab.EncodedCollab, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.doc.EncodeCollab()
}

// Handle is a registered, change-subscribed document. Only the Manager
// creates Handles, and only for opened documents.
type Handle struct {
	guarded

	subMu sync.Mutex
	subs  []collab.Subscription

	// uid and workspaceID are the scope the document was opened in; flushes
	// go back to the same rows.
	uid         int64
	workspaceID string

	// dirty is set by every change and cleared by the flush that saves it.
	dirty atomic.Bool
	// purged is set once the document is deleted; it is never flushed again.
	purged atomic.Bool
}

func newHandle(id docid.UUID, doc *collab.Document) *Handle {
	return &Handle{guarded: guarded{id: id, doc: doc}}
}

// Read runs fn with shared access to the document.
func (h *Handle) Read(fn func(doc *collab.Document) error) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return fn(h.doc)
}

// Write runs fn with exclusive access to the document. fn must not block on
// I/O.
func (h *Handle) Write(fn func(doc *collab.Document) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fn(h.doc)
}

// ApplyTextDelta appends delta to the text identified by textID.
func (h *Handle) ApplyTextDelta(textID string, delta []collab.TextDelta) error {
	return h.Write(func(doc *collab.Document) error {
		return doc.ApplyTextDelta(textID, delta)
	})
}

// InsertBlock inserts block after prevID (or first when prevID is empty).
func (h *Handle) InsertBlock(block collab.Block, prevID string) error {
	return h.Write(func(doc *collab.Document) error {
		return doc.InsertBlock(block, prevID)
	})
}

// AwarenessLocalState returns the local presence, if one is set.
func (h *Handle) AwarenessLocalState() (collab.AwarenessState, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.doc.AwarenessLocalState()
}

// SyncState returns the last reported sync state.
func (h *Handle) SyncState() collab.SyncState {
	return h.doc.SyncState()
}

func (h *Handle) attach(subs ...collab.Subscription) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.subs = append(h.subs, subs...)
}

// detach cancels every subscription attached by the Manager.
func (h *Handle) detach() {
	h.subMu.Lock()
	subs := h.subs
	h.subs = nil
	h.subMu.Unlock()

	for _, s := range subs {
		s.Cancel()
	}
}

// EphemeralHandle is a read-only document built for a single read. It is
// never registered and carries no subscriptions.
type EphemeralHandle struct {
	guarded
}

func newEphemeralHandle(id docid.UUID, doc *collab.Document) *EphemeralHandle {
	return &EphemeralHandle{guarded: guarded{id: id, doc: doc}}
}
