package collab

import (
	"encoding/json"
	"fmt"
	"sync"
)

// SyncState is a step of a document's sync session with the remote backend.
type SyncState int

const (
	SyncStateIdle SyncState = iota
	SyncStateInitSyncBegin
	SyncStateInitSyncEnd
	SyncStateSyncing
	SyncStateSyncFinished
)

func (s SyncState) String() string {
	switch s {
	case SyncStateIdle:
		return "idle"
	case SyncStateInitSyncBegin:
		return "init_sync_begin"
	case SyncStateInitSyncEnd:
		return "init_sync_end"
	case SyncStateSyncing:
		return "syncing"
	case SyncStateSyncFinished:
		return "sync_finished"
	default:
		return fmt.Sprintf("sync_state(%d)", int(s))
	}
}

// SnapshotState reports progress of a snapshot of a document.
type SnapshotState struct {
	SnapshotID string `json:"snapshot_id"`
	// Status is one of "waiting", "success" or "failed".
	Status string `json:"status"`
}

// ChangeEvent describes a local mutation.
type ChangeEvent struct {
	ObjectID string `json:"object_id"`
	Clock    uint64 `json:"clock"`
	// Kind is "text" or "block".
	Kind string `json:"kind"`
	// Target is the text id or block id that changed.
	Target string `json:"target"`
}

// Subscription detaches a subscriber when cancelled.
type Subscription interface {
	Cancel()
}

type subscription struct {
	once   sync.Once
	cancel func()
}

func (s *subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Document is a live content-model object.
type Document struct {
	objectID    string
	syncEnabled bool

	data      DocumentData
	clock     uint64
	awareness *AwarenessState

	subMu        sync.Mutex
	nextSubID    uint64
	syncState    SyncState
	changeSubs   map[uint64]func(ChangeEvent)
	syncSubs     map[uint64]func(SyncState)
	snapshotSubs map[uint64]func(SnapshotState)
}

func newDocument(objectID string, clock uint64, data DocumentData, syncEnabled bool) *Document {
	return &Document{
		objectID:     objectID,
		syncEnabled:  syncEnabled,
		data:         data,
		clock:        clock,
		changeSubs:   make(map[uint64]func(ChangeEvent)),
		syncSubs:     make(map[uint64]func(SyncState)),
		snapshotSubs: make(map[uint64]func(SnapshotState)),
	}
}

// ObjectID returns the id the document was built for.
func (d *Document) ObjectID() string {
	return d.objectID
}

// SyncEnabled reports whether the document was built for a sync session.
func (d *Document) SyncEnabled() bool {
	return d.syncEnabled
}

// GetDocumentData returns a deep copy of the document's structured data.
func (d *Document) GetDocumentData() (DocumentData, error) {
	out, err := d.data.clone()
	if err != nil {
		return DocumentData{}, fmt.Errorf("failed to copy document data %s: %w", d.objectID, err)
	}
	return out, nil
}

// Paragraphs returns the plain text of each text block in document order.
func (d *Document) Paragraphs() []string {
	return d.data.Paragraphs()
}

// EncodeCollab serializes the current state.
func (d *Document) EncodeCollab() (EncodedCollab, error) {
	return encode(d.objectID, d.clock, d.data)
}

// ApplyTextDelta appends delta to the text identified by textID.
func (d *Document) ApplyTextDelta(textID string, delta []TextDelta) error {
	current, ok := d.data.Meta.TextMap[textID]
	if !ok {
		return fmt.Errorf("text %s not found in document %s", textID, d.objectID)
	}
	ops, err := decodeDelta(current)
	if err != nil {
		return fmt.Errorf("%w: text %s: %v", ErrInvalidData, textID, err)
	}
	ops = append(ops, delta...)
	raw, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("failed to encode delta for text %s: %w", textID, err)
	}
	d.data.Meta.TextMap[textID] = string(raw)

	d.clock++
	d.emitChange(ChangeEvent{ObjectID: d.objectID, Clock: d.clock, Kind: "text", Target: textID})
	return nil
}

// InsertBlock adds block as a child of its parent, after prevID (or first
// when prevID is empty). If the block carries a text external id that is not
// in the text map yet, an empty text is created for it.
func (d *Document) InsertBlock(block Block, prevID string) error {
	if block.ID == "" {
		return fmt.Errorf("block id is required")
	}
	if _, exists := d.data.Blocks[block.ID]; exists {
		return fmt.Errorf("block %s already exists in document %s", block.ID, d.objectID)
	}
	parent, ok := d.data.Blocks[block.Parent]
	if !ok {
		return fmt.Errorf("parent block %s not found in document %s", block.Parent, d.objectID)
	}

	if d.data.Meta.ChildrenMap == nil {
		d.data.Meta.ChildrenMap = make(map[string][]string)
	}
	siblings := d.data.Meta.ChildrenMap[parent.Children]
	index := 0
	if prevID != "" {
		index = -1
		for i, id := range siblings {
			if id == prevID {
				index = i + 1
				break
			}
		}
		if index < 0 {
			return fmt.Errorf("previous block %s is not a child of %s", prevID, block.Parent)
		}
	}
	siblings = append(siblings, "")
	copy(siblings[index+1:], siblings[index:])
	siblings[index] = block.ID
	d.data.Meta.ChildrenMap[parent.Children] = siblings

	if block.Children != "" {
		if _, ok := d.data.Meta.ChildrenMap[block.Children]; !ok {
			d.data.Meta.ChildrenMap[block.Children] = []string{}
		}
	}
	if block.ExternalID != "" && block.ExternalType == ExternalTypeText {
		if d.data.Meta.TextMap == nil {
			d.data.Meta.TextMap = make(map[string]string)
		}
		if _, ok := d.data.Meta.TextMap[block.ExternalID]; !ok {
			d.data.Meta.TextMap[block.ExternalID] = "[]"
		}
	}
	if d.data.Blocks == nil {
		d.data.Blocks = make(map[string]Block)
	}
	d.data.Blocks[block.ID] = block

	d.clock++
	d.emitChange(ChangeEvent{ObjectID: d.objectID, Clock: d.clock, Kind: "block", Target: block.ID})
	return nil
}

// SetAwarenessLocalState publishes the local user's presence.
func (d *Document) SetAwarenessLocalState(state AwarenessState) {
	d.awareness = &state
}

// CleanAwarenessLocalState removes the local user's presence.
func (d *Document) CleanAwarenessLocalState() {
	d.awareness = nil
}

// AwarenessLocalState returns the current local presence, if any.
func (d *Document) AwarenessLocalState() (AwarenessState, bool) {
	if d.awareness == nil {
		return AwarenessState{}, false
	}
	return *d.awareness, true
}

// StartInitSync begins (or resumes) the sync session. It is a no-op for
// documents built without sync.
func (d *Document) StartInitSync() {
	if !d.syncEnabled {
		return
	}
	d.setSyncState(SyncStateInitSyncBegin)
	d.setSyncState(SyncStateInitSyncEnd)
}

// SyncState returns the last reported sync state.
func (d *Document) SyncState() SyncState {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	return d.syncState
}

// RecordSnapshotState forwards a snapshot progress report to subscribers.
func (d *Document) RecordSnapshotState(state SnapshotState) {
	d.subMu.Lock()
	subs := make([]func(SnapshotState), 0, len(d.snapshotSubs))
	for _, fn := range d.snapshotSubs {
		subs = append(subs, fn)
	}
	d.subMu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

// SubscribeDocumentChanged registers fn for change events.
func (d *Document) SubscribeDocumentChanged(fn func(ChangeEvent)) Subscription {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	id := d.nextSubID
	d.nextSubID++
	d.changeSubs[id] = fn
	return &subscription{cancel: func() {
		d.subMu.Lock()
		delete(d.changeSubs, id)
		d.subMu.Unlock()
	}}
}

// SubscribeSyncState registers fn for sync state transitions.
func (d *Document) SubscribeSyncState(fn func(SyncState)) Subscription {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	id := d.nextSubID
	d.nextSubID++
	d.syncSubs[id] = fn
	return &subscription{cancel: func() {
		d.subMu.Lock()
		delete(d.syncSubs, id)
		d.subMu.Unlock()
	}}
}

// SubscribeSnapshotState registers fn for snapshot state reports.
func (d *Document) SubscribeSnapshotState(fn func(SnapshotState)) Subscription {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	id := d.nextSubID
	d.nextSubID++
	d.snapshotSubs[id] = fn
	return &subscription{cancel: func() {
		d.subMu.Lock()
		delete(d.snapshotSubs, id)
		d.subMu.Unlock()
	}}
}

func (d *Document) setSyncState(state SyncState) {
	d.subMu.Lock()
	d.syncState = state
	subs := make([]func(SyncState), 0, len(d.syncSubs))
	for _, fn := range d.syncSubs {
		subs = append(subs, fn)
	}
	d.subMu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

func (d *Document) emitChange(ev ChangeEvent) {
	d.subMu.Lock()
	subs := make([]func(ChangeEvent), 0, len(d.changeSubs))
	for _, fn := range d.changeSubs {
		subs = append(subs, fn)
	}
	d.subMu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}
