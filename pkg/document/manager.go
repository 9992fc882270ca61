package document

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/singleflight"

	"github.com/hashicorp-forge/collabdocs/pkg/capability"
	"github.com/hashicorp-forge/collabdocs/pkg/collab"
	"github.com/hashicorp-forge/collabdocs/pkg/docid"
	"github.com/hashicorp-forge/collabdocs/pkg/notify"
)

// Config wires a Manager to its collaborators.
type Config struct {
	User      UserService
	Cloud     CloudService
	Snapshots SnapshotService

	// Builder and Storage are owned elsewhere and may be released at any time.
	Builder *capability.Ref[CollabBuilder]
	Storage *capability.Ref[StorageService]

	// Replicator defaults to a BestEffortReplicator over Cloud.
	Replicator Replicator

	// Publisher receives document events (default: NopPublisher).
	Publisher notify.Publisher

	// EvictionGracePeriod is how long a closed document stays restorable
	// (default: 120s).
	EvictionGracePeriod time.Duration

	Logger hclog.Logger
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.User, validation.Required),
		validation.Field(&c.Cloud, validation.Required),
		validation.Field(&c.Builder, validation.Required),
	)
}

// SetDefaults sets default values for optional fields.
func (c *Config) SetDefaults() {
	if c.Logger == nil {
		c.Logger = hclog.NewNullLogger()
	}
	if c.EvictionGracePeriod <= 0 {
		c.EvictionGracePeriod = DefaultEvictionGracePeriod
	}
	if c.Publisher == nil {
		c.Publisher = notify.NopPublisher{}
	}
	if c.Replicator == nil {
		c.Replicator = NewBestEffortReplicator(c.Cloud, c.Logger)
	}
}

// State is the lifecycle state of a document id in the registry.
type State int

const (
	StateUnloaded State = iota
	StateActive
	StatePendingEviction
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateActive:
		return "active"
	case StatePendingEviction:
		return "pending_eviction"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stats counts the documents held by the registry.
type Stats struct {
	Active          int `json:"active"`
	PendingEviction int `json:"pending_eviction"`
}

// Manager is the lifecycle registry for document handles. It is safe for
// concurrent use.
//
// Every id resides in at most one of two maps: the active registry (opened
// documents) or eviction staging (closed documents waiting out the grace
// period). Transitions for one id are serialized by a per-id lock, so
// concurrent opens build the handle once.
type Manager struct {
	user       UserService
	cloud      CloudService
	snapshots  SnapshotService
	builder    *capability.Ref[CollabBuilder]
	storage    *capability.Ref[StorageService]
	replicator Replicator
	publisher  notify.Publisher
	logger     hclog.Logger

	locks     *keyedMutex
	active    *activeRegistry
	staging   *evictionStaging
	ephemeral singleflight.Group
	dispatch  *dispatcher

	// epoch counts Initialize calls. Opens insert under epochMu only if no
	// Initialize ran since they started.
	epochMu sync.RWMutex
	epoch   uint64

	lastAwarenessMillis atomic.Int64
	closed              atomic.Bool
}

// NewManager creates a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid document manager config: %w", err)
	}
	cfg.SetDefaults()

	m := &Manager{
		user:       cfg.User,
		cloud:      cfg.Cloud,
		snapshots:  cfg.Snapshots,
		builder:    cfg.Builder,
		storage:    cfg.Storage,
		replicator: cfg.Replicator,
		publisher:  cfg.Publisher,
		logger:     cfg.Logger.Named("document-manager"),
		locks:      newKeyedMutex(),
		active:     newActiveRegistry(),
		dispatch:   newDispatcher(),
	}
	m.staging = newEvictionStaging(cfg.EvictionGracePeriod, m.onReclaim)
	return m, nil
}

// Initialize drops every cached document after saving unsaved edits. It
// runs whenever the user or workspace context changes.
func (m *Manager) Initialize(ctx context.Context, uid int64) error {
	m.logger.Trace("initialize document manager", "uid", uid)

	m.epochMu.Lock()
	m.epoch++
	dropped := append(m.active.clear(), m.staging.clear()...)
	m.epochMu.Unlock()

	var result *multierror.Error
	for _, h := range dropped {
		h.detach()
		if err := m.flushHandle(ctx, h); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// InitializeAfterSignIn resets the registry for a signed in user.
func (m *Manager) InitializeAfterSignIn(ctx context.Context, uid int64) error {
	return m.Initialize(ctx, uid)
}

// InitializeAfterSignUp resets the registry for a new user.
func (m *Manager) InitializeAfterSignUp(ctx context.Context, uid int64) error {
	return m.Initialize(ctx, uid)
}

// InitializeAfterOpenWorkspace resets the registry after a workspace switch.
func (m *Manager) InitializeAfterOpenWorkspace(ctx context.Context, uid int64) error {
	return m.Initialize(ctx, uid)
}

// CreateDocument persists a new document built from data, or from the
// default content when data is nil, and schedules its replication to the
// remote backend. The document is not opened.
func (m *Manager) CreateDocument(ctx context.Context, id docid.UUID, data *collab.DocumentData) (collab.EncodedCollab, error) {
	const op = "CreateDocument"

	unlock, err := m.lockDocument(ctx, op, id)
	if err != nil {
		return collab.EncodedCollab{}, err
	}
	defer unlock()

	sc, err := m.persistence(op, id)
	if err != nil {
		return collab.EncodedCollab{}, err
	}
	exists, err := m.isDocExist(ctx, op, id, sc)
	if err != nil {
		return collab.EncodedCollab{}, err
	}
	if exists {
		return collab.EncodedCollab{}, newError(op, ErrAlreadyExists, id.String(), nil, "document %s already exists", id)
	}

	builder, err := m.collabBuilder(op, id)
	if err != nil {
		return collab.EncodedCollab{}, err
	}

	initial := collab.DefaultDocumentData(id.String())
	if data != nil {
		initial = *data
	}
	encoded, err := builder.EncodeDocumentData(ctx, id.String(), initial)
	if err != nil {
		if collab.IsInvalidData(err) {
			return collab.EncodedCollab{}, newError(op, ErrInvalidData, id.String(), err, "failed to encode initial data")
		}
		return collab.EncodedCollab{}, newError(op, nil, id.String(), err, "failed to encode initial data")
	}

	if err := sc.db.SaveCollab(ctx, sc.uid, sc.workspaceID, id.String(), encoded); err != nil {
		return collab.EncodedCollab{}, newError(op, nil, id.String(), err, "failed to save document")
	}

	if err := m.replicator.Replicate(ctx, sc.workspaceID, id.String(), encoded); err != nil {
		m.logger.Warn("failed to schedule document replication",
			"document_id", id.String(),
			"error", err,
		)
	}

	m.logger.Info("created document",
		"document_id", id.String(),
		"workspace_id", sc.workspaceID,
		"bytes", len(encoded.DocState),
	)
	m.publish(notify.EventDocumentCreated, id, sc, map[string]any{"bytes": len(encoded.DocState)})
	return encoded, nil
}

// OpenDocument makes id active with a sync session. A document waiting in
// eviction staging is restored and its sync resumed; an already active
// document is left alone; otherwise the document is loaded.
func (m *Manager) OpenDocument(ctx context.Context, id docid.UUID) error {
	const op = "OpenDocument"

	unlock, err := m.lockDocument(ctx, op, id)
	if err != nil {
		return err
	}
	defer unlock()

	if h, ok := m.restoreLocked(id); ok {
		_ = h.Read(func(doc *collab.Document) error {
			doc.StartInitSync()
			return nil
		})
		return nil
	}
	if _, ok := m.active.get(id); ok {
		return nil
	}

	m.epochMu.RLock()
	epoch := m.epoch
	m.epochMu.RUnlock()

	doc, sc, err := m.createDocumentInstance(ctx, op, id, true)
	if err != nil {
		return m.recoverInvalidData(ctx, op, id, err)
	}

	h := newHandle(id, doc)
	h.uid, h.workspaceID = sc.uid, sc.workspaceID
	_ = h.Write(func(doc *collab.Document) error {
		m.subscribe(h, doc)
		return nil
	})

	m.epochMu.RLock()
	if m.epoch != epoch {
		m.epochMu.RUnlock()
		h.detach()
		return newError(op, ErrResourceUnavailable, id.String(), nil, "user or workspace changed while opening document")
	}
	m.active.insert(id, h)
	m.epochMu.RUnlock()
	_ = h.Read(func(doc *collab.Document) error {
		doc.StartInitSync()
		return nil
	})
	m.logger.Debug("opened document", "document_id", id.String())
	return nil
}

// GetDocument returns a readable document. An active or restorable document
// is returned as its *Handle. Otherwise the document is loaded without sync
// into an *EphemeralHandle that is not cached; call OpenDocument for a live
// session.
func (m *Manager) GetDocument(ctx context.Context, id docid.UUID) (Reader, error) {
	const op = "GetDocument"

	h, err := m.cachedHandle(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if h != nil {
		return h, nil
	}

	// The shared build must outlive any one caller's cancellation; each
	// caller still stops waiting when its own ctx ends.
	buildCtx := context.WithoutCancel(ctx)
	ch := m.ephemeral.DoChan(id.String(), func() (any, error) {
		doc, _, err := m.createDocumentInstance(buildCtx, op, id, false)
		if err != nil {
			return nil, err
		}
		return newEphemeralHandle(id, doc), nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, newError(op, nil, id.String(), ctx.Err(), "failed to load document")
	}
	if res.Err != nil {
		return m.reloadOrPurge(ctx, op, id, res.Err)
	}
	return res.Val.(*EphemeralHandle), nil
}

// EditableDocument returns the handle of an opened document, restoring it
// from eviction staging if needed. It fails with ErrPreconditionNotMet if
// the document was never opened.
func (m *Manager) EditableDocument(ctx context.Context, id docid.UUID) (*Handle, error) {
	const op = "EditableDocument"

	h, err := m.cachedHandle(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, newError(op, ErrPreconditionNotMet, id.String(), nil, "call open document first")
	}
	return h, nil
}

// GetDocumentData returns the structured data of a document.
func (m *Manager) GetDocumentData(ctx context.Context, id docid.UUID) (collab.DocumentData, error) {
	r, err := m.GetDocument(ctx, id)
	if err != nil {
		return collab.DocumentData{}, err
	}
	data, err := r.DocumentData()
	if err != nil {
		return collab.DocumentData{}, newError("GetDocumentData", nil, id.String(), err, "failed to read document data")
	}
	return data, nil
}

// GetDocumentText returns the plain text of a document, one line per
// paragraph.
func (m *Manager) GetDocumentText(ctx context.Context, id docid.UUID) (string, error) {
	r, err := m.GetDocument(ctx, id)
	if err != nil {
		return "", err
	}
	return r.Text(), nil
}

// CloseDocument moves an active document into eviction staging, clearing
// its local awareness state. The handle is dropped once the grace period
// passes without a restore. Closing a document that is not active is a
// no-op.
func (m *Manager) CloseDocument(ctx context.Context, id docid.UUID) error {
	const op = "CloseDocument"

	unlock, err := m.lockDocument(ctx, op, id)
	if err != nil {
		return err
	}
	defer unlock()

	h, ok := m.active.remove(id)
	if !ok {
		return nil
	}
	_ = h.Write(func(doc *collab.Document) error {
		doc.CleanAwarenessLocalState()
		return nil
	})
	if err := m.flushLocked(ctx, h); err != nil {
		m.logger.Warn("failed to save document on close",
			"document_id", id.String(),
			"error", err,
		)
	}

	gen := m.staging.stage(id, h)
	m.logger.Trace("move document to eviction staging",
		"document_id", id.String(),
		"generation", gen,
	)
	return nil
}

// DeleteDocument erases the persisted bytes of a document and drops it from
// the registry.
func (m *Manager) DeleteDocument(ctx context.Context, id docid.UUID) error {
	const op = "DeleteDocument"

	unlock, err := m.lockDocument(ctx, op, id)
	if err != nil {
		return err
	}
	defer unlock()

	return m.deleteLocked(ctx, op, id)
}

// State reports where id currently resides.
func (m *Manager) State(id docid.UUID) State {
	unlock, err := m.locks.lock(context.Background(), id)
	if err != nil {
		return StateUnloaded
	}
	defer unlock()

	if _, ok := m.active.get(id); ok {
		return StateActive
	}
	if _, ok := m.staging.get(id); ok {
		return StatePendingEviction
	}
	return StateUnloaded
}

// Stats returns the registry counts.
func (m *Manager) Stats() Stats {
	return Stats{
		Active:          m.active.len(),
		PendingEviction: m.staging.len(),
	}
}

// Close drops every cached document, waits for in-flight replication and
// closes the publisher. The Manager must not be used afterwards.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	var result *multierror.Error
	if err := m.Initialize(context.Background(), 0); err != nil {
		result = multierror.Append(result, err)
	}
	m.dispatch.close()
	if err := m.replicator.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to close replicator: %w", err))
	}
	if err := m.publisher.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to close publisher: %w", err))
	}
	return result.ErrorOrNil()
}

// deleteLocked erases id's bytes and drops it from both maps. The caller
// holds the id lock.
func (m *Manager) deleteLocked(ctx context.Context, op string, id docid.UUID) error {
	sc, err := m.persistence(op, id)
	if err != nil {
		return err
	}
	if err := sc.db.DeleteDoc(ctx, sc.uid, sc.workspaceID, id.String()); err != nil {
		return newError(op, nil, id.String(), err, "failed to delete document")
	}

	if h, ok := m.active.remove(id); ok {
		h.purged.Store(true)
		h.detach()
	}
	if h, ok := m.staging.remove(id); ok {
		h.purged.Store(true)
		h.detach()
	}

	m.logger.Debug("deleted document", "document_id", id.String())
	m.publish(notify.EventDocumentDeleted, id, sc, nil)
	return nil
}

// recoverInvalidData purges id when err is a construction failure caused by
// corrupt bytes, then returns the classified error. The caller holds the id
// lock.
func (m *Manager) recoverInvalidData(ctx context.Context, op string, id docid.UUID, err error) error {
	if !IsInvalidData(err) {
		return err
	}

	m.logger.Warn("purging document with invalid data",
		"document_id", id.String(),
		"error", err,
	)
	if derr := m.deleteLocked(ctx, op, id); derr != nil {
		return &Error{
			Op:         op,
			Kind:       ErrInvalidData,
			DocumentID: id.String(),
			Msg:        "failed to purge invalid document",
			Err:        multierror.Append(err, derr),
		}
	}
	return err
}

// reloadOrPurge handles a failed unlocked read. The failed build did not
// hold the id lock, so the bytes may have been replaced since; under the
// lock the document is loaded again and purged only if it still fails.
func (m *Manager) reloadOrPurge(ctx context.Context, op string, id docid.UUID, err error) (Reader, error) {
	if !IsInvalidData(err) {
		return nil, err
	}
	unlock, lerr := m.lockDocument(ctx, op, id)
	if lerr != nil {
		return nil, multierror.Append(err, lerr)
	}
	defer unlock()

	if h, ok := m.active.get(id); ok {
		return h, nil
	}
	if h, ok := m.restoreLocked(id); ok {
		return h, nil
	}
	doc, _, err := m.createDocumentInstance(ctx, op, id, false)
	if err != nil {
		return nil, m.recoverInvalidData(ctx, op, id, err)
	}
	return newEphemeralHandle(id, doc), nil
}

// cachedHandle returns the active handle for id, restoring it from staging
// if needed, or nil if id is not cached.
func (m *Manager) cachedHandle(ctx context.Context, op string, id docid.UUID) (*Handle, error) {
	unlock, err := m.lockDocument(ctx, op, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if h, ok := m.active.get(id); ok {
		return h, nil
	}
	if h, ok := m.restoreLocked(id); ok {
		return h, nil
	}
	return nil, nil
}

// restoreLocked moves id from staging back into the active registry. The
// caller holds the id lock, so no one observes id in neither map.
func (m *Manager) restoreLocked(id docid.UUID) (*Handle, bool) {
	h, ok := m.staging.remove(id)
	if !ok {
		return nil, false
	}
	m.active.insert(id, h)
	m.logger.Trace("restored document from eviction staging", "document_id", id.String())
	return h, true
}

func (m *Manager) onReclaim(id docid.UUID, h *Handle, stagedFor time.Duration) {
	h.detach()
	if err := m.flushHandle(context.Background(), h); err != nil {
		m.logger.Warn("failed to save reclaimed document",
			"document_id", id.String(),
			"error", err,
		)
	}
	m.logger.Trace("drop document from eviction staging",
		"document_id", id.String(),
		"staged_for", stagedFor,
	)
}

// flushHandle saves h's unsaved edits under the id lock.
func (m *Manager) flushHandle(ctx context.Context, h *Handle) error {
	unlock, err := m.locks.lock(ctx, h.id)
	if err != nil {
		return fmt.Errorf("failed to acquire document lock: %w", err)
	}
	defer unlock()
	return m.flushLocked(ctx, h)
}

// flushLocked writes h to the local store if it changed since the last
// save. The caller holds the id lock; the document itself is only read
// locked while it is encoded, never across the write.
func (m *Manager) flushLocked(ctx context.Context, h *Handle) error {
	if h.purged.Load() || !h.dirty.CompareAndSwap(true, false) {
		return nil
	}

	encoded, err := h.EncodeCollab()
	if err != nil {
		h.dirty.Store(true)
		return fmt.Errorf("failed to encode document %s: %w", h.id, err)
	}

	ref, err := m.user.CollabDB(h.uid)
	if err != nil {
		h.dirty.Store(true)
		return fmt.Errorf("failed to resolve collab database: %w", err)
	}
	db, ok := ref.Get()
	if !ok {
		h.dirty.Store(true)
		return fmt.Errorf("collab database is already dropped")
	}
	if err := db.SaveCollab(ctx, h.uid, h.workspaceID, h.id.String(), encoded); err != nil {
		h.dirty.Store(true)
		return fmt.Errorf("failed to save document %s: %w", h.id, err)
	}

	m.logger.Trace("saved document edits",
		"document_id", h.id.String(),
		"bytes", len(encoded.DocState),
	)
	return nil
}

func (m *Manager) lockDocument(ctx context.Context, op string, id docid.UUID) (func(), error) {
	if m.closed.Load() {
		return nil, newError(op, ErrResourceUnavailable, id.String(), nil, "document manager is closed")
	}
	if id.IsZero() {
		return nil, newError(op, ErrNotFound, "", nil, "document id is empty")
	}
	unlock, err := m.locks.lock(ctx, id)
	if err != nil {
		return nil, newError(op, nil, id.String(), err, "failed to acquire document lock")
	}
	return unlock, nil
}

// scope is the (user, workspace, store) triple every persistence call is
// keyed by.
type scope struct {
	uid         int64
	workspaceID string
	db          CollabPersistence
}

func (m *Manager) persistence(op string, id docid.UUID) (scope, error) {
	uid, err := m.user.UserID()
	if err != nil {
		return scope{}, newError(op, ErrResourceUnavailable, id.String(), err, "failed to resolve user")
	}
	workspaceID, err := m.user.WorkspaceID()
	if err != nil {
		return scope{}, newError(op, ErrResourceUnavailable, id.String(), err, "failed to resolve workspace")
	}
	ref, err := m.user.CollabDB(uid)
	if err != nil {
		return scope{}, newError(op, ErrResourceUnavailable, id.String(), err, "failed to resolve collab database")
	}
	db, ok := ref.Get()
	if !ok {
		return scope{}, newError(op, ErrResourceUnavailable, id.String(), nil, "collab database is already dropped")
	}
	return scope{uid: uid, workspaceID: workspaceID, db: db}, nil
}

func (m *Manager) isDocExist(ctx context.Context, op string, id docid.UUID, sc scope) (bool, error) {
	exists, err := sc.db.IsExist(ctx, sc.uid, sc.workspaceID, id.String())
	if err != nil {
		return false, newError(op, nil, id.String(), err, "failed to check document existence")
	}
	return exists, nil
}

func (m *Manager) collabBuilder(op string, id docid.UUID) (CollabBuilder, error) {
	builder, ok := m.builder.Get()
	if !ok {
		return nil, newError(op, ErrResourceUnavailable, id.String(), nil, "collab builder is already dropped")
	}
	return builder, nil
}

// subscribe forwards the document's event streams to the publisher and
// saves edits to the local store. Callbacks fire under the document's write
// lock, so both run on the dispatcher. It runs before the handle is
// inserted into the active registry.
func (m *Manager) subscribe(h *Handle, doc *collab.Document) {
	id := h.DocumentID()
	sc := scope{uid: h.uid, workspaceID: h.workspaceID}
	h.attach(
		doc.SubscribeDocumentChanged(func(ev collab.ChangeEvent) {
			h.dirty.Store(true)
			m.dispatch.enqueue(func() {
				m.publish(notify.EventDocumentChanged, id, sc, map[string]any{
					"clock":  ev.Clock,
					"kind":   ev.Kind,
					"target": ev.Target,
				})
				if err := m.flushHandle(context.Background(), h); err != nil {
					m.logger.Warn("failed to save document edits",
						"document_id", id.String(),
						"error", err,
					)
				}
			})
		}),
		doc.SubscribeSyncState(func(state collab.SyncState) {
			m.dispatch.enqueue(func() {
				m.publish(notify.EventDocumentSyncState, id, sc, map[string]any{
					"state": state.String(),
				})
			})
		}),
		doc.SubscribeSnapshotState(func(state collab.SnapshotState) {
			m.dispatch.enqueue(func() {
				m.publish(notify.EventDocumentSnapshotState, id, sc, map[string]any{
					"snapshot_id": state.SnapshotID,
					"status":      state.Status,
				})
			})
		}),
	)
}

func (m *Manager) publish(eventType notify.EventType, id docid.UUID, sc scope, payload map[string]any) {
	ev := notify.NewEvent(eventType, id.String(), payload)
	ev.UserID = sc.uid
	ev.WorkspaceID = sc.workspaceID
	if err := m.publisher.Publish(context.Background(), ev); err != nil {
		m.logger.Warn("failed to publish document event",
			"type", string(eventType),
			"document_id", id.String(),
			"error", err,
		)
	}
}

// classifyRemote maps a remote backend failure onto the error taxonomy.
func classifyRemote(op, documentID string, err error, msg string) error {
	if errors.Is(err, ErrNotFound) {
		return newError(op, ErrNotFound, documentID, err, "%s", msg)
	}
	return newError(op, ErrUpstreamFailure, documentID, err, "%s", msg)
}
