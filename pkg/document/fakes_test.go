package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/collabdocs/pkg/capability"
	"github.com/hashicorp-forge/collabdocs/pkg/collab"
	"github.com/hashicorp-forge/collabdocs/pkg/notify"
)

const (
	testUID       = int64(42)
	testDevice    = "device-1"
	testWorkspace = "workspace-1"
)

type fakeUser struct {
	db  *capability.Ref[CollabPersistence]
	err error
}

func (u *fakeUser) UserID() (int64, error)       { return testUID, u.err }
func (u *fakeUser) DeviceID() (string, error)    { return testDevice, u.err }
func (u *fakeUser) WorkspaceID() (string, error) { return testWorkspace, u.err }

func (u *fakeUser) CollabDB(int64) (*capability.Ref[CollabPersistence], error) {
	return u.db, u.err
}

// memStore is an in-memory CollabPersistence.
type memStore struct {
	mu        sync.Mutex
	docs      map[string][]byte
	deleteErr error
}

var _ CollabPersistence = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{docs: make(map[string][]byte)}
}

func storeKey(uid int64, workspaceID, objectID string) string {
	return fmt.Sprintf("%d/%s/%s", uid, workspaceID, objectID)
}

func (s *memStore) IsExist(_ context.Context, uid int64, workspaceID, objectID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[storeKey(uid, workspaceID, objectID)]
	return ok, nil
}

func (s *memStore) LoadDocState(_ context.Context, uid int64, workspaceID, objectID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.docs[storeKey(uid, workspaceID, objectID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, objectID)
	}
	return state, nil
}

func (s *memStore) SaveCollab(_ context.Context, uid int64, workspaceID, objectID string, encoded collab.EncodedCollab) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[storeKey(uid, workspaceID, objectID)] = encoded.DocState
	return nil
}

func (s *memStore) DeleteDoc(_ context.Context, uid int64, workspaceID, objectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.docs, storeKey(uid, workspaceID, objectID))
	return nil
}

func (s *memStore) put(objectID string, state []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[storeKey(testUID, testWorkspace, objectID)] = state
}

func (s *memStore) get(objectID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.docs[storeKey(testUID, testWorkspace, objectID)]
	return state, ok
}

// fakeCloud is an in-memory CloudService.
type fakeCloud struct {
	mu       sync.Mutex
	docs     map[string][]byte
	fetchErr error
	fetches  int
	created  []string
}

var _ CloudService = (*fakeCloud)(nil)

func newFakeCloud() *fakeCloud {
	return &fakeCloud{docs: make(map[string][]byte)}
}

func (c *fakeCloud) GetDocumentDocState(_ context.Context, documentID, _ string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetches++
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	state, ok := c.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, documentID)
	}
	return state, nil
}

func (c *fakeCloud) CreateDocumentCollab(_ context.Context, _, documentID string, encoded collab.EncodedCollab) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[documentID] = encoded.DocState
	c.created = append(c.created, documentID)
	return nil
}

func (c *fakeCloud) fetchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

func (c *fakeCloud) createdIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.created...)
}

// countingBuilder counts constructions and can hold them until released.
type countingBuilder struct {
	*collab.Builder
	creates atomic.Int32
	gate    chan struct{}

	// afterCreate, if set, runs after each build with its 1-based count.
	afterCreate func(n int32)
}

func (b *countingBuilder) CreateDocument(ctx context.Context, objectID string, src collab.DataSource, cfg collab.BuildConfig) (*collab.Document, error) {
	n := b.creates.Add(1)
	if b.gate != nil {
		<-b.gate
	}
	doc, err := b.Builder.CreateDocument(ctx, objectID, src, cfg)
	if b.afterCreate != nil {
		b.afterCreate(n)
	}
	return doc, err
}

type fakeSnapshots struct {
	metas     []SnapshotMeta
	snapshots map[string]SnapshotData
}

func (s *fakeSnapshots) GetDocumentSnapshotMetas(_ context.Context, documentID, _ string) ([]SnapshotMeta, error) {
	var out []SnapshotMeta
	for _, meta := range s.metas {
		if meta.ObjectID == documentID {
			out = append(out, meta)
		}
	}
	return out, nil
}

func (s *fakeSnapshots) GetDocumentSnapshot(_ context.Context, snapshotID string) (SnapshotData, error) {
	snapshot, ok := s.snapshots[snapshotID]
	if !ok {
		return SnapshotData{}, fmt.Errorf("%w: snapshot %s", ErrNotFound, snapshotID)
	}
	return snapshot, nil
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string]string
	err     error
}

func (s *fakeStorage) CreateUpload(_ context.Context, workspaceID, parentDir, localPath string) (CreatedUpload, error) {
	if s.err != nil {
		return CreatedUpload{}, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	url := fmt.Sprintf("mem://%s/%s/%s", workspaceID, parentDir, localPath)
	s.objects[url] = localPath
	return CreatedUpload{URL: url, FileID: localPath}, nil
}

func (s *fakeStorage) DownloadObject(_ context.Context, url, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[url]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	return nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, url)
	return nil
}

type testEnv struct {
	manager   *Manager
	store     *memStore
	storeRef  *capability.Ref[CollabPersistence]
	cloud     *fakeCloud
	builder   *countingBuilder
	builderRf *capability.Ref[CollabBuilder]
	storage   *fakeStorage
	storageRf *capability.Ref[StorageService]
	snapshots *fakeSnapshots
	events    *notify.Recorder
	user      *fakeUser
}

type envOption func(*Config, *testEnv)

func withGracePeriod(d time.Duration) envOption {
	return func(cfg *Config, _ *testEnv) {
		cfg.EvictionGracePeriod = d
	}
}

func withPublisher(p notify.Publisher) envOption {
	return func(cfg *Config, _ *testEnv) {
		cfg.Publisher = p
	}
}

func withBuilderGate(gate chan struct{}) envOption {
	return func(_ *Config, env *testEnv) {
		env.builder.gate = gate
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	env := &testEnv{
		store:     newMemStore(),
		cloud:     newFakeCloud(),
		builder:   &countingBuilder{Builder: collab.NewBuilder(collab.BuilderConfig{})},
		storage:   &fakeStorage{objects: make(map[string]string)},
		snapshots: &fakeSnapshots{snapshots: make(map[string]SnapshotData)},
		events:    notify.NewRecorder(),
	}
	env.storeRef = capability.NewRef[CollabPersistence](env.store)
	env.builderRf = capability.NewRef[CollabBuilder](env.builder)
	env.storageRf = capability.NewRef[StorageService](env.storage)
	env.user = &fakeUser{db: env.storeRef}

	cfg := Config{
		User:      env.user,
		Cloud:     env.cloud,
		Snapshots: env.snapshots,
		Builder:   env.builderRf,
		Storage:   env.storageRf,
		Publisher: env.events,
	}
	for _, opt := range opts {
		opt(&cfg, env)
	}

	m, err := NewManager(cfg)
	require.NoError(t, err)
	env.manager = m
	t.Cleanup(func() {
		_ = m.Close()
	})
	return env
}

// encodeDefault returns valid bytes for objectID.
func encodeDefault(t *testing.T, objectID string) []byte {
	t.Helper()
	encoded, err := collab.NewBuilder(collab.BuilderConfig{}).EncodeDocumentData(context.Background(), objectID, collab.DefaultDocumentData(objectID))
	require.NoError(t, err)
	return encoded.DocState
}

// textOf decodes stored bytes and returns their plain text.
func textOf(t *testing.T, objectID string, state []byte) string {
	t.Helper()
	doc, err := collab.NewBuilder(collab.BuilderConfig{}).CreateDocument(context.Background(), objectID, collab.DataSource{DocState: state}, collab.BuildConfig{})
	require.NoError(t, err)
	return strings.Join(doc.Paragraphs(), "\n")
}

// firstTextID returns the id of a text in h.
func firstTextID(t *testing.T, h *Handle) string {
	t.Helper()
	data, err := h.DocumentData()
	require.NoError(t, err)
	for textID := range data.Meta.TextMap {
		return textID
	}
	t.Fatal("document has no text")
	return ""
}

// blockingPublisher holds every event of one type until release is closed.
type blockingPublisher struct {
	*notify.Recorder
	block   notify.EventType
	entered chan struct{}
	release chan struct{}
}

func newBlockingPublisher(block notify.EventType) *blockingPublisher {
	return &blockingPublisher{
		Recorder: notify.NewRecorder(),
		block:    block,
		entered:  make(chan struct{}, 16),
		release:  make(chan struct{}),
	}
}

func (p *blockingPublisher) Publish(ctx context.Context, ev notify.Event) error {
	if ev.Type == p.block {
		p.entered <- struct{}{}
		<-p.release
	}
	return p.Recorder.Publish(ctx, ev)
}

var errBoom = errors.New("boom")
