package document

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/collabdocs/pkg/collab"
	"github.com/hashicorp-forge/collabdocs/pkg/docid"
	"github.com/hashicorp-forge/collabdocs/pkg/notify"
)

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid document manager config")
}

func TestManager_CreateThenOpenUsesLocalState(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := docid.NewUUID()

	encoded, err := env.manager.CreateDocument(ctx, id, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, encoded.DocState)

	stored, ok := env.store.get(id.String())
	require.True(t, ok)
	assert.Equal(t, encoded.DocState, stored)

	require.NoError(t, env.manager.OpenDocument(ctx, id))
	assert.Equal(t, StateActive, env.manager.State(id))
	assert.Equal(t, 0, env.cloud.fetchCount())

	text, err := env.manager.GetDocumentText(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "", text)

	// Replication is asynchronous; Close waits for it.
	require.NoError(t, env.manager.Close())
	assert.Equal(t, []string{id.String()}, env.cloud.createdIDs())
	assert.Len(t, env.events.EventsOfType(notify.EventDocumentCreated), 1)
	assert.True(t, env.events.Closed())
}

func TestManager_CreateExistingFails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := docid.NewUUID()

	first, err := env.manager.CreateDocument(ctx, id, nil)
	require.NoError(t, err)

	data := collab.DefaultDocumentData(id.String())
	_, err = env.manager.CreateDocument(ctx, id, &data)
	require.Error(t, err)
	assert.True(t, IsAlreadyExists(err))

	stored, ok := env.store.get(id.String())
	require.True(t, ok)
	assert.Equal(t, first.DocState, stored)
}

func TestManager_CreateDataRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := docid.NewUUID()

	data := collab.DefaultDocumentData(id.String())
	for textID := range data.Meta.TextMap {
		data.Meta.TextMap[textID] = `[{"insert":"hello world"}]`
	}

	_, err := env.manager.CreateDocument(ctx, id, &data)
	require.NoError(t, err)

	got, err := env.manager.GetDocumentData(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	text, err := env.manager.GetDocumentText(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestManager_CreateInvalidData(t *testing.T) {
	env := newTestEnv(t)
	id := docid.NewUUID()

	_, err := env.manager.CreateDocument(context.Background(), id, &collab.DocumentData{PageID: "missing"})
	require.Error(t, err)
	assert.True(t, IsInvalidData(err))

	_, ok := env.store.get(id.String())
	assert.False(t, ok)
}

func TestManager_ConcurrentOpenBuildsOnce(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	env := newTestEnv(t, withBuilderGate(gate))
	id := docid.NewUUID()
	env.store.put(id.String(), encodeDefault(t, id.String()))

	const callers = 8
	handles := make([]*Handle, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := env.manager.OpenDocument(ctx, id); err != nil {
				errs[i] = err
				return
			}
			handles[i], errs[i] = env.manager.EditableDocument(ctx, id)
		}(i)
	}

	require.Eventually(t, func() bool {
		return env.builder.creates.Load() == 1
	}, time.Second, 5*time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), env.builder.creates.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, handles[0], handles[i])
	}
}

func TestManager_CloseThenOpenRestoresSameHandle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := docid.NewUUID()
	env.store.put(id.String(), encodeDefault(t, id.String()))

	require.NoError(t, env.manager.OpenDocument(ctx, id))
	before, err := env.manager.EditableDocument(ctx, id)
	require.NoError(t, err)

	require.NoError(t, env.manager.CloseDocument(ctx, id))
	assert.Equal(t, StatePendingEviction, env.manager.State(id))
	assert.Equal(t, Stats{Active: 0, PendingEviction: 1}, env.manager.Stats())

	require.NoError(t, env.manager.OpenDocument(ctx, id))
	assert.Equal(t, StateActive, env.manager.State(id))
	assert.Equal(t, Stats{Active: 1, PendingEviction: 0}, env.manager.Stats())

	after, err := env.manager.EditableDocument(ctx, id)
	require.NoError(t, err)
	assert.Same(t, before, after)
	assert.Equal(t, int32(1), env.builder.creates.Load())
	assert.Equal(t, collab.SyncStateInitSyncEnd, after.SyncState())
}

func TestManager_OpenTwiceIsNoop(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := docid.NewUUID()
	env.store.put(id.String(), encodeDefault(t, id.String()))

	require.NoError(t, env.manager.OpenDocument(ctx, id))
	require.NoError(t, env.manager.OpenDocument(ctx, id))
	assert.Equal(t, int32(1), env.builder.creates.Load())
}

func TestManager_CloseNotActiveIsNoop(t *testing.T) {
	env := newTestEnv(t)
	id := docid.NewUUID()

	require.NoError(t, env.manager.CloseDocument(context.Background(), id))
	assert.Equal(t, StateUnloaded, env.manager.State(id))
}

func TestManager_ReclaimAfterGracePeriod(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, withGracePeriod(20*time.Millisecond))
	id := docid.NewUUID()
	env.store.put(id.String(), encodeDefault(t, id.String()))

	require.NoError(t, env.manager.OpenDocument(ctx, id))
	require.NoError(t, env.manager.CloseDocument(ctx, id))

	require.Eventually(t, func() bool {
		return env.manager.State(id) == StateUnloaded
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, Stats{}, env.manager.Stats())

	// Reopening after reclamation builds a new handle.
	require.NoError(t, env.manager.OpenDocument(ctx, id))
	assert.Equal(t, int32(2), env.builder.creates.Load())
}

func TestManager_ReopenedResidencyKeepsFullGracePeriod(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, withGracePeriod(300*time.Millisecond))
	id := docid.NewUUID()
	env.store.put(id.String(), encodeDefault(t, id.String()))

	require.NoError(t, env.manager.OpenDocument(ctx, id))
	require.NoError(t, env.manager.CloseDocument(ctx, id))
	time.Sleep(150 * time.Millisecond)

	require.NoError(t, env.manager.OpenDocument(ctx, id))
	require.NoError(t, env.manager.CloseDocument(ctx, id))

	// Past the first residency's deadline, inside the second's.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, StatePendingEviction, env.manager.State(id))

	require.Eventually(t, func() bool {
		return env.manager.State(id) == StateUnloaded
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), env.builder.creates.Load())
}

func TestManager_InvalidDataPurges(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := docid.NewUUID()
	env.store.put(id.String(), []byte("corrupt"))

	err := env.manager.OpenDocument(ctx, id)
	require.Error(t, err)
	assert.True(t, IsInvalidData(err))

	_, ok := env.store.get(id.String())
	assert.False(t, ok, "corrupt bytes should be purged")
	assert.Equal(t, StateUnloaded, env.manager.State(id))
	assert.Len(t, env.events.EventsOfType(notify.EventDocumentDeleted), 1)

	// The next attempt starts clean and falls through to the remote backend.
	err = env.manager.OpenDocument(ctx, id)
	assert.True(t, IsNotFound(err))
}

func TestManager_InvalidDataPurgesOnPassiveRead(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := docid.NewUUID()
	env.store.put(id.String(), encodeDefault(t, docid.NewUUID().String()))

	_, err := env.manager.GetDocumentData(ctx, id)
	require.Error(t, err)
	assert.True(t, IsInvalidData(err))

	_, ok := env.store.get(id.String())
	assert.False(t, ok)
}

func TestManager_InvalidDataPurgeFailureIsAggregated(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := docid.NewUUID()
	env.store.put(id.String(), []byte("corrupt"))
	env.store.deleteErr = errBoom

	err := env.manager.OpenDocument(ctx, id)
	require.Error(t, err)
	assert.True(t, IsInvalidData(err))
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "failed to purge invalid document")

	_, ok := env.store.get(id.String())
	assert.True(t, ok)
}

func TestManager_RemoteFallback(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := docid.NewUUID()
	env.cloud.docs[id.String()] = encodeDefault(t, id.String())

	require.NoError(t, env.manager.OpenDocument(ctx, id))
	assert.Equal(t, 1, env.cloud.fetchCount())
	assert.Equal(t, StateActive, env.manager.State(id))
}

func TestManager_SourcingErrors(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(env *testEnv, id docid.UUID)
		expect func(error) bool
	}{
		{
			name:   "missing everywhere",
			setup:  func(*testEnv, docid.UUID) {},
			expect: IsNotFound,
		},
		{
			name: "remote returns empty bytes",
			setup: func(env *testEnv, id docid.UUID) {
				env.cloud.docs[id.String()] = []byte{}
			},
			expect: IsNotFound,
		},
		{
			name: "remote fails",
			setup: func(env *testEnv, _ docid.UUID) {
				env.cloud.fetchErr = errBoom
			},
			expect: IsUpstreamFailure,
		},
		{
			name: "builder dropped",
			setup: func(env *testEnv, id docid.UUID) {
				env.store.put(id.String(), encodeDefault(t, id.String()))
				env.builderRf.Release()
			},
			expect: IsResourceUnavailable,
		},
		{
			name: "store dropped",
			setup: func(env *testEnv, _ docid.UUID) {
				env.storeRef.Release()
			},
			expect: IsResourceUnavailable,
		},
		{
			name: "user unavailable",
			setup: func(env *testEnv, _ docid.UUID) {
				env.user.err = errBoom
			},
			expect: IsResourceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			id := docid.NewUUID()
			tt.setup(env, id)

			err := env.manager.OpenDocument(context.Background(), id)
			require.Error(t, err)
			assert.True(t, tt.expect(err), "unexpected error: %v", err)
			assert.Equal(t, StateUnloaded, env.manager.State(id))
		})
	}
}

func TestManager_PassiveReadIsNotCached(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := docid.NewUUID()
	env.store.put(id.String(), encodeDefault(t, id.String()))

	r, err := env.manager.GetDocument(ctx, id)
	require.NoError(t, err)
	_, ephemeral := r.(*EphemeralHandle)
	assert.True(t, ephemeral)
	assert.False(t, r.SyncEnabled())
	assert.Equal(t, id, r.DocumentID())
	assert.Equal(t, StateUnloaded, env.manager.State(id))

	_, err = env.manager.EditableDocument(ctx, id)
	require.Error(t, err)
	assert.True(t, IsPreconditionNotMet(err))
	assert.Contains(t, err.Error(), "call open document first")

	require.NoError(t, env.manager.OpenDocument(ctx, id))
	r, err = env.manager.GetDocument(ctx, id)
	require.NoError(t, err)
	h, cached := r.(*Handle)
	require.True(t, cached)
	assert.True(t, h.SyncEnabled())
}

func TestManager_PassiveReadRestoresStagedHandle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := docid.NewUUID()
	env.store.put(id.String(), encodeDefault(t, id.String()))

	require.NoError(t, env.manager.OpenDocument(ctx, id))
	require.NoError(t, env.manager.CloseDocument(ctx, id))

	r, err := env.manager.GetDocument(ctx, id)
	require.NoError(t, err)
	_, cached := r.(*Handle)
	assert.True(t, cached)
	assert.Equal(t, StateActive, env.manager.State(id))
	assert.Equal(t, int32(1), env.builder.creates.Load())
}

func TestManager_EditPublishesEvents(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := docid.NewUUID()
	env.store.put(id.String(), encodeDefault(t, id.String()))

	require.NoError(t, env.manager.OpenDocument(ctx, id))
	h, err := env.manager.EditableDocument(ctx, id)
	require.NoError(t, err)

	textID := firstTextID(t, h)
	require.NoError(t, h.ApplyTextDelta(textID, []collab.TextDelta{{Insert: "typed"}}))

	text, err := env.manager.GetDocumentText(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "typed", text)

	require.NoError(t, h.Read(func(doc *collab.Document) error {
		doc.RecordSnapshotState(collab.SnapshotState{SnapshotID: "s1", Status: "success"})
		return nil
	}))

	// Events are delivered by the dispatcher, after the write lock is gone.
	require.Eventually(t, func() bool {
		return len(env.events.EventsOfType(notify.EventDocumentChanged)) == 1 &&
			len(env.events.EventsOfType(notify.EventDocumentSyncState)) == 2 &&
			len(env.events.EventsOfType(notify.EventDocumentSnapshotState)) == 1
	}, time.Second, 5*time.Millisecond)

	changed := env.events.EventsOfType(notify.EventDocumentChanged)
	assert.Equal(t, id.String(), changed[0].DocumentID)
	assert.Equal(t, textID, changed[0].Payload["target"])
	assert.Equal(t, testWorkspace, changed[0].WorkspaceID)

	syncStates := env.events.EventsOfType(notify.EventDocumentSyncState)
	assert.Equal(t, "init_sync_end", syncStates[1].Payload["state"])
}

func TestManager_EditsAreSavedToLocalStore(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := docid.NewUUID()
	_, err := env.manager.CreateDocument(ctx, id, nil)
	require.NoError(t, err)

	require.NoError(t, env.manager.OpenDocument(ctx, id))
	h, err := env.manager.EditableDocument(ctx, id)
	require.NoError(t, err)
	require.NoError(t, h.ApplyTextDelta(firstTextID(t, h), []collab.TextDelta{{Insert: "typed"}}))

	require.Eventually(t, func() bool {
		state, ok := env.store.get(id.String())
		return ok && textOf(t, id.String(), state) == "typed"
	}, time.Second, 5*time.Millisecond)
}

func TestManager_EditsSurviveReclamation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, withGracePeriod(20*time.Millisecond))
	id := docid.NewUUID()
	_, err := env.manager.CreateDocument(ctx, id, nil)
	require.NoError(t, err)

	require.NoError(t, env.manager.OpenDocument(ctx, id))
	h, err := env.manager.EditableDocument(ctx, id)
	require.NoError(t, err)
	require.NoError(t, h.ApplyTextDelta(firstTextID(t, h), []collab.TextDelta{{Insert: "typed"}}))
	require.NoError(t, env.manager.CloseDocument(ctx, id))

	require.Eventually(t, func() bool {
		return env.manager.State(id) == StateUnloaded
	}, time.Second, 5*time.Millisecond)

	text, err := env.manager.GetDocumentText(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "typed", text)
}

func TestManager_DeletedDocumentIsNotSavedAgain(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := docid.NewUUID()
	_, err := env.manager.CreateDocument(ctx, id, nil)
	require.NoError(t, err)

	require.NoError(t, env.manager.OpenDocument(ctx, id))
	h, err := env.manager.EditableDocument(ctx, id)
	require.NoError(t, err)
	require.NoError(t, h.ApplyTextDelta(firstTextID(t, h), []collab.TextDelta{{Insert: "typed"}}))
	require.NoError(t, env.manager.DeleteDocument(ctx, id))

	// Close drains queued saves.
	require.NoError(t, env.manager.Close())
	_, ok := env.store.get(id.String())
	assert.False(t, ok)
}

func TestManager_PublishingDoesNotHoldWriteLock(t *testing.T) {
	ctx := context.Background()
	pub := newBlockingPublisher(notify.EventDocumentChanged)
	env := newTestEnv(t, withPublisher(pub))
	t.Cleanup(func() { close(pub.release) })
	id := docid.NewUUID()
	env.store.put(id.String(), encodeDefault(t, id.String()))

	require.NoError(t, env.manager.OpenDocument(ctx, id))
	h, err := env.manager.EditableDocument(ctx, id)
	require.NoError(t, err)

	textID := firstTextID(t, h)
	edited := make(chan error, 1)
	go func() {
		edited <- h.ApplyTextDelta(textID, []collab.TextDelta{{Insert: "typed"}})
	}()
	select {
	case err := <-edited:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("edit blocked on the publisher")
	}

	select {
	case <-pub.entered:
	case <-time.After(time.Second):
		t.Fatal("change event was never published")
	}

	read := make(chan string, 1)
	go func() {
		text, _ := env.manager.GetDocumentText(ctx, id)
		read <- text
	}()
	select {
	case text := <-read:
		assert.Equal(t, "typed", text)
	case <-time.After(300 * time.Millisecond):
		t.Fatal("reader blocked while an event was being published")
	}
}

func TestManager_PassiveReadCallerCancelDoesNotFailOthers(t *testing.T) {
	gate := make(chan struct{})
	env := newTestEnv(t, withBuilderGate(gate))
	id := docid.NewUUID()
	env.store.put(id.String(), encodeDefault(t, id.String()))

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := env.manager.GetDocument(first, id)
		firstErr <- err
	}()
	require.Eventually(t, func() bool {
		return env.builder.creates.Load() == 1
	}, time.Second, 5*time.Millisecond)

	secondErr := make(chan error, 1)
	go func() {
		_, err := env.manager.GetDocument(context.Background(), id)
		secondErr <- err
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(gate)
	require.NoError(t, <-secondErr)
}

func TestManager_PassiveReadDoesNotPurgeReplacedBytes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := docid.NewUUID()
	env.store.put(id.String(), []byte("corrupt"))

	valid := encodeDefault(t, id.String())
	env.builder.afterCreate = func(n int32) {
		// A delete and re-create lands between the failed build and the
		// purge.
		if n == 1 {
			env.store.put(id.String(), valid)
		}
	}

	r, err := env.manager.GetDocument(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, r.DocumentID())

	stored, ok := env.store.get(id.String())
	require.True(t, ok)
	assert.Equal(t, valid, stored)
	assert.Empty(t, env.events.EventsOfType(notify.EventDocumentDeleted))
}

func TestManager_InitializeDuringOpenDoesNotRegister(t *testing.T) {
	gate := make(chan struct{})
	env := newTestEnv(t, withBuilderGate(gate))
	id := docid.NewUUID()
	env.store.put(id.String(), encodeDefault(t, id.String()))

	done := make(chan error, 1)
	go func() {
		done <- env.manager.OpenDocument(context.Background(), id)
	}()
	require.Eventually(t, func() bool {
		return env.builder.creates.Load() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, env.manager.InitializeAfterOpenWorkspace(context.Background(), testUID))
	close(gate)

	err := <-done
	require.Error(t, err)
	assert.True(t, IsResourceUnavailable(err))
	assert.Equal(t, StateUnloaded, env.manager.State(id))
	assert.Equal(t, Stats{}, env.manager.Stats())
}

func TestManager_Delete(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := docid.NewUUID()

	_, err := env.manager.CreateDocument(ctx, id, nil)
	require.NoError(t, err)
	require.NoError(t, env.manager.OpenDocument(ctx, id))
	h, err := env.manager.EditableDocument(ctx, id)
	require.NoError(t, err)

	require.NoError(t, env.manager.DeleteDocument(ctx, id))
	assert.Equal(t, StateUnloaded, env.manager.State(id))
	_, ok := env.store.get(id.String())
	assert.False(t, ok)
	assert.Len(t, env.events.EventsOfType(notify.EventDocumentDeleted), 1)

	// Subscriptions are detached from the dropped handle.
	before := len(env.events.EventsOfType(notify.EventDocumentChanged))
	data, err := h.DocumentData()
	require.NoError(t, err)
	for textID := range data.Meta.TextMap {
		require.NoError(t, h.ApplyTextDelta(textID, []collab.TextDelta{{Insert: "x"}}))
	}
	assert.Len(t, env.events.EventsOfType(notify.EventDocumentChanged), before)
}

func TestManager_DeleteStagedDocument(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := docid.NewUUID()
	env.store.put(id.String(), encodeDefault(t, id.String()))

	require.NoError(t, env.manager.OpenDocument(ctx, id))
	require.NoError(t, env.manager.CloseDocument(ctx, id))
	require.NoError(t, env.manager.DeleteDocument(ctx, id))
	assert.Equal(t, StateUnloaded, env.manager.State(id))

	err := env.manager.OpenDocument(ctx, id)
	assert.True(t, IsNotFound(err), "deleted document must not be restored: %v", err)
}

func TestManager_DeleteWithoutStore(t *testing.T) {
	env := newTestEnv(t)
	env.storeRef.Release()

	err := env.manager.DeleteDocument(context.Background(), docid.NewUUID())
	require.Error(t, err)
	assert.True(t, IsResourceUnavailable(err))
}

func TestManager_Initialize(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	open := docid.NewUUID()
	staged := docid.NewUUID()
	env.store.put(open.String(), encodeDefault(t, open.String()))
	env.store.put(staged.String(), encodeDefault(t, staged.String()))

	require.NoError(t, env.manager.OpenDocument(ctx, open))
	require.NoError(t, env.manager.OpenDocument(ctx, staged))
	require.NoError(t, env.manager.CloseDocument(ctx, staged))
	assert.Equal(t, Stats{Active: 1, PendingEviction: 1}, env.manager.Stats())

	for _, init := range []func(context.Context, int64) error{
		env.manager.InitializeAfterSignIn,
		env.manager.InitializeAfterSignUp,
		env.manager.InitializeAfterOpenWorkspace,
	} {
		require.NoError(t, init(ctx, testUID))
		assert.Equal(t, Stats{}, env.manager.Stats())
	}
}

func TestManager_GetEncodedCollab(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	local := docid.NewUUID()
	env.store.put(local.String(), encodeDefault(t, local.String()))
	encoded, err := env.manager.GetEncodedCollab(ctx, local)
	require.NoError(t, err)
	assert.Equal(t, collab.EncoderVersionV1, encoded.Version)
	assert.Equal(t, StateUnloaded, env.manager.State(local))

	remoteOnly := docid.NewUUID()
	env.cloud.docs[remoteOnly.String()] = encodeDefault(t, remoteOnly.String())
	_, err = env.manager.GetEncodedCollab(ctx, remoteOnly)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, 0, env.cloud.fetchCount())

	corrupt := docid.NewUUID()
	env.store.put(corrupt.String(), []byte("{}"))
	_, err = env.manager.GetEncodedCollab(ctx, corrupt)
	assert.True(t, IsInvalidData(err))
}

func TestManager_EmptyIDAndClosed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	err := env.manager.OpenDocument(ctx, docid.UUID{})
	assert.True(t, IsNotFound(err))

	require.NoError(t, env.manager.Close())
	require.NoError(t, env.manager.Close())

	err = env.manager.OpenDocument(ctx, docid.NewUUID())
	assert.True(t, IsResourceUnavailable(err))
}

func TestManager_CancelledContext(t *testing.T) {
	gate := make(chan struct{})
	env := newTestEnv(t, withBuilderGate(gate))
	id := docid.NewUUID()
	env.store.put(id.String(), encodeDefault(t, id.String()))

	done := make(chan error, 1)
	go func() {
		done <- env.manager.OpenDocument(context.Background(), id)
	}()
	require.Eventually(t, func() bool {
		return env.builder.creates.Load() == 1
	}, time.Second, 5*time.Millisecond)

	// The id lock is held by the first open.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := env.manager.CloseDocument(ctx, id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(gate)
	require.NoError(t, <-done)
}
