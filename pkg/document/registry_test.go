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
)

func testHandle(t *testing.T, id docid.UUID) *Handle {
	t.Helper()
	b := collab.NewBuilder(collab.BuilderConfig{})
	doc, err := b.CreateDocument(context.Background(), id.String(), collab.DataSource{DocState: encodeDefault(t, id.String())}, collab.BuildConfig{SyncEnabled: true})
	require.NoError(t, err)
	return newHandle(id, doc)
}

func TestActiveRegistry(t *testing.T) {
	r := newActiveRegistry()
	id := docid.NewUUID()
	h := testHandle(t, id)

	_, ok := r.get(id)
	assert.False(t, ok)

	r.insert(id, h)
	got, ok := r.get(id)
	require.True(t, ok)
	assert.Same(t, h, got)
	assert.Equal(t, 1, r.len())

	removed, ok := r.remove(id)
	require.True(t, ok)
	assert.Same(t, h, removed)
	_, ok = r.remove(id)
	assert.False(t, ok)

	r.insert(id, h)
	assert.Len(t, r.clear(), 1)
	assert.Equal(t, 0, r.len())
}

func TestEvictionStaging_ReclaimsAfterGrace(t *testing.T) {
	id := docid.NewUUID()
	h := testHandle(t, id)

	var mu sync.Mutex
	var reclaimed []docid.UUID
	s := newEvictionStaging(10*time.Millisecond, func(id docid.UUID, _ *Handle, stagedFor time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		reclaimed = append(reclaimed, id)
	})

	s.stage(id, h)
	got, ok := s.get(id)
	require.True(t, ok)
	assert.Same(t, h, got)

	require.Eventually(t, func() bool {
		return s.len() == 0
	}, time.Second, 2*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []docid.UUID{id}, reclaimed)
}

func TestEvictionStaging_GenerationGuard(t *testing.T) {
	id := docid.NewUUID()
	h := testHandle(t, id)
	s := newEvictionStaging(time.Hour, nil)
	defer s.clear()

	first := s.stage(id, h)
	_, ok := s.remove(id)
	require.True(t, ok)
	second := s.stage(id, h)
	require.Greater(t, second, first)

	// A timer armed for the first residency must not touch the second.
	assert.False(t, s.reclaim(id, first))
	gen, ok := s.generationOf(id)
	require.True(t, ok)
	assert.Equal(t, second, gen)

	assert.True(t, s.reclaim(id, second))
	_, ok = s.get(id)
	assert.False(t, ok)
	assert.False(t, s.reclaim(id, second))
}

func TestEvictionStaging_RemoveDisarms(t *testing.T) {
	id := docid.NewUUID()
	h := testHandle(t, id)

	calls := make(chan docid.UUID, 1)
	s := newEvictionStaging(10*time.Millisecond, func(id docid.UUID, _ *Handle, _ time.Duration) {
		calls <- id
	})

	s.stage(id, h)
	_, ok := s.remove(id)
	require.True(t, ok)

	select {
	case <-calls:
		t.Fatal("removed entry was reclaimed")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEvictionStaging_Clear(t *testing.T) {
	s := newEvictionStaging(time.Hour, nil)
	for i := 0; i < 3; i++ {
		id := docid.NewUUID()
		s.stage(id, testHandle(t, id))
	}
	assert.Equal(t, 3, s.len())
	assert.Len(t, s.clear(), 3)
	assert.Equal(t, 0, s.len())
}
