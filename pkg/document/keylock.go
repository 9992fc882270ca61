package document

import (
	"context"
	"sync"

	"github.com/hashicorp-forge/collabdocs/pkg/docid"
)

// keyedMutex serializes lifecycle transitions per document id. Transitions
// on different ids never contend.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[docid.UUID]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[docid.UUID]*keyLock)}
}

// lock acquires the lock for id, or returns ctx.Err() if ctx ends first.
// The returned func releases the lock.
func (k *keyedMutex) lock(ctx context.Context, id docid.UUID) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			k.release(id, l)
		}, nil
	case <-ctx.Done():
		k.release(id, l)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) release(id docid.UUID, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, id)
	}
}

// size returns the number of ids with a holder or waiter.
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
