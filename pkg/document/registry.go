package document

import (
	"sync"
	"time"

	"github.com/hashicorp-forge/collabdocs/pkg/docid"
)

// DefaultEvictionGracePeriod is how long a closed document stays restorable.
const DefaultEvictionGracePeriod = 120 * time.Second

// activeRegistry maps ids to live handles.
type activeRegistry struct {
	mu      sync.RWMutex
	handles map[docid.UUID]*Handle
}

func newActiveRegistry() *activeRegistry {
	return &activeRegistry{handles: make(map[docid.UUID]*Handle)}
}

func (r *activeRegistry) get(id docid.UUID) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	return h, ok
}

func (r *activeRegistry) insert(id docid.UUID, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[id] = h
}

func (r *activeRegistry) remove(id docid.UUID) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	if ok {
		delete(r.handles, id)
	}
	return h, ok
}

func (r *activeRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// clear empties the registry and returns what it held.
func (r *activeRegistry) clear() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	r.handles = make(map[docid.UUID]*Handle)
	return out
}

// stagedEntry is a closed handle waiting for reclamation.
type stagedEntry struct {
	handle     *Handle
	generation uint64
	stagedAt   time.Time
	timer      *time.Timer
}

// evictionStaging holds closed handles for a grace period. Every stage call
// gets a new generation; a reclamation timer only removes the entry it was
// armed for, so a close/restore/close sequence inside one grace period is
// never cut short by the first timer.
type evictionStaging struct {
	mu         sync.Mutex
	entries    map[docid.UUID]*stagedEntry
	generation uint64
	grace      time.Duration

	// onReclaim runs outside the lock after a timer removed an entry.
	onReclaim func(id docid.UUID, h *Handle, stagedFor time.Duration)
}

func newEvictionStaging(grace time.Duration, onReclaim func(docid.UUID, *Handle, time.Duration)) *evictionStaging {
	return &evictionStaging{
		entries:   make(map[docid.UUID]*stagedEntry),
		grace:     grace,
		onReclaim: onReclaim,
	}
}

// stage inserts h under id and arms its reclamation timer. It returns the
// generation of the new residency.
func (s *evictionStaging) stage(id docid.UUID, h *Handle) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[id]; ok {
		prev.timer.Stop()
	}

	s.generation++
	gen := s.generation
	entry := &stagedEntry{
		handle:     h,
		generation: gen,
		stagedAt:   time.Now(),
	}
	entry.timer = time.AfterFunc(s.grace, func() {
		s.reclaim(id, gen)
	})
	s.entries[id] = entry
	return gen
}

// reclaim removes id only if it still holds the residency of generation gen.
func (s *evictionStaging) reclaim(id docid.UUID, gen uint64) bool {
	s.mu.Lock()
	entry, ok := s.entries[id]
	if !ok || entry.generation != gen {
		s.mu.Unlock()
		return false
	}
	delete(s.entries, id)
	s.mu.Unlock()

	if s.onReclaim != nil {
		s.onReclaim(id, entry.handle, time.Since(entry.stagedAt))
	}
	return true
}

func (s *evictionStaging) get(id docid.UUID) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return entry.handle, true
}

// remove takes id out of staging and disarms its timer.
func (s *evictionStaging) remove(id docid.UUID) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	delete(s.entries, id)
	entry.timer.Stop()
	return entry.handle, true
}

func (s *evictionStaging) generationOf(id docid.UUID) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return 0, false
	}
	return entry.generation, true
}

func (s *evictionStaging) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// clear disarms every timer and returns the staged handles.
func (s *evictionStaging) clear() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Handle, 0, len(s.entries))
	for _, entry := range s.entries {
		entry.timer.Stop()
		out = append(out, entry.handle)
	}
	s.entries = make(map[docid.UUID]*stagedEntry)
	return out
}
