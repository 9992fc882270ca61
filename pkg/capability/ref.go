// Package capability models collaborators that are owned elsewhere and may
// be torn down while a consumer still holds a reference to them.
//
// The owner creates a Ref and hands it out. Consumers must call Get on every
// use and handle the "gone" case; once the owner calls Release every
// subsequent Get reports false.
package capability

import "sync"

// Ref is a non-owning reference to a value of type T.
type Ref[T any] struct {
	mu       sync.RWMutex
	value    T
	released bool
}

// NewRef returns a live reference to value.
func NewRef[T any](value T) *Ref[T] {
	return &Ref[T]{value: value}
}

// Get returns the referenced value and true, or the zero value and false if
// the owner has released it. A nil Ref behaves like a released one.
func (r *Ref[T]) Get() (T, bool) {
	var zero T
	if r == nil {
		return zero, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.released {
		return zero, false
	}
	return r.value, true
}

// Release tears the reference down. It is safe to call more than once.
func (r *Ref[T]) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero T
	r.value = zero
	r.released = true
}
