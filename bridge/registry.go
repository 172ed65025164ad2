package bridge

import "sync"

// Registry is an append-only owning table. Each added value gets a stable,
// non-zero address that can cross the boundary as an opaque integer; the
// registry keeps the value reachable for as long as the registry lives.
//
// There is no remove operation: an address handed to the host stays valid
// for the registry's lifetime, so a host holding a stale copy can never reach
// a freed value. The cost is unbounded growth, one entry per Add.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries []*T
}

// NewRegistry creates an empty Registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{}
}

// Add boxes v and returns its address.
func (r *Registry[T]) Add(v T) Addr {
	box := new(T)
	*box = v
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, box)
	return Addr(len(r.entries))
}

// Get returns the value at addr without transferring ownership.
func (r *Registry[T]) Get(addr Addr) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if addr <= 0 || int(addr) > len(r.entries) {
		var zero T
		return zero, false
	}
	return *r.entries[addr-1], true
}

// Len returns the number of registered values.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
