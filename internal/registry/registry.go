// Package registry implements the single mutex-guarded path -> pipe
// mapping described for the open-file registry: one lock, atomic
// get-or-create, idempotent remove, plain get.
//
// It is generic over the value type so that it carries no dependency on
// the pipe package; the pipe engine instantiates Registry[*pipe.Pipe] and
// supplies its own allocator to GetOrCreate.
package registry

import (
	"sync"

	"github.com/zeebo/xxh3"
)

// Registry is a single-mutex path -> value map with atomic get-or-create.
type Registry[V any] struct {
	mu sync.Mutex
	m  map[string]V
}

// New creates an empty registry.
func New[V any]() *Registry[V] {
	return &Registry[V]{m: make(map[string]V)}
}

// GetOrCreate returns the existing value for path, or calls factory to
// allocate one, inserts it, and reports created=true. The whole
// check-and-insert happens under one critical section, so two concurrent
// callers for the same path can never both observe created=true.
func (r *Registry[V]) GetOrCreate(path string, factory func() V) (v V, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.m[path]; ok {
		return existing, false
	}
	v = factory()
	r.m[path] = v
	return v, true
}

// Get returns the value for path, if any. Callers must not hold the
// pipe's mutex while calling into the registry (lock order: registry ->
// pipe).
func (r *Registry[V]) Get(path string) (v V, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok = r.m[path]
	return v, ok
}

// Remove deletes path from the registry. It is idempotent: removing a
// path that is not present is a no-op. The registry never destroys the
// removed value; the caller (the last closer) owns that.
func (r *Registry[V]) Remove(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, path)
}

// Len reports the number of entries currently registered. Used by tests
// to assert the registry drains to empty once every pipe closes.
func (r *Registry[V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

// ForceExitAll invokes fn for every currently registered value. Used by
// the dispatcher on transport loss to force-exit every open pipe without
// taking any pipe's mutex while holding the registry lock (fn is expected
// to acquire the pipe's own mutex internally, which is safe: the registry
// lock is dropped before fn observes any state through the pipe, since
// the snapshot is copied out first).
func (r *Registry[V]) ForceExitAll(fn func(V)) {
	r.mu.Lock()
	snapshot := make([]V, 0, len(r.m))
	for _, v := range r.m {
		snapshot = append(snapshot, v)
	}
	r.mu.Unlock()

	for _, v := range snapshot {
		fn(v)
	}
}

// ShortID returns a short, stable, non-cryptographic correlation ID for a
// path, used only in log lines to make it easy to grep the lifetime of a
// single pipe across dispatcher and engine log entries. It plays no part
// in lock ordering or bucket selection: the registry stays single-mutex,
// matching the invariant that there is exactly one lock guarding the
// path -> pipe mapping.
func ShortID(path string) string {
	h := xxh3.HashString(path)
	const alphabet = "0123456789abcdefghijklmnopqrstuv"
	buf := make([]byte, 8)
	for i := range buf {
		buf[i] = alphabet[h&0x1f]
		h >>= 5
	}
	return string(buf)
}
