package model

import (
	"slices"
	"sync"
)

// Registry owns every buffer of a client session. Buffers are created on
// first reference and live as long as the registry.
type Registry struct {
	mu      sync.Mutex
	buffers map[BufKey]*Buffer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{buffers: make(map[BufKey]*Buffer)}
}

// Get returns the buffer for key together with a write handle, creating the
// buffer if it does not exist yet. Concurrent calls for the same unseen key
// create exactly one buffer.
func (r *Registry) Get(key BufKey) (*Buffer, *BufSender) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.buffers[key]; ok {
		return b, b.Sender()
	}
	b, s := NewBuffer(key)
	r.buffers[key] = b
	return b, s
}

// Lookup returns an existing buffer without creating one.
func (r *Registry) Lookup(key BufKey) (*Buffer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buffers[key]
	return b, ok
}

// Snapshot copies the buffer for key, if it exists.
func (r *Registry) Snapshot(key BufKey) (Snapshot, bool) {
	b, ok := r.Lookup(key)
	if !ok {
		return Snapshot{}, false
	}
	return b.Snapshot(), true
}

// Keys lists all buffers: status, server, channels, then queries, each group
// sorted by name.
func (r *Registry) Keys() []BufKey {
	r.mu.Lock()
	keys := make([]BufKey, 0, len(r.buffers))
	for k := range r.buffers {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	slices.SortFunc(keys, func(a, b BufKey) int {
		switch {
		case a.less(b):
			return -1
		case b.less(a):
			return 1
		default:
			return 0
		}
	})
	return keys
}

// Len returns the number of buffers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffers)
}
