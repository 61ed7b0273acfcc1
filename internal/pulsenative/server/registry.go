package server

// Registry tracks live connections the supervisor accepted, keyed by
// connection id rather than stream key, since this protocol has no
// publish/subscribe topology — only a flat set of worker connections.

import (
	"sync"

	"github.com/screamrouter/pulse-native/internal/pulsenative/conn"
)

// Registry is a concurrency-safe set of active connections, guarded by one
// mutex held only for structural mutation.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*conn.Connection
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{conns: make(map[string]*conn.Connection)} }

// Add registers c under its own id.
func (r *Registry) Add(c *conn.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID()] = c
}

// Remove drops c from the registry.
func (r *Registry) Remove(c *conn.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c.ID())
}

// Count returns the number of tracked connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Snapshot returns a copy of the currently tracked connections, safe to
// range over without holding the registry's mutex.
func (r *Registry) Snapshot() []*conn.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*conn.Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}
