package websocket

import "sync"

// Registry maps user identities to their live connections. One user may
// hold several connections at once (multiple tabs, multiple devices), so
// each key carries an ordered slice rather than a single connection.
//
// The registry is process-local, in-memory state: a restart drops every
// registration. The RWMutex is required because Gin serves handlers on
// many goroutines and all of them may dispatch concurrently.
type Registry struct {
	mu    sync.RWMutex
	conns map[int64][]*Connection
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[int64][]*Connection),
	}
}

// Register inserts a connection under a user identity, creating the entry
// if absent. Registering the same connection under the same user twice is
// a no-op, so a repeated identify frame leaves exactly one entry.
func (r *Registry) Register(userID int64, conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.conns[userID] {
		if existing == conn {
			return
		}
	}
	r.conns[userID] = append(r.conns[userID], conn)
}

// Deregister removes a connection from every key it appears under. A key
// whose slice becomes empty is deleted outright: "user has no live
// connections" is always expressed as key absent, never as key present
// with an empty value. Deregistering an unknown connection is a no-op.
func (r *Registry) Deregister(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, conns := range r.conns {
		kept := conns[:0]
		for _, c := range conns {
			if c != conn {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			delete(r.conns, userID)
		} else {
			r.conns[userID] = kept
		}
	}
}

// ConnectionsFor returns a copy of the user's live connections, nil when
// the user has none.
func (r *Registry) ConnectionsFor(userID int64) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.conns[userID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]*Connection, len(conns))
	copy(out, conns)
	return out
}

// AllConnections returns a snapshot of every registered connection across
// all users, for broadcast delivery.
func (r *Registry) AllConnections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Connection
	for _, conns := range r.conns {
		out = append(out, conns...)
	}
	return out
}

// Users returns the user identities that currently hold at least one
// connection.
func (r *Registry) Users() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]int64, 0, len(r.conns))
	for userID := range r.conns {
		out = append(out, userID)
	}
	return out
}

// Stats returns registry counters for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, conns := range r.conns {
		total += len(conns)
	}

	return map[string]int{
		"connected_users":   len(r.conns),
		"total_connections": total,
	}
}
