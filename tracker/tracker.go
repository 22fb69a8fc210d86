// Package tracker observes TCP connection lifecycles during a test
// session and resets the tracked connections in bulk.
//
// A [Session] is a scoped acquisition: connections established through
// its Dialer and Listener wrappers register themselves with the
// session's [Tracker], and closing the session drops all membership
// without touching the sockets. Sessions are independent values; there
// is no process-wide state.
package tracker

import (
	"net"
	"sync"

	"github.com/JustinTArthur/netsplode"
)

// ResetFunc resets one connection-like object.
type ResetFunc func(connection any, opts ...netsplode.Option) error

// Tracker is a registry of live client-side and server-side TCP
// connections. A connection is a member of at most one of the two sets.
// The tracker never owns the underlying sockets: dropping membership
// performs no I/O.
type Tracker struct {
	mu      sync.Mutex
	clients map[net.Conn]struct{}
	servers map[net.Conn]struct{}

	reset ResetFunc
	opts  []netsplode.Option
}

// New returns an empty tracker. resetOpts are applied to every reset the
// tracker performs.
func New(resetOpts ...netsplode.Option) *Tracker {
	return &Tracker{
		clients: make(map[net.Conn]struct{}),
		servers: make(map[net.Conn]struct{}),
		reset:   netsplode.Reset,
		opts:    resetOpts,
	}
}

// AddClient registers a client-side connection.
func (t *Tracker) AddClient(conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.servers, conn)
	t.clients[conn] = struct{}{}
}

// AddServer registers a server-side (accepted) connection.
func (t *Tracker) AddServer(conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.clients, conn)
	t.servers[conn] = struct{}{}
}

// Remove drops conn from whichever set contains it.
func (t *Tracker) Remove(conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.clients, conn)
	delete(t.servers, conn)
}

// ClientConnections returns a snapshot of the client set.
func (t *Tracker) ClientConnections() []net.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return snapshot(t.clients)
}

// ServerConnections returns a snapshot of the server set.
func (t *Tracker) ServerConnections() []net.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return snapshot(t.servers)
}

// ResetClientConnections resets every currently tracked client
// connection, then removes exactly those connections from the set.
// Connections added while the resets run stay tracked.
func (t *Tracker) ResetClientConnections(blocking bool) {
	t.mu.Lock()
	snap := snapshot(t.clients)
	t.mu.Unlock()
	t.resetAndRemove(blocking, snap)
}

// ResetServerConnections is ResetClientConnections for the server set.
func (t *Tracker) ResetServerConnections(blocking bool) {
	t.mu.Lock()
	snap := snapshot(t.servers)
	t.mu.Unlock()
	t.resetAndRemove(blocking, snap)
}

// ResetAllConnections resets every tracked connection on both sides.
func (t *Tracker) ResetAllConnections(blocking bool) {
	t.mu.Lock()
	snap := append(snapshot(t.clients), snapshot(t.servers)...)
	t.mu.Unlock()
	t.resetAndRemove(blocking, snap)
}

// resetAndRemove hands the snapshot to the worker pool, waits for the
// attempts, and removes exactly the snapshot members from the live
// sets. The snapshot-then-diff pattern avoids holding the lock across
// the resets while guaranteeing a connection is reset at most once per
// call and concurrently added connections are never lost. In
// non-blocking mode the whole sequence detaches onto its own goroutine;
// removal still happens only after the attempts complete.
func (t *Tracker) resetAndRemove(blocking bool, snap []net.Conn) {
	if !blocking {
		go t.resetAndRemove(true, snap)
		return
	}
	t.resetMany(snap)

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, conn := range snap {
		delete(t.clients, conn)
		delete(t.servers, conn)
	}
}

func (t *Tracker) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.clients)
	clear(t.servers)
}

func snapshot(set map[net.Conn]struct{}) []net.Conn {
	conns := make([]net.Conn, 0, len(set))
	for conn := range set {
		conns = append(conns, conn)
	}
	return conns
}
