package tracker

import (
	"context"
	"net"

	"github.com/JustinTArthur/netsplode"
)

// Session scopes connection tracking: TCP connections established
// through its wrappers register themselves with the session's Tracker.
type Session struct {
	tracker *Tracker
}

// NewSession returns a session with a fresh tracker. resetOpts are
// applied to every reset the tracker performs.
func NewSession(resetOpts ...netsplode.Option) *Session {
	return &Session{tracker: New(resetOpts...)}
}

func (s *Session) Tracker() *Tracker { return s.tracker }

// Dialer wraps base so TCP connections it establishes are tracked as
// client connections. A nil base uses a zero net.Dialer.
func (s *Session) Dialer(base *net.Dialer) *Dialer {
	if base == nil {
		base = new(net.Dialer)
	}
	return &Dialer{base: base, tracker: s.tracker}
}

// Listener wraps l so connections it accepts are tracked as server
// connections.
func (s *Session) Listener(l net.Listener) net.Listener {
	return &listener{Listener: l, tracker: s.tracker}
}

// Close drops all tracked membership. Outstanding sockets stay open:
// the session never owned them. Wrapped dialers and listeners keep
// working, they just register into an empty tracker again.
func (s *Session) Close() error {
	s.tracker.clear()
	return nil
}

// Dialer tracks the TCP connections it establishes.
type Dialer struct {
	base    *net.Dialer
	tracker *Tracker
}

func (d *Dialer) Dial(network, address string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, address)
}

// DialContext dials with the underlying dialer. A successfully
// established TCP connection is registered as a client connection
// before it is returned, so it is trackable from the first moment the
// caller can observe it. Other networks and all errors pass through
// unmodified.
func (d *Dialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.base.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return conn, nil
	}
	tracked := newTracked(tcp, d.tracker)
	d.tracker.AddClient(tracked)
	return tracked, nil
}

type listener struct {
	net.Listener
	tracker *Tracker
}

// Accept registers accepted TCP connections as server connections.
func (l *listener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return conn, nil
	}
	tracked := newTracked(tcp, l.tracker)
	l.tracker.AddServer(tracked)
	return tracked, nil
}
