package netsplode

import (
	"crypto/tls"
	"net"
	"net/netip"
	"syscall"

	"github.com/pkg/errors"
)

// Socketer is implemented by connection wrappers that expose the socket
// they operate on.
type Socketer interface {
	Socket() net.Conn
}

// TransportStreamer is implemented by stream adapters wrapping a
// transport stream that itself exposes a socket.
type TransportStreamer interface {
	TransportStream() Socketer
}

// resolveSocket maps a supported connection representation to the
// transport-layer socket backing it. The variant set is closed; support
// for a new representation is added here, in priority order:
//
//  1. a native socket: a net.Conn that also exposes its descriptor
//     (syscall.Conn), returned as-is
//  2. a TLS wrapper, unwrapped via NetConn
//  3. a Socketer
//  4. a TransportStreamer, through its stream's socket
//
// Unsupported objects yield ok == false, never an error: callers treat
// that as "cannot reset this connection" and skip it.
func resolveSocket(connection any) (sock net.Conn, ok bool) {
	const maxUnwraps = 4
	for i := 0; i <= maxUnwraps && connection != nil; i++ {
		if conn, isConn := connection.(net.Conn); isConn {
			if _, isSock := connection.(syscall.Conn); isSock {
				return conn, true
			}
		}
		switch c := connection.(type) {
		case *tls.Conn:
			connection = c.NetConn()
		case Socketer:
			connection = c.Socket()
		case TransportStreamer:
			connection = c.TransportStream()
		default:
			return nil, false
		}
	}
	return nil, false
}

// peers returns the local and remote endpoints of a connected socket.
// A socket without both endpoints was never established; asking to reset
// it is misuse, so the error propagates.
func peers(sock net.Conn) (local, remote netip.AddrPort, err error) {
	local, lok := endpoint(sock.LocalAddr())
	remote, rok := endpoint(sock.RemoteAddr())
	if !lok || !rok {
		return netip.AddrPort{}, netip.AddrPort{},
			errors.Errorf("socket is not connected: local %v, remote %v",
				sock.LocalAddr(), sock.RemoteAddr())
	}
	return local, remote, nil
}

func endpoint(addr net.Addr) (netip.AddrPort, bool) {
	switch a := addr.(type) {
	case *net.TCPAddr:
		if a == nil || a.IP == nil {
			return netip.AddrPort{}, false
		}
		return unmap(a.AddrPort()), true
	case *net.UDPAddr:
		if a == nil || a.IP == nil {
			return netip.AddrPort{}, false
		}
		return unmap(a.AddrPort()), true
	case nil:
		return netip.AddrPort{}, false
	default:
		ap, err := netip.ParseAddrPort(addr.String())
		return unmap(ap), err == nil
	}
}

// unmap normalizes 4-in-6 mapped addresses so endpoint comparison and
// IP version dispatch see the real address family.
func unmap(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

func isTCP(sock net.Conn) bool {
	addr := sock.LocalAddr()
	return addr != nil && addr.Network() == "tcp"
}
