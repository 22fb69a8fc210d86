// Package capture provides the packet primitives the reset engine
// consumes: observe one in-flight frame of a TCP conversation, transmit
// a forged frame, and probe whether capturing is possible at all in the
// current execution context.
//
// The engine only depends on the Capturer interface, so tests and
// callers with their own packet plumbing can substitute an
// implementation.
package capture

import (
	"net/netip"
	"time"
)

// Conversation identifies both ends of a TCP stream. Direction is not
// significant: a frame matches if it travels between the peers either
// way.
type Conversation struct {
	Peer1, Peer2 netip.AddrPort
}

// Loopback reports whether both peers are loopback addresses. Loopback
// traffic does not surface on the default capture interface on every
// platform, so capturing such a conversation must be scoped to the
// loopback interface.
func (c Conversation) Loopback() bool {
	return c.Peer1.Addr().IsLoopback() && c.Peer2.Addr().IsLoopback()
}

func (c Conversation) match(src, dst netip.AddrPort) bool {
	return (src == c.Peer1 && dst == c.Peer2) ||
		(src == c.Peer2 && dst == c.Peer1)
}

// Capturer is the packet-level surface of a platform.
type Capturer interface {
	// Available reports whether packet capture is possible, e.g. whether
	// the process has sufficient privilege. Probed before any capture is
	// attempted.
	Available() bool

	// One captures a single IP frame belonging to the conversation,
	// waiting at most timeout. A nil frame with a nil error means no
	// matching frame arrived in time; that is a normal outcome, not a
	// fault. The returned slice is owned by the caller.
	One(conv Conversation, timeout time.Duration) ([]byte, error)

	// Send transmits one IP frame as-is, preserving the frame's own
	// addresses. Transient transmit errors are wrapped so that
	// errorx.Temporary reports true.
	Send(frame []byte) error
}
