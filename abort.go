package netsplode

import (
	"net"
	"syscall"

	"github.com/pkg/errors"
)

type lingerer interface {
	SetLinger(sec int) error
}

// abortiveClose tells the OS not to linger on close, discarding unsent
// and unacked data, then closes the socket. The local stack sends RST
// instead of FIN, so the remote peer observes a connection reset.
func abortiveClose(sock net.Conn) error {
	switch c := sock.(type) {
	case lingerer:
		if err := c.SetLinger(0); err != nil {
			return errors.WithStack(err)
		}
	case syscall.Conn:
		raw, err := c.SyscallConn()
		if err != nil {
			return errors.WithStack(err)
		}
		if err := setLingerZero(raw); err != nil {
			return err
		}
	}
	return errors.WithStack(sock.Close())
}
