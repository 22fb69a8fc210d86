//go:build linux
// +build linux

package netsplode

import (
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func setLingerZero(raw syscall.RawConn) error {
	var serr error
	err := raw.Control(func(fd uintptr) {
		serr = unix.SetsockoptLinger(
			int(fd), unix.SOL_SOCKET, unix.SO_LINGER,
			&unix.Linger{Onoff: 1, Linger: 0},
		)
	})
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(serr)
}
