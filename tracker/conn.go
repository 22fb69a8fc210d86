package tracker

import (
	"net"
	"sync"
	"syscall"
	"time"
)

// Conn is a tracked TCP connection. Every operation forwards to the
// underlying *net.TCPConn unchanged; teardown additionally reports to
// the tracker. Close removes the connection unconditionally; shutting
// down both directions removes it; a half shutdown leaves it tracked.
type Conn struct {
	tcp     *net.TCPConn
	tracker *Tracker

	mu     sync.Mutex
	rdShut bool
	wrShut bool
}

func newTracked(tcp *net.TCPConn, t *Tracker) *Conn {
	return &Conn{tcp: tcp, tracker: t}
}

func (c *Conn) Read(b []byte) (int, error)  { return c.tcp.Read(b) }
func (c *Conn) Write(b []byte) (int, error) { return c.tcp.Write(b) }
func (c *Conn) LocalAddr() net.Addr         { return c.tcp.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr        { return c.tcp.RemoteAddr() }

func (c *Conn) SetDeadline(t time.Time) error      { return c.tcp.SetDeadline(t) }
func (c *Conn) SetReadDeadline(t time.Time) error  { return c.tcp.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.tcp.SetWriteDeadline(t) }

func (c *Conn) SetLinger(sec int) error  { return c.tcp.SetLinger(sec) }
func (c *Conn) SetNoDelay(on bool) error { return c.tcp.SetNoDelay(on) }

// SyscallConn exposes the underlying descriptor, which also lets the
// connection resolver treat a tracked connection as a native socket.
func (c *Conn) SyscallConn() (syscall.RawConn, error) { return c.tcp.SyscallConn() }

// Close removes the connection from the tracker, then closes the
// socket.
func (c *Conn) Close() error {
	c.tracker.Remove(c)
	return c.tcp.Close()
}

// CloseRead shuts down the reading side. The connection stays tracked
// until the writing side is shut down too.
func (c *Conn) CloseRead() error {
	err := c.tcp.CloseRead()
	if err == nil {
		c.noteShutdown(true)
	}
	return err
}

// CloseWrite shuts down the writing side, the counterpart of CloseRead.
func (c *Conn) CloseWrite() error {
	err := c.tcp.CloseWrite()
	if err == nil {
		c.noteShutdown(false)
	}
	return err
}

func (c *Conn) noteShutdown(read bool) {
	c.mu.Lock()
	if read {
		c.rdShut = true
	} else {
		c.wrShut = true
	}
	full := c.rdShut && c.wrShut
	c.mu.Unlock()

	if full {
		c.tracker.Remove(c)
	}
}
