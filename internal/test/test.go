// Package test provides shared helpers for netsplode tests.
package test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// EchoServer starts a TCP echo server on an ephemeral loopback port and
// returns its address. The server and every conn it accepted shut down
// when the test ends.
func EchoServer(t *testing.T) *net.TCPAddr {
	t.Helper()

	l, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			t.Cleanup(func() { conn.Close() })
			go func() {
				var b = make([]byte, 1536)
				for {
					n, err := conn.Read(b)
					if err != nil {
						return
					}
					if _, err := conn.Write(b[:n]); err != nil {
						return
					}
				}
			}()
		}
	}()

	return l.Addr().(*net.TCPAddr)
}

// TCPPair returns both ends of an established loopback TCP connection.
func TCPPair(t *testing.T) (client, server *net.TCPConn) {
	t.Helper()

	l, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer l.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		server, err = l.AcceptTCP()
	}()

	client, cerr := net.DialTCP("tcp", nil, l.Addr().(*net.TCPAddr))
	require.NoError(t, cerr)
	<-done
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}
