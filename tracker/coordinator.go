package tracker

import (
	"net"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// resetMany resets every connection concurrently on a bounded worker
// pool and waits for all attempts. Ordering among connections is
// unspecified. The batch is best-effort: a failure to reset one
// connection never aborts the others, so per-connection errors are
// swallowed here rather than collected.
func (t *Tracker) resetMany(conns []net.Conn) {
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			_ = t.reset(conn, t.opts...)
			return nil
		})
	}
	_ = g.Wait()
}
