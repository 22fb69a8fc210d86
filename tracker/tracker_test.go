package tracker

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JustinTArthur/netsplode"
)

func pipes(t *testing.T, n int) []net.Conn {
	t.Helper()
	conns := make([]net.Conn, 0, n)
	for i := 0; i < n; i++ {
		c1, c2 := net.Pipe()
		t.Cleanup(func() { c1.Close(); c2.Close() })
		conns = append(conns, c1)
	}
	return conns
}

func TestTracker_setsAreDisjoint(t *testing.T) {
	tr := New()
	conns := pipes(t, 2)

	tr.AddClient(conns[0])
	tr.AddServer(conns[1])
	require.Len(t, tr.ClientConnections(), 1)
	require.Len(t, tr.ServerConnections(), 1)

	// re-registering on the other side moves, not duplicates
	tr.AddServer(conns[0])
	require.Empty(t, tr.ClientConnections())
	require.Len(t, tr.ServerConnections(), 2)

	tr.Remove(conns[0])
	tr.Remove(conns[1])
	require.Empty(t, tr.ServerConnections())
}

// A connection registered while a batch reset is in flight must survive
// the batch: only the snapshot taken at call time is removed.
func TestTracker_resetRemovesOnlySnapshot(t *testing.T) {
	tr := New()
	conns := pipes(t, 2)
	tr.AddClient(conns[0])

	started := make(chan struct{})
	release := make(chan struct{})
	tr.reset = func(connection any, opts ...netsplode.Option) error {
		close(started)
		<-release
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		tr.ResetClientConnections(true)
	}()

	<-started
	tr.AddClient(conns[1])
	close(release)
	<-done

	remaining := tr.ClientConnections()
	require.Len(t, remaining, 1)
	require.Same(t, conns[1], remaining[0])
}

func TestTracker_resetAtMostOncePerCall(t *testing.T) {
	tr := New(netsplode.AbortiveClose(true))
	conns := pipes(t, 8)
	for i, conn := range conns {
		if i%2 == 0 {
			tr.AddClient(conn)
		} else {
			tr.AddServer(conn)
		}
	}

	var mu sync.Mutex
	counts := make(map[any]int)
	optsSeen := -1
	tr.reset = func(connection any, opts ...netsplode.Option) error {
		mu.Lock()
		defer mu.Unlock()
		counts[connection]++
		optsSeen = len(opts)
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.ResetAllConnections(true)
		}()
	}
	wg.Wait()

	require.Empty(t, tr.ClientConnections())
	require.Empty(t, tr.ServerConnections())
	mu.Lock()
	defer mu.Unlock()
	for conn, n := range counts {
		// overlapping snapshots may both contain a connection, but one
		// call never resets it twice
		require.LessOrEqual(t, n, 2, "conn %v", conn)
	}
	require.Len(t, counts, len(conns))
	require.Equal(t, 1, optsSeen)
}

func TestTracker_nonBlockingDetaches(t *testing.T) {
	tr := New()
	conns := pipes(t, 1)
	tr.AddClient(conns[0])

	release := make(chan struct{})
	tr.reset = func(connection any, opts ...netsplode.Option) error {
		<-release
		return nil
	}

	start := time.Now()
	tr.ResetAllConnections(false)
	require.Less(t, time.Since(start), 100*time.Millisecond)

	// removal only happens after the detached attempts complete
	require.Len(t, tr.ClientConnections(), 1)
	close(release)
	require.Eventually(t, func() bool {
		return len(tr.ClientConnections()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTracker_sideScopedResets(t *testing.T) {
	tr := New()
	conns := pipes(t, 2)
	tr.AddClient(conns[0])
	tr.AddServer(conns[1])
	tr.reset = func(connection any, opts ...netsplode.Option) error { return nil }

	tr.ResetClientConnections(true)
	require.Empty(t, tr.ClientConnections())
	require.Len(t, tr.ServerConnections(), 1)

	tr.ResetServerConnections(true)
	require.Empty(t, tr.ServerConnections())
}
