package webchat

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConn struct {
	mu     sync.Mutex
	writes [][]byte
	failed bool
	closed bool
}

func (c *stubConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed {
		return errors.New("write on closed connection")
	}
	c.writes = append(c.writes, data)
	return nil
}

func (c *stubConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *stubConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func TestBroadcastReachesAllConnections(t *testing.T) {
	pool := NewConnectionPool("conv-1", 0, nil)
	a, b := &stubConn{}, &stubConn{}
	pool.Add(a)
	pool.Add(b)

	pool.Broadcast([]byte("hello"))
	assert.Equal(t, 1, a.writeCount())
	assert.Equal(t, 1, b.writeCount())
}

func TestBroadcastEvictsFailingConnection(t *testing.T) {
	pool := NewConnectionPool("conv-1", 0, nil)
	ok, bad := &stubConn{}, &stubConn{failed: true}
	pool.Add(ok)
	pool.Add(bad)

	pool.Broadcast([]byte("x"))
	assert.Equal(t, 1, pool.Count())
	assert.True(t, bad.closed)

	pool.Broadcast([]byte("y"))
	assert.Equal(t, 2, ok.writeCount())
}

func TestSendToOneIgnoresUntrackedConnection(t *testing.T) {
	pool := NewConnectionPool("conv-1", 0, nil)
	stranger := &stubConn{}
	pool.SendToOne(stranger, []byte("x"))
	assert.Equal(t, 0, stranger.writeCount())
}

func TestIdleCallbackFiresAfterLastRemove(t *testing.T) {
	fired := make(chan struct{})
	pool := NewConnectionPool("conv-1", 10*time.Millisecond, func() { close(fired) })
	conn := &stubConn{}
	pool.Add(conn)
	pool.Remove(conn)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("idle callback never fired")
	}
}

func TestIdleTimerCancelledByReconnect(t *testing.T) {
	var mu sync.Mutex
	fired := false
	pool := NewConnectionPool("conv-1", 20*time.Millisecond, func() {
		mu.Lock()
		fired = true
		mu.Unlock()
	})
	first := &stubConn{}
	pool.Add(first)
	pool.Remove(first)

	// Reconnect before the idle timeout elapses.
	pool.Add(&stubConn{})
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.False(t, fired, "idle callback must not fire while a connection is attached")
}
