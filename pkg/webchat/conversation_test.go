package webchat

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cassowary-ai/sidekick/pkg/chat"
	"github.com/cassowary-ai/sidekick/pkg/redisstream"
)

func newTestManager(t *testing.T) *ConvManager {
	t.Helper()
	backend, err := NewStreamBackend(redisstream.DefaultSettings())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	factory := func(convID string) (*chat.Session, error) {
		sess := chat.NewSession(convID, chat.Options{Backend: "default"}, chat.Collaborators{
			Transport: scriptedTransport{chunks: []string{"ok"}},
		}, zerolog.Nop())
		sess.SetEndpoints(map[string]string{"default": "http://unused"})
		return sess, nil
	}
	m := NewConvManager(factory, backend, zerolog.Nop())
	t.Cleanup(m.Shutdown)
	return m
}

func TestGetOrCreateReusesConversation(t *testing.T) {
	m := newTestManager(t)

	a, err := m.GetOrCreate(context.Background(), "conv-1")
	require.NoError(t, err)
	b, err := m.GetOrCreate(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, m.Count())
}

func TestIdlePoolEvictsConversation(t *testing.T) {
	m := newTestManager(t)
	m.SetIdleTimeout(10 * time.Millisecond)

	conv, err := m.GetOrCreate(context.Background(), "conv-1")
	require.NoError(t, err)

	conn := &stubConn{}
	conv.Pool.Add(conn)
	conv.Pool.Remove(conn)

	require.Eventually(t, func() bool {
		return m.Count() == 0
	}, time.Second, 5*time.Millisecond)

	// A later access builds a fresh conversation.
	again, err := m.GetOrCreate(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.NotSame(t, conv, again)
}

func TestShutdownDrainsEverything(t *testing.T) {
	m := newTestManager(t)
	_, err := m.GetOrCreate(context.Background(), "a")
	require.NoError(t, err)
	_, err = m.GetOrCreate(context.Background(), "b")
	require.NoError(t, err)

	m.Shutdown()
	assert.Equal(t, 0, m.Count())
}
