package webchat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cassowary-ai/sidekick/pkg/chat"
)

const defaultIdleTimeout = 5 * time.Minute

// Conversation ties together one session, its websocket pool and the
// forwarder pumping update events into that pool.
type Conversation struct {
	ID        string
	Session   *chat.Session
	Pool      *ConnectionPool
	forwarder *Forwarder
	createdAt time.Time
}

// SessionFactory builds a fresh session for a conversation ID. The server
// supplies one closing over its transport, collaborators and options.
type SessionFactory func(convID string) (*chat.Session, error)

// ConvManager creates conversations on first use and evicts them once
// their pool has been idle past the timeout.
type ConvManager struct {
	mu          sync.Mutex
	convs       map[string]*Conversation
	factory     SessionFactory
	backend     *StreamBackend
	idleTimeout time.Duration

	// baseCtx outlives individual HTTP requests; forwarders are bound to
	// it, not to the request that happened to create the conversation.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	logger zerolog.Logger
}

func NewConvManager(factory SessionFactory, backend *StreamBackend, logger zerolog.Logger) *ConvManager {
	baseCtx, cancel := context.WithCancel(context.Background())
	return &ConvManager{
		convs:       map[string]*Conversation{},
		factory:     factory,
		backend:     backend,
		idleTimeout: defaultIdleTimeout,
		baseCtx:     baseCtx,
		cancelBase:  cancel,
		logger:      logger.With().Str("component", "conv_manager").Logger(),
	}
}

// SetIdleTimeout adjusts how long an empty pool lingers before eviction.
// Zero or negative disables eviction.
func (m *ConvManager) SetIdleTimeout(d time.Duration) {
	m.mu.Lock()
	m.idleTimeout = d
	m.mu.Unlock()
}

// GetOrCreate returns the conversation for id, building session, pool and
// forwarder on first use.
func (m *ConvManager) GetOrCreate(ctx context.Context, id string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv, ok := m.convs[id]; ok {
		return conv, nil
	}

	sess, err := m.factory(id)
	if err != nil {
		return nil, err
	}
	sess.SetSink(m.backend.SinkFor(id))

	pool := NewConnectionPool(id, m.idleTimeout, func() { m.evict(id) })
	conv := &Conversation{
		ID:        id,
		Session:   sess,
		Pool:      pool,
		createdAt: time.Now(),
	}

	sub, err := m.backend.SubscriberFor(ctx, id)
	if err != nil {
		return nil, err
	}
	fwd := NewForwarder(id, sub, pool, m.logger)
	if err := fwd.Start(m.baseCtx); err != nil {
		return nil, err
	}
	conv.forwarder = fwd

	m.convs[id] = conv
	m.logger.Info().Str("conv_id", id).Msg("conversation created")
	return conv, nil
}

// Get returns an existing conversation, or nil.
func (m *ConvManager) Get(id string) *Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.convs[id]
}

func (m *ConvManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.convs)
}

// evict tears a conversation down unless a send is still in flight; busy
// conversations get another idle cycle once their pool empties again.
func (m *ConvManager) evict(id string) {
	m.mu.Lock()
	conv, ok := m.convs[id]
	if ok && conv.Session.IsBusy() {
		m.mu.Unlock()
		m.logger.Debug().Str("conv_id", id).Msg("eviction skipped, send in flight")
		return
	}
	delete(m.convs, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	conv.Session.Stop()
	conv.Pool.CloseAll()
	conv.forwarder.Stop()
	m.logger.Info().Str("conv_id", id).Msg("conversation evicted")
}

// Shutdown stops every conversation and the forwarder base context.
func (m *ConvManager) Shutdown() {
	m.cancelBase()
	m.mu.Lock()
	convs := make([]*Conversation, 0, len(m.convs))
	for id, conv := range m.convs {
		convs = append(convs, conv)
		delete(m.convs, id)
	}
	m.mu.Unlock()
	for _, conv := range convs {
		conv.Session.Stop()
		conv.Pool.CloseAll()
		conv.forwarder.Stop()
	}
}
