package webchat

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/cassowary-ai/sidekick/pkg/chat"
)

// Forwarder relays one conversation's update events from the stream backend
// to the connection pool. Payloads are passed through verbatim; the
// websocket wire format IS the UpdateEvent JSON.
type Forwarder struct {
	convID string
	sub    message.Subscriber
	pool   *ConnectionPool
	cancel context.CancelFunc
	done   chan struct{}
	logger zerolog.Logger
}

func NewForwarder(convID string, sub message.Subscriber, pool *ConnectionPool, logger zerolog.Logger) *Forwarder {
	return &Forwarder{
		convID: convID,
		sub:    sub,
		pool:   pool,
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "forwarder").Str("conv_id", convID).Logger(),
	}
}

// Start subscribes to the conversation topic and pumps messages until Stop
// or parent cancellation.
func (f *Forwarder) Start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	f.cancel = cancel

	msgs, err := f.sub.Subscribe(ctx, chat.TopicForConversation(f.convID))
	if err != nil {
		cancel()
		close(f.done)
		return err
	}
	go f.pump(msgs)
	return nil
}

func (f *Forwarder) pump(msgs <-chan *message.Message) {
	defer close(f.done)
	for msg := range msgs {
		f.pool.Broadcast(msg.Payload)
		msg.Ack()
	}
	f.logger.Debug().Msg("forwarder stream closed")
}

// Stop cancels the subscription and waits for the pump to drain.
func (f *Forwarder) Stop() {
	if f == nil || f.cancel == nil {
		return
	}
	f.cancel()
	<-f.done
}
