package webchat

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"

	"github.com/cassowary-ai/sidekick/pkg/chat"
	"github.com/cassowary-ai/sidekick/pkg/redisstream"
)

// StreamBackend is the update-delivery fabric shared by every
// conversation: sinks publish into it, forwarders subscribe out of it.
type StreamBackend struct {
	pubsub   *redisstream.PubSub
	settings redisstream.Settings
}

func NewStreamBackend(settings redisstream.Settings) (*StreamBackend, error) {
	pubsub, err := redisstream.BuildPubSub(settings)
	if err != nil {
		return nil, errors.Wrap(err, "build stream backend")
	}
	return &StreamBackend{pubsub: pubsub, settings: settings}, nil
}

// SinkFor returns the event sink a session should publish to.
func (b *StreamBackend) SinkFor(convID string) chat.EventSink {
	return chat.NewWatermillSink(b.pubsub.Publisher, convID)
}

// SubscriberFor returns the subscriber a conversation's forwarder consumes
// from. With Redis enabled the consumer group is first created at the
// stream tail so a fresh conversation doesn't replay old events.
func (b *StreamBackend) SubscriberFor(ctx context.Context, convID string) (message.Subscriber, error) {
	if !b.settings.Enabled {
		return b.pubsub.Subscriber, nil
	}
	topic := chat.TopicForConversation(convID)
	if err := redisstream.EnsureGroupAtTail(ctx, b.settings.Addr, topic, b.settings.Group); err != nil {
		return nil, errors.Wrapf(err, "ensure group for %s", topic)
	}
	return redisstream.BuildGroupSubscriber(b.settings.Addr, b.settings.Group, b.settings.Consumer)
}

func (b *StreamBackend) Close() error {
	if b == nil || b.pubsub == nil {
		return nil
	}
	return b.pubsub.Close()
}
