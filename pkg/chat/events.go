package chat

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// UpdateEvent is the serialized form of a turn mutation, published for UI
// consumers (websocket forwarders, CLI printers). Events are notifications
// only; the turn store is the source of truth.
type UpdateEvent struct {
	ConvID    string     `json:"convId"`
	TurnID    string     `json:"turnId"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Status    TurnStatus `json:"status"`
	Auxiliary string     `json:"auxiliary,omitempty"`
	Seq       int64      `json:"seq"`
	EmittedAt int64      `json:"emittedAt"`
}

// EventSink receives update events as the reconciler applies them.
type EventSink interface {
	Publish(ev UpdateEvent) error
	Close() error
}

// TopicForConversation computes the stream topic for a conversation.
func TopicForConversation(convID string) string { return "chat:" + convID }

// WatermillSink publishes update events to a per-conversation topic.
type WatermillSink struct {
	pub   message.Publisher
	topic string
	seq   atomic.Int64
}

func NewWatermillSink(pub message.Publisher, convID string) *WatermillSink {
	return &WatermillSink{pub: pub, topic: TopicForConversation(convID)}
}

func (s *WatermillSink) Publish(ev UpdateEvent) error {
	if s == nil || s.pub == nil {
		return errors.New("watermill sink is not initialized")
	}
	ev.Seq = s.seq.Add(1)
	ev.EmittedAt = time.Now().UnixMilli()
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal update event")
	}
	return s.pub.Publish(s.topic, message.NewMessage(uuid.NewString(), payload))
}

// Close is a no-op; the publisher is owned by the stream backend.
func (s *WatermillSink) Close() error { return nil }

// ParseUpdateEvent decodes an event payload received from a subscriber.
func ParseUpdateEvent(payload []byte) (UpdateEvent, error) {
	var ev UpdateEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return UpdateEvent{}, errors.Wrap(err, "decode update event")
	}
	return ev, nil
}
