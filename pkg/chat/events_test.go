package chat

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillSinkPublishesToConversationTopic(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer func() { _ = pubSub.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msgs, err := pubSub.Subscribe(ctx, TopicForConversation("conv-1"))
	require.NoError(t, err)

	sink := NewWatermillSink(pubSub, "conv-1")
	require.NoError(t, sink.Publish(UpdateEvent{
		ConvID:  "conv-1",
		TurnID:  "turn-1",
		Role:    RoleAssistant,
		Content: "hello",
		Status:  StatusStreaming,
	}))
	require.NoError(t, sink.Publish(UpdateEvent{
		ConvID: "conv-1",
		TurnID: "turn-1",
		Status: StatusComplete,
	}))

	// The go-channel pub/sub does not guarantee cross-message delivery
	// order, so collect both events and key on Seq.
	bySeq := map[int64]UpdateEvent{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-msgs:
			msg.Ack()
			ev, err := ParseUpdateEvent(msg.Payload)
			require.NoError(t, err)
			bySeq[ev.Seq] = ev
		case <-ctx.Done():
			t.Fatal("subscriber did not receive both events")
		}
	}

	require.Len(t, bySeq, 2, "sink assigns distinct monotonically increasing sequence numbers")
	assert.Equal(t, "turn-1", bySeq[1].TurnID)
	assert.Equal(t, StatusStreaming, bySeq[1].Status)
	assert.Equal(t, StatusComplete, bySeq[2].Status)
}
