package redisstream

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPubSubInMemoryRoundtrip(t *testing.T) {
	ps, err := BuildPubSub(DefaultSettings())
	require.NoError(t, err)
	defer func() { _ = ps.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msgs, err := ps.Subscriber.Subscribe(ctx, "chat:conv-1")
	require.NoError(t, err)

	require.NoError(t, ps.Publisher.Publish("chat:conv-1", message.NewMessage("m1", []byte(`{"ok":true}`))))

	select {
	case msg := <-msgs:
		msg.Ack()
		assert.Equal(t, `{"ok":true}`, string(msg.Payload))
	case <-ctx.Done():
		t.Fatal("message was not delivered")
	}
}
