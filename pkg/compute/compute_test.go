package compute

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cassowary-ai/sidekick/pkg/chat"
)

type scriptedCaller struct {
	replies []string
	call    int
	prompts []string
	err     error
}

func (c *scriptedCaller) Complete(_ context.Context, req chat.Request) (string, error) {
	c.prompts = append(c.prompts, req.SystemPrompt)
	if c.err != nil {
		return "", c.err
	}
	if c.call >= len(c.replies) {
		return "", errors.New("unexpected call")
	}
	out := c.replies[c.call]
	c.call++
	return out, nil
}

func TestMediumEmitsOutlineThenFinalAnswer(t *testing.T) {
	caller := &scriptedCaller{replies: []string{"- point one\n- point two", "the full answer"}}
	m := NewMedium(caller, zerolog.Nop())

	var texts []string
	var finals []bool
	err := m.Run(context.Background(), chat.Request{Message: "q"}, func(text string, finished bool) {
		texts = append(texts, text)
		finals = append(finals, finished)
	})
	require.NoError(t, err)
	require.Len(t, texts, 2)
	assert.Equal(t, "- point one\n- point two", texts[0])
	assert.Equal(t, "the full answer", texts[1])
	assert.Equal(t, []bool{false, true}, finals)

	// The second prompt carries the outline forward.
	assert.Contains(t, caller.prompts[1], "point one")
}

func TestMediumPropagatesCallerError(t *testing.T) {
	m := NewMedium(&scriptedCaller{err: errors.New("upstream 500")}, zerolog.Nop())
	err := m.Run(context.Background(), chat.Request{}, func(string, bool) {
		t.Fatal("no updates expected on first-step failure")
	})
	require.Error(t, err)
}

func TestHighDecomposesAndSynthesizes(t *testing.T) {
	caller := &scriptedCaller{replies: []string{
		"- what\n- why",
		"answer to what",
		"answer to why",
		"synthesized answer",
	}}
	h := NewHigh(caller, zerolog.Nop())

	var texts []string
	var finals []bool
	err := h.Run(context.Background(), chat.Request{Message: "q"}, func(text string, finished bool) {
		texts = append(texts, text)
		finals = append(finals, finished)
	})
	require.NoError(t, err)
	require.Len(t, texts, 4)
	assert.Equal(t, "synthesized answer", texts[len(texts)-1])
	for i, f := range finals {
		assert.Equal(t, i == len(finals)-1, f, "only the last update is terminal")
	}
}

func TestHighCancellationStopsBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	caller := &scriptedCaller{replies: []string{"- a\n- b", "answer a", "answer b", "final"}}
	h := NewHigh(caller, zerolog.Nop())

	err := h.Run(ctx, chat.Request{}, func(text string, finished bool) {
		cancel()
		assert.False(t, finished)
	})
	require.Error(t, err)
	assert.True(t, chat.IsCancelled(err))
}

func TestSplitParts(t *testing.T) {
	parts := splitParts("- one\n\n* two\n• three\nfour", 3)
	assert.Equal(t, []string{"one", "two", "three"}, parts)

	assert.Equal(t, []string{"just text"}, splitParts("just text", 4))
}

func TestTransportCallerKeepsFinalText(t *testing.T) {
	tc := &TransportCaller{Transport: fakeStream{chunks: []string{"a", "ab", "abc"}}, Endpoint: "http://x"}
	out, err := tc.Complete(context.Background(), chat.Request{})
	require.NoError(t, err)
	assert.Equal(t, "abc", out)
}

func TestTransportCallerSurfacesErrorCallback(t *testing.T) {
	tc := &TransportCaller{Transport: fakeStream{errMsg: "bad gateway"}, Endpoint: "http://x"}
	_, err := tc.Complete(context.Background(), chat.Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad gateway")
}

type fakeStream struct {
	chunks []string
	errMsg string
}

func (f fakeStream) Stream(_ context.Context, _ string, _ chat.Request, onChunk chat.ChunkFunc) error {
	if f.errMsg != "" {
		onChunk(f.errMsg, false, true)
		return nil
	}
	for _, c := range f.chunks {
		onChunk(c, false, false)
	}
	if len(f.chunks) > 0 {
		onChunk(f.chunks[len(f.chunks)-1], true, false)
	}
	return nil
}
