package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardBeginSupersedesPrior(t *testing.T) {
	g := NewCompletionGuard()

	tok1, ctx1 := g.Begin(context.Background(), "turn-1")
	require.True(t, g.IsActive(tok1))

	tok2, ctx2 := g.Begin(context.Background(), "turn-2")
	require.NotEqual(t, tok1, tok2)
	assert.Greater(t, int64(tok2), int64(tok1))

	assert.False(t, g.IsActive(tok1))
	assert.True(t, g.IsActive(tok2))

	// Superseding cancels the old scope but leaves the new one alive.
	assert.Error(t, ctx1.Err())
	assert.NoError(t, ctx2.Err())
}

func TestGuardCompleteOnlyClearsActiveToken(t *testing.T) {
	g := NewCompletionGuard()
	tok1, _ := g.Begin(context.Background(), "turn-1")
	tok2, _ := g.Begin(context.Background(), "turn-2")

	assert.False(t, g.Complete(tok1))
	assert.True(t, g.IsActive(tok2))

	assert.True(t, g.Complete(tok2))
	assert.True(t, g.Empty())

	// Duplicate completion is a no-op.
	assert.False(t, g.Complete(tok2))
	assert.False(t, g.Complete(tok1))
}

func TestGuardCancelActiveKeepsSlot(t *testing.T) {
	g := NewCompletionGuard()
	tok, ctx := g.Begin(context.Background(), "turn-1")

	gotTok, turnID, ok := g.CancelActive()
	require.True(t, ok)
	assert.Equal(t, tok, gotTok)
	assert.Equal(t, "turn-1", turnID)

	// The scope is aborted but the token stays authoritative so the stop
	// handler can still apply the cancelled terminal update.
	assert.Error(t, ctx.Err())
	assert.True(t, g.IsActive(tok))

	_, _, ok = g.CancelActive()
	assert.True(t, ok, "cancel is idempotent while the slot is held")

	require.True(t, g.Complete(tok))
	_, _, ok = g.CancelActive()
	assert.False(t, ok)
}

func TestGuardCompleteReleasesScope(t *testing.T) {
	g := NewCompletionGuard()
	tok, ctx := g.Begin(context.Background(), "turn-1")
	require.True(t, g.Complete(tok))
	assert.Error(t, ctx.Err())
}
