package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendExchangeAppendsPairSynchronously(t *testing.T) {
	s := NewTurnStore()
	userID, assistantID, err := s.AppendExchange("hello")
	require.NoError(t, err)
	require.NotEmpty(t, userID)
	require.NotEmpty(t, assistantID)
	assert.NotEqual(t, userID, assistantID)

	turns := s.Snapshot()
	require.Len(t, turns, 2)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, StatusComplete, turns[0].Status)
	assert.Equal(t, RoleAssistant, turns[1].Role)
	assert.Equal(t, StatusPending, turns[1].Status)
	assert.Empty(t, turns[1].Content)
}

func TestAppendExchangeRefusesOpenAssistant(t *testing.T) {
	s := NewTurnStore()
	_, assistantID, err := s.AppendExchange("first")
	require.NoError(t, err)

	_, _, err = s.AppendExchange("second")
	require.Error(t, err, "at most one open assistant turn")

	// Closing the turn unblocks the next exchange.
	s.Update(assistantID, func(t *Turn) { t.Status = StatusCancelled })
	_, _, err = s.AppendExchange("second")
	require.NoError(t, err)
	assert.Equal(t, 4, s.Len())
}

func TestUpdateUnknownID(t *testing.T) {
	s := NewTurnStore()
	assert.False(t, s.Update("nope", func(t *Turn) {}))
	assert.False(t, s.Update("", func(t *Turn) {}))
}

func TestHistoryWindow(t *testing.T) {
	s := NewTurnStore()
	for i := 0; i < 3; i++ {
		_, aid, err := s.AppendExchange("msg")
		require.NoError(t, err)
		s.Update(aid, func(t *Turn) { t.Status = StatusComplete })
	}
	assert.Len(t, s.History(0), 6)
	assert.Len(t, s.History(4), 4)
	assert.Len(t, s.History(100), 6)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewTurnStore()
	_, _, err := s.AppendExchange("hello")
	require.NoError(t, err)
	snap := s.Snapshot()
	snap[0].Content = "mutated"
	assert.Equal(t, "hello", s.Snapshot()[0].Content)
}
