package compute

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cassowary-ai/sidekick/pkg/chat"
)

// CallerOptimizer rewrites a user message into a standalone search query by
// asking the model, with recent turns folded in so follow-up questions
// resolve their pronouns.
type CallerOptimizer struct {
	caller     Caller
	model      string
	maxHistory int
	logger     zerolog.Logger
}

func NewCallerOptimizer(caller Caller, model string, logger zerolog.Logger) *CallerOptimizer {
	return &CallerOptimizer{
		caller:     caller,
		model:      model,
		maxHistory: 6,
		logger:     logger.With().Str("component", "optimizer").Logger(),
	}
}

func (o *CallerOptimizer) Optimize(ctx context.Context, message string, history []chat.Turn) (string, error) {
	var b strings.Builder
	b.WriteString("Rewrite the user's latest message as a standalone web search query. ")
	b.WriteString("Reply with the query only, no quotes, no commentary.")
	if n := len(history); n > 0 {
		start := 0
		if n > o.maxHistory {
			start = n - o.maxHistory
		}
		b.WriteString("\n\nConversation so far:")
		for _, t := range history[start:] {
			b.WriteString("\n")
			b.WriteString(string(t.Role))
			b.WriteString(": ")
			b.WriteString(t.Content)
		}
	}

	out, err := o.caller.Complete(ctx, chat.Request{
		Model:        o.model,
		SystemPrompt: b.String(),
		Message:      message,
	})
	if err != nil {
		return "", err
	}
	query := strings.TrimSpace(strings.Trim(strings.TrimSpace(out), `"`))
	if query == "" {
		o.logger.Debug().Msg("optimizer returned empty query")
		return message, nil
	}
	return query, nil
}
