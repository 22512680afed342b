// Package compute provides the medium and high compute-level strategies:
// multi-step pipelines over a blocking completion caller. Each Run emits
// incremental cumulative text through onUpdate and exactly one terminal
// call; step structure and intermediate prompts are internal to the
// strategy and opaque to the dispatcher.
package compute

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/cassowary-ai/sidekick/pkg/chat"
)

// Caller performs one blocking model completion.
type Caller interface {
	Complete(ctx context.Context, req chat.Request) (string, error)
}

// TransportCaller adapts a streaming transport into a blocking Caller by
// keeping only the final accumulated text.
type TransportCaller struct {
	Transport chat.StreamingTransport
	Endpoint  string
}

func (c *TransportCaller) Complete(ctx context.Context, req chat.Request) (string, error) {
	if c == nil || c.Transport == nil {
		return "", errors.Wrap(chat.ErrConfig, "transport caller is not initialized")
	}
	final := ""
	failMsg := ""
	failed := false
	err := c.Transport.Stream(ctx, c.Endpoint, req, func(chunk string, finished bool, isErr bool) {
		if isErr {
			failed = true
			failMsg = chunk
			return
		}
		final = chunk
	})
	if err != nil {
		return "", err
	}
	if failed {
		return "", errors.Wrapf(chat.ErrTransport, "%s", failMsg)
	}
	return final, nil
}

func withInstruction(req chat.Request, instruction string) chat.Request {
	if req.SystemPrompt == "" {
		req.SystemPrompt = instruction
		return req
	}
	req.SystemPrompt = req.SystemPrompt + "\n\n" + instruction
	return req
}

func checkCancelled(ctx context.Context) error {
	if ctx.Err() != nil {
		return errors.Wrap(chat.ErrCancelled, "compute strategy aborted")
	}
	return nil
}

// Medium is the two-step strategy: draft an outline, then answer using it.
type Medium struct {
	caller Caller
	logger zerolog.Logger
}

func NewMedium(caller Caller, logger zerolog.Logger) *Medium {
	return &Medium{caller: caller, logger: logger.With().Str("component", "compute").Str("level", "medium").Logger()}
}

func (m *Medium) Run(ctx context.Context, req chat.Request, onUpdate chat.UpdateFunc) error {
	outline, err := m.caller.Complete(ctx, withInstruction(req,
		"Produce a short outline of the answer. Bullet points only, no prose."))
	if err != nil {
		return err
	}
	if err := checkCancelled(ctx); err != nil {
		return err
	}
	m.logger.Debug().Int("outline_len", len(outline)).Msg("outline step complete")
	onUpdate(outline, false)

	answer, err := m.caller.Complete(ctx, withInstruction(req,
		"Answer the question fully, following this outline:\n"+outline))
	if err != nil {
		return err
	}
	if err := checkCancelled(ctx); err != nil {
		return err
	}
	onUpdate(answer, true)
	return nil
}

// High is the three-phase strategy: decompose the question, answer each
// part, then synthesize.
type High struct {
	caller   Caller
	maxParts int
	logger   zerolog.Logger
}

func NewHigh(caller Caller, logger zerolog.Logger) *High {
	return &High{caller: caller, maxParts: 4, logger: logger.With().Str("component", "compute").Str("level", "high").Logger()}
}

func (h *High) Run(ctx context.Context, req chat.Request, onUpdate chat.UpdateFunc) error {
	plan, err := h.caller.Complete(ctx, withInstruction(req,
		"Break the question into its distinct sub-questions, one per line. No numbering, no commentary."))
	if err != nil {
		return err
	}
	if err := checkCancelled(ctx); err != nil {
		return err
	}
	parts := splitParts(plan, h.maxParts)
	h.logger.Debug().Int("parts", len(parts)).Msg("decomposition complete")
	onUpdate(plan, false)

	var findings []string
	for _, part := range parts {
		answer, err := h.caller.Complete(ctx, withInstruction(req,
			"Answer only this sub-question, concisely:\n"+part))
		if err != nil {
			return err
		}
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		findings = append(findings, part+"\n"+answer)
		onUpdate(plan+"\n\n"+strings.Join(findings, "\n\n"), false)
	}

	final, err := h.caller.Complete(ctx, withInstruction(req,
		"Synthesize a complete answer from these findings:\n"+strings.Join(findings, "\n\n")))
	if err != nil {
		return err
	}
	if err := checkCancelled(ctx); err != nil {
		return err
	}
	onUpdate(final, true)
	return nil
}

func splitParts(plan string, max int) []string {
	var parts []string
	for _, line := range strings.Split(plan, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*• \t"))
		if line == "" {
			continue
		}
		parts = append(parts, line)
		if len(parts) == max {
			break
		}
	}
	if len(parts) == 0 {
		parts = []string{plan}
	}
	return parts
}
