// Package transport implements the direct streaming transport over
// server-sent events. The client POSTs the request payload and hands the
// accumulated completion text to the caller on every event, per the
// ChunkFunc contract: zero or more non-finished calls, then exactly one
// finished or error call.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/cassowary-ai/sidekick/pkg/chat"
)

const maxErrorBodyBytes = 4096

// SSEClient is a chat.StreamingTransport over HTTP server-sent events.
type SSEClient struct {
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewSSEClient(logger zerolog.Logger) *SSEClient {
	return &SSEClient{
		// No overall timeout: streams are long-lived and cancelled via ctx.
		httpClient: &http.Client{Timeout: 0},
		logger:     logger.With().Str("component", "transport").Logger(),
	}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wirePayload struct {
	Model    string        `json:"model"`
	System   string        `json:"system,omitempty"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type wireEvent struct {
	Delta string `json:"delta"`
	Text  string `json:"text"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

func buildPayload(req chat.Request) wirePayload {
	p := wirePayload{Model: req.Model, System: req.SystemPrompt, Stream: true}
	for _, t := range req.History {
		if !t.Status.Terminal() || t.Content == "" {
			continue
		}
		p.Messages = append(p.Messages, wireMessage{Role: string(t.Role), Content: t.Content})
	}
	p.Messages = append(p.Messages, wireMessage{Role: string(chat.RoleUser), Content: req.Message})
	return p
}

// Stream performs the request. Cancellation aborts the in-flight HTTP call
// promptly and returns a cancellation error without invoking the error
// callback; the stop handler owns the user-visible transition.
func (c *SSEClient) Stream(ctx context.Context, endpoint string, req chat.Request, onChunk chat.ChunkFunc) error {
	body, err := json.Marshal(buildPayload(req))
	if err != nil {
		return errors.Wrap(err, "marshal stream payload")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build stream request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if req.Auth.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Auth.APIKey)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(chat.ErrCancelled, "stream aborted")
		}
		onChunk(err.Error(), false, true)
		return errors.Wrapf(chat.ErrTransport, "stream request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := readErrorBody(resp)
		onChunk(msg, false, true)
		return errors.Wrapf(chat.ErrTransport, "stream request: %s", msg)
	}

	acc := ""
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			onChunk(acc, true, false)
			c.logger.Debug().Str("endpoint", endpoint).Dur("elapsed", time.Since(started)).Msg("stream finished")
			return nil
		}
		var ev wireEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			c.logger.Warn().Err(err).Str("data", data).Msg("skipping malformed stream event")
			continue
		}
		if ev.Error != "" {
			onChunk(ev.Error, false, true)
			return errors.Wrapf(chat.ErrTransport, "stream error event: %s", ev.Error)
		}
		switch {
		case ev.Delta != "":
			acc += ev.Delta
		case ev.Text != "":
			acc = ev.Text
		}
		if ev.Done {
			onChunk(acc, true, false)
			return nil
		}
		onChunk(acc, false, false)
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(chat.ErrCancelled, "stream aborted mid-read")
		}
		onChunk(err.Error(), false, true)
		return errors.Wrapf(chat.ErrTransport, "stream read: %v", err)
	}

	// Clean EOF without an explicit done marker: treat the accumulated
	// text as the completion.
	onChunk(acc, true, false)
	return nil
}

func readErrorBody(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	msg := strings.TrimSpace(string(b))
	if msg == "" {
		msg = resp.Status
	}
	return msg
}
