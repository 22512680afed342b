package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// cancelledNotice is appended to the partial assistant output when the user
// stops a send.
const cancelledNotice = "[Stopped]"

// Options configure a session's sends.
type Options struct {
	Mode         ChatMode
	ComputeLevel ComputeLevel
	Backend      string
	Model        string
	Auth         AuthContext
	Persona      string
	Profile      string
	Note         string
	Limits       Limits
	// HistoryWindow bounds how many prior turns are handed to the
	// optimizer and the model; <= 0 means all of them.
	HistoryWindow int
}

// Collaborators are the external services a session orchestrates. Only the
// transport (or a compute strategy, depending on compute level) is
// mandatory; nil stages are skipped.
type Collaborators struct {
	Scraper   Scraper
	Optimizer QueryOptimizer
	Searcher  WebSearcher
	Pages     PageReader
	Transport StreamingTransport
	Medium    ComputeStrategy
	High      ComputeStrategy
}

// Session owns one conversation: its turn store, completion guard and the
// send orchestration. A new send supersedes (cancels) any in-flight one
// before appending its turn pair, so at most one assistant turn is ever
// open.
type Session struct {
	id         string
	store      *TurnStore
	guard      *CompletionGuard
	reconciler *Reconciler
	pipeline   *Pipeline
	dispatcher *Dispatcher

	optsMu sync.RWMutex
	opts   Options

	// sendMu serializes the supersede/append/begin sequence so two racing
	// Send calls cannot both append a placeholder.
	sendMu sync.Mutex

	logger zerolog.Logger
}

func NewSession(id string, opts Options, collab Collaborators, logger zerolog.Logger) *Session {
	store := NewTurnStore()
	guard := NewCompletionGuard()
	sessLogger := logger.With().Str("component", "chat").Str("conv_id", id).Logger()
	return &Session{
		id:         id,
		store:      store,
		guard:      guard,
		reconciler: NewReconciler(id, store, guard, logger),
		pipeline:   NewPipeline(collab.Scraper, collab.Optimizer, collab.Searcher, collab.Pages, logger),
		dispatcher: NewDispatcher(collab.Transport, collab.Medium, collab.High, nil, logger),
		opts:       opts,
		logger:     sessLogger,
	}
}

// SetEndpoints installs the backend-id to endpoint URL table used for
// direct streaming dispatch.
func (s *Session) SetEndpoints(endpoints map[string]string) {
	s.dispatcher.endpoints = endpoints
}

func (s *Session) ID() string        { return s.id }
func (s *Session) Store() *TurnStore { return s.store }

// SetSink attaches an event sink receiving turn updates.
func (s *Session) SetSink(sink EventSink) { s.reconciler.SetSink(sink) }

// SetPhaseListener attaches a loading-flag observer.
func (s *Session) SetPhaseListener(l PhaseListener) { s.reconciler.SetPhaseListener(l) }

// SetOptions replaces the send options used for subsequent sends.
func (s *Session) SetOptions(opts Options) {
	s.optsMu.Lock()
	s.opts = opts
	s.optsMu.Unlock()
}

func (s *Session) Options() Options {
	s.optsMu.RLock()
	defer s.optsMu.RUnlock()
	return s.opts
}

// IsBusy reports whether a send is in flight.
func (s *Session) IsBusy() bool { return !s.guard.Empty() }

// SendHandle identifies one send and lets callers wait for its terminal
// update.
type SendHandle struct {
	Token       Token
	UserTurnID  string
	AssistantID string
	done        chan struct{}
}

// Done is closed once the send's goroutine has finished, terminal update
// included.
func (h *SendHandle) Done() <-chan struct{} { return h.done }

// Wait blocks until the send finished or ctx expires.
func (h *SendHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send starts one message-send operation. The user turn and an assistant
// placeholder are appended synchronously before any async work, so the UI
// reflects the action immediately; everything else runs in the send
// goroutine. An in-flight send is cancelled first.
func (s *Session) Send(ctx context.Context, message string) (*SendHandle, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, errors.New("message is empty")
	}
	opts := s.Options()

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	// Supersede: the previous operation is closed out as cancelled before
	// the new placeholder is appended, keeping exactly one open assistant
	// turn.
	s.cancelActive("")

	history := s.store.History(opts.HistoryWindow)
	userID, assistantID, err := s.store.AppendExchange(message)
	if err != nil {
		return nil, err
	}
	tok, opCtx := s.guard.Begin(ctx, assistantID)
	s.reconciler.MarkLoading()
	s.reconciler.EmitTurn(userID)
	s.reconciler.EmitTurn(assistantID)

	s.logger.Info().Int64("token", int64(tok)).Str("mode", string(opts.Mode)).
		Str("compute_level", string(opts.ComputeLevel)).Msg("send started")

	handle := &SendHandle{Token: tok, UserTurnID: userID, AssistantID: assistantID, done: make(chan struct{})}
	go func() {
		defer close(handle.done)
		s.run(opCtx, tok, assistantID, message, history, opts)
	}()
	return handle, nil
}

// Stop aborts the active send and synchronously applies the cancelled
// terminal update, preserving streamed content. Returns whether a send was
// active.
func (s *Session) Stop() bool {
	return s.cancelActive(cancelledNotice)
}

func (s *Session) cancelActive(notice string) bool {
	tok, turnID, ok := s.guard.CancelActive()
	if !ok {
		return false
	}
	s.logger.Info().Int64("token", int64(tok)).Msg("cancelling active send")
	s.reconciler.Apply(tok, turnID, StreamUpdate{Text: notice, Cancelled: true})
	return true
}

// run is the async part of a send: pipeline stages, dispatch, terminal
// handling. It never mutates the store on cancellation; the stop handler
// owns the user-visible cancelled transition.
func (s *Session) run(ctx context.Context, tok Token, assistantID string, message string, history []Turn, opts Options) {
	res, err := s.pipeline.Run(ctx, opts.Mode, message, history)
	if err != nil {
		if IsCancelled(err) || ctx.Err() != nil {
			s.logger.Debug().Int64("token", int64(tok)).Msg("send cancelled during pipeline")
			return
		}
		s.reconciler.Apply(tok, assistantID, StreamUpdate{Text: err.Error(), Err: true})
		return
	}

	if res.UsedFallbackQuery {
		s.reconciler.SetAuxiliary(tok, assistantID, "Searched with the original query")
	}

	frags := Fragments{
		Persona: opts.Persona,
		Profile: opts.Profile,
		Note:    opts.Note,
		Page:    res.Page,
		Web:     res.Web,
		Scraped: res.Scraped,
	}
	req := Request{
		Model:        opts.Model,
		SystemPrompt: frags.Join(opts.Limits),
		Message:      message,
		History:      history,
		Auth:         opts.Auth,
	}

	err = s.dispatcher.Dispatch(ctx, opts.ComputeLevel, opts.Backend, req, func(u StreamUpdate) {
		s.reconciler.Apply(tok, assistantID, u)
	})
	if err != nil {
		if IsCancelled(err) || ctx.Err() != nil {
			s.logger.Debug().Int64("token", int64(tok)).Msg("send cancelled during dispatch")
			return
		}
		s.logger.Error().Err(err).Int64("token", int64(tok)).Msg("dispatch failed")
		s.reconciler.Apply(tok, assistantID, StreamUpdate{Text: err.Error(), Err: true})
		return
	}

	// Strategies promise exactly one terminal callback, but a transport
	// that returns nil without one would leave the guard held forever.
	if s.guard.IsActive(tok) {
		s.reconciler.Apply(tok, assistantID, StreamUpdate{Finished: true})
	}
}
