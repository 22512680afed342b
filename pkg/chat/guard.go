package chat

import (
	"context"
	"sync"
)

// Token identifies the authoritative send operation. Tokens are minted from
// a monotonic counter so supersession ordering is total even within one
// clock tick.
type Token int64

// TokenNone is the empty guard slot.
const TokenNone Token = 0

// CompletionGuard is a single-slot register holding the currently
// authoritative operation together with its cancellation scope. At most one
// token is active at any instant; beginning a new operation first cancels
// the previous scope so old and new are never concurrently authoritative.
//
// The guard substitutes for a lock on the turn store: cancellation of
// network work is best-effort and may race, but stale tokens are refused
// here regardless of how late their callbacks fire.
type CompletionGuard struct {
	mu      sync.Mutex
	counter int64
	active  Token
	turnID  string
	cancel  context.CancelFunc
}

func NewCompletionGuard() *CompletionGuard {
	return &CompletionGuard{}
}

// Begin supersedes any active operation and mints the next token. The
// returned context is the operation's cancellation scope; it is cancelled
// when the operation is superseded, stopped, or completed.
func (g *CompletionGuard) Begin(parent context.Context, turnID string) (Token, context.Context) {
	if parent == nil {
		parent = context.Background()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	g.counter++
	tok := Token(g.counter)
	ctx, cancel := context.WithCancel(parent)
	g.active = tok
	g.turnID = turnID
	g.cancel = cancel
	return tok, ctx
}

// IsActive reports whether tok currently holds the slot.
func (g *CompletionGuard) IsActive(tok Token) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return tok != TokenNone && g.active == tok
}

// Active returns the active token and the assistant turn it targets.
func (g *CompletionGuard) Active() (Token, string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == TokenNone {
		return TokenNone, "", false
	}
	return g.active, g.turnID, true
}

// Empty reports whether no operation holds the slot.
func (g *CompletionGuard) Empty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active == TokenNone
}

// Complete clears the slot and destroys the cancellation scope, but only if
// tok is still active. Returns whether the slot was cleared.
func (g *CompletionGuard) Complete(tok Token) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if tok == TokenNone || g.active != tok {
		return false
	}
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	g.active = TokenNone
	g.turnID = ""
	return true
}

// CancelActive signals the active operation's scope without releasing the
// slot. The caller (the stop handler) is responsible for the terminal
// cancelled update that then clears it.
func (g *CompletionGuard) CancelActive() (Token, string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == TokenNone {
		return TokenNone, "", false
	}
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	return g.active, g.turnID, true
}
