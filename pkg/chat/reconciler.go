package chat

import (
	"github.com/rs/zerolog"
)

// Phase is the conversation-level loading flag surfaced to the UI.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
)

// PhaseListener observes loading-flag transitions.
type PhaseListener func(Phase)

// Reconciler merges stream updates into the turn store, gated by the
// completion guard. It is safe to call from arbitrary completion order:
// stale non-terminal updates are dropped, terminal updates for the active
// token flush and release the guard exactly once, and stale terminal
// updates only resynchronize the loading flag.
type Reconciler struct {
	convID  string
	store   *TurnStore
	guard   *CompletionGuard
	sink    EventSink
	onPhase PhaseListener
	logger  zerolog.Logger
}

func NewReconciler(convID string, store *TurnStore, guard *CompletionGuard, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		convID: convID,
		store:  store,
		guard:  guard,
		logger: logger.With().Str("component", "reconciler").Str("conv_id", convID).Logger(),
	}
}

func (r *Reconciler) SetSink(sink EventSink)           { r.sink = sink }
func (r *Reconciler) SetPhaseListener(l PhaseListener) { r.onPhase = l }

// Apply routes one update tagged with the given token at the turn the send
// started for. Returns whether the store was mutated.
func (r *Reconciler) Apply(tok Token, turnID string, u StreamUpdate) bool {
	if !r.guard.IsActive(tok) {
		if !u.Terminal() {
			r.logger.Debug().Int64("token", int64(tok)).Msg("dropping stale non-terminal update")
			return false
		}
		// Late terminal for a superseded or already-finalized operation:
		// the content is settled elsewhere, but the loading flag is reset
		// so the UI cannot get stuck.
		r.logger.Debug().Int64("token", int64(tok)).Msg("stale terminal update, resyncing phase only")
		r.emitPhase(PhaseIdle)
		return false
	}

	mutated := r.store.Update(turnID, func(t *Turn) {
		*t = ApplyUpdate(*t, u)
	})
	if !mutated {
		r.logger.Warn().Str("turn_id", turnID).Msg("update targeted unknown turn")
	}

	if u.Terminal() {
		r.guard.Complete(tok)
		r.emitPhase(PhaseIdle)
	}
	r.emitTurn(turnID)
	return mutated
}

// SetAuxiliary attaches a display-only annotation to the turn, only while
// the operation is still authoritative.
func (r *Reconciler) SetAuxiliary(tok Token, turnID string, text string) bool {
	if !r.guard.IsActive(tok) {
		return false
	}
	ok := r.store.Update(turnID, func(t *Turn) {
		t.Auxiliary = text
	})
	if ok {
		r.emitTurn(turnID)
	}
	return ok
}

// EmitTurn publishes the current state of a turn to the sink. Used by the
// session for the synchronously appended user/placeholder pair.
func (r *Reconciler) EmitTurn(turnID string) {
	r.emitTurn(turnID)
}

func (r *Reconciler) emitTurn(turnID string) {
	if r.sink == nil {
		return
	}
	t, ok := r.store.Get(turnID)
	if !ok {
		return
	}
	ev := UpdateEvent{
		ConvID:    r.convID,
		TurnID:    t.ID,
		Role:      t.Role,
		Content:   t.Content,
		Status:    t.Status,
		Auxiliary: t.Auxiliary,
	}
	if err := r.sink.Publish(ev); err != nil {
		r.logger.Warn().Err(err).Msg("failed to publish update event")
	}
}

func (r *Reconciler) emitPhase(p Phase) {
	if r.onPhase != nil {
		r.onPhase(p)
	}
}

// MarkLoading flips the loading flag on; the terminal path flips it off.
func (r *Reconciler) MarkLoading() {
	r.emitPhase(PhaseLoading)
}
