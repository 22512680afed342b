// Package chat is the message-send orchestration core: it sequences the
// optional pre-processing stages (URL scrape, query optimization, web
// search, page acquisition), dispatches to one execution strategy (direct
// streaming or a medium/high multi-step compute pipeline), and reconciles
// the resulting updates into a single transcript.
//
// Ordering model:
//   - Every send mints a guard token (CompletionGuard) paired 1:1 with a
//     cancellation scope; only the active token's non-terminal updates are
//     applied to the TurnStore.
//   - Terminal updates flush and release the guard exactly once; late
//     terminals from superseded sends only resynchronize the loading flag.
//   - Cancellation is best-effort on the network side; correctness comes
//     from the token gate, not from aborts landing in time.
package chat
