package chat

// StreamUpdate is one increment from an execution strategy. Text carries
// the full accumulated payload for streaming and finished updates, the
// cancellation notice for cancelled updates, and the error message for
// error updates.
type StreamUpdate struct {
	Text      string
	Finished  bool
	Err       bool
	Cancelled bool
}

// Terminal reports whether the update closes the turn.
func (u StreamUpdate) Terminal() bool {
	return u.Finished || u.Err || u.Cancelled
}

// ApplyUpdate is the pure reducer from (turn, update) to the next turn
// state. Terminal statuses are absorbing. Flag priority when several are
// set: error, then cancelled, then finished, then streaming.
//
// Cancellation appends the notice to the partial content, separated by a
// space, so streamed output is preserved and annotated rather than
// discarded. Errors replace the content with "Error: <message>". Streaming
// replaces content wholesale with the cumulative payload; a finished update
// with empty text keeps the last streamed content.
func ApplyUpdate(t Turn, u StreamUpdate) Turn {
	if t.Status.Terminal() {
		return t
	}
	switch {
	case u.Err:
		t.Status = StatusError
		t.Content = "Error: " + u.Text
	case u.Cancelled:
		t.Status = StatusCancelled
		if u.Text != "" {
			if t.Content != "" {
				t.Content += " " + u.Text
			} else {
				t.Content = u.Text
			}
		}
	case u.Finished:
		t.Status = StatusComplete
		if u.Text != "" {
			t.Content = u.Text
		}
	default:
		t.Status = StatusStreaming
		t.Content = u.Text
	}
	return t
}
