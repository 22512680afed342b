package chat

import (
	"context"

	"github.com/pkg/errors"
)

// Error taxonomy for a send. Stage errors are recovered locally with
// placeholder content; config, transport and search errors terminate the
// send with an error turn; cancellation terminates it silently.
var (
	ErrConfig    = errors.New("configuration error")
	ErrTransport = errors.New("transport error")
	ErrCancelled = errors.New("operation cancelled")
	ErrStage     = errors.New("pipeline stage error")
	ErrSearch    = errors.New("web search error")
)

// IsCancelled reports whether err stems from user- or supersession-triggered
// cancellation rather than a genuine failure.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
