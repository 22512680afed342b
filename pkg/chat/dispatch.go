package chat

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ComputeLevel selects which execution strategy handles model dispatch.
type ComputeLevel string

const (
	// ComputeDefault streams directly from the backend endpoint.
	ComputeDefault ComputeLevel = ""
	ComputeMedium  ComputeLevel = "medium"
	ComputeHigh    ComputeLevel = "high"
)

// Dispatcher invokes exactly one execution strategy per send. It performs
// no retries of its own; multi-step behavior is internal to the medium and
// high strategies.
type Dispatcher struct {
	transport StreamingTransport
	medium    ComputeStrategy
	high      ComputeStrategy
	endpoints map[string]string
	logger    zerolog.Logger
}

func NewDispatcher(transport StreamingTransport, medium, high ComputeStrategy, endpoints map[string]string, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		medium:    medium,
		high:      high,
		endpoints: endpoints,
		logger:    logger.With().Str("component", "dispatch").Logger(),
	}
}

// Resolve maps a backend identifier to its endpoint URL. An unresolvable
// backend is a fatal configuration error for the send.
func (d *Dispatcher) Resolve(backendID string) (string, error) {
	url, ok := d.endpoints[backendID]
	if !ok || url == "" {
		return "", errors.Wrapf(ErrConfig, "no endpoint configured for backend %q", backendID)
	}
	return url, nil
}

// Dispatch runs the selected strategy, translating its callbacks into
// stream updates via apply. The strategy emits zero or more incremental
// updates plus exactly one terminal update.
func (d *Dispatcher) Dispatch(ctx context.Context, level ComputeLevel, backendID string, req Request, apply func(StreamUpdate)) error {
	switch level {
	case ComputeHigh:
		if d.high == nil {
			return errors.Wrap(ErrConfig, "high compute strategy is not configured")
		}
		d.logger.Debug().Str("level", "high").Msg("dispatching to multi-step strategy")
		return d.high.Run(ctx, req, strategyAdapter(apply))
	case ComputeMedium:
		if d.medium == nil {
			return errors.Wrap(ErrConfig, "medium compute strategy is not configured")
		}
		d.logger.Debug().Str("level", "medium").Msg("dispatching to multi-step strategy")
		return d.medium.Run(ctx, req, strategyAdapter(apply))
	default:
		if d.transport == nil {
			return errors.Wrap(ErrConfig, "streaming transport is not configured")
		}
		url, err := d.Resolve(backendID)
		if err != nil {
			return err
		}
		d.logger.Debug().Str("backend", backendID).Str("endpoint", url).Msg("dispatching direct stream")
		return d.transport.Stream(ctx, url, req, func(chunk string, finished bool, isErr bool) {
			switch {
			case isErr:
				apply(StreamUpdate{Text: chunk, Err: true})
			case finished:
				apply(StreamUpdate{Text: chunk, Finished: true})
			default:
				apply(StreamUpdate{Text: chunk})
			}
		})
	}
}

func strategyAdapter(apply func(StreamUpdate)) UpdateFunc {
	return func(text string, finished bool) {
		apply(StreamUpdate{Text: text, Finished: finished})
	}
}
