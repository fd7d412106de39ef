package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// BreakerConfig holds circuit breaker settings for a model backend.
type BreakerConfig struct {
	MaxRequests      uint32        // Requests allowed through while half-open
	Interval         time.Duration // Closed-state window after which counts reset
	Timeout          time.Duration // Open-state duration before probing again
	MinRequests      uint32        // Requests needed before the failure ratio is considered
	FailureThreshold float64       // Failure ratio that trips the breaker
}

// DefaultBreakerConfig returns the default breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		MinRequests:      5,
		FailureThreshold: 0.6,
	}
}

// Breaker stops calling a failing backend until it recovers.
type Breaker struct {
	inner Model
	cb    *gobreaker.TwoStepCircuitBreaker
}

type streamingBreaker struct {
	*Breaker
	streamer Streamer
}

// WithBreaker wraps model in a circuit breaker. The result implements
// Streamer exactly when model does.
func WithBreaker(model Model, cfg BreakerConfig) Model {
	b := &Breaker{
		inner: model,
		cb: gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
			Name:        model.Name(),
			MaxRequests: cfg.MaxRequests,
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < cfg.MinRequests {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("backend", name).Str("from", from.String()).Str("to", to.String()).Msg("Model circuit breaker state changed")
			},
		}),
	}
	if s, ok := model.(Streamer); ok {
		return &streamingBreaker{Breaker: b, streamer: s}
	}
	return b
}

// Name returns the wrapped backend name.
func (b *Breaker) Name() string {
	return b.inner.Name()
}

// State returns the breaker state name.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Complete calls the backend unless the breaker is open.
func (b *Breaker) Complete(ctx context.Context, prompt string) (string, error) {
	done, err := b.allow()
	if err != nil {
		return "", err
	}
	text, err := b.inner.Complete(ctx, prompt)
	done(countsAsSuccess(err))
	return text, err
}

// Stream forwards the backend stream unless the breaker is open.
func (s *streamingBreaker) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		done, err := s.allow()
		if err != nil {
			yield("", err)
			return
		}

		var streamErr error
		defer func() { done(countsAsSuccess(streamErr)) }()

		for fragment, err := range s.streamer.Stream(ctx, prompt) {
			if err != nil {
				streamErr = err
				yield("", err)
				return
			}
			if !yield(fragment, nil) {
				return
			}
		}
	}
}

func (b *Breaker) allow() (func(bool), error) {
	done, err := b.cb.Allow()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, b.inner.Name(), err)
	}
	return done, nil
}

// countsAsSuccess treats caller cancellation as success so disconnects don't trip the breaker.
func countsAsSuccess(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}
