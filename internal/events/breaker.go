package events

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

// BreakerSettings controls when the publish circuit opens.
type BreakerSettings struct {
	MinRequests   uint32        // requests observed before the ratio is considered
	FailureRatio  float64       // open at or above this failure ratio
	OpenTimeout   time.Duration // how long the circuit stays open
	HalfOpenCalls uint32        // trial calls allowed while half-open
}

// Breaker guards a Publisher with a circuit breaker so a dead bus costs one
// fast failure per event instead of a timeout per request.
type Breaker struct {
	next Publisher
	cb   *gobreaker.CircuitBreaker[any]
}

// NewBreaker wraps next. Zero settings select conservative defaults.
func NewBreaker(next Publisher, s BreakerSettings) *Breaker {
	if s.MinRequests == 0 {
		s.MinRequests = 5
	}
	if s.FailureRatio <= 0 {
		s.FailureRatio = 0.5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if s.HalfOpenCalls == 0 {
		s.HalfOpenCalls = 1
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "events.publish",
		MaxRequests: s.HalfOpenCalls,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellations say nothing about the bus.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return &Breaker{next: next, cb: cb}
}

// Publish implements Publisher.
func (b *Breaker) Publish(ctx context.Context, ev Event) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.next.Publish(ctx, ev)
	})
	return err
}

// State exposes the breaker state for health reporting.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

// IsCircuitOpen reports whether err came from an open or saturated breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
