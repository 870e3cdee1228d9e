// Package inference holds the clients for the ML collaborators (embedding
// sidecar, speech-to-text) and the guard every call to them goes through.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voice-auth/internal/voice"
	"voice-auth/pkg/logger"

	"github.com/sony/gobreaker"
)

// SlotLimiter caps concurrent inference calls across processes.
type SlotLimiter interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type GuardConfig struct {
	// Name labels the breaker in logs.
	Name string

	// Timeout bounds a single call. Default: 30 seconds.
	Timeout time.Duration

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5
	MaxFailures uint32

	// OpenTimeout is how long the breaker stays open before letting trial
	// requests through. Default: 30 seconds
	OpenTimeout time.Duration

	// HalfOpenMaxRequests is the number of trial requests allowed while half-open.
	// Default: 1
	HalfOpenMaxRequests uint32
}

// Guard applies a deadline, a circuit breaker and an optional slot limit to
// calls into one collaborator.
type Guard struct {
	cfg     GuardConfig
	breaker *gobreaker.CircuitBreaker
	slots   SlotLimiter
}

func NewGuard(cfg GuardConfig, slots SlotLimiter) *Guard {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests == 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	g := &Guard{cfg: cfg, slots: slots}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenMaxRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		// Rejected input says nothing about the collaborator's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, voice.ErrValidation)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("inference circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return g
}

// Do runs fn under the guard. A deadline hit by the guard's own timeout
// becomes voice.ErrDependencyTimeout; an open breaker or a full slot pool
// becomes voice.ErrDependencyBusy. Cancellation of ctx itself is returned
// unchanged.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if g.slots != nil {
		ok, err := g.slots.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("%w: %s: acquire slot: %v", voice.ErrDependency, g.cfg.Name, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s: all inference slots in use", voice.ErrDependencyBusy, g.cfg.Name)
		}
		defer func() {
			if err := g.slots.Release(context.WithoutCancel(ctx)); err != nil {
				logger.From(ctx).Warn("release inference slot failed", "dependency", g.cfg.Name, "err", err)
			}
		}()
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn(callCtx)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: %s: circuit open", voice.ErrDependencyBusy, g.cfg.Name)
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s after %s", voice.ErrDependencyTimeout, g.cfg.Name, g.cfg.Timeout)
	default:
		return err
	}
}

// State returns the breaker state: "closed", "open" or "half-open".
func (g *Guard) State() string {
	return g.breaker.State().String()
}
