// Package remote guards a working-copy synchronizer with a circuit
// breaker, so repeated upstream failures fail fast instead of hammering a
// dead remote on every request.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"

	"github.com/agoops/alexandrie/internal/core"
)

// tripThreshold is the number of consecutive sync failures after which the
// breaker opens.
const tripThreshold = 5

// Guarded wraps a Synchronizer so its remote-touching operations go through
// a circuit breaker. Push conflicts are the expected compare-and-swap
// outcome and never count as failures; only sync failures trip the breaker.
type Guarded struct {
	sync    core.Synchronizer
	breaker *circuit.Breaker
}

// Guard wraps s with a fresh breaker.
func Guard(s core.Synchronizer) *Guarded {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	return &Guarded{
		sync: s,
		breaker: circuit.NewBreakerWithOptions(&circuit.Options{
			BackOff:    expBackoff,
			ShouldTrip: circuit.ThresholdTripFunc(tripThreshold),
		}),
	}
}

// URL returns the configured remote location.
func (g *Guarded) URL() (string, error) {
	return g.sync.URL()
}

// Root returns the path of the local working tree.
func (g *Guarded) Root() string {
	return g.sync.Root()
}

// Refresh delegates through the breaker.
func (g *Guarded) Refresh(ctx context.Context) error {
	return g.call("refresh", func() error {
		return g.sync.Refresh(ctx)
	})
}

// CommitAndPush delegates through the breaker.
func (g *Guarded) CommitAndPush(ctx context.Context, msg string) error {
	return g.call("push", func() error {
		return g.sync.CommitAndPush(ctx, msg)
	})
}

func (g *Guarded) call(op string, fn func() error) error {
	var opErr error
	err := g.breaker.Call(func() error {
		opErr = fn()
		if opErr != nil && !errors.Is(opErr, core.ErrConflict) {
			return opErr
		}
		// A conflict proves the remote answered; report success to the
		// breaker and hand the conflict back to the retry loop.
		return nil
	}, 0)

	if errors.Is(err, circuit.ErrBreakerOpen) {
		return &core.SyncError{Op: op, Err: err}
	}
	if err != nil {
		return err
	}
	return opErr
}
