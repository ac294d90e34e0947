// Package reconcile polls a subscription's status after a checkout handoff
// until activation resolves one way or the other. Polling is read-only; the
// engine's confirmation path is the only writer.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/stayforge/entitle/subscription"
)

// Outcome is the result of one bounded reconciliation run.
type Outcome string

const (
	// OutcomeActivated means the subscription reached an entitled paid state.
	OutcomeActivated Outcome = "activated"
	// OutcomeFailed means the subscription settled back without activating.
	OutcomeFailed Outcome = "failed"
	// OutcomeTimedOut means the polling budget ran out before either side
	// settled. The caller decides whether to retry with a fresh budget.
	OutcomeTimedOut Outcome = "timed_out"
)

// StatusFunc reads the subscription's current status. Implementations must
// not mutate state.
type StatusFunc func(ctx context.Context) (subscription.Status, error)

// Options bounds a reconciliation run.
type Options struct {
	// Attempts is the maximum number of status reads. Zero or negative
	// falls back to DefaultAttempts.
	Attempts int
	// Interval is the wait between reads. Zero or negative falls back to
	// DefaultInterval.
	Interval time.Duration
	// Logger receives per-attempt debug output. Nil means slog.Default.
	Logger *slog.Logger
}

const (
	DefaultAttempts = 10
	DefaultInterval = 3 * time.Second
)

func (o Options) normalized() Options {
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Run polls status until the subscription settles or the budget runs out.
// Pending is the only state that keeps the loop going: an entitled paid
// state resolves to Activated, a settled unpaid state to Failed. Context
// cancellation ends the run as TimedOut.
func Run(ctx context.Context, status StatusFunc, opts Options) (Outcome, error) {
	o := opts.normalized()

	ticker := time.NewTicker(o.Interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= o.Attempts; attempt++ {
		s, err := status(ctx)
		if err != nil {
			return OutcomeTimedOut, err
		}

		o.Logger.Debug("reconcile attempt",
			"attempt", attempt,
			"status", s,
		)

		switch {
		case s == subscription.StatusActive || s == subscription.StatusTrialing:
			return OutcomeActivated, nil
		case s != subscription.StatusPending:
			return OutcomeFailed, nil
		}

		if attempt == o.Attempts {
			break
		}

		select {
		case <-ctx.Done():
			return OutcomeTimedOut, ctx.Err()
		case <-ticker.C:
		}
	}

	return OutcomeTimedOut, nil
}
