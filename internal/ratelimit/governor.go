// Package ratelimit decides whether enough API budget is left to start the
// next unit of work.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/trackbridge/trackbridge/internal/github"
)

// DefaultSpare is the number of requests kept in reserve. An item can cost
// several requests (issue, comments, close, label creation), so the check
// runs against a margin rather than zero.
const DefaultSpare = 50

// Source reports the current request budget.
type Source interface {
	RateLimit(ctx context.Context) (*github.RateLimit, error)
}

// BudgetExhaustedError stops a run before work that might not finish.
type BudgetExhaustedError struct {
	Remaining int
	Limit     int
	Threshold int
	Reset     time.Time
}

func (e *BudgetExhaustedError) Error() string {
	msg := fmt.Sprintf("rate limit nearly exhausted: %d/%d requests remaining (need at least %d)",
		e.Remaining, e.Limit, e.Threshold)
	if !e.Reset.IsZero() {
		msg += fmt.Sprintf("; resets at %s", e.Reset.Local().Format(time.Kitchen))
	}
	return msg
}

// Governor queries the budget live on every call. Nothing is cached, so
// consumption by other clients sharing the token is always visible.
type Governor struct {
	source    Source
	threshold int
}

// New returns a governor that refuses work once fewer than threshold
// requests remain. A non-positive threshold means DefaultSpare.
func New(source Source, threshold int) *Governor {
	if threshold <= 0 {
		threshold = DefaultSpare
	}
	return &Governor{source: source, threshold: threshold}
}

// Threshold returns the configured spare count.
func (g *Governor) Threshold() int { return g.threshold }

// Snapshot returns the full budget as reported by the target.
func (g *Governor) Snapshot(ctx context.Context) (*github.RateLimit, error) {
	rl, err := g.source.RateLimit(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading rate limit: %w", err)
	}
	return rl, nil
}

// Remaining returns the number of requests left.
func (g *Governor) Remaining(ctx context.Context) (int, error) {
	rl, err := g.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return rl.Remaining, nil
}

// Check returns a *BudgetExhaustedError when the remaining budget is below
// the threshold.
func (g *Governor) Check(ctx context.Context) error {
	rl, err := g.Snapshot(ctx)
	if err != nil {
		return err
	}
	if rl.Remaining < g.threshold {
		return &BudgetExhaustedError{
			Remaining: rl.Remaining,
			Limit:     rl.Limit,
			Threshold: g.threshold,
			Reset:     rl.Reset,
		}
	}
	return nil
}
