package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackbridge/trackbridge/internal/github"
	"github.com/trackbridge/trackbridge/internal/target/memory"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name      string
		remaining int
		threshold int
		wantErr   bool
	}{
		{"plenty", 5000, 50, false},
		{"exactly at threshold", 50, 50, false},
		{"one below threshold", 49, 50, true},
		{"default threshold", 10, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := memory.New()
			repo.Remaining = tt.remaining

			err := New(repo, tt.threshold).Check(context.Background())
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var budget *BudgetExhaustedError
			require.ErrorAs(t, err, &budget)
			assert.Equal(t, tt.remaining, budget.Remaining)
			assert.Equal(t, 5000, budget.Limit)
		})
	}
}

func TestRemainingIsLive(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	gov := New(repo, DefaultSpare)

	before, err := gov.Remaining(ctx)
	require.NoError(t, err)

	_, err = repo.CreateLabel(ctx, "imported", "FFFFFF")
	require.NoError(t, err)

	after, err := gov.Remaining(ctx)
	require.NoError(t, err)
	assert.Equal(t, before-1, after)
	assert.Len(t, repo.CallsOf("rate_limit"), 2)
}

type brokenSource struct{}

func (brokenSource) RateLimit(context.Context) (*github.RateLimit, error) {
	return nil, errors.New("connection refused")
}

func TestCheckPropagatesSourceError(t *testing.T) {
	err := New(brokenSource{}, 0).Check(context.Background())
	require.Error(t, err)
	var budget *BudgetExhaustedError
	assert.False(t, errors.As(err, &budget))
}

func TestBudgetExhaustedErrorMessage(t *testing.T) {
	err := &BudgetExhaustedError{Remaining: 3, Limit: 5000, Threshold: 50}
	assert.Equal(t, "rate limit nearly exhausted: 3/5000 requests remaining (need at least 50)", err.Error())

	err.Reset = time.Unix(1700000000, 0)
	assert.Contains(t, err.Error(), "resets at")
}
