// Package target defines the slice of the target tracker's API that the
// migration core depends on. *github.Client implements it for real runs,
// telemetry.WrapTarget decorates it, and the memory package fakes it in tests.
package target

import (
	"context"

	"github.com/trackbridge/trackbridge/internal/github"
)

// Target is every remote operation a migration run performs.
type Target interface {
	// FetchIssueNumbers lists every issue number already allocated, open or closed.
	FetchIssueNumbers(ctx context.Context) ([]int, error)

	// ListCollaborators returns the accounts allowed to be assignees and authors.
	ListCollaborators(ctx context.Context) ([]github.User, error)

	// GetLabel fetches a label by name; github.IsNotFound reports a missing label.
	GetLabel(ctx context.Context, name string) (*github.Label, error)

	// CreateLabel creates a label with a hex color.
	CreateLabel(ctx context.Context, name, color string) (*github.Label, error)

	// CreateIssue creates an issue; the target allocates its number.
	CreateIssue(ctx context.Context, req github.IssueRequest) (*github.Issue, error)

	// CreateComment appends a comment to an existing issue.
	CreateComment(ctx context.Context, number int, body string) (*github.Comment, error)

	// CloseIssue transitions an issue to the closed state.
	CloseIssue(ctx context.Context, number int) error

	// RateLimit reads the live request budget.
	RateLimit(ctx context.Context) (*github.RateLimit, error)
}

var _ Target = (*github.Client)(nil)
