// Package github is a small client for the parts of the GitHub REST API that
// an issue import touches: allocated issue numbers, collaborators, labels,
// issue and comment creation, closing, and the core rate limit.
package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultAPIEndpoint = "https://api.github.com"
	DefaultTimeout     = 30 * time.Second

	// MaxRetries bounds how often a rate-limited request is replayed.
	MaxRetries = 3
	RetryDelay = time.Second

	MaxPageSize = 100
	// MaxPages stops a list walk that never runs out of "next" links.
	MaxPages = 1000

	StateOpen   = "open"
	StateClosed = "closed"
)

// Issue is the subset of an issue payload trackbridge reads back.
type Issue struct {
	ID          int        `json:"id"`
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	State       string     `json:"state"`
	CreatedAt   *time.Time `json:"created_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	Labels      []Label    `json:"labels"`
	Assignee    *User      `json:"assignee,omitempty"`
	User        *User      `json:"user,omitempty"`
	HTMLURL     string     `json:"html_url"`
	PullRequest *PullRef   `json:"pull_request,omitempty"`
}

// PullRef is set on list entries that are pull requests. They share the
// issue number sequence.
type PullRef struct {
	URL string `json:"url,omitempty"`
}

// IssueRequest describes an issue to create.
type IssueRequest struct {
	Title    string
	Body     string
	Assignee string
	Labels   []string
}

type User struct {
	ID      int    `json:"id"`
	Login   string `json:"login"`
	Name    string `json:"name,omitempty"`
	HTMLURL string `json:"html_url,omitempty"`
}

type Label struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description,omitempty"`
}

type Comment struct {
	ID      int    `json:"id"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url,omitempty"`
}

// RateLimit is the core REST budget.
type RateLimit struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Used      int       `json:"used"`
	ResetUnix int64     `json:"reset"`
	Reset     time.Time `json:"-"`
}

func (r *RateLimit) String() string {
	return fmt.Sprintf("%d/%d", r.Remaining, r.Limit)
}

// APIError is a non-2xx response.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s (status %d)", e.Message, e.StatusCode)
}

// IsNotFound reports whether err wraps a 404 APIError.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// SplitRepo splits "owner/repo". A bare name yields an empty owner.
func SplitRepo(full string) (owner, repo string) {
	owner, repo, found := strings.Cut(full, "/")
	if !found {
		return "", full
	}
	return owner, repo
}

func LabelNames(labels []Label) []string {
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = l.Name
	}
	return names
}
