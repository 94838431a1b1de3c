// Package memory provides an in-memory Target that behaves like a GitHub
// repository closely enough for migration tests: numbers are allocated
// sequentially from 1, labels must exist before use, and every call is logged
// in order.
package memory

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/trackbridge/trackbridge/internal/github"
	"github.com/trackbridge/trackbridge/internal/target"
)

var _ target.Target = (*Target)(nil)

// Call is one recorded remote operation.
type Call struct {
	Op     string // "create_issue", "create_comment", "close_issue", "get_label", "create_label", ...
	Number int    // Issue number the call acted on, when relevant
	Arg    string // Title, comment body or label name
}

func (c Call) String() string {
	if c.Number != 0 {
		return fmt.Sprintf("%s #%d", c.Op, c.Number)
	}
	return fmt.Sprintf("%s %s", c.Op, c.Arg)
}

// IssueRecord is a stored issue together with its comments.
type IssueRecord struct {
	github.Issue
	Comments []string
}

// Target is a thread-safe fake repository.
type Target struct {
	mu            sync.Mutex
	issues        []*IssueRecord
	labels        map[string]*github.Label
	collaborators []github.User
	calls         []Call

	// Limit and Remaining model the request budget. Each write consumes one
	// request; RateLimit itself is free, as on GitHub.
	Limit     int
	Remaining int

	// FailOn makes the named operation return an error once the given issue
	// number is reached (0 means every call).
	FailOn    string
	FailAfter int
}

// New creates an empty repository with a generous budget.
func New(collaborators ...string) *Target {
	t := &Target{
		labels:    make(map[string]*github.Label),
		Limit:     5000,
		Remaining: 5000,
	}
	for i, login := range collaborators {
		t.collaborators = append(t.collaborators, github.User{ID: i + 1, Login: login})
	}
	return t
}

// Seed appends pre-existing issues, e.g. from an earlier interrupted run.
// Numbers must be contiguous with what already exists.
func (t *Target) Seed(titles ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, title := range titles {
		t.issues = append(t.issues, &IssueRecord{Issue: github.Issue{
			Number: len(t.issues) + 1,
			Title:  title,
			State:  github.StateOpen,
		}})
	}
}

// Calls returns a copy of the call log.
func (t *Target) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// CallsOf returns the logged calls of one operation.
func (t *Target) CallsOf(op string) []Call {
	var out []Call
	for _, c := range t.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the call log.
func (t *Target) ResetCalls() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = nil
}

// Issue returns the stored issue with the given number, or nil.
func (t *Target) Issue(number int) *IssueRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	if number < 1 || number > len(t.issues) {
		return nil
	}
	cp := *t.issues[number-1]
	cp.Comments = append([]string(nil), cp.Comments...)
	return &cp
}

// Len returns how many issue numbers are allocated.
func (t *Target) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.issues)
}

func (t *Target) record(c Call) error {
	t.calls = append(t.calls, c)
	if t.FailOn == c.Op && (t.FailAfter == 0 || c.Number >= t.FailAfter) {
		return &github.APIError{StatusCode: http.StatusBadGateway, Message: "injected failure"}
	}
	return nil
}

func (t *Target) spend() error {
	if t.Remaining <= 0 {
		return &github.APIError{StatusCode: http.StatusForbidden, Message: "API rate limit exceeded"}
	}
	t.Remaining--
	return nil
}

func (t *Target) FetchIssueNumbers(_ context.Context) ([]int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record(Call{Op: "list_issues"}); err != nil {
		return nil, err
	}
	numbers := make([]int, len(t.issues))
	for i, issue := range t.issues {
		numbers[i] = issue.Number
	}
	return numbers, nil
}

func (t *Target) ListCollaborators(_ context.Context) ([]github.User, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record(Call{Op: "list_collaborators"}); err != nil {
		return nil, err
	}
	return append([]github.User(nil), t.collaborators...), nil
}

func (t *Target) GetLabel(_ context.Context, name string) (*github.Label, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record(Call{Op: "get_label", Arg: name}); err != nil {
		return nil, err
	}
	label, ok := t.labels[strings.ToLower(name)]
	if !ok {
		return nil, &github.APIError{StatusCode: http.StatusNotFound, Message: "Not Found"}
	}
	cp := *label
	return &cp, nil
}

func (t *Target) CreateLabel(_ context.Context, name, color string) (*github.Label, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record(Call{Op: "create_label", Arg: name}); err != nil {
		return nil, err
	}
	if err := t.spend(); err != nil {
		return nil, err
	}
	key := strings.ToLower(name)
	if _, exists := t.labels[key]; exists {
		return nil, &github.APIError{StatusCode: http.StatusUnprocessableEntity, Message: "Validation Failed"}
	}
	label := &github.Label{ID: len(t.labels) + 1, Name: name, Color: color}
	t.labels[key] = label
	cp := *label
	return &cp, nil
}

func (t *Target) CreateIssue(_ context.Context, req github.IssueRequest) (*github.Issue, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	number := len(t.issues) + 1
	if err := t.record(Call{Op: "create_issue", Number: number, Arg: req.Title}); err != nil {
		return nil, err
	}
	if err := t.spend(); err != nil {
		return nil, err
	}

	issue := github.Issue{
		ID:     1000 + number,
		Number: number,
		Title:  req.Title,
		Body:   req.Body,
		State:  github.StateOpen,
	}
	for _, name := range req.Labels {
		label, ok := t.labels[strings.ToLower(name)]
		if !ok {
			// GitHub silently creates unknown labels; tests want to notice.
			return nil, &github.APIError{StatusCode: http.StatusUnprocessableEntity, Message: "unknown label " + name}
		}
		issue.Labels = append(issue.Labels, *label)
	}
	if req.Assignee != "" {
		if !t.isCollaborator(req.Assignee) {
			return nil, &github.APIError{StatusCode: http.StatusUnprocessableEntity, Message: "invalid assignee " + req.Assignee}
		}
		issue.Assignee = &github.User{Login: req.Assignee}
	}

	t.issues = append(t.issues, &IssueRecord{Issue: issue})
	cp := issue
	return &cp, nil
}

func (t *Target) isCollaborator(login string) bool {
	for _, u := range t.collaborators {
		if strings.EqualFold(u.Login, login) {
			return true
		}
	}
	return false
}

func (t *Target) CreateComment(_ context.Context, number int, body string) (*github.Comment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record(Call{Op: "create_comment", Number: number, Arg: body}); err != nil {
		return nil, err
	}
	if number < 1 || number > len(t.issues) {
		return nil, &github.APIError{StatusCode: http.StatusNotFound, Message: "Not Found"}
	}
	issue := t.issues[number-1]
	if issue.State == github.StateClosed {
		return nil, fmt.Errorf("issue #%d is closed", number)
	}
	if err := t.spend(); err != nil {
		return nil, err
	}
	issue.Comments = append(issue.Comments, body)
	return &github.Comment{ID: len(issue.Comments), Body: body}, nil
}

func (t *Target) CloseIssue(_ context.Context, number int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record(Call{Op: "close_issue", Number: number}); err != nil {
		return err
	}
	if number < 1 || number > len(t.issues) {
		return &github.APIError{StatusCode: http.StatusNotFound, Message: "Not Found"}
	}
	if err := t.spend(); err != nil {
		return err
	}
	t.issues[number-1].State = github.StateClosed
	return nil
}

func (t *Target) RateLimit(_ context.Context) (*github.RateLimit, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.record(Call{Op: "rate_limit"}); err != nil {
		return nil, err
	}
	return &github.RateLimit{Limit: t.Limit, Remaining: t.Remaining, Used: t.Limit - t.Remaining}, nil
}
