package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/trackbridge/trackbridge/internal/debug"
)

const maxResponseSize = 50 * 1024 * 1024

// Client talks to one repository. The With* helpers return modified copies.
type Client struct {
	Token      string
	Owner      string
	Repo       string
	BaseURL    string
	HTTPClient *http.Client

	// RetryDelay is the first wait after a rate-limited response.
	RetryDelay time.Duration
}

func NewClient(token, owner, repo string) *Client {
	return &Client{
		Token:      token,
		Owner:      owner,
		Repo:       repo,
		BaseURL:    DefaultAPIEndpoint,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		RetryDelay: RetryDelay,
	}
}

// WithBaseURL points the client at GitHub Enterprise or a test server.
func (c *Client) WithBaseURL(baseURL string) *Client {
	cp := *c
	cp.BaseURL = strings.TrimRight(baseURL, "/")
	return &cp
}

func (c *Client) WithOwner(owner string) *Client {
	cp := *c
	cp.Owner = owner
	return &cp
}

// repoURL joins path segments under /repos/{owner}/{repo}. Segments are
// escaped, so label names may contain spaces or slashes.
func (c *Client) repoURL(segments ...string) string {
	var b strings.Builder
	b.WriteString(c.BaseURL)
	b.WriteString("/repos/")
	b.WriteString(url.PathEscape(c.Owner))
	b.WriteByte('/')
	b.WriteString(url.PathEscape(c.Repo))
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// rateLimited is retried; GitHub did not apply the request.
type rateLimited struct{ status int }

func (e *rateLimited) Error() string {
	return fmt.Sprintf("rate limited (status %d)", e.status)
}

func isRateLimited(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0"
}

func (c *Client) retryPolicy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.RetryDelay
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, MaxRetries), ctx)
}

// send performs one API call and returns the response body together with
// the Link "next" target, if any. Only rate-limited responses are replayed:
// a 5xx after a write may mean the write landed.
func (c *Client) send(ctx context.Context, method, target string, payload any) ([]byte, string, error) {
	var encoded []byte
	if payload != nil {
		var err error
		if encoded, err = json.Marshal(payload); err != nil {
			return nil, "", fmt.Errorf("encode %s body: %w", method, err)
		}
	}

	var (
		body     []byte
		next     string
		attempts int
	)
	attempt := func() error {
		attempts++
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(encoded))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.Token)
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read response: %w", err))
		}

		switch {
		case isRateLimited(resp):
			return &rateLimited{status: resp.StatusCode}
		case resp.StatusCode/100 != 2:
			return backoff.Permanent(&APIError{
				Method:     method,
				URL:        target,
				StatusCode: resp.StatusCode,
				Message:    errorMessage(data),
			})
		}
		body = data
		next = nextLink(resp.Header, req.URL)
		return nil
	}
	onRetry := func(err error, wait time.Duration) {
		debug.Logf("github: %s %s: %v, retrying in %s\n", method, target, err, wait)
	}

	if err := backoff.RetryNotify(attempt, c.retryPolicy(ctx), onRetry); err != nil {
		var limited *rateLimited
		if errors.As(err, &limited) {
			return nil, "", fmt.Errorf("max retries exceeded after %d attempts: %w", attempts, err)
		}
		return nil, "", err
	}
	return body, next, nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(body))
}

var nextRel = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// nextLink returns the absolute "next" URL from a Link header, resolved
// against the request URL, or "" on the last page.
func nextLink(h http.Header, base *url.URL) string {
	m := nextRel.FindStringSubmatch(h.Get("Link"))
	if m == nil {
		return ""
	}
	ref, err := url.Parse(m[1])
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// call sends one request and decodes a JSON object response.
func call[T any](ctx context.Context, c *Client, method, target string, payload any) (*T, error) {
	body, _, err := c.send(ctx, method, target, payload)
	if err != nil {
		return nil, err
	}
	out := new(T)
	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("decode %T: %w", *out, err)
	}
	return out, nil
}

// collect follows "next" links from first and gathers every array element.
func collect[T any](ctx context.Context, c *Client, first string) ([]T, error) {
	var all []T
	target := first
	for page := 1; target != ""; page++ {
		if page > MaxPages {
			return nil, fmt.Errorf("pagination stopped after %d pages", MaxPages)
		}
		body, next, err := c.send(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		var items []T
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decode page %d: %w", page, err)
		}
		all = append(all, items...)
		target = next
	}
	return all, nil
}

func withQuery(target string, q url.Values) string {
	return target + "?" + q.Encode()
}

// FetchIssueNumbers returns every number already allocated in the
// repository, open or closed, pull requests included.
func (c *Client) FetchIssueNumbers(ctx context.Context) ([]int, error) {
	q := url.Values{}
	q.Set("state", "all")
	q.Set("per_page", strconv.Itoa(MaxPageSize))
	issues, err := collect[Issue](ctx, c, withQuery(c.repoURL("issues"), q))
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	numbers := make([]int, len(issues))
	for i := range issues {
		numbers[i] = issues[i].Number
	}
	return numbers, nil
}

type createIssueBody struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Labels    []string `json:"labels,omitempty"`
	Assignees []string `json:"assignees,omitempty"`
}

func (c *Client) CreateIssue(ctx context.Context, req IssueRequest) (*Issue, error) {
	payload := createIssueBody{Title: req.Title, Body: req.Body, Labels: req.Labels}
	if req.Assignee != "" {
		payload.Assignees = []string{req.Assignee}
	}
	issue, err := call[Issue](ctx, c, http.MethodPost, c.repoURL("issues"), payload)
	if err != nil {
		return nil, fmt.Errorf("create issue %q: %w", req.Title, err)
	}
	return issue, nil
}

// CloseIssue sets the state of an issue to closed.
func (c *Client) CloseIssue(ctx context.Context, number int) error {
	patch := map[string]string{"state": StateClosed}
	if _, err := call[Issue](ctx, c, http.MethodPatch, c.repoURL("issues", strconv.Itoa(number)), patch); err != nil {
		return fmt.Errorf("close issue #%d: %w", number, err)
	}
	return nil
}

func (c *Client) CreateComment(ctx context.Context, number int, body string) (*Comment, error) {
	target := c.repoURL("issues", strconv.Itoa(number), "comments")
	comment, err := call[Comment](ctx, c, http.MethodPost, target, map[string]string{"body": body})
	if err != nil {
		return nil, fmt.Errorf("comment on issue #%d: %w", number, err)
	}
	return comment, nil
}

// GetLabel looks a label up by name; IsNotFound is true when it is missing.
func (c *Client) GetLabel(ctx context.Context, name string) (*Label, error) {
	label, err := call[Label](ctx, c, http.MethodGet, c.repoURL("labels", name), nil)
	if err != nil {
		return nil, fmt.Errorf("get label %q: %w", name, err)
	}
	return label, nil
}

// CreateLabel creates a label; color is six hex digits without '#'.
func (c *Client) CreateLabel(ctx context.Context, name, color string) (*Label, error) {
	payload := map[string]string{"name": name, "color": color}
	label, err := call[Label](ctx, c, http.MethodPost, c.repoURL("labels"), payload)
	if err != nil {
		return nil, fmt.Errorf("create label %q: %w", name, err)
	}
	return label, nil
}

func (c *Client) ListCollaborators(ctx context.Context) ([]User, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(MaxPageSize))
	users, err := collect[User](ctx, c, withQuery(c.repoURL("collaborators"), q))
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	return users, nil
}

// RateLimit reads the core budget. The call itself is free.
func (c *Client) RateLimit(ctx context.Context) (*RateLimit, error) {
	resp, err := call[struct {
		Resources struct {
			Core RateLimit `json:"core"`
		} `json:"resources"`
	}](ctx, c, http.MethodGet, c.BaseURL+"/rate_limit", nil)
	if err != nil {
		return nil, fmt.Errorf("read rate limit: %w", err)
	}
	rl := resp.Resources.Core
	rl.Reset = time.Unix(rl.ResetUnix, 0).UTC()
	return &rl, nil
}

// CurrentUser returns the account that owns the token.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	user, err := call[User](ctx, c, http.MethodGet, c.BaseURL+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}
	return user, nil
}
