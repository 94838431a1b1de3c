package github

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueDecode(t *testing.T) {
	payload := `{
		"id": 123456,
		"number": 42,
		"title": "Fix authentication bug",
		"state": "closed",
		"closed_at": "2024-01-16T14:45:00Z",
		"labels": [
			{"id": 1, "name": "imported", "color": "ffffff"},
			{"id": 2, "name": "Release 2.1", "color": "ffffff"}
		],
		"assignee": {"id": 101, "login": "jdoe"}
	}`

	var issue Issue
	require.NoError(t, json.Unmarshal([]byte(payload), &issue))
	assert.Equal(t, 42, issue.Number)
	assert.Equal(t, StateClosed, issue.State)
	assert.NotNil(t, issue.ClosedAt)
	assert.Equal(t, []string{"imported", "Release 2.1"}, LabelNames(issue.Labels))
	require.NotNil(t, issue.Assignee)
	assert.Equal(t, "jdoe", issue.Assignee.Login)
	assert.Nil(t, issue.PullRequest)
}

func TestSplitRepo(t *testing.T) {
	for in, want := range map[string][2]string{
		"acme/widgets": {"acme", "widgets"},
		"widgets":      {"", "widgets"},
		"acme/":        {"acme", ""},
	} {
		owner, repo := SplitRepo(in)
		assert.Equal(t, want, [2]string{owner, repo}, in)
	}
}

func TestIsNotFound(t *testing.T) {
	notFound := &APIError{StatusCode: http.StatusNotFound, Message: "Not Found"}
	assert.True(t, IsNotFound(notFound))
	assert.True(t, IsNotFound(fmt.Errorf("get label: %w", notFound)))
	assert.False(t, IsNotFound(&APIError{StatusCode: http.StatusInternalServerError}))
	assert.False(t, IsNotFound(nil))
}
