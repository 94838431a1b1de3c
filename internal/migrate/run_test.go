package migrate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/trackbridge/trackbridge/internal/github"
	"github.com/trackbridge/trackbridge/internal/identity"
	"github.com/trackbridge/trackbridge/internal/target/memory"
	"github.com/trackbridge/trackbridge/internal/types"
)

// fakeSource serves trackers from memory and records query lifecycle calls.
type fakeSource struct {
	trackers []types.Tracker
	elements map[int][]types.ExtraFieldElement
	items    map[int][]types.SourceItem // by tracker ID
	users    map[int]types.SourceUser

	queries     map[int]int // query ID -> tracker ID
	nextQuery   int
	queryNames  []string
	deleted     []int
	pages       []int // page sizes requested
	userLookups [][]int
	deleteErr   error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		elements: make(map[int][]types.ExtraFieldElement),
		items:    make(map[int][]types.SourceItem),
		users: map[int]types.SourceUser{
			1:   {ID: 1, UnixName: "alice"},
			2:   {ID: 2, UnixName: "bob"},
			100: {ID: 100, UnixName: "nobody"},
		},
		queries: make(map[int]int),
	}
}

func (f *fakeSource) addTracker(id int, name string, items ...types.SourceItem) {
	f.trackers = append(f.trackers, types.Tracker{ID: id, Name: name, ItemTotal: len(items)})
	f.items[id] = items
}

func (f *fakeSource) Trackers(context.Context) ([]types.Tracker, error) {
	return f.trackers, nil
}

func (f *fakeSource) ExtraFieldElements(_ context.Context, trackerID int) ([]types.ExtraFieldElement, error) {
	return f.elements[trackerID], nil
}

func (f *fakeSource) CreateQuery(_ context.Context, trackerID int, name string) (int, error) {
	f.nextQuery++
	f.queries[f.nextQuery] = trackerID
	f.queryNames = append(f.queryNames, name)
	return f.nextQuery, nil
}

func (f *fakeSource) DeleteQuery(_ context.Context, queryID int) error {
	f.deleted = append(f.deleted, queryID)
	return f.deleteErr
}

func (f *fakeSource) QueryItems(_ context.Context, queryID, limit, offset int) ([]types.SourceItem, error) {
	f.pages = append(f.pages, limit)
	all := f.items[f.queries[queryID]]
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (f *fakeSource) Users(_ context.Context, ids []int) ([]types.SourceUser, error) {
	f.userLookups = append(f.userLookups, ids)
	var out []types.SourceUser
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func item(id, submitter int) types.SourceItem {
	return types.SourceItem{ID: id, Summary: "item", SubmittedBy: submitter, OpenDate: "2009-01-01"}
}

func testConfig() Config {
	return Config{
		Identity: identity.Config{Mapping: map[string]string{
			"alice": "alice-gh",
			"bob":   "bob-gh",
		}},
		PageSize:      2,
		PrewarmLabels: true,
	}
}

func newTestRun(src Source, repo *memory.Target, cfg Config) *Run {
	r := New(src, repo, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.Now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	return r
}

func TestExecuteMigratesTrackers(t *testing.T) {
	src := newFakeSource()
	src.elements[10] = []types.ExtraFieldElement{{ID: 7, Name: "Release 2.1"}}
	first := item(1, 1)
	first.ExtraFields = []types.ExtraFieldData{{Value: "7"}}
	src.addTracker(10, "Bugs", first, item(2, 2), item(4, 1))
	src.addTracker(11, "Features", item(5, 2))

	repo := memory.New("alice-gh", "bob-gh")
	report, err := newTestRun(src, repo, testConfig()).Execute(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.RunID, 36)

	assert.Equal(t, 5, repo.Len())
	assert.Equal(t, "GForge placeholder - trackeritem 3", repo.Issue(3).Title)
	assert.Equal(t, []string{"imported", "Release 2.1"}, github.LabelNames(repo.Issue(1).Labels))

	require.Len(t, report.Trackers, 2)
	assert.Equal(t, 3, report.Trackers[0].Items)
	assert.Equal(t, 4, report.Total.Created)
	assert.Equal(t, 1, report.Total.Placeholders)

	assert.Equal(t, []string{"GitHub Migration - 20260304-050607", "GitHub Migration - 20260304-050607"}, src.queryNames)
	assert.Equal(t, []int{1, 2}, src.deleted)
	assert.Equal(t, []int{2, 2, 2}, src.pages)
	assert.Equal(t, [][]int{{1, 2}}, src.userLookups, "users are only looked up once")
}

func TestExecuteValidationGateBlocksEverything(t *testing.T) {
	src := newFakeSource()
	src.users[3] = types.SourceUser{ID: 3, UnixName: "carol"}
	src.users[4] = types.SourceUser{ID: 4, UnixName: "dave"}
	withAssignee := item(2, 2)
	withAssignee.Assignees = []types.Assignee{{UserID: 4}}
	src.addTracker(10, "Bugs", item(1, 3), withAssignee)

	cfg := testConfig()
	cfg.Identity.Mapping["dave"] = "dave-gh"
	repo := memory.New("alice-gh", "bob-gh")

	_, err := newTestRun(src, repo, cfg).Execute(context.Background())
	var verr *identity.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"carol"}, verr.Unmapped)
	assert.Equal(t, []string{"dave-gh"}, verr.Logins())

	assert.Equal(t, 0, repo.Len())
	assert.Empty(t, repo.CallsOf("create_issue"))
}

func TestExecuteGateRerunsPerTracker(t *testing.T) {
	src := newFakeSource()
	src.users[3] = types.SourceUser{ID: 3, UnixName: "carol"}
	src.addTracker(10, "Bugs", item(1, 1))
	src.addTracker(11, "Features", item(2, 3))

	repo := memory.New("alice-gh", "bob-gh")
	report, err := newTestRun(src, repo, testConfig()).Execute(context.Background())
	var verr *identity.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), `tracker "Features"`)

	assert.Equal(t, 1, repo.Len(), "the first tracker was migrated before the gate tripped")
	require.Len(t, report.Trackers, 2)
	assert.Nil(t, report.Trackers[1].Result)
}

func TestExecuteIsRerunnable(t *testing.T) {
	src := newFakeSource()
	src.addTracker(10, "Bugs", item(1, 1), item(3, 2))
	repo := memory.New("alice-gh", "bob-gh")

	_, err := newTestRun(src, repo, testConfig()).Execute(context.Background())
	require.NoError(t, err)
	repo.ResetCalls()

	report, err := newTestRun(src, repo, testConfig()).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.ExistingIssues)
	assert.Equal(t, 2, report.Total.AlreadyMigrated)
	assert.Empty(t, repo.CallsOf("create_issue"))
}

func TestExecuteTrackerFilter(t *testing.T) {
	src := newFakeSource()
	src.addTracker(10, "Bugs", item(1, 1))
	src.addTracker(11, "Features", item(2, 1))

	var warnings []string
	cfg := testConfig()
	cfg.Trackers = []int{11, 99}
	repo := memory.New("alice-gh")
	r := newTestRun(src, repo, cfg)
	r.OnWarning = func(msg string) { warnings = append(warnings, msg) }

	report, err := r.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Trackers, 1)
	assert.Equal(t, "Features", report.Trackers[0].Name)
	assert.Contains(t, strings.Join(warnings, "\n"), "tracker 99 not found")
}

func TestExecuteQueryDeleteFailureOnlyWarns(t *testing.T) {
	src := newFakeSource()
	src.deleteErr = errors.New("permission denied")
	src.addTracker(10, "Bugs", item(1, 1))

	var warnings []string
	r := newTestRun(src, memory.New("alice-gh"), testConfig())
	r.OnWarning = func(msg string) { warnings = append(warnings, msg) }

	_, err := r.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "could not delete query 1")
}

func TestExecuteShortTrackerStops(t *testing.T) {
	src := newFakeSource()
	src.addTracker(10, "Bugs", item(1, 1))
	src.trackers[0].ItemTotal = 5

	var warnings []string
	r := newTestRun(src, memory.New("alice-gh"), testConfig())
	r.OnWarning = func(msg string) { warnings = append(warnings, msg) }

	report, err := r.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Trackers[0].Items)
	assert.Contains(t, strings.Join(warnings, "\n"), "returned 1 of 5 items")
}

func TestExecuteDryRun(t *testing.T) {
	src := newFakeSource()
	src.elements[10] = []types.ExtraFieldElement{{ID: 7, Name: "Release 2.1"}}
	src.addTracker(10, "Bugs", item(1, 1), item(3, 1))

	cfg := testConfig()
	cfg.DryRun = true
	repo := memory.New("alice-gh")

	report, err := newTestRun(src, repo, cfg).Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Total.Created)
	assert.Equal(t, 1, report.Total.Placeholders)
	assert.Equal(t, 0, repo.Len())
	assert.Empty(t, repo.CallsOf("create_label"))
}

func TestCheckUsers(t *testing.T) {
	src := newFakeSource()
	src.users[3] = types.SourceUser{ID: 3, UnixName: "carol"}
	src.addTracker(10, "Bugs", item(1, 1))
	src.addTracker(11, "Features", item(2, 3), item(3, 100), item(4, 42))

	repo := memory.New("alice-gh")
	users, err := newTestRun(src, repo, testConfig()).CheckUsers(context.Background())

	var verr *identity.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"carol"}, verr.Unmapped)
	assert.Equal(t, []int{42}, verr.Unresolved)
	assert.Len(t, users, 2, "system user is dropped")
	assert.Empty(t, repo.CallsOf("create_issue"))
}

func TestReportWriters(t *testing.T) {
	src := newFakeSource()
	src.addTracker(10, "Bugs", item(1, 1))
	report, err := newTestRun(src, memory.New("alice-gh"), testConfig()).Execute(context.Background())
	require.NoError(t, err)

	var js bytes.Buffer
	require.NoError(t, report.WriteJSON(&js))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Contains(t, decoded, "trackers")

	path := filepath.Join(t.TempDir(), "report.yaml")
	require.NoError(t, report.SaveYAML(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var back Report
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, 1, back.Total.Created)
	assert.Equal(t, "Bugs", back.Trackers[0].Name)
}
