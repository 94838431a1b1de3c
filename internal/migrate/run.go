// Package migrate drives a whole project migration: it loads each tracker
// from the source, gates on the identity mapping, and hands the items to the
// reconciliation engine.
package migrate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/trackbridge/trackbridge/internal/identity"
	"github.com/trackbridge/trackbridge/internal/labels"
	"github.com/trackbridge/trackbridge/internal/ratelimit"
	"github.com/trackbridge/trackbridge/internal/reconcile"
	"github.com/trackbridge/trackbridge/internal/target"
	"github.com/trackbridge/trackbridge/internal/translate"
	"github.com/trackbridge/trackbridge/internal/types"
)

const (
	// DefaultPageSize is how many items are requested per query page.
	DefaultPageSize = 50

	queryNamePrefix = "GitHub Migration - "
	queryTimeLayout = "20060102-150405"
)

// Config collects everything a run needs besides its two endpoints.
type Config struct {
	Identity  identity.Config
	Translate translate.Config

	Floor           int   // Lowest item ID migrated
	Spare           int   // Requests kept in reserve
	StrictNumbering bool  // Mismatched issue numbers are fatal
	PageSize        int   // Items per source page
	Trackers        []int // Tracker IDs to migrate; empty means all
	PrewarmLabels   bool  // Resolve element labels when a tracker starts
	DryRun          bool  // Plan only
}

// Run owns all per-run state: known users, the label cache, the element
// dictionary and the set of taken issue numbers.
type Run struct {
	Source Source
	Target target.Target
	Logger *slog.Logger

	Mapper     *identity.Mapper
	Labels     *labels.Cache
	Translator *translate.Translator
	Governor   *ratelimit.Governor
	Engine     *reconcile.Engine

	// Callbacks for UI feedback (optional).
	OnMessage func(msg string)
	OnWarning func(msg string)

	// Now stamps query names; tests replace it.
	Now func() time.Time

	cfg Config
}

// New wires a run from its parts.
func New(src Source, tgt target.Target, cfg Config, logger *slog.Logger) *Run {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	mapper := identity.NewMapper(cfg.Identity)
	cache := labels.NewCache(tgt)
	tr := translate.New(cfg.Translate, mapper, cache)
	gov := ratelimit.New(tgt, cfg.Spare)

	engine := reconcile.NewEngine(tgt, tr, cache, gov)
	if cfg.Floor > 0 {
		engine.Floor = cfg.Floor
	}
	engine.DryRun = cfg.DryRun
	engine.StrictNumbering = cfg.StrictNumbering
	engine.Logger = logger

	r := &Run{
		Source:     src,
		Target:     tgt,
		Logger:     logger,
		Mapper:     mapper,
		Labels:     cache,
		Translator: tr,
		Governor:   gov,
		Engine:     engine,
		Now:        time.Now,
		cfg:        cfg,
	}
	engine.OnMessage = func(m string) { r.msg("%s", m) }
	engine.OnWarning = func(m string) { r.warn("%s", m) }
	return r
}

// Execute migrates every selected tracker. On error the report covers the
// trackers finished so far and the partial result of the failing one.
func (r *Run) Execute(ctx context.Context) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), DryRun: r.cfg.DryRun, StartedAt: r.Now()}
	defer func() { report.FinishedAt = r.Now() }()

	if err := r.prepare(ctx); err != nil {
		return report, err
	}
	report.ExistingIssues = len(r.Engine.Existing())

	if rl, err := r.Governor.Snapshot(ctx); err == nil {
		r.msg("GitHub rate limit (remaining/total): %s", rl)
	}

	trackers, err := r.trackers(ctx)
	if err != nil {
		return report, err
	}

	for _, t := range trackers {
		tr := TrackerReport{ID: t.ID, Name: t.Name}
		items, err := r.loadTracker(ctx, t)
		if err != nil {
			report.add(tr)
			return report, err
		}
		tr.Items = len(items)

		if err := r.Mapper.Validate(); err != nil {
			report.add(tr)
			return report, fmt.Errorf("tracker %q: %w", t.Name, err)
		}

		r.msg("migrating %d items from tracker %q", len(items), t.Name)
		res, err := r.Engine.Run(ctx, items)
		tr.Result = res
		report.add(tr)
		if err != nil {
			return report, fmt.Errorf("tracker %q: %w", t.Name, err)
		}
	}

	r.Logger.Info("migration finished",
		"run_id", report.RunID,
		"trackers", len(report.Trackers),
		"created", report.Total.Created,
		"placeholders", report.Total.Placeholders,
		"already_migrated", report.Total.AlreadyMigrated)
	return report, nil
}

// CheckUsers discovers the users of every selected tracker and validates the
// mapping once over all of them. Nothing is written to the target.
func (r *Run) CheckUsers(ctx context.Context) ([]types.SourceUser, error) {
	if err := r.Mapper.LoadCollaborators(ctx, r.Target); err != nil {
		return nil, err
	}
	trackers, err := r.trackers(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range trackers {
		items, err := r.fetchItems(ctx, t)
		if err != nil {
			return nil, err
		}
		if err := r.discoverUsers(ctx, items); err != nil {
			return nil, err
		}
	}
	return r.Mapper.Users(), r.Mapper.Validate()
}

// prepare loads collaborators and taken issue numbers. Both are read-only
// and independent, so they are fetched concurrently.
func (r *Run) prepare(ctx context.Context) error {
	var numbers []int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.Mapper.LoadCollaborators(gctx, r.Target)
	})
	g.Go(func() error {
		var err error
		numbers, err = r.Target.FetchIssueNumbers(gctx)
		if err != nil {
			return fmt.Errorf("fetching existing issues: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	r.Engine.SetExisting(numbers)
	r.Logger.Debug("target loaded", "existing_issues", len(numbers))
	return nil
}

func (r *Run) trackers(ctx context.Context) ([]types.Tracker, error) {
	all, err := r.Source.Trackers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing trackers: %w", err)
	}
	if len(r.cfg.Trackers) == 0 {
		return all, nil
	}

	want := make(map[int]bool, len(r.cfg.Trackers))
	for _, id := range r.cfg.Trackers {
		want[id] = true
	}
	var out []types.Tracker
	for _, t := range all {
		if want[t.ID] {
			out = append(out, t)
			delete(want, t.ID)
		}
	}
	for id := range want {
		r.warn("tracker %d not found in project", id)
	}
	return out, nil
}

// loadTracker registers the tracker's elements, reads all of its items and
// resolves any users they reference.
func (r *Run) loadTracker(ctx context.Context, t types.Tracker) ([]types.SourceItem, error) {
	elems, err := r.Source.ExtraFieldElements(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("loading elements of tracker %q: %w", t.Name, err)
	}
	names := r.Translator.AddElements(elems)
	if r.cfg.PrewarmLabels && !r.cfg.DryRun {
		if err := r.Labels.Warm(ctx, r.Translator.LabelColor(), names...); err != nil {
			return nil, err
		}
	}

	items, err := r.fetchItems(ctx, t)
	if err != nil {
		return nil, err
	}
	if err := r.discoverUsers(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// fetchItems pages through a temporary stored query. The query is deleted
// afterwards; failing to delete it only warns.
func (r *Run) fetchItems(ctx context.Context, t types.Tracker) ([]types.SourceItem, error) {
	name := queryNamePrefix + r.Now().Format(queryTimeLayout)
	qid, err := r.Source.CreateQuery(ctx, t.ID, name)
	if err != nil {
		return nil, fmt.Errorf("creating query for tracker %q: %w", t.Name, err)
	}
	defer func() {
		if err := r.Source.DeleteQuery(ctx, qid); err != nil {
			r.warn("could not delete query %d (%s): %v", qid, name, err)
		}
	}()

	var items []types.SourceItem
	for len(items) < t.ItemTotal {
		page, err := r.Source.QueryItems(ctx, qid, r.cfg.PageSize, len(items))
		if err != nil {
			return nil, fmt.Errorf("reading tracker %q at offset %d: %w", t.Name, len(items), err)
		}
		r.msg("offset[%d] returned[%d] of total[%d]", len(items), len(page), t.ItemTotal)
		if len(page) == 0 {
			r.warn("tracker %q returned %d of %d items", t.Name, len(items), t.ItemTotal)
			break
		}
		items = append(items, page...)
	}
	return items, nil
}

func (r *Run) discoverUsers(ctx context.Context, items []types.SourceItem) error {
	var refs []int
	for i := range items {
		refs = append(refs, items[i].ReferencedUsers()...)
	}
	unknown := r.Mapper.Unknown(refs)
	if len(unknown) == 0 {
		return nil
	}
	users, err := r.Source.Users(ctx, unknown)
	if err != nil {
		return fmt.Errorf("resolving %d source users: %w", len(unknown), err)
	}
	r.Mapper.AddUsers(users)

	returned := make(map[int]bool, len(users))
	for _, u := range users {
		returned[u.ID] = true
	}
	var missing []int
	for _, id := range unknown {
		if !returned[id] {
			missing = append(missing, id)
		}
	}
	r.Mapper.MarkUnresolved(missing)
	r.Logger.Debug("resolved source users", "requested", len(unknown), "returned", len(users))
	return nil
}

func (r *Run) msg(format string, args ...interface{}) {
	if r.OnMessage != nil {
		r.OnMessage(fmt.Sprintf(format, args...))
	}
}

func (r *Run) warn(format string, args ...interface{}) {
	if r.OnWarning != nil {
		r.OnWarning(fmt.Sprintf(format, args...))
	}
}
