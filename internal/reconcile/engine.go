package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/trackbridge/trackbridge/internal/github"
	"github.com/trackbridge/trackbridge/internal/translate"
	"github.com/trackbridge/trackbridge/internal/types"
)

const (
	placeholderTitle = "GForge placeholder - trackeritem %d"
	placeholderBody  = "_This issue is a placeholder to maintain synchronization with imported GForge trackeritem IDs._"
)

// Target is the write side of the target repository.
type Target interface {
	FetchIssueNumbers(ctx context.Context) ([]int, error)
	CreateIssue(ctx context.Context, req github.IssueRequest) (*github.Issue, error)
	CreateComment(ctx context.Context, number int, body string) (*github.Comment, error)
	CloseIssue(ctx context.Context, number int) error
}

// Translator renders items into drafts.
type Translator interface {
	Translate(ctx context.Context, item *types.SourceItem) (*translate.Draft, error)
	ImportedLabel() string
	LabelColor() string
}

// Labels resolves label names before they are attached to an issue.
type Labels interface {
	GetOrCreate(ctx context.Context, name, color string) (*github.Label, error)
}

// Budget gates each item on the remaining request budget.
type Budget interface {
	Check(ctx context.Context) error
}

// MisalignedError reports a created issue whose number differs from the
// source item ID it stands for.
type MisalignedError struct {
	ItemID int
	Number int
}

func (e *MisalignedError) Error() string {
	return fmt.Sprintf("trackeritem %d was created as issue #%d; target numbering is out of step", e.ItemID, e.Number)
}

// Result summarizes one engine run.
type Result struct {
	DryRun          bool  `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	Created         int   `json:"created" yaml:"created"`
	Placeholders    int   `json:"placeholders" yaml:"placeholders"`
	AlreadyMigrated int   `json:"already_migrated" yaml:"already_migrated"`
	FloorSkipped    int   `json:"floor_skipped" yaml:"floor_skipped"`
	Comments        int   `json:"comments" yaml:"comments"`
	Closed          int   `json:"closed" yaml:"closed"`
	Truncated       int   `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	Mismatches      int   `json:"mismatches,omitempty" yaml:"mismatches,omitempty"`
	Duplicates      []int `json:"duplicates,omitempty" yaml:"duplicates,omitempty"`
	LastID          int   `json:"last_id,omitempty" yaml:"last_id,omitempty"`
}

// Add accumulates another result into r.
func (r *Result) Add(o *Result) {
	r.Created += o.Created
	r.Placeholders += o.Placeholders
	r.AlreadyMigrated += o.AlreadyMigrated
	r.FloorSkipped += o.FloorSkipped
	r.Comments += o.Comments
	r.Closed += o.Closed
	r.Truncated += o.Truncated
	r.Mismatches += o.Mismatches
	r.Duplicates = append(r.Duplicates, o.Duplicates...)
	if o.LastID > r.LastID {
		r.LastID = o.LastID
	}
}

// Engine drives items onto the target strictly in order. All writes are
// sequential, and any error stops the run; running again resumes from the
// issue numbers already present.
type Engine struct {
	Target     Target
	Translator Translator
	Labels     Labels
	Budget     Budget
	Logger     *slog.Logger

	// Floor is the lowest item ID migrated. Items below it are skipped.
	Floor int

	// DryRun logs the planned actions without writing anything.
	DryRun bool

	// StrictNumbering makes a number mismatch fatal instead of a warning.
	StrictNumbering bool

	// Callbacks for UI feedback (optional).
	OnMessage func(msg string)
	OnWarning func(msg string)

	existing     map[int]bool
	placeholders map[int]bool // Placeholders created by this engine
}

// NewEngine creates an engine with the default floor.
func NewEngine(target Target, tr Translator, labels Labels, budget Budget) *Engine {
	return &Engine{
		Target:     target,
		Translator: tr,
		Labels:     labels,
		Budget:     budget,
		Floor:      DefaultFloor,
	}
}

// LoadExisting fetches the issue numbers already taken on the target.
func (e *Engine) LoadExisting(ctx context.Context) error {
	numbers, err := e.Target.FetchIssueNumbers(ctx)
	if err != nil {
		return fmt.Errorf("fetching existing issues: %w", err)
	}
	e.SetExisting(numbers)
	return nil
}

// SetExisting replaces the set of taken issue numbers.
func (e *Engine) SetExisting(numbers []int) {
	e.existing = make(map[int]bool, len(numbers))
	for _, n := range numbers {
		e.existing[n] = true
	}
}

// Existing returns the taken issue numbers in ascending order.
func (e *Engine) Existing() []int {
	out := make([]int, 0, len(e.existing))
	for n := range e.existing {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// Run migrates items. Numbers created during the run are added to the
// existing set, so a later Run on the same engine does not recreate them.
func (e *Engine) Run(ctx context.Context, items []types.SourceItem) (*Result, error) {
	if e.existing == nil {
		if err := e.LoadExisting(ctx); err != nil {
			return nil, err
		}
	}

	sched, err := Plan(items, e.existing, e.Floor)
	if err != nil {
		return nil, err
	}

	result := &Result{DryRun: e.DryRun, Duplicates: sched.Duplicates}
	for _, id := range sched.Duplicates {
		e.warn("trackeritem %d appears more than once; keeping the first copy", id)
	}

	for _, step := range sched.Steps {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := e.runStep(ctx, step, result); err != nil {
			return result, err
		}
		result.LastID = step.Item.ID
	}
	return result, nil
}

func (e *Engine) runStep(ctx context.Context, step Step, result *Result) error {
	id := step.Item.ID
	if step.Action == ActionSkipFloor {
		result.FloorSkipped++
		e.msg("skipping ahead to %d... [%d]", e.Floor, id)
		return nil
	}

	if e.DryRun {
		// Planned numbers count as taken so later trackers plan around them.
		for _, n := range step.Placeholders {
			result.Placeholders++
			e.existing[n] = true
			e.msg("would create placeholder for trackeritem %d", n)
		}
		if step.Action == ActionCreate {
			result.Created++
			e.existing[id] = true
			e.msg("would create issue for trackeritem [%d]", id)
		} else {
			result.AlreadyMigrated++
		}
		return nil
	}

	// A gap can cost hundreds of writes, so every placeholder is gated on
	// its own. The spare covers the create and close pair that follows.
	for _, n := range step.Placeholders {
		if err := e.Budget.Check(ctx); err != nil {
			return err
		}
		if err := e.createPlaceholder(ctx, n, result); err != nil {
			return err
		}
	}

	if step.Action == ActionAlreadyMigrated {
		result.AlreadyMigrated++
		if e.placeholders[id] {
			e.warn("trackeritem %d is occupied by a placeholder created earlier in this run", id)
			return nil
		}
		e.msg("- skipping previously imported trackeritem [%d]", id)
		return nil
	}
	if err := e.Budget.Check(ctx); err != nil {
		return err
	}
	return e.createItem(ctx, step.Item, result)
}

func (e *Engine) createPlaceholder(ctx context.Context, n int, result *Result) error {
	label := e.Translator.ImportedLabel()
	if _, err := e.Labels.GetOrCreate(ctx, label, e.Translator.LabelColor()); err != nil {
		return err
	}
	issue, err := e.Target.CreateIssue(ctx, github.IssueRequest{
		Title:  fmt.Sprintf(placeholderTitle, n),
		Body:   placeholderBody,
		Labels: []string{label},
	})
	if err != nil {
		return fmt.Errorf("creating placeholder for trackeritem %d: %w", n, err)
	}
	e.existing[issue.Number] = true
	if e.placeholders == nil {
		e.placeholders = make(map[int]bool)
	}
	e.placeholders[issue.Number] = true
	if err := e.Target.CloseIssue(ctx, issue.Number); err != nil {
		return fmt.Errorf("closing placeholder #%d: %w", issue.Number, err)
	}
	result.Placeholders++
	e.msg("--- created placeholder for trackeritem %d --> issue %d", n, issue.Number)
	return e.verify(n, issue.Number, result)
}

// createItem translates first, so no issue is created for an item that
// cannot be rendered.
func (e *Engine) createItem(ctx context.Context, item *types.SourceItem, result *Result) error {
	draft, err := e.Translator.Translate(ctx, item)
	if err != nil {
		return err
	}

	e.msg("creating new issue for trackeritem [%d]", item.ID)
	issue, err := e.Target.CreateIssue(ctx, draft.Request())
	if err != nil {
		return fmt.Errorf("creating issue for trackeritem %d: %w", item.ID, err)
	}
	e.existing[issue.Number] = true
	result.Created++
	if draft.Truncated {
		result.Truncated++
		e.warn("trackeritem %d body truncated to %d characters", item.ID, translate.MaxBodyLength)
	}

	for i, body := range draft.Comments {
		if _, err := e.Target.CreateComment(ctx, issue.Number, body); err != nil {
			return fmt.Errorf("adding comment %d to issue #%d: %w", i+1, issue.Number, err)
		}
		result.Comments++
	}

	if draft.Close {
		if err := e.Target.CloseIssue(ctx, issue.Number); err != nil {
			return fmt.Errorf("closing issue #%d: %w", issue.Number, err)
		}
		result.Closed++
	}

	e.msg("trackeritem [%d] --> [%d]... imported", item.ID, issue.Number)
	return e.verify(item.ID, issue.Number, result)
}

func (e *Engine) verify(itemID, number int, result *Result) error {
	if itemID == number {
		return nil
	}
	result.Mismatches++
	if e.StrictNumbering {
		return &MisalignedError{ItemID: itemID, Number: number}
	}
	e.warn("trackeritem %d became issue #%d", itemID, number)
	return nil
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (e *Engine) msg(format string, args ...interface{}) {
	text := fmt.Sprintf(format, args...)
	e.logger().Debug(text)
	if e.OnMessage != nil {
		e.OnMessage(text)
	}
}

// warn goes to OnWarning when set and to the logger otherwise.
func (e *Engine) warn(format string, args ...interface{}) {
	text := fmt.Sprintf(format, args...)
	if e.OnWarning != nil {
		e.OnWarning(text)
		return
	}
	e.logger().Warn(text)
}
