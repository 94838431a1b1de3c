// Package translate turns a source tracker item into the issue, comments and
// labels that represent it on the target.
package translate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/trackbridge/trackbridge/internal/github"
	"github.com/trackbridge/trackbridge/internal/types"
)

const (
	// MaxBodyLength is the largest issue body the target accepts, in
	// characters.
	MaxBodyLength = 65500

	// DefaultImportedLabel marks every issue created by a migration.
	DefaultImportedLabel = "imported"

	// DefaultLinkTemplate points back at the source item. {project} and {id}
	// are substituted.
	DefaultLinkTemplate = "https://gforge.example.org/gf/project/{project}/tracker/?action=TrackerItemEdit&tracker_item_id={id}"

	footerSeparator = "\n\n\n--\n\n\nFrom: "
)

// DefaultSkipValues are extra-field values that carry no label: unset and
// the "none" element.
var DefaultSkipValues = []string{"", "100"}

// Identities resolves source users for attribution and assignment.
type Identities interface {
	AuthorName(userID int) (string, error)
	ResolveCollaborator(userID int) (string, error)
	IsSystemUser(userID int) bool
}

// Labels resolves label names on the target.
type Labels interface {
	GetOrCreate(ctx context.Context, name, color string) (*github.Label, error)
}

// Config controls the rendered text.
type Config struct {
	Project       string
	LinkTemplate  string
	ImportedLabel string
	LabelColor    string
	SkipValues    []string
}

// Draft is a fully rendered item, ready to write.
type Draft struct {
	ItemID   int
	Title    string
	Body     string
	Assignee string   // Empty for no assignee
	Labels   []string // Imported label first
	Comments []string // In source order
	Close    bool     // Close after comments are added

	Truncated bool // Details were cut to fit MaxBodyLength
}

// Request returns the issue-creation payload for the draft.
func (d *Draft) Request() github.IssueRequest {
	return github.IssueRequest{
		Title:    d.Title,
		Body:     d.Body,
		Assignee: d.Assignee,
		Labels:   d.Labels,
	}
}

// TranslationError reports an item that cannot be rendered.
type TranslationError struct {
	ItemID int
	Reason string
	Err    error
}

func (e *TranslationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("trackeritem %d: %s: %v", e.ItemID, e.Reason, e.Err)
	}
	return fmt.Sprintf("trackeritem %d: %s", e.ItemID, e.Reason)
}

func (e *TranslationError) Unwrap() error { return e.Err }

// Translator renders source items. Its element dictionary grows as trackers
// are loaded and is shared by every tracker in a run.
type Translator struct {
	cfg      Config
	ids      Identities
	labels   Labels
	elements map[int]string
	skip     map[string]bool
}

// New creates a translator. Zero config fields take their defaults.
func New(cfg Config, ids Identities, labels Labels) *Translator {
	if cfg.LinkTemplate == "" {
		cfg.LinkTemplate = DefaultLinkTemplate
	}
	if cfg.ImportedLabel == "" {
		cfg.ImportedLabel = DefaultImportedLabel
	}
	if cfg.SkipValues == nil {
		cfg.SkipValues = DefaultSkipValues
	}
	skip := make(map[string]bool, len(cfg.SkipValues))
	for _, v := range cfg.SkipValues {
		skip[v] = true
	}
	return &Translator{
		cfg:      cfg,
		ids:      ids,
		labels:   labels,
		elements: make(map[int]string),
		skip:     skip,
	}
}

// ImportedLabel returns the label every migrated issue carries.
func (t *Translator) ImportedLabel() string { return t.cfg.ImportedLabel }

// LabelColor returns the color used for created labels.
func (t *Translator) LabelColor() string { return t.cfg.LabelColor }

// AddElements registers extra-field elements and returns their names.
func (t *Translator) AddElements(elems []types.ExtraFieldElement) []string {
	names := make([]string, 0, len(elems))
	for _, e := range elems {
		t.elements[e.ID] = e.Name
		names = append(names, e.Name)
	}
	return names
}

// Element returns the name of an extra-field element.
func (t *Translator) Element(id int) (string, bool) {
	name, ok := t.elements[id]
	return name, ok
}

// Link renders the back-reference URL for a source item.
func (t *Translator) Link(itemID int) string {
	return strings.NewReplacer(
		"{project}", t.cfg.Project,
		"{id}", strconv.Itoa(itemID),
	).Replace(t.cfg.LinkTemplate)
}

// Translate renders one item. Every remote lookup it needs (labels) happens
// here, before anything is written for the item.
func (t *Translator) Translate(ctx context.Context, item *types.SourceItem) (*Draft, error) {
	if item == nil || item.ID <= 0 {
		id := 0
		if item != nil {
			id = item.ID
		}
		return nil, &TranslationError{ItemID: id, Reason: "tracker item ID must be positive"}
	}

	author, err := t.ids.AuthorName(item.SubmittedBy)
	if err != nil {
		return nil, &TranslationError{ItemID: item.ID, Reason: "unresolvable submitter", Err: err}
	}

	header := fmt.Sprintf("_Originally Opened: %s (%s)_", author, item.OpenDate)
	if item.IsClosed() {
		header += fmt.Sprintf("\n_Originally Closed: %s_", item.CloseDate)
	}

	body, truncated := buildBody(header, item.Details, footerSeparator+t.Link(item.ID))
	draft := &Draft{
		ItemID:    item.ID,
		Title:     Title(item.Summary),
		Body:      body,
		Close:     item.IsClosed(),
		Truncated: truncated,
	}

	if len(item.Assignees) > 0 {
		first := item.Assignees[0].UserID
		if first != 0 && !t.ids.IsSystemUser(first) {
			login, err := t.ids.ResolveCollaborator(first)
			if err != nil {
				return nil, &TranslationError{ItemID: item.ID, Reason: "unresolvable assignee", Err: err}
			}
			draft.Assignee = login
		}
	}

	if draft.Labels, err = t.labelsFor(ctx, item); err != nil {
		return nil, err
	}

	for _, m := range item.Messages {
		who, err := t.ids.AuthorName(m.SubmittedBy)
		if err != nil {
			return nil, &TranslationError{ItemID: item.ID, Reason: "unresolvable comment author", Err: err}
		}
		draft.Comments = append(draft.Comments, fmt.Sprintf("_Original author: %s (%s)_\n\n%s", who, m.AddDate, m.Body))
	}

	return draft, nil
}

func (t *Translator) labelsFor(ctx context.Context, item *types.SourceItem) ([]string, error) {
	names := []string{t.cfg.ImportedLabel}
	seen := map[string]bool{t.cfg.ImportedLabel: true}

	for _, f := range item.ExtraFields {
		if t.skip[f.Value] {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(f.Value))
		if err != nil {
			return nil, &TranslationError{ItemID: item.ID, Reason: fmt.Sprintf("extra field value %q is not an element ID", f.Value)}
		}
		name, ok := t.elements[id]
		if !ok {
			return nil, &TranslationError{ItemID: item.ID, Reason: fmt.Sprintf("unknown extra field element %d", id)}
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	for _, name := range names {
		if _, err := t.labels.GetOrCreate(ctx, name, t.cfg.LabelColor); err != nil {
			return nil, err
		}
	}
	return names, nil
}

// Title decodes the one entity the source leaves escaped in summaries.
func Title(summary string) string {
	return strings.ReplaceAll(summary, "&quot;", `"`)
}

// Body joins header, details and footer, cutting only the details so the
// result fits MaxBodyLength. Header and footer are never truncated.
func Body(header, details, footer string) string {
	body, _ := buildBody(header, details, footer)
	return body
}

func buildBody(header, details, footer string) (string, bool) {
	prefix := header + "\n\n"
	body := prefix + details + footer
	if utf8.RuneCountInString(body) <= MaxBodyLength {
		return body, false
	}

	room := MaxBodyLength - utf8.RuneCountInString(prefix) - utf8.RuneCountInString(footer)
	if room < 0 {
		return string([]rune(body)[:MaxBodyLength]), true
	}
	return prefix + string([]rune(details)[:room]) + footer, true
}
