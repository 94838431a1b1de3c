// Package types defines the source-tracker data model that trackbridge migrates.
package types

import "sort"

// Tracker is a source container: one GForge tracker of a project.
type Tracker struct {
	ID        int    `json:"tracker_id"`
	Name      string `json:"name"`
	ItemTotal int    `json:"item_total"` // Number of items the source reports for this tracker
}

// ExtraFieldElement is one selectable value of a tracker's extra field
// (e.g. a milestone or component). Element names become target labels.
type ExtraFieldElement struct {
	ID   int    `json:"element_id"`
	Name string `json:"element_name"`
}

// SourceItem is one tracker item with everything needed to recreate it.
type SourceItem struct {
	ID          int              `json:"tracker_item_id"` // Source-assigned, ascending with gaps
	Summary     string           `json:"summary"`
	Details     string           `json:"details"`
	SubmittedBy int              `json:"submitted_by"`
	OpenDate    string           `json:"open_date"`
	CloseDate   string           `json:"close_date,omitempty"` // Empty while the item is open
	Assignees   []Assignee       `json:"assignees,omitempty"`
	ExtraFields []ExtraFieldData `json:"extra_field_data,omitempty"`
	Messages    []SourceComment  `json:"messages,omitempty"`
	Commits     []SCMCommit      `json:"scm_commits,omitempty"`
}

// IsClosed reports whether the item carries a close date.
func (i *SourceItem) IsClosed() bool {
	return i.CloseDate != ""
}

// Assignee is one entry of an item's assignee list.
type Assignee struct {
	UserID int `json:"assignee"`
}

// ExtraFieldData is an opaque extra-field value attached to an item.
// Non-empty values normally hold an ExtraFieldElement ID.
type ExtraFieldData struct {
	Value string `json:"field_data"`
}

// SourceComment is one message in an item's discussion.
type SourceComment struct {
	SubmittedBy int    `json:"submitted_by"`
	AddDate     string `json:"adddate"`
	Body        string `json:"body"`
}

// SCMCommit references a commit linked to an item; only its author matters here.
type SCMCommit struct {
	UserID int `json:"user_id"`
}

// SourceUser is a resolved source account.
type SourceUser struct {
	ID       int    `json:"user_id"`
	UnixName string `json:"unix_name"`
	Email    string `json:"email,omitempty"`
}

// ReferencedUsers returns every user ID an item refers to: the submitter,
// message authors, commit authors and assignees. The result is sorted and
// contains no duplicates.
func (i *SourceItem) ReferencedUsers() []int {
	seen := map[int]bool{i.SubmittedBy: true}
	for _, m := range i.Messages {
		seen[m.SubmittedBy] = true
	}
	for _, c := range i.Commits {
		seen[c.UserID] = true
	}
	for _, a := range i.Assignees {
		seen[a.UserID] = true
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
