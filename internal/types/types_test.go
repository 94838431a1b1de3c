package types

import (
	"reflect"
	"testing"
)

func TestSourceItemIsClosed(t *testing.T) {
	open := SourceItem{ID: 1}
	if open.IsClosed() {
		t.Error("item without close date reported closed")
	}
	closed := SourceItem{ID: 2, CloseDate: "2009-04-01 10:00:00"}
	if !closed.IsClosed() {
		t.Error("item with close date reported open")
	}
}

func TestReferencedUsers(t *testing.T) {
	tests := []struct {
		name string
		item SourceItem
		want []int
	}{
		{
			name: "submitter only",
			item: SourceItem{SubmittedBy: 7},
			want: []int{7},
		},
		{
			name: "all sources deduplicated and sorted",
			item: SourceItem{
				SubmittedBy: 12,
				Messages:    []SourceComment{{SubmittedBy: 3}, {SubmittedBy: 12}},
				Commits:     []SCMCommit{{UserID: 40}},
				Assignees:   []Assignee{{UserID: 100}, {UserID: 3}},
			},
			want: []int{3, 12, 40, 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.item.ReferencedUsers()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ReferencedUsers() = %v, want %v", got, tt.want)
			}
		})
	}
}
