// Package reconcile aligns the target issue number space with source item IDs.
//
// Plan computes, from the source items and the issue numbers already taken on
// the target, which items are skipped, which placeholders fill gaps, and which
// items are created. Engine executes that schedule one item at a time.
package reconcile

import (
	"fmt"
	"sort"

	"github.com/trackbridge/trackbridge/internal/types"
)

// DefaultFloor migrates every item.
const DefaultFloor = 1

// Action is what happens to a scheduled item.
type Action int

const (
	// ActionSkipFloor leaves an item below the floor untouched.
	ActionSkipFloor Action = iota
	// ActionCreate creates the item's issue.
	ActionCreate
	// ActionAlreadyMigrated skips an item whose number is already taken.
	ActionAlreadyMigrated
)

func (a Action) String() string {
	switch a {
	case ActionSkipFloor:
		return "skip-floor"
	case ActionCreate:
		return "create"
	case ActionAlreadyMigrated:
		return "already-migrated"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Step is the scheduled work for one source item, in execution order:
// placeholders first, then the item itself.
type Step struct {
	Item         *types.SourceItem
	Placeholders []int
	Action       Action
}

// Schedule is the full plan for a batch of items.
type Schedule struct {
	Steps      []Step
	Duplicates []int // IDs seen more than once; the first occurrence was kept
}

// Counts tallies the schedule by action.
func (s *Schedule) Counts() (create, placeholders, migrated, floor int) {
	for _, st := range s.Steps {
		placeholders += len(st.Placeholders)
		switch st.Action {
		case ActionCreate:
			create++
		case ActionAlreadyMigrated:
			migrated++
		case ActionSkipFloor:
			floor++
		}
	}
	return
}

// Dedup returns items with unique IDs in ascending order. On a duplicate ID
// the first item seen wins and the ID is reported.
func Dedup(items []types.SourceItem) ([]*types.SourceItem, []int) {
	seen := make(map[int]bool, len(items))
	dupSeen := make(map[int]bool)
	var unique []*types.SourceItem
	var dups []int
	for i := range items {
		id := items[i].ID
		if seen[id] {
			if !dupSeen[id] {
				dupSeen[id] = true
				dups = append(dups, id)
			}
			continue
		}
		seen[id] = true
		unique = append(unique, &items[i])
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i].ID < unique[j].ID })
	sort.Ints(dups)
	return unique, dups
}

// Plan schedules items against the set of existing target numbers. It makes
// no remote calls. Placeholders are only scheduled for numbers not in
// existing, and an item is only created when its own number is free.
//
// Gaps are filled from floor upward only. Numbers below the floor are left
// alone even when an item below the floor was skipped, so floor=3 with items
// {1, 4} schedules a placeholder for 3 but none for 2.
func Plan(items []types.SourceItem, existing map[int]bool, floor int) (*Schedule, error) {
	if floor < DefaultFloor {
		floor = DefaultFloor
	}
	unique, dups := Dedup(items)
	sched := &Schedule{Duplicates: dups}

	// Numbers below the floor are never filled, so the walk starts there.
	previous := floor - 1
	for _, item := range unique {
		if item.ID <= 0 {
			return nil, fmt.Errorf("tracker item ID must be positive, got %d", item.ID)
		}
		if item.ID < floor {
			sched.Steps = append(sched.Steps, Step{Item: item, Action: ActionSkipFloor})
			continue
		}

		step := Step{Item: item, Action: ActionCreate}
		for previous+1 < item.ID {
			previous++
			if !existing[previous] {
				step.Placeholders = append(step.Placeholders, previous)
			}
		}
		previous = item.ID
		if existing[item.ID] {
			step.Action = ActionAlreadyMigrated
		}
		sched.Steps = append(sched.Steps, step)
	}
	return sched, nil
}
