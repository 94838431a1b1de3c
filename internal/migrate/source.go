package migrate

import (
	"context"

	"github.com/trackbridge/trackbridge/internal/types"
)

// Source is the read side of the source tracker, already bound to one
// logged-in project.
type Source interface {
	// Trackers lists the project's trackers in source order.
	Trackers(ctx context.Context) ([]types.Tracker, error)

	// ExtraFieldElements returns the element dictionary of one tracker.
	ExtraFieldElements(ctx context.Context, trackerID int) ([]types.ExtraFieldElement, error)

	// CreateQuery stores a query over every item of a tracker and returns its ID.
	CreateQuery(ctx context.Context, trackerID int, name string) (int, error)

	// DeleteQuery removes a stored query.
	DeleteQuery(ctx context.Context, queryID int) error

	// QueryItems returns one page of a stored query.
	QueryItems(ctx context.Context, queryID, limit, offset int) ([]types.SourceItem, error)

	// Users resolves user IDs.
	Users(ctx context.Context, ids []int) ([]types.SourceUser, error)
}
