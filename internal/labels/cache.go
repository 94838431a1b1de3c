// Package labels resolves target labels by name, creating them on first use.
package labels

import (
	"context"
	"fmt"

	"github.com/trackbridge/trackbridge/internal/github"
)

// DefaultColor is used when a label is created without an explicit color.
const DefaultColor = "FFFFFF"

// Store is the remote side of the cache.
type Store interface {
	GetLabel(ctx context.Context, name string) (*github.Label, error)
	CreateLabel(ctx context.Context, name, color string) (*github.Label, error)
}

// Cache memoizes labels for the lifetime of one run. Entries are never
// invalidated; a label deleted on the target mid-run is not noticed.
type Cache struct {
	store   Store
	labels  map[string]*github.Label
	lookups int
	created int
}

// NewCache returns an empty cache backed by store.
func NewCache(store Store) *Cache {
	return &Cache{
		store:  store,
		labels: make(map[string]*github.Label),
	}
}

// GetOrCreate returns the label called name, fetching it from the store on
// the first request and creating it when the store reports it missing.
func (c *Cache) GetOrCreate(ctx context.Context, name, color string) (*github.Label, error) {
	if label, ok := c.labels[name]; ok {
		return label, nil
	}
	if color == "" {
		color = DefaultColor
	}

	c.lookups++
	label, err := c.store.GetLabel(ctx, name)
	if err != nil {
		if !github.IsNotFound(err) {
			return nil, fmt.Errorf("fetching label %q: %w", name, err)
		}
		label, err = c.store.CreateLabel(ctx, name, color)
		if err != nil {
			return nil, fmt.Errorf("creating label %q: %w", name, err)
		}
		c.created++
	}

	c.labels[name] = label
	return label, nil
}

// Warm resolves each name so later lookups are local.
func (c *Cache) Warm(ctx context.Context, color string, names ...string) error {
	for _, name := range names {
		if _, err := c.GetOrCreate(ctx, name, color); err != nil {
			return err
		}
	}
	return nil
}

// Lookups reports how many names were resolved remotely.
func (c *Cache) Lookups() int { return c.lookups }

// Created reports how many labels the cache had to create.
func (c *Cache) Created() int { return c.created }

// Len returns the number of cached labels.
func (c *Cache) Len() int { return len(c.labels) }
