package gforge

import (
	"context"
	"fmt"

	"github.com/trackbridge/trackbridge/internal/types"
)

// Session is a logged-in client bound to one project.
type Session struct {
	client  *Client
	token   string
	userID  int
	project *Project
}

// Open logs in and resolves the project.
func Open(ctx context.Context, c *Client, login, password, project string) (*Session, error) {
	token, err := c.Login(ctx, login, password)
	if err != nil {
		return nil, err
	}
	userID, err := SessionUserID(token)
	if err != nil {
		return nil, err
	}
	p, err := c.ProjectByUnixName(ctx, token, project)
	if err != nil {
		return nil, fmt.Errorf("looking up project %q: %w", project, err)
	}
	return &Session{client: c, token: token, userID: userID, project: p}, nil
}

// Project returns the bound project.
func (s *Session) Project() *Project { return s.project }

// UserID returns the ID of the logged-in user.
func (s *Session) UserID() int { return s.userID }

func (s *Session) Trackers(ctx context.Context) ([]types.Tracker, error) {
	return s.client.Trackers(ctx, s.token, s.project.ID)
}

func (s *Session) ExtraFieldElements(ctx context.Context, trackerID int) ([]types.ExtraFieldElement, error) {
	return s.client.TrackerFull(ctx, s.token, trackerID)
}

func (s *Session) CreateQuery(ctx context.Context, trackerID int, name string) (int, error) {
	return s.client.AddTrackerQuery(ctx, s.token, trackerID, s.userID, name)
}

func (s *Session) DeleteQuery(ctx context.Context, queryID int) error {
	return s.client.DeleteTrackerQuery(ctx, s.token, queryID)
}

func (s *Session) QueryItems(ctx context.Context, queryID, limit, offset int) ([]types.SourceItem, error) {
	return s.client.TrackerItemsFullByQueryID(ctx, s.token, queryID, limit, offset)
}

func (s *Session) Users(ctx context.Context, ids []int) ([]types.SourceUser, error) {
	return s.client.UserArray(ctx, s.token, ids)
}
