package gforge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/trackbridge/trackbridge/internal/types"
)

// Project is the subset of a GForge project the migration uses.
type Project struct {
	ID       int    `xml:"project_id"`
	UnixName string `xml:"unix_name"`
	Name     string `xml:"project_name"`
}

type wireTracker struct {
	ID        int    `xml:"tracker_id"`
	Name      string `xml:"name"`
	ItemTotal int    `xml:"item_total"`
}

type wireElement struct {
	ID   int    `xml:"element_id"`
	Name string `xml:"element_name"`
}

type wireTrackerFull struct {
	wireTracker
	Elements []wireElement `xml:"extra_field_elements>item"`
}

type wireItem struct {
	ID          int    `xml:"tracker_item_id"`
	Summary     string `xml:"summary"`
	Details     string `xml:"details"`
	SubmittedBy int    `xml:"submitted_by"`
	OpenDate    string `xml:"open_date"`
	CloseDate   string `xml:"close_date"`
	Assignees   []struct {
		Assignee int `xml:"assignee"`
	} `xml:"assignees>item"`
	ExtraFields []struct {
		FieldData string `xml:"field_data"`
	} `xml:"extra_field_data>item"`
	Messages []struct {
		SubmittedBy int    `xml:"submitted_by"`
		AddDate     string `xml:"adddate"`
		Body        string `xml:"body"`
	} `xml:"messages>item"`
	Commits []struct {
		UserID int `xml:"user_id"`
	} `xml:"scm_commits>item"`
}

func (w *wireItem) toItem() types.SourceItem {
	item := types.SourceItem{
		ID:          w.ID,
		Summary:     w.Summary,
		Details:     w.Details,
		SubmittedBy: w.SubmittedBy,
		OpenDate:    w.OpenDate,
		CloseDate:   strings.TrimSpace(w.CloseDate),
	}
	for _, a := range w.Assignees {
		item.Assignees = append(item.Assignees, types.Assignee{UserID: a.Assignee})
	}
	for _, f := range w.ExtraFields {
		item.ExtraFields = append(item.ExtraFields, types.ExtraFieldData{Value: f.FieldData})
	}
	for _, m := range w.Messages {
		item.Messages = append(item.Messages, types.SourceComment{SubmittedBy: m.SubmittedBy, AddDate: m.AddDate, Body: m.Body})
	}
	for _, c := range w.Commits {
		item.Commits = append(item.Commits, types.SCMCommit{UserID: c.UserID})
	}
	return item
}

type wireUser struct {
	ID       int    `xml:"user_id"`
	UnixName string `xml:"unix_name"`
	Email    string `xml:"email"`
}

// Login opens a session. The returned token is "<user_id>:<hash>".
func (c *Client) Login(ctx context.Context, login, password string) (string, error) {
	var token string
	err := c.call(ctx, "login", false, &token,
		param{"userid", login},
		param{"passwd", password},
	)
	if err != nil {
		return "", err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("login: empty session token")
	}
	return token, nil
}

// ProjectByUnixName looks up a project by its short name.
func (c *Client) ProjectByUnixName(ctx context.Context, session, unixName string) (*Project, error) {
	var p Project
	err := c.call(ctx, "getProjectByUnixName", true, &p,
		param{"session_ser", session},
		param{"unix_name", unixName},
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Trackers lists every tracker of a project.
func (c *Client) Trackers(ctx context.Context, session string, projectID int) ([]types.Tracker, error) {
	var wire struct {
		Items []wireTracker `xml:"item"`
	}
	err := c.call(ctx, "getTrackers", true, &wire,
		param{"session_ser", session},
		param{"project_id", projectID},
		param{"rows", -1},
		param{"offset", -1},
	)
	if err != nil {
		return nil, err
	}
	out := make([]types.Tracker, len(wire.Items))
	for i, t := range wire.Items {
		out[i] = types.Tracker{ID: t.ID, Name: t.Name, ItemTotal: t.ItemTotal}
	}
	return out, nil
}

// TrackerFull returns a tracker's extra field element dictionary.
func (c *Client) TrackerFull(ctx context.Context, session string, trackerID int) ([]types.ExtraFieldElement, error) {
	var wire wireTrackerFull
	err := c.call(ctx, "getTrackerFull", true, &wire,
		param{"session_ser", session},
		param{"tracker_id", trackerID},
	)
	if err != nil {
		return nil, err
	}
	out := make([]types.ExtraFieldElement, len(wire.Elements))
	for i, e := range wire.Elements {
		out[i] = types.ExtraFieldElement{ID: e.ID, Name: e.Name}
	}
	return out, nil
}

// AddTrackerQuery stores a query over all items of a tracker.
func (c *Client) AddTrackerQuery(ctx context.Context, session string, trackerID, userID int, name string) (int, error) {
	var id int
	err := c.call(ctx, "addTrackerQuery", false, &id,
		param{"session_ser", session},
		param{"tracker_id", trackerID},
		param{"user_id", userID},
		param{"query_name", name},
		param{"is_public", 0},
	)
	return id, err
}

// DeleteTrackerQuery removes a stored query.
func (c *Client) DeleteTrackerQuery(ctx context.Context, session string, queryID int) error {
	return c.call(ctx, "deleteTrackerQuery", false, nil,
		param{"session_ser", session},
		param{"tracker_query_id", queryID},
	)
}

// TrackerItemsFullByQueryID returns one page of a stored query, with
// messages, assignees, extra field data and commits.
func (c *Client) TrackerItemsFullByQueryID(ctx context.Context, session string, queryID, limit, offset int) ([]types.SourceItem, error) {
	var wire struct {
		Items []wireItem `xml:"item"`
	}
	err := c.call(ctx, "getTrackerItemsFullByQueryId", true, &wire,
		param{"session_ser", session},
		param{"tracker_query_id", queryID},
		param{"rows", limit},
		param{"offset", offset},
	)
	if err != nil {
		return nil, err
	}
	out := make([]types.SourceItem, len(wire.Items))
	for i := range wire.Items {
		out[i] = wire.Items[i].toItem()
	}
	return out, nil
}

// UserArray resolves user IDs. Unknown IDs are absent from the result.
func (c *Client) UserArray(ctx context.Context, session string, ids []int) ([]types.SourceUser, error) {
	var wire struct {
		Items []wireUser `xml:"item"`
	}
	err := c.call(ctx, "getUserArray", true, &wire,
		param{"session_ser", session},
		param{"user_ids", ids},
	)
	if err != nil {
		return nil, err
	}
	out := make([]types.SourceUser, len(wire.Items))
	for i, u := range wire.Items {
		out[i] = types.SourceUser{ID: u.ID, UnixName: u.UnixName, Email: u.Email}
	}
	return out, nil
}

// SessionUserID extracts the user ID from a session token.
func SessionUserID(token string) (int, error) {
	head, _, _ := strings.Cut(token, ":")
	id, err := strconv.Atoi(head)
	if err != nil {
		return 0, fmt.Errorf("malformed session token")
	}
	return id, nil
}
