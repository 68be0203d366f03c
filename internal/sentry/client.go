// Package sentry reads unresolved issues and their events for the one Sentry
// project the scope guard allows.
package sentry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shipmate/shipmate/internal/cache"
	"github.com/shipmate/shipmate/internal/config"
	"github.com/shipmate/shipmate/internal/provider"
	"github.com/shipmate/shipmate/internal/scope"
)

const (
	providerName = "sentry"

	DefaultIssueLimit = 25
	MaxIssueLimit     = 100

	maxFrames = 10
	maxTags   = 10
)

type Client struct {
	api       *provider.JSONClient
	substrate provider.Substrate
	guard     *scope.Guard
}

func New(cfg config.SentryConfig, substrate provider.Substrate, guard *scope.Guard) *Client {
	return &Client{
		api: &provider.JSONClient{
			Provider: providerName,
			BaseURL:  strings.TrimRight(cfg.URL, "/") + "/api/0",
			Header:   http.Header{"Authorization": []string{"Bearer " + cfg.AuthToken}},
		},
		substrate: substrate,
		guard:     guard,
	}
}

type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type IssueMetadata struct {
	Type     string `json:"type,omitempty"`
	Value    string `json:"value,omitempty"`
	Filename string `json:"filename,omitempty"`
	Function string `json:"function,omitempty"`
}

type Issue struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Culprit   string        `json:"culprit"`
	Level     string        `json:"level"`
	Status    string        `json:"status"`
	Count     string        `json:"count"`
	FirstSeen string        `json:"first_seen"`
	LastSeen  string        `json:"last_seen"`
	ShortID   string        `json:"short_id"`
	Permalink string        `json:"permalink"`
	Metadata  IssueMetadata `json:"metadata"`
	Tags      []Tag         `json:"tags"`
}

type IssuesResult struct {
	Org     string  `json:"org"`
	Project string  `json:"project"`
	Total   int     `json:"total"`
	Issues  []Issue `json:"issues"`
}

type Frame struct {
	Filename    string  `json:"filename"`
	Function    string  `json:"function"`
	LineNo      *int    `json:"lineno"`
	ContextLine *string `json:"context_line"`
}

type Stacktrace struct {
	Frames []Frame `json:"frames"`
}

type Event struct {
	EventID    string         `json:"event_id"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Timestamp  string         `json:"timestamp"`
	Tags       []Tag          `json:"tags"`
	Context    map[string]any `json:"context"`
	Stacktrace *Stacktrace    `json:"stacktrace"`
}

type rawTag struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	Value     string `json:"value"`
	TopValues []struct {
		Value string `json:"value"`
	} `json:"topValues"`
}

type rawIssue struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Culprit   string        `json:"culprit"`
	Level     string        `json:"level"`
	Status    string        `json:"status"`
	Count     string        `json:"count"`
	FirstSeen string        `json:"firstSeen"`
	LastSeen  string        `json:"lastSeen"`
	ShortID   string        `json:"shortId"`
	Permalink string        `json:"permalink"`
	Metadata  IssueMetadata `json:"metadata"`
	Tags      []rawTag      `json:"tags"`
	Project   *struct {
		Slug string `json:"slug"`
	} `json:"project"`
}

func (r rawIssue) issue() Issue {
	issue := Issue{
		ID:        r.ID,
		Title:     r.Title,
		Culprit:   r.Culprit,
		Level:     or(r.Level, "error"),
		Status:    or(r.Status, "unresolved"),
		Count:     or(r.Count, "0"),
		FirstSeen: r.FirstSeen,
		LastSeen:  r.LastSeen,
		ShortID:   r.ShortID,
		Permalink: r.Permalink,
		Metadata:  r.Metadata,
		Tags:      []Tag{},
	}

	for i, t := range r.Tags {
		if i == maxTags {
			break
		}
		tag := Tag{Key: or(t.Key, t.Name), Value: t.Value}
		if tag.Value == "" && len(t.TopValues) > 0 {
			tag.Value = t.TopValues[0].Value
		}
		issue.Tags = append(issue.Tags, tag)
	}

	return issue
}

func or(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// UnresolvedIssues lists the unresolved issues of the configured project,
// newest first. level and timeRange (e.g. "24h", "7d") are optional filters.
func (c *Client) UnresolvedIssues(ctx context.Context, level, timeRange string, limit int, refresh bool) (IssuesResult, error) {
	org, project := c.guard.SentryOrg(), c.guard.SentryProject()

	switch {
	case limit <= 0:
		limit = DefaultIssueLimit
	case limit > MaxIssueLimit:
		limit = MaxIssueLimit
	}
	query := buildQuery(level, timeRange)

	return provider.Call(ctx, c.substrate, provider.Op{
		Tool:      "sentry.issues",
		Key:       cache.Key("sentry", "issues", org, project, query, strconv.Itoa(limit)),
		TTL:       cache.TTLAlerts,
		Refresh:   refresh,
		Authorize: func() error { return c.guard.CheckSentry(org, project) },
	}, func(ctx context.Context) (IssuesResult, error) {
		var raw []rawIssue

		path := "/projects/" + url.PathEscape(org) + "/" + url.PathEscape(project) + "/issues/"
		err := c.api.Get(ctx, path, url.Values{
			"query": {query},
			"limit": {strconv.Itoa(limit)},
			"sort":  {"date"},
		}, &raw)
		if err != nil {
			return IssuesResult{}, err
		}

		result := IssuesResult{
			Org:     org,
			Project: project,
			Issues:  make([]Issue, 0, len(raw)),
		}
		for _, r := range raw {
			result.Issues = append(result.Issues, r.issue())
		}
		result.Total = len(result.Issues)

		return result, nil
	})
}

// IssueDetails reads one issue. Issue IDs are global to the Sentry
// organization, so the owning project is checked once the issue is read.
func (c *Client) IssueDetails(ctx context.Context, issueID string, refresh bool) (Issue, error) {
	org, project := c.guard.SentryOrg(), c.guard.SentryProject()

	return provider.Call(ctx, c.substrate, provider.Op{
		Tool:      "sentry.issue",
		Key:       cache.Key("sentry", "issue-detail", issueID),
		TTL:       cache.TTLAlerts,
		Refresh:   refresh,
		Authorize: func() error { return c.guard.CheckSentry(org, project) },
	}, func(ctx context.Context) (Issue, error) {
		raw, err := c.ownedIssue(ctx, org, issueID)
		if err != nil {
			return Issue{}, err
		}

		return raw.issue(), nil
	})
}

// ownedIssue reads an issue and rejects it unless it names the configured
// project. An issue without a project is rejected too.
func (c *Client) ownedIssue(ctx context.Context, org, issueID string) (rawIssue, error) {
	var raw rawIssue
	if err := c.api.Get(ctx, "/issues/"+url.PathEscape(issueID)+"/", nil, &raw); err != nil {
		return rawIssue{}, err
	}

	if raw.Project == nil || raw.Project.Slug == "" {
		return rawIssue{}, scope.ViolationError{
			Domain:    "sentry",
			Requested: issueID,
			Allowed:   []string{c.guard.SentryOrg() + "/" + c.guard.SentryProject()},
		}
	}

	if err := c.guard.CheckSentry(org, raw.Project.Slug); err != nil {
		return rawIssue{}, err
	}

	return raw, nil
}

type rawFrame struct {
	Filename    string  `json:"filename"`
	AbsPath     string  `json:"absPath"`
	Function    string  `json:"function"`
	LineNo      *int    `json:"lineNo"`
	ContextLine *string `json:"contextLine"`
}

type rawEvent struct {
	EventID      string         `json:"eventID"`
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	DateCreated  string         `json:"dateCreated"`
	DateReceived string         `json:"dateReceived"`
	Metadata     IssueMetadata  `json:"metadata"`
	Tags         []rawTag       `json:"tags"`
	Contexts     map[string]any `json:"contexts"`
	Entries      []struct {
		Type string `json:"type"`
		Data struct {
			Values []struct {
				Stacktrace *struct {
					Frames []rawFrame `json:"frames"`
				} `json:"stacktrace"`
			} `json:"values"`
		} `json:"data"`
	} `json:"entries"`
}

// LatestEvent returns the most recent occurrence of an issue, with the
// innermost frames of its first exception stacktrace.
func (c *Client) LatestEvent(ctx context.Context, issueID string, refresh bool) (Event, error) {
	org, project := c.guard.SentryOrg(), c.guard.SentryProject()

	return provider.Call(ctx, c.substrate, provider.Op{
		Tool:      "sentry.latest_event",
		Key:       cache.Key("sentry", "event-latest", issueID),
		TTL:       cache.TTLAlerts,
		Refresh:   refresh,
		Authorize: func() error { return c.guard.CheckSentry(org, project) },
	}, func(ctx context.Context) (Event, error) {
		if _, err := c.ownedIssue(ctx, org, issueID); err != nil {
			return Event{}, err
		}

		var raw rawEvent
		if err := c.api.Get(ctx, "/issues/"+url.PathEscape(issueID)+"/events/latest/", nil, &raw); err != nil {
			return Event{}, err
		}

		return event(raw), nil
	})
}

func event(raw rawEvent) Event {
	e := Event{
		EventID:   or(raw.EventID, raw.ID),
		Title:     raw.Title,
		Message:   or(raw.Message, raw.Metadata.Value),
		Timestamp: or(raw.DateCreated, raw.DateReceived),
		Tags:      make([]Tag, 0, len(raw.Tags)),
		Context:   raw.Contexts,
	}
	if e.Context == nil {
		e.Context = map[string]any{}
	}

	for _, t := range raw.Tags {
		e.Tags = append(e.Tags, Tag{Key: or(t.Key, t.Name), Value: t.Value})
	}

	if frames := exceptionFrames(raw); len(frames) > 0 {
		e.Stacktrace = &Stacktrace{Frames: frames}
	}

	return e
}

func exceptionFrames(raw rawEvent) []Frame {
	for _, entry := range raw.Entries {
		if entry.Type != "exception" {
			continue
		}
		for _, value := range entry.Data.Values {
			if value.Stacktrace == nil || len(value.Stacktrace.Frames) == 0 {
				continue
			}

			frames := value.Stacktrace.Frames
			if len(frames) > maxFrames {
				frames = frames[len(frames)-maxFrames:]
			}

			result := make([]Frame, 0, len(frames))
			for _, f := range frames {
				result = append(result, Frame{
					Filename:    or(f.Filename, f.AbsPath),
					Function:    or(f.Function, "<anonymous>"),
					LineNo:      f.LineNo,
					ContextLine: f.ContextLine,
				})
			}
			return result
		}
	}

	return nil
}

func buildQuery(level, timeRange string) string {
	parts := []string{"is:unresolved"}
	if level != "" {
		parts = append(parts, "level:"+level)
	}
	if timeRange != "" {
		parts = append(parts, fmt.Sprintf("age:-%s", timeRange))
	}
	return strings.Join(parts, " ")
}
