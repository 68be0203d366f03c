// Package jira searches issues and reads sprints from Jira Cloud, limited to
// the projects and boards the scope guard allows.
package jira

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shipmate/shipmate/internal/cache"
	"github.com/shipmate/shipmate/internal/config"
	"github.com/shipmate/shipmate/internal/provider"
	"github.com/shipmate/shipmate/internal/scope"
)

const (
	providerName = "jira"

	DefaultSearchResults = 50
	MaxSearchResults     = 100
)

// ErrNoActiveSprint is returned when a board has no sprint in progress.
var ErrNoActiveSprint = errors.New("no active sprint found on the board")

var defaultFields = []string{
	"summary", "status", "assignee", "priority", "issuetype",
	"customfield_10016", "created", "updated", "labels",
}

type Client struct {
	api       *provider.JSONClient
	substrate provider.Substrate
	guard     *scope.Guard
	now       func() time.Time
}

type Option func(*Client)

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

func New(cfg config.JiraConfig, substrate provider.Substrate, guard *scope.Guard, opts ...Option) *Client {
	credentials := base64.StdEncoding.EncodeToString([]byte(cfg.UserEmail + ":" + cfg.APIToken))

	c := &Client{
		api: &provider.JSONClient{
			Provider: providerName,
			BaseURL:  strings.TrimRight(cfg.BaseURL, "/"),
			Header:   http.Header{"Authorization": []string{"Basic " + credentials}},
		},
		substrate: substrate,
		guard:     guard,
		now:       time.Now,
	}

	for _, o := range opts {
		o(c)
	}

	return c
}

type Issue struct {
	Key         string   `json:"key"`
	Summary     string   `json:"summary"`
	Status      string   `json:"status"`
	Assignee    *string  `json:"assignee"`
	Priority    string   `json:"priority"`
	IssueType   string   `json:"issue_type"`
	StoryPoints *float64 `json:"story_points"`
	Created     string   `json:"created"`
	Updated     string   `json:"updated"`
	Labels      []string `json:"labels"`
}

type SearchResult struct {
	Total  int     `json:"total"`
	Issues []Issue `json:"issues"`
}

type Sprint struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	State         string `json:"state"`
	StartDate     string `json:"startDate"`
	EndDate       string `json:"endDate"`
	Goal          string `json:"goal"`
	OriginBoardID int    `json:"originBoardId"`
}

type named struct {
	Name string `json:"name"`
}

type rawIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary  string `json:"summary"`
		Status   *named `json:"status"`
		Assignee *struct {
			DisplayName string `json:"displayName"`
		} `json:"assignee"`
		Priority    *named   `json:"priority"`
		IssueType   *named   `json:"issuetype"`
		StoryPoints *float64 `json:"customfield_10016"`
		Created     string   `json:"created"`
		Updated     string   `json:"updated"`
		Labels      []string `json:"labels"`
	} `json:"fields"`
}

func (r rawIssue) issue() Issue {
	f := r.Fields
	issue := Issue{
		Key:         r.Key,
		Summary:     f.Summary,
		Status:      nameOr(f.Status, "Unknown"),
		Priority:    nameOr(f.Priority, "Medium"),
		IssueType:   nameOr(f.IssueType, "Task"),
		StoryPoints: f.StoryPoints,
		Created:     f.Created,
		Updated:     f.Updated,
		Labels:      f.Labels,
	}
	if issue.Labels == nil {
		issue.Labels = []string{}
	}
	if f.Assignee != nil && f.Assignee.DisplayName != "" {
		name := f.Assignee.DisplayName
		issue.Assignee = &name
	}
	return issue
}

func nameOr(n *named, fallback string) string {
	if n == nil || n.Name == "" {
		return fallback
	}
	return n.Name
}

func convertIssues(raw []rawIssue) []Issue {
	issues := make([]Issue, 0, len(raw))
	for _, r := range raw {
		issues = append(issues, r.issue())
	}
	return issues
}

// Search runs a JQL query, restricted to the allowed projects. Empty fields
// selects the standard issue fields; maxResults is clamped to
// 1..MaxSearchResults, zero selecting DefaultSearchResults.
func (c *Client) Search(ctx context.Context, jql string, fields []string, maxResults int, refresh bool) (SearchResult, error) {
	if len(fields) == 0 {
		fields = defaultFields
	}
	switch {
	case maxResults <= 0:
		maxResults = DefaultSearchResults
	case maxResults > MaxSearchResults:
		maxResults = MaxSearchResults
	}

	scoped, jqlErr := c.guard.ScopeJQL(jql)

	return provider.Call(ctx, c.substrate, provider.Op{
		Tool: "jira.search",
		Key: cache.Key("jira", "search", cache.HashParams(map[string]any{
			"jql":        scoped,
			"fields":     fields,
			"maxResults": maxResults,
		})),
		TTL:     cache.TTLIssueList,
		Refresh: refresh,
		Authorize: func() error {
			if err := c.guard.RequireJiraScope(); err != nil {
				return err
			}
			return jqlErr
		},
	}, func(ctx context.Context) (SearchResult, error) {
		var data struct {
			Total  *int       `json:"total"`
			Issues []rawIssue `json:"issues"`
		}

		err := c.api.Post(ctx, "/rest/api/3/search", map[string]any{
			"jql":        scoped,
			"maxResults": maxResults,
			"fields":     fields,
		}, &data)
		if err != nil {
			return SearchResult{}, err
		}

		result := SearchResult{Issues: convertIssues(data.Issues)}
		result.Total = len(result.Issues)
		if data.Total != nil {
			result.Total = *data.Total
		}

		return result, nil
	})
}

// ActiveSprint returns the sprint in progress on a board, or
// ErrNoActiveSprint.
func (c *Client) ActiveSprint(ctx context.Context, boardID int) (Sprint, error) {
	return provider.Call(ctx, c.substrate, provider.Op{
		Tool: "jira.active_sprint",
		Key:  cache.Key("jira", "active-sprint", strconv.Itoa(boardID)),
		TTL:  cache.TTLSprint,
		Authorize: func() error {
			if err := c.guard.RequireJiraScope(); err != nil {
				return err
			}
			return c.guard.CheckJiraBoard(boardID)
		},
	}, func(ctx context.Context) (Sprint, error) {
		var data struct {
			Values []Sprint `json:"values"`
		}

		path := "/rest/agile/1.0/board/" + strconv.Itoa(boardID) + "/sprint"
		if err := c.api.Get(ctx, path, url.Values{"state": {"active"}}, &data); err != nil {
			return Sprint{}, err
		}

		if len(data.Values) == 0 {
			return Sprint{}, ErrNoActiveSprint
		}

		return data.Values[0], nil
	})
}

// Sprint returns a sprint by ID. A sprint created on a board outside the
// allowlist is rejected once its origin is known.
func (c *Client) Sprint(ctx context.Context, sprintID int) (Sprint, error) {
	return provider.Call(ctx, c.substrate, provider.Op{
		Tool:      "jira.sprint",
		Key:       cache.Key("jira", "sprint", strconv.Itoa(sprintID)),
		TTL:       cache.TTLSprint,
		Authorize: c.guard.RequireJiraScope,
	}, func(ctx context.Context) (Sprint, error) {
		var s Sprint
		if err := c.api.Get(ctx, "/rest/agile/1.0/sprint/"+strconv.Itoa(sprintID), nil, &s); err != nil {
			return Sprint{}, err
		}

		if s.OriginBoardID != 0 {
			if err := c.guard.CheckJiraBoard(s.OriginBoardID); err != nil {
				return Sprint{}, err
			}
		}

		return s, nil
	})
}

// SprintIssues returns the issues of a sprint that belong to the allowed
// projects.
func (c *Client) SprintIssues(ctx context.Context, sprintID int) ([]Issue, error) {
	return provider.Call(ctx, c.substrate, provider.Op{
		Tool:      "jira.sprint_issues",
		Key:       cache.Key("jira", "sprint-issues", strconv.Itoa(sprintID)),
		TTL:       cache.TTLSprint,
		Authorize: c.guard.RequireJiraScope,
	}, func(ctx context.Context) ([]Issue, error) {
		var data struct {
			Issues []rawIssue `json:"issues"`
		}

		query := url.Values{
			"maxResults": {strconv.Itoa(MaxSearchResults)},
			"fields":     {strings.Join(defaultFields, ",")},
		}
		if clause := c.guard.ProjectClause(); clause != "" {
			query.Set("jql", clause)
		}

		path := "/rest/agile/1.0/sprint/" + strconv.Itoa(sprintID) + "/issue"
		if err := c.api.Get(ctx, path, query, &data); err != nil {
			return nil, err
		}

		return convertIssues(data.Issues), nil
	})
}
