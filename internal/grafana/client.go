// Package grafana reads alert state and annotations from Grafana's unified
// alerting API. Grafana has no allowlist: the token's own permissions bound
// what is visible.
package grafana

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shipmate/shipmate/internal/cache"
	"github.com/shipmate/shipmate/internal/config"
	"github.com/shipmate/shipmate/internal/provider"
)

const (
	providerName = "grafana"

	DefaultAnnotationLimit = 50
	MaxAnnotationLimit     = 200
)

var timeRangePattern = regexp.MustCompile(`^(\d+)(h|d)$`)

type Client struct {
	api       *provider.JSONClient
	source    string
	substrate provider.Substrate
	now       func() time.Time
}

type Option func(*Client)

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

func New(cfg config.GrafanaConfig, substrate provider.Substrate, opts ...Option) *Client {
	base := strings.TrimRight(cfg.URL, "/")

	c := &Client{
		api: &provider.JSONClient{
			Provider: providerName,
			BaseURL:  base,
			Header:   http.Header{"Authorization": []string{"Bearer " + cfg.Token}},
		},
		source:    base,
		substrate: substrate,
		now:       time.Now,
	}

	for _, o := range opts {
		o(c)
	}

	return c
}

type Alert struct {
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	State       string            `json:"state"`
	ActiveAt    string            `json:"active_at"`
	Value       string            `json:"value"`
	SilencedBy  []string          `json:"silenced_by"`
	InhibitedBy []string          `json:"inhibited_by"`
}

type AlertsResult struct {
	Source string  `json:"source"`
	Total  int     `json:"total"`
	Alerts []Alert `json:"alerts"`
}

type AlertRule struct {
	UID                string `json:"uid"`
	Title              string `json:"title"`
	Condition          string `json:"condition"`
	FolderTitle        string `json:"folder_title"`
	State              string `json:"state"`
	Health             string `json:"health"`
	LastEvaluation     string `json:"last_evaluation"`
	EvaluationDuration string `json:"evaluation_duration"`
}

type Annotation struct {
	ID           int64    `json:"id"`
	DashboardUID string   `json:"dashboard_uid"`
	PanelID      int64    `json:"panel_id"`
	Text         string   `json:"text"`
	Tags         []string `json:"tags"`
	Time         int64    `json:"time"`
	TimeEnd      int64    `json:"time_end"`
}

type rawAlert struct {
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    string            `json:"startsAt"`
	Status      *struct {
		State       string   `json:"state"`
		SilencedBy  []string `json:"silencedBy"`
		InhibitedBy []string `json:"inhibitedBy"`
	} `json:"status"`
}

func (r rawAlert) alert() Alert {
	a := Alert{
		Labels:      r.Labels,
		Annotations: r.Annotations,
		State:       "unknown",
		ActiveAt:    r.StartsAt,
		Value:       r.Annotations["value"],
		SilencedBy:  []string{},
		InhibitedBy: []string{},
	}
	if a.Labels == nil {
		a.Labels = map[string]string{}
	}
	if a.Annotations == nil {
		a.Annotations = map[string]string{}
	}
	if s := r.Status; s != nil {
		if s.State != "" {
			a.State = s.State
		}
		if s.SilencedBy != nil {
			a.SilencedBy = s.SilencedBy
		}
		if s.InhibitedBy != nil {
			a.InhibitedBy = s.InhibitedBy
		}
	}
	return a
}

// Alerts lists alert instances from the Grafana alertmanager, optionally
// only those in the given state.
func (c *Client) Alerts(ctx context.Context, state string, refresh bool) (AlertsResult, error) {
	return provider.Call(ctx, c.substrate, provider.Op{
		Tool:    "grafana.alerts",
		Key:     cache.Key("grafana", "alerts", strings.ToLower(state)),
		TTL:     cache.TTLAlerts,
		Refresh: refresh,
	}, func(ctx context.Context) (AlertsResult, error) {
		var raw []rawAlert
		if err := c.api.Get(ctx, "/api/alertmanager/grafana/api/v2/alerts", nil, &raw); err != nil {
			return AlertsResult{}, err
		}

		result := AlertsResult{Source: c.source, Alerts: []Alert{}}
		for _, r := range raw {
			a := r.alert()
			if state != "" && !strings.EqualFold(a.State, state) {
				continue
			}
			result.Alerts = append(result.Alerts, a)
		}
		result.Total = len(result.Alerts)

		return result, nil
	})
}

type rawRule struct {
	Alert        string `json:"alert"`
	GrafanaAlert *struct {
		UID                string `json:"uid"`
		Title              string `json:"title"`
		Condition          string `json:"condition"`
		State              string `json:"state"`
		Health             string `json:"health"`
		LastEvaluation     string `json:"last_evaluation"`
		EvaluationDuration string `json:"evaluation_duration"`
	} `json:"grafana_alert"`
}

// AlertRules lists the configured alert rules, grouped by folder in folder
// name order.
func (c *Client) AlertRules(ctx context.Context, refresh bool) ([]AlertRule, error) {
	return provider.Call(ctx, c.substrate, provider.Op{
		Tool:    "grafana.alert_rules",
		Key:     cache.Key("grafana", "rules"),
		TTL:     cache.TTLAlerts,
		Refresh: refresh,
	}, func(ctx context.Context) ([]AlertRule, error) {
		var raw map[string][]struct {
			Rules []rawRule `json:"rules"`
		}
		if err := c.api.Get(ctx, "/api/ruler/grafana/api/v1/rules", nil, &raw); err != nil {
			return nil, err
		}

		folders := make([]string, 0, len(raw))
		for folder := range raw {
			folders = append(folders, folder)
		}
		sort.Strings(folders)

		rules := []AlertRule{}
		for _, folder := range folders {
			for _, group := range raw[folder] {
				for _, r := range group.Rules {
					rule := AlertRule{Title: r.Alert, FolderTitle: folder}
					if g := r.GrafanaAlert; g != nil {
						rule.UID = g.UID
						if g.Title != "" {
							rule.Title = g.Title
						}
						rule.Condition = g.Condition
						rule.State = g.State
						rule.Health = g.Health
						rule.LastEvaluation = g.LastEvaluation
						rule.EvaluationDuration = g.EvaluationDuration
					}
					rules = append(rules, rule)
				}
			}
		}

		return rules, nil
	})
}

// Annotations lists dashboard annotations. timeRange is "<n>h" or "<n>d"
// back from now; an unrecognized range applies no lower bound. limit is
// capped at MaxAnnotationLimit, zero selecting DefaultAnnotationLimit.
func (c *Client) Annotations(ctx context.Context, dashboardUID, timeRange string, limit int, refresh bool) ([]Annotation, error) {
	switch {
	case limit <= 0:
		limit = DefaultAnnotationLimit
	case limit > MaxAnnotationLimit:
		limit = MaxAnnotationLimit
	}

	return provider.Call(ctx, c.substrate, provider.Op{
		Tool: "grafana.annotations",
		Key: cache.Key("grafana", "annotations", cache.HashParams(map[string]any{
			"dashboardUID": dashboardUID,
			"timeRange":    timeRange,
			"limit":        limit,
		})),
		TTL:     cache.TTLAlerts,
		Refresh: refresh,
	}, func(ctx context.Context) ([]Annotation, error) {
		query := url.Values{"limit": {strconv.Itoa(limit)}}
		if dashboardUID != "" {
			query.Set("dashboardUID", dashboardUID)
		}
		if timeRange != "" {
			now := c.now()
			if from, ok := rangeStart(timeRange, now); ok {
				query.Set("from", strconv.FormatInt(from.UnixMilli(), 10))
			}
			query.Set("to", strconv.FormatInt(now.UnixMilli(), 10))
		}

		var raw []struct {
			ID           int64    `json:"id"`
			DashboardUID string   `json:"dashboardUID"`
			PanelID      int64    `json:"panelId"`
			Text         string   `json:"text"`
			Tags         []string `json:"tags"`
			Time         int64    `json:"time"`
			TimeEnd      int64    `json:"timeEnd"`
		}
		if err := c.api.Get(ctx, "/api/annotations", query, &raw); err != nil {
			return nil, err
		}

		annotations := make([]Annotation, 0, len(raw))
		for _, a := range raw {
			tags := a.Tags
			if tags == nil {
				tags = []string{}
			}
			annotations = append(annotations, Annotation{
				ID:           a.ID,
				DashboardUID: a.DashboardUID,
				PanelID:      a.PanelID,
				Text:         a.Text,
				Tags:         tags,
				Time:         a.Time,
				TimeEnd:      a.TimeEnd,
			})
		}

		return annotations, nil
	})
}

func rangeStart(timeRange string, now time.Time) (time.Time, bool) {
	m := timeRangePattern.FindStringSubmatch(timeRange)
	if m == nil {
		return time.Time{}, false
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}

	unit := time.Hour
	if m[2] == "d" {
		unit = 24 * time.Hour
	}

	return now.Add(-time.Duration(n) * unit), true
}
