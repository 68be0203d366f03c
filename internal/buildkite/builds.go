// Package buildkite reads recent builds of the pipelines the scope guard
// allows.
package buildkite

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/buildkite/go-buildkite/v4"
	"github.com/shipmate/shipmate/internal/cache"
	"github.com/shipmate/shipmate/internal/config"
	"github.com/shipmate/shipmate/internal/provider"
	"github.com/shipmate/shipmate/internal/scope"
)

const (
	providerName = "buildkite"

	DefaultBuildLimit = 20
	MaxBuildLimit     = 100
)

type Client struct {
	token     string
	apiURL    *url.URL
	substrate provider.Substrate
	guard     *scope.Guard
}

// Build is the summary of one pipeline build.
type Build struct {
	Number          int    `json:"number"`
	State           string `json:"state"`
	Branch          string `json:"branch"`
	Commit          string `json:"commit"`
	Message         string `json:"message"`
	URL             string `json:"url"`
	CreatedAt       string `json:"created_at,omitempty"`
	StartedAt       string `json:"started_at,omitempty"`
	FinishedAt      string `json:"finished_at,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

func New(cfg config.BuildkiteConfig, substrate provider.Substrate, guard *scope.Guard) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("token must be configured for Buildkite API access")
	}

	c := &Client{
		token:     cfg.Token,
		substrate: substrate,
		guard:     guard,
	}

	if cfg.APIURL != "" {
		apiURL := cfg.APIURL
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		u, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("could not parse Buildkite API URL: %w", err)
		}
		c.apiURL = u
	}

	return c, nil
}

// Builds returns the most recent builds of a pipeline, newest first. The
// limit is clamped to 1..MaxBuildLimit; zero selects DefaultBuildLimit.
func (c *Client) Builds(ctx context.Context, org, pipeline string, limit int, refresh bool) ([]Build, error) {
	limit = clampLimit(limit)

	return provider.Call(ctx, c.substrate, provider.Op{
		Tool:      "buildkite.builds",
		Key:       cache.Key("bk", "builds", scope.Fold(org+"/"+pipeline), strconv.Itoa(limit)),
		TTL:       cache.TTLAlerts,
		Refresh:   refresh,
		Authorize: func() error { return c.guard.CheckBuildkitePipeline(org, pipeline) },
	}, func(ctx context.Context) ([]Build, error) {
		client := c.createClient(ctx)

		builds, _, err := client.Builds.ListByPipeline(ctx, org, pipeline, &buildkite.BuildsListOptions{
			ListOptions: buildkite.ListOptions{PerPage: limit},
		})
		if err != nil {
			return nil, provider.UpstreamError{
				Provider: providerName,
				Err:      fmt.Errorf("failed to list builds for %s/%s: %w", org, pipeline, err),
			}
		}

		result := make([]Build, 0, len(builds))
		for _, b := range builds {
			result = append(result, summarize(b))
		}

		return result, nil
	})
}

func summarize(b buildkite.Build) Build {
	build := Build{
		Number:     b.Number,
		State:      b.State,
		Branch:     b.Branch,
		Commit:     b.Commit,
		Message:    firstLine(b.Message),
		URL:        b.WebURL,
		CreatedAt:  formatTimestamp(b.CreatedAt),
		StartedAt:  formatTimestamp(b.StartedAt),
		FinishedAt: formatTimestamp(b.FinishedAt),
	}

	if b.StartedAt != nil && b.FinishedAt != nil {
		build.DurationSeconds = int(b.FinishedAt.Sub(b.StartedAt.Time).Seconds())
	}

	return build
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultBuildLimit
	case limit > MaxBuildLimit:
		return MaxBuildLimit
	default:
		return limit
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func formatTimestamp(ts *buildkite.Timestamp) string {
	if ts == nil || ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

// createClient creates a new Buildkite API client. A client is required for
// every invocation, so the current context can be included in the request.
// Without this, HTTP client traces are not attached to their parent request.
func (c *Client) createClient(ctx context.Context) *buildkite.Client {
	def := http.DefaultTransport

	rt := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		req = req.WithContext(ctx)
		return def.RoundTrip(req)
	})

	client, _ := buildkite.NewClient(
		buildkite.WithTokenAuth(c.token),
		buildkite.WithHTTPClient(&http.Client{Transport: &rt}),
	)

	if c.apiURL != nil {
		client.BaseURL = c.apiURL
	}

	return client
}

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
