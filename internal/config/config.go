package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/shipmate/shipmate/internal/scope"
)

type Config struct {
	Server    ServerConfig
	Scope     ScopeConfig
	Limit     LimitConfig
	Cache     CacheConfig
	Github    GithubConfig
	GitLab    GitLabConfig
	Jira      JiraConfig
	Sentry    SentryConfig
	Grafana   GrafanaConfig
	Buildkite BuildkiteConfig
	Observe   ObserveConfig
}

const (
	ModeHTTP  = "http"
	ModeStdio = "stdio"
)

type ServerConfig struct {
	Port                   int    `env:"SERVER_PORT, default=8080"`
	ShutdownTimeoutSeconds int    `env:"SERVER_SHUTDOWN_TIMEOUT_SECS, default=25"`
	Mode                   string `env:"SERVER_MODE, default=http"`

	// APIToken, when set, is required as a bearer token on tool requests.
	APIToken string `env:"SERVER_API_TOKEN"`

	OutgoingHTTPMaxIdleConns    int `env:"SERVER_OUTGOING_MAX_IDLE_CONNS, default=100"`
	OutgoingHTTPMaxConnsPerHost int `env:"SERVER_OUTGOING_MAX_CONNS_PER_HOST, default=20"`
}

// ScopeConfig holds the comma separated allowlists. An empty list disables
// the tools of its domain.
type ScopeConfig struct {
	GitHubRepos        string `env:"SHIPMATE_SCOPE_GITHUB_REPOS"`
	GitLabProjects     string `env:"SHIPMATE_SCOPE_GITLAB_PROJECTS"`
	JiraProjects       string `env:"SHIPMATE_SCOPE_JIRA_PROJECTS"`
	JiraBoards         string `env:"SHIPMATE_SCOPE_JIRA_BOARDS"`
	BuildkitePipelines string `env:"SHIPMATE_SCOPE_BUILDKITE_PIPELINES"`
	SentryOrg          string `env:"SENTRY_ORG"`
	SentryProject      string `env:"SENTRY_PROJECT"`
}

func (c ScopeConfig) GuardConfig() scope.Config {
	return scope.Config{
		GitHubRepos:        c.GitHubRepos,
		GitLabProjects:     c.GitLabProjects,
		JiraProjects:       c.JiraProjects,
		JiraBoards:         c.JiraBoards,
		BuildkitePipelines: c.BuildkitePipelines,
		SentryOrg:          c.SentryOrg,
		SentryProject:      c.SentryProject,
	}
}

type LimitConfig struct {
	Burst     int     `env:"SHIPMATE_RATE_BURST, default=10"`
	PerMinute float64 `env:"SHIPMATE_RATE_PER_MINUTE, default=30"`
}

type CacheConfig struct {
	SweepInterval time.Duration `env:"SHIPMATE_CACHE_SWEEP_INTERVAL, default=1m"`
	MaxEntries    int           `env:"SHIPMATE_CACHE_MAX_ENTRIES, default=10000"`
}

// GithubConfig accepts either a token, or the identity of a GitHub App
// installation with its private key held locally or in AWS KMS.
type GithubConfig struct {
	APIURL string // internal only

	Token string `env:"GITHUB_TOKEN"`

	PrivateKey    string `env:"GITHUB_APP_PRIVATE_KEY"`
	PrivateKeyARN string `env:"GITHUB_APP_PRIVATE_KEY_ARN"`

	ApplicationID  int64 `env:"GITHUB_APP_ID"`
	InstallationID int64 `env:"GITHUB_APP_INSTALLATION_ID"`

	// ValidateScope lists the repositories visible to the credential at
	// startup, warning about any outside the allowlist.
	ValidateScope bool `env:"GITHUB_VALIDATE_SCOPE, default=true"`
}

func (c GithubConfig) UsesApp() bool {
	return c.Token == "" && (c.ApplicationID != 0 || c.InstallationID != 0 || c.PrivateKey != "" || c.PrivateKeyARN != "")
}

func (c GithubConfig) Enabled() bool {
	return len(c.Missing()) == 0
}

func (c GithubConfig) Missing() []string {
	if c.Token != "" {
		return nil
	}
	if !c.UsesApp() {
		return []string{"GITHUB_TOKEN"}
	}

	var missing []string
	if c.ApplicationID == 0 {
		missing = append(missing, "GITHUB_APP_ID")
	}
	if c.InstallationID == 0 {
		missing = append(missing, "GITHUB_APP_INSTALLATION_ID")
	}
	if c.PrivateKey == "" && c.PrivateKeyARN == "" {
		missing = append(missing, "GITHUB_APP_PRIVATE_KEY")
	}
	return missing
}

type GitLabConfig struct {
	Token string `env:"GITLAB_TOKEN"`
	Host  string `env:"GITLAB_HOST, default=https://gitlab.com"`
}

func (c GitLabConfig) Enabled() bool { return len(c.Missing()) == 0 }

func (c GitLabConfig) Missing() []string {
	return missingVars(map[string]string{"GITLAB_TOKEN": c.Token}, "GITLAB_TOKEN")
}

type JiraConfig struct {
	BaseURL   string `env:"JIRA_BASE_URL"`
	UserEmail string `env:"JIRA_USER_EMAIL"`
	APIToken  string `env:"JIRA_API_TOKEN"`
}

func (c JiraConfig) Enabled() bool { return len(c.Missing()) == 0 }

func (c JiraConfig) Missing() []string {
	return missingVars(map[string]string{
		"JIRA_BASE_URL":   c.BaseURL,
		"JIRA_USER_EMAIL": c.UserEmail,
		"JIRA_API_TOKEN":  c.APIToken,
	}, "JIRA_BASE_URL", "JIRA_USER_EMAIL", "JIRA_API_TOKEN")
}

type SentryConfig struct {
	URL       string `env:"SENTRY_URL, default=https://sentry.io"`
	AuthToken string `env:"SENTRY_AUTH_TOKEN"`
}

func (c SentryConfig) Enabled() bool { return len(c.Missing()) == 0 }

func (c SentryConfig) Missing() []string {
	return missingVars(map[string]string{"SENTRY_AUTH_TOKEN": c.AuthToken}, "SENTRY_AUTH_TOKEN")
}

type GrafanaConfig struct {
	URL   string `env:"GRAFANA_URL"`
	Token string `env:"GRAFANA_TOKEN"`
}

func (c GrafanaConfig) Enabled() bool { return len(c.Missing()) == 0 }

func (c GrafanaConfig) Missing() []string {
	return missingVars(map[string]string{
		"GRAFANA_URL":   c.URL,
		"GRAFANA_TOKEN": c.Token,
	}, "GRAFANA_URL", "GRAFANA_TOKEN")
}

type BuildkiteConfig struct {
	APIURL string // internal only
	Token  string `env:"BUILDKITE_API_TOKEN"`
}

func (c BuildkiteConfig) Enabled() bool { return len(c.Missing()) == 0 }

func (c BuildkiteConfig) Missing() []string {
	return missingVars(map[string]string{"BUILDKITE_API_TOKEN": c.Token}, "BUILDKITE_API_TOKEN")
}

type ObserveConfig struct {
	SDKLogLevel                string `env:"OBSERVE_OTEL_LOG_LEVEL, default=info"`
	Enabled                    bool   `env:"OBSERVE_ENABLED, default=false"`
	MetricsEnabled             bool   `env:"OBSERVE_METRICS_ENABLED, default=true"`
	Type                       string `env:"OBSERVE_TYPE, default=grpc"`
	ServiceName                string `env:"OBSERVE_SERVICE_NAME, default=shipmate"`
	TraceBatchTimeoutSeconds   int    `env:"OBSERVE_TRACE_BATCH_TIMEOUT_SECS, default=20"`
	MetricReadIntervalSeconds  int    `env:"OBSERVE_METRIC_READ_INTERVAL_SECS, default=60"`
	HTTPTransportEnabled       bool   `env:"OBSERVE_HTTP_TRANSPORT_ENABLED, default=true"`
	HTTPConnectionTraceEnabled bool   `env:"OBSERVE_CONNECTION_TRACE_ENABLED, default=true"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	err = cfg.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings that cannot be expressed as struct tags. All
// problems found are reported together.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Mode != ModeHTTP && c.Server.Mode != ModeStdio {
		errs = append(errs, fmt.Errorf("SERVER_MODE must be %q or %q, got %q", ModeHTTP, ModeStdio, c.Server.Mode))
	}
	if c.Limit.Burst < 1 {
		errs = append(errs, fmt.Errorf("SHIPMATE_RATE_BURST must be at least 1, got %d", c.Limit.Burst))
	}
	if !(c.Limit.PerMinute > 0) {
		errs = append(errs, fmt.Errorf("SHIPMATE_RATE_PER_MINUTE must be positive, got %v", c.Limit.PerMinute))
	}
	if c.Cache.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("SHIPMATE_CACHE_SWEEP_INTERVAL must be positive, got %s", c.Cache.SweepInterval))
	}
	if c.Cache.MaxEntries < 1 {
		errs = append(errs, fmt.Errorf("SHIPMATE_CACHE_MAX_ENTRIES must be at least 1, got %d", c.Cache.MaxEntries))
	}

	errs = append(errs, c.Scope.validate()...)

	return errors.Join(errs...)
}

func (c ScopeConfig) validate() []error {
	var errs []error

	for _, repo := range splitList(c.GitHubRepos) {
		if err := checkPath("SHIPMATE_SCOPE_GITHUB_REPOS", repo, true); err != nil {
			errs = append(errs, err)
		}
	}
	for _, project := range splitList(c.GitLabProjects) {
		if err := checkPath("SHIPMATE_SCOPE_GITLAB_PROJECTS", project, false); err != nil {
			errs = append(errs, err)
		}
	}
	for _, pipeline := range splitList(c.BuildkitePipelines) {
		if err := checkPath("SHIPMATE_SCOPE_BUILDKITE_PIPELINES", pipeline, true); err != nil {
			errs = append(errs, err)
		}
	}
	for _, key := range splitList(c.JiraProjects) {
		if strings.Contains(key, "*") {
			errs = append(errs, fmt.Errorf("SHIPMATE_SCOPE_JIRA_PROJECTS: wildcards are not allowed: %q", key))
		}
	}
	for _, board := range splitList(c.JiraBoards) {
		if _, err := strconv.Atoi(board); err != nil {
			errs = append(errs, fmt.Errorf("SHIPMATE_SCOPE_JIRA_BOARDS: %q is not a board ID", board))
		}
	}
	if strings.Contains(c.SentryOrg, "*") || strings.Contains(c.SentryProject, "*") {
		errs = append(errs, errors.New("SENTRY_ORG/SENTRY_PROJECT: wildcards are not allowed"))
	}

	return errs
}

// checkPath validates a slash separated identifier. With exact set, the
// value must have exactly two segments (owner/name); otherwise at least two.
func checkPath(variable, value string, exact bool) error {
	if strings.Contains(value, "*") {
		return fmt.Errorf("%s: wildcards are not allowed: %q", variable, value)
	}

	segments := strings.Split(value, "/")
	if len(segments) < 2 || (exact && len(segments) != 2) {
		return fmt.Errorf("%s: %q is not in owner/name form", variable, value)
	}
	for _, s := range segments {
		if s == "" {
			return fmt.Errorf("%s: %q has an empty path segment", variable, value)
		}
	}

	return nil
}

func splitList(raw string) []string {
	var items []string
	for item := range strings.SplitSeq(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// missingVars lists the names whose values are empty, in the order given.
func missingVars(values map[string]string, order ...string) []string {
	var missing []string
	for _, name := range order {
		if strings.TrimSpace(values[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
