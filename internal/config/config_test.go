package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ModeHTTP, cfg.Server.Mode)
	assert.Equal(t, 25, cfg.Server.ShutdownTimeoutSeconds)
	assert.Equal(t, 10, cfg.Limit.Burst)
	assert.Equal(t, 30.0, cfg.Limit.PerMinute)
	assert.Equal(t, time.Minute, cfg.Cache.SweepInterval)
	assert.Equal(t, 10000, cfg.Cache.MaxEntries)
	assert.Equal(t, "https://gitlab.com", cfg.GitLab.Host)
	assert.Equal(t, "https://sentry.io", cfg.Sentry.URL)
	assert.Equal(t, "shipmate", cfg.Observe.ServiceName)
	assert.True(t, cfg.Github.ValidateScope)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_MODE", "stdio")
	t.Setenv("SHIPMATE_SCOPE_GITHUB_REPOS", "acme/widget, acme/gadget")
	t.Setenv("SHIPMATE_SCOPE_JIRA_BOARDS", "12,34")
	t.Setenv("SHIPMATE_RATE_BURST", "5")
	t.Setenv("SHIPMATE_RATE_PER_MINUTE", "12.5")
	t.Setenv("SHIPMATE_CACHE_SWEEP_INTERVAL", "30s")
	t.Setenv("GITHUB_TOKEN", "ghp_test")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ModeStdio, cfg.Server.Mode)
	assert.Equal(t, "acme/widget, acme/gadget", cfg.Scope.GitHubRepos)
	assert.Equal(t, 5, cfg.Limit.Burst)
	assert.Equal(t, 12.5, cfg.Limit.PerMinute)
	assert.Equal(t, 30*time.Second, cfg.Cache.SweepInterval)
	assert.True(t, cfg.Github.Enabled())
	assert.False(t, cfg.Github.UsesApp())

	guard := cfg.Scope.GuardConfig()
	assert.Equal(t, "12,34", guard.JiraBoards)
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name     string
		env      map[string]string
		contains string
	}{
		{"unknown mode", map[string]string{"SERVER_MODE": "grpc"}, "SERVER_MODE"},
		{"zero burst", map[string]string{"SHIPMATE_RATE_BURST": "0"}, "SHIPMATE_RATE_BURST"},
		{"zero refill", map[string]string{"SHIPMATE_RATE_PER_MINUTE": "0"}, "SHIPMATE_RATE_PER_MINUTE"},
		{"zero sweep", map[string]string{"SHIPMATE_CACHE_SWEEP_INTERVAL": "0s"}, "SHIPMATE_CACHE_SWEEP_INTERVAL"},
		{"github wildcard", map[string]string{"SHIPMATE_SCOPE_GITHUB_REPOS": "acme/*"}, "wildcards"},
		{"github missing owner", map[string]string{"SHIPMATE_SCOPE_GITHUB_REPOS": "widget"}, "owner/name"},
		{"github nested path", map[string]string{"SHIPMATE_SCOPE_GITHUB_REPOS": "acme/widget/extra"}, "owner/name"},
		{"gitlab flat path", map[string]string{"SHIPMATE_SCOPE_GITLAB_PROJECTS": "project"}, "owner/name"},
		{"gitlab empty segment", map[string]string{"SHIPMATE_SCOPE_GITLAB_PROJECTS": "group//project"}, "empty path segment"},
		{"jira wildcard", map[string]string{"SHIPMATE_SCOPE_JIRA_PROJECTS": "SHIP,*"}, "wildcards"},
		{"jira board", map[string]string{"SHIPMATE_SCOPE_JIRA_BOARDS": "12,board"}, "not a board ID"},
		{"sentry wildcard", map[string]string{"SENTRY_ORG": "acme", "SENTRY_PROJECT": "*"}, "wildcards"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(context.Background(), envconfig.MapLookuper(tc.env))
			assert.ErrorContains(t, err, tc.contains)
		})
	}
}

func TestValidate_AcceptsNestedGitLabGroups(t *testing.T) {
	_, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"SHIPMATE_SCOPE_GITLAB_PROJECTS":     "group/sub/project",
		"SHIPMATE_SCOPE_BUILDKITE_PIPELINES": "acme/deploy",
	}))

	assert.NoError(t, err)
}

func TestGithubConfig_Missing(t *testing.T) {
	cases := []struct {
		name    string
		cfg     GithubConfig
		missing []string
	}{
		{"token", GithubConfig{Token: "t"}, nil},
		{"nothing", GithubConfig{}, []string{"GITHUB_TOKEN"}},
		{"complete app", GithubConfig{ApplicationID: 1, InstallationID: 2, PrivateKey: "pem"}, nil},
		{"app with kms key", GithubConfig{ApplicationID: 1, InstallationID: 2, PrivateKeyARN: "arn:aws:kms:x"}, nil},
		{"partial app", GithubConfig{ApplicationID: 1}, []string{"GITHUB_APP_INSTALLATION_ID", "GITHUB_APP_PRIVATE_KEY"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.missing, tc.cfg.Missing())
			assert.Equal(t, len(tc.missing) == 0, tc.cfg.Enabled())
		})
	}
}

func TestProviderConfig_Missing(t *testing.T) {
	assert.Equal(t, []string{"JIRA_USER_EMAIL", "JIRA_API_TOKEN"}, JiraConfig{BaseURL: "https://acme.atlassian.net"}.Missing())
	assert.True(t, JiraConfig{BaseURL: "u", UserEmail: "e", APIToken: "t"}.Enabled())

	assert.Equal(t, []string{"GITLAB_TOKEN"}, GitLabConfig{Host: "https://gitlab.com"}.Missing())
	assert.Equal(t, []string{"SENTRY_AUTH_TOKEN"}, SentryConfig{}.Missing())
	assert.Equal(t, []string{"GRAFANA_URL", "GRAFANA_TOKEN"}, GrafanaConfig{}.Missing())
	assert.Equal(t, []string{"GRAFANA_TOKEN"}, GrafanaConfig{URL: "https://grafana.acme.io"}.Missing())
	assert.Equal(t, []string{"BUILDKITE_API_TOKEN"}, BuildkiteConfig{}.Missing())
	assert.True(t, BuildkiteConfig{Token: "bk"}.Enabled())
}
