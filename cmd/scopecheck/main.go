// Command scopecheck prints the effective scope and provider configuration
// read from the environment, the same way the server reads it. With --verify
// it also lists the repositories the GitHub credential can see and fails if
// any is outside the allowlist.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shipmate/shipmate/internal/cache"
	"github.com/shipmate/shipmate/internal/config"
	"github.com/shipmate/shipmate/internal/github"
	"github.com/shipmate/shipmate/internal/provider"
	"github.com/shipmate/shipmate/internal/ratelimit"
	"github.com/shipmate/shipmate/internal/scope"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

var errOutOfScope = errors.New("github credential can read repositories outside the configured scope")

type Report struct {
	Scope     scope.Summary       `yaml:"scope"`
	Providers map[string]Provider `yaml:"providers"`
	GitHub    *github.ScopeReport `yaml:"github_visibility,omitempty"`
}

type Provider struct {
	Enabled bool     `yaml:"enabled"`
	Missing []string `yaml:"missing,omitempty"`
}

func main() {
	err := run(context.Background(), os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scopecheck: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("scopecheck", pflag.ContinueOnError)
	format := flags.StringP("output", "o", "text", "output format: text or yaml")
	verify := flags.Bool("verify", false, "check the repositories visible to the GitHub credential")
	timeout := flags.Duration("timeout", time.Minute, "time allowed for --verify")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if *format != "text" && *format != "yaml" {
		return fmt.Errorf("unknown output format %q", *format)
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	guard := scope.New(cfg.Scope.GuardConfig())
	report := buildReport(cfg, guard)

	if *verify {
		visibility, err := verifyGitHub(ctx, cfg, guard, *timeout)
		if err != nil {
			return err
		}
		report.GitHub = &visibility
	}

	if *format == "yaml" {
		err = writeYAML(out, report)
	} else {
		err = writeText(out, report)
	}
	if err != nil {
		return err
	}

	if report.GitHub != nil && !report.GitHub.OK() {
		return errOutOfScope
	}

	return nil
}

func buildReport(cfg config.Config, guard *scope.Guard) Report {
	missing := map[string][]string{
		"github":    cfg.Github.Missing(),
		"gitlab":    cfg.GitLab.Missing(),
		"jira":      cfg.Jira.Missing(),
		"sentry":    cfg.Sentry.Missing(),
		"grafana":   cfg.Grafana.Missing(),
		"buildkite": cfg.Buildkite.Missing(),
	}

	report := Report{
		Scope:     guard.Summary(),
		Providers: make(map[string]Provider, len(missing)),
	}
	for name, vars := range missing {
		report.Providers[name] = Provider{Enabled: len(vars) == 0, Missing: vars}
	}

	return report
}

func verifyGitHub(ctx context.Context, cfg config.Config, guard *scope.Guard, timeout time.Duration) (github.ScopeReport, error) {
	if !cfg.Github.Enabled() {
		return github.ScopeReport{}, fmt.Errorf("--verify needs GitHub credentials: missing %s", strings.Join(cfg.Github.Missing(), ", "))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	responseCache := cache.New()
	defer responseCache.Destroy()

	limiter, err := ratelimit.New(cfg.Limit.Burst, cfg.Limit.PerMinute)
	if err != nil {
		return github.ScopeReport{}, err
	}

	gh, err := github.New(ctx, cfg.Github, provider.Substrate{Cache: responseCache, Limiter: limiter}, guard)
	if err != nil {
		return github.ScopeReport{}, fmt.Errorf("github configuration failed: %w", err)
	}

	return gh.ValidateTokenScope(ctx)
}

func writeYAML(out io.Writer, report Report) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return enc.Close()
}

func writeText(out io.Writer, report Report) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "SCOPE\tALLOWED")
	fmt.Fprintf(tw, "github\t%s\n", list(report.Scope.GitHubRepos))
	fmt.Fprintf(tw, "gitlab\t%s\n", list(report.Scope.GitLabProjects))
	fmt.Fprintf(tw, "jira projects\t%s\n", list(report.Scope.JiraProjects))
	fmt.Fprintf(tw, "jira boards\t%s\n", boards(report.Scope.JiraBoards))
	fmt.Fprintf(tw, "buildkite\t%s\n", list(report.Scope.BuildkitePipelines))
	fmt.Fprintf(tw, "sentry\t%s\n", or(report.Scope.Sentry, "(none)"))
	fmt.Fprintln(tw)

	names := make([]string, 0, len(report.Providers))
	for name := range report.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(tw, "PROVIDER\tSTATUS")
	for _, name := range names {
		p := report.Providers[name]
		status := "enabled"
		if !p.Enabled {
			status = "missing " + strings.Join(p.Missing, ", ")
		}
		fmt.Fprintf(tw, "%s\t%s\n", name, status)
	}

	if v := report.GitHub; v != nil {
		fmt.Fprintln(tw)
		fmt.Fprintf(tw, "github visible\t%d\n", len(v.Visible))
		fmt.Fprintf(tw, "github out of scope\t%s\n", list(v.OutOfScope))
	}

	return tw.Flush()
}

func list(values []string) string {
	return or(strings.Join(values, ", "), "(none)")
}

func boards(ids []int) string {
	values := make([]string, len(ids))
	for i, id := range ids {
		values[i] = fmt.Sprint(id)
	}
	return list(values)
}

func or(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
