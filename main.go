package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/justinas/alice"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shipmate/shipmate/internal/audit"
	"github.com/shipmate/shipmate/internal/buildkite"
	"github.com/shipmate/shipmate/internal/cache"
	"github.com/shipmate/shipmate/internal/config"
	"github.com/shipmate/shipmate/internal/github"
	"github.com/shipmate/shipmate/internal/gitlab"
	"github.com/shipmate/shipmate/internal/grafana"
	"github.com/shipmate/shipmate/internal/jira"
	"github.com/shipmate/shipmate/internal/observe"
	"github.com/shipmate/shipmate/internal/provider"
	"github.com/shipmate/shipmate/internal/ratelimit"
	"github.com/shipmate/shipmate/internal/scope"
	"github.com/shipmate/shipmate/internal/sentry"
	"github.com/shipmate/shipmate/internal/server"
	"github.com/shipmate/shipmate/internal/tools"
)

// set at build time
var version = "dev"

func configureServerRoutes(cfg config.Config, reg *tools.Registry) http.Handler {
	// wrap a mux such that HTTP telemetry is configured by default
	muxWithoutTelemetry := http.NewServeMux()
	mux := observe.NewMux(muxWithoutTelemetry)

	// Tool arguments are small JSON objects; this is not configurable.
	requestLimitBytes := int64(20 << 10) // 20 KB
	requestLimiter := maxRequestSize(requestLimitBytes)

	toolRouteMiddleware := alice.New(requestLimiter, audit.Middleware(), requireBearer(cfg.Server.APIToken))
	standardRouteMiddleware := alice.New(requestLimiter)

	mux.Handle("GET /tools", toolRouteMiddleware.Then(handleListTools(reg)))
	mux.Handle("POST /tools/{name}", toolRouteMiddleware.Then(handleInvokeTool(reg)))

	// healthchecks are not included in telemetry or authorization
	muxWithoutTelemetry.Handle("GET /healthcheck", standardRouteMiddleware.Then(handleHealthCheck()))

	return mux
}

func main() {
	configureLogging()

	logBuildInfo()

	err := launch()
	if err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}

func launch() error {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	// configure telemetry, including wrapping default HTTP client
	shutdownTelemetry, err := observe.Configure(ctx, cfg.Observe)
	if err != nil {
		return fmt.Errorf("telemetry bootstrap failed: %w", err)
	}

	http.DefaultTransport = observe.HTTPTransport(
		configureHTTPTransport(cfg.Server),
		cfg.Observe,
	)
	http.DefaultClient = &http.Client{
		Transport: http.DefaultTransport,
	}

	// one cache and one limiter for every provider
	responseCache := cache.New(
		cache.WithSweepInterval(cfg.Cache.SweepInterval),
		cache.WithMaxEntries(cfg.Cache.MaxEntries),
	)

	hooks := &server.ShutdownHooks{}
	hooks.AddFunc("cache", responseCache.Destroy)
	hooks.AddContext("telemetry", shutdownTelemetry)

	limiter, err := ratelimit.New(cfg.Limit.Burst, cfg.Limit.PerMinute)
	if err != nil {
		hooks.Execute(ctx)
		return fmt.Errorf("rate limiter configuration failed: %w", err)
	}

	substrate := provider.Substrate{Cache: responseCache, Limiter: limiter}
	guard := scope.New(cfg.Scope.GuardConfig())

	backends, gh, err := configureBackends(ctx, cfg, substrate, guard)
	if err != nil {
		hooks.Execute(ctx)
		return err
	}

	reg := tools.NewRegistry()
	tools.Register(reg, backends)

	if gh != nil && cfg.Github.ValidateScope && guard.HasGitHubScope() {
		go validateGitHubScope(ctx, gh)
	}

	if cfg.Server.Mode == config.ModeStdio {
		return serveStdio(ctx, reg, hooks)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           configureServerRoutes(cfg, reg),
		MaxHeaderBytes:    20 << 10,         // 20 KB
		ReadHeaderTimeout: 20 * time.Second, // Prevent Slowloris attacks
	}

	err = server.Serve(ctx, srv, time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second, hooks)
	if err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// configureBackends creates a client for every provider with complete
// credentials. The GitHub client is also returned directly for the startup
// scope check.
func configureBackends(ctx context.Context, cfg config.Config, substrate provider.Substrate, guard *scope.Guard) (tools.Backends, *github.Client, error) {
	backends := tools.Backends{
		Guard: guard,
		Missing: map[string][]string{
			"github":    cfg.Github.Missing(),
			"gitlab":    cfg.GitLab.Missing(),
			"jira":      cfg.Jira.Missing(),
			"sentry":    cfg.Sentry.Missing(),
			"grafana":   cfg.Grafana.Missing(),
			"buildkite": cfg.Buildkite.Missing(),
		},
	}

	var gh *github.Client
	if cfg.Github.Enabled() {
		client, err := github.New(ctx, cfg.Github, substrate, guard)
		if err != nil {
			return backends, nil, fmt.Errorf("github configuration failed: %w", err)
		}
		gh = client
		backends.GitHub = client
	}

	if cfg.GitLab.Enabled() {
		backends.GitLab = gitlab.New(cfg.GitLab, substrate, guard)
	}

	if cfg.Jira.Enabled() {
		backends.Jira = jira.New(cfg.Jira, substrate, guard)
	}

	if cfg.Sentry.Enabled() {
		backends.Sentry = sentry.New(cfg.Sentry, substrate, guard)
	}

	if cfg.Grafana.Enabled() {
		backends.Grafana = grafana.New(cfg.Grafana, substrate)
	}

	if cfg.Buildkite.Enabled() {
		client, err := buildkite.New(cfg.Buildkite, substrate, guard)
		if err != nil {
			return backends, nil, fmt.Errorf("buildkite configuration failed: %w", err)
		}
		backends.Buildkite = client
	}

	return backends, gh, nil
}

func validateGitHubScope(ctx context.Context, gh *github.Client) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if _, err := gh.ValidateTokenScope(ctx); err != nil {
		log.Warn().Err(err).Msg("github: credential scope check failed")
	}
}

func serveStdio(ctx context.Context, reg *tools.Registry, hooks *server.ShutdownHooks) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer hooks.Execute(context.Background())

	log.Info().Int("tools", reg.Len()).Msg("mcp: serving on stdio")

	err := tools.ServeStdio(ctx, tools.NewMCPServer(reg, version), os.Stdin, os.Stdout)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server failed: %w", err)
	}

	return nil
}

func configureLogging() {
	// Set global level to the minimum: allows the Open Telemetry logging to be
	// configured separately. However, it means that any logger that sets its
	// level will log as this effectively disables the global level.
	zerolog.SetGlobalLevel(zerolog.Level(-128))

	// default level is Info
	log.Logger = log.Level(zerolog.InfoLevel)

	// stdout carries the MCP protocol in stdio mode, so logs never go there
	if os.Getenv("ENV") == "development" {
		log.Logger = log.
			Output(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(zerolog.DebugLevel)
	}

	zerolog.DefaultContextLogger = &log.Logger
}

func logBuildInfo() {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	ev := log.Info().Str("version", version)
	for _, v := range buildInfo.Settings {
		if strings.HasPrefix(v.Key, "vcs.") ||
			strings.HasPrefix(v.Key, "GO") ||
			v.Key == "CGO_ENABLED" {
			ev = ev.Str(v.Key, v.Value)
		}
	}

	ev.Msg("build information")
}

func configureHTTPTransport(cfg config.ServerConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = cfg.OutgoingHTTPMaxIdleConns
	transport.MaxConnsPerHost = cfg.OutgoingHTTPMaxConnsPerHost

	return transport
}
