// Package github reads pull requests and team activity from the GitHub API,
// for the repositories the scope guard allows.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/go-github/v80/github"
	"github.com/shipmate/shipmate/internal/config"
	"github.com/shipmate/shipmate/internal/provider"
	"github.com/shipmate/shipmate/internal/scope"
)

const providerName = "github"

type Client struct {
	client    *github.Client
	substrate provider.Substrate
	guard     *scope.Guard
	usesApp   bool
	now       func() time.Time
}

type ClientConfig struct {
	TransportFactory func(context.Context, config.GithubConfig, http.RoundTripper) (http.RoundTripper, error)
	Clock            func() time.Time
}

type ClientOption func(*ClientConfig)

// WithTokenTransport sends requests on the wrapped transport. The token is
// added by the client itself.
func WithTokenTransport(clientConfig *ClientConfig) {
	clientConfig.TransportFactory = func(ctx context.Context, cfg config.GithubConfig, wrapped http.RoundTripper) (http.RoundTripper, error) {
		return wrapped, nil
	}
}

// WithInstallationTransport authenticates as a GitHub App installation,
// exchanging the App JWT for installation tokens as they expire.
func WithInstallationTransport(clientConfig *ClientConfig) {
	clientConfig.TransportFactory = func(ctx context.Context, cfg config.GithubConfig, wrapped http.RoundTripper) (http.RoundTripper, error) {
		appTransport, err := createAppTransport(ctx, cfg, wrapped)
		if err != nil {
			return nil, err
		}

		transport := ghinstallation.NewFromAppsTransport(appTransport, cfg.InstallationID)
		if cfg.APIURL != "" {
			transport.BaseURL = strings.TrimSuffix(cfg.APIURL, "/")
		}

		return transport, nil
	}
}

func WithClock(now func() time.Time) ClientOption {
	return func(clientConfig *ClientConfig) {
		clientConfig.Clock = now
	}
}

func New(ctx context.Context, cfg config.GithubConfig, substrate provider.Substrate, guard *scope.Guard, opts ...ClientOption) (*Client, error) {
	clientConfig := &ClientConfig{Clock: time.Now}
	if cfg.UsesApp() {
		WithInstallationTransport(clientConfig)
	} else {
		WithTokenTransport(clientConfig)
	}

	for _, o := range opts {
		o(clientConfig)
	}

	authTransport, err := clientConfig.TransportFactory(ctx, cfg, http.DefaultTransport)
	if err != nil {
		return nil, fmt.Errorf("could not create GitHub transport: %w", err)
	}

	// used concurrently by every tool call
	client := github.NewClient(
		&http.Client{
			Transport: authTransport,
		},
	)

	if !cfg.UsesApp() {
		client = client.WithAuthToken(cfg.Token)
	}

	// for testing use
	if cfg.APIURL != "" {
		apiURL := cfg.APIURL
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		u, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", cfg.APIURL, err)
		}
		client.BaseURL = u
	}

	return &Client{
		client:    client,
		substrate: substrate,
		guard:     guard,
		usesApp:   cfg.UsesApp(),
		now:       clientConfig.Clock,
	}, nil
}

func createAppTransport(ctx context.Context, cfg config.GithubConfig, wrapped http.RoundTripper) (*ghinstallation.AppsTransport, error) {
	signer, err := createSigner(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("could not create signer for GitHub transport: %w", err)
	}

	// Installation tokens are requested with the App JWT, so the installation
	// transport is layered over an AppsTransport.
	appTransport, err := ghinstallation.NewAppsTransportWithOptions(
		wrapped,
		cfg.ApplicationID,
		ghinstallation.WithSigner(signer),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create GitHub transport: %w", err)
	}

	if cfg.APIURL != "" {
		appTransport.BaseURL = strings.TrimSuffix(cfg.APIURL, "/")
	}

	return appTransport, nil
}

func createSigner(ctx context.Context, cfg config.GithubConfig) (ghinstallation.Signer, error) {
	if cfg.PrivateKeyARN != "" {
		return NewAWSKMSSigner(ctx, cfg.PrivateKeyARN)
	}

	if cfg.PrivateKey != "" {
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("could not parse private key: %s", err)
		}

		return ghinstallation.NewRSASigner(jwt.SigningMethodRS256, key), nil
	}

	return nil, errors.New("no private key configuration specified")
}

// graphQL posts query to the GraphQL endpoint beside the REST API root.
func (c *Client) graphQL(ctx context.Context, query string, variables map[string]any, out any) error {
	req, err := c.client.NewRequest(http.MethodPost, "graphql", provider.GraphQLRequest{
		Query:     query,
		Variables: variables,
	})
	if err != nil {
		return fmt.Errorf("creating github graphql request: %w", err)
	}

	var resp provider.GraphQLResponse
	if _, err := c.client.Do(ctx, req, &resp); err != nil {
		return upstreamError(err)
	}

	return resp.Decode(providerName, out)
}

// upstreamError converts a go-github failure, keeping the response status
// and message when GitHub replied.
func upstreamError(err error) error {
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return provider.UpstreamError{
			Provider:   providerName,
			StatusCode: respErr.Response.StatusCode,
			Body:       provider.Truncate(respErr.Message),
			Err:        err,
		}
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) && rateErr.Response != nil {
		return provider.UpstreamError{
			Provider:   providerName,
			StatusCode: rateErr.Response.StatusCode,
			Body:       provider.Truncate(rateErr.Message),
			Err:        err,
		}
	}

	return provider.UpstreamError{Provider: providerName, Err: err}
}

func repoKey(owner, repo string) string {
	return scope.Fold(owner + "/" + repo)
}
