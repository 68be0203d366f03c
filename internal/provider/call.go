// Package provider holds the call protocol shared by every upstream client:
// authorize the target, serve from cache when possible, otherwise take a
// rate limit token and fetch.
package provider

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shipmate/shipmate/internal/audit"
	"github.com/shipmate/shipmate/internal/cache"
	"github.com/shipmate/shipmate/internal/ratelimit"
)

// Substrate is the shared state every provider client is built on. One
// instance is shared by all clients, so the rate limit budget is global.
type Substrate struct {
	Cache   *cache.Cache
	Limiter *ratelimit.Limiter
}

// Op describes one guarded upstream operation.
type Op struct {
	// Tool names the operation in logs, e.g. "github.pull_request".
	Tool string
	Key  string
	TTL  time.Duration
	// Refresh bypasses the cached value, still storing the fresh result.
	Refresh bool
	// Authorize validates the target against the scope allowlists. It is
	// nil only for providers with no allowlist.
	Authorize func() error
}

// Call runs fetch under the guarded call protocol. A scope violation returns
// before the cache is consulted; a rate limit rejection returns before any
// network activity; a failed fetch is never cached.
func Call[T any](ctx context.Context, s Substrate, op Op, fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	entry := audit.Log(ctx)

	if op.Authorize != nil {
		if err := op.Authorize(); err != nil {
			log.Warn().Err(err).Str("tool", op.Tool).Msg("scope: request rejected")
			return zero, err
		}
	}

	entry.CacheKey = op.Key

	if cached, ok := cache.GetAs[T](s.Cache, op.Key, op.Refresh); ok {
		log.Debug().Str("tool", op.Tool).Str("key", op.Key).Msg("hit: cached result")
		entry.CacheHit = true
		return cached, nil
	}

	if err := s.Limiter.Consume(); err != nil {
		log.Warn().Err(err).Str("tool", op.Tool).Msg("rate limited: upstream call refused")
		return zero, err
	}

	log.Info().Str("tool", op.Tool).Str("key", op.Key).Bool("refresh", op.Refresh).Msg("miss: fetching from upstream")

	result, err := fetch(ctx)
	if err != nil {
		return zero, err
	}

	s.Cache.Set(op.Key, result, op.TTL)

	return result, nil
}
