package testhelpers

import (
	"testing"

	"github.com/shipmate/shipmate/internal/cache"
	"github.com/shipmate/shipmate/internal/provider"
	"github.com/shipmate/shipmate/internal/ratelimit"
	"github.com/stretchr/testify/require"
)

// NewSubstrate creates a cache without background sweeping and a limiter
// holding capacity tokens, refilling at 30 per minute.
func NewSubstrate(t *testing.T, capacity int) provider.Substrate {
	t.Helper()

	c := cache.New(cache.WithSweepInterval(0))
	t.Cleanup(c.Destroy)

	limiter, err := ratelimit.New(capacity, 30)
	require.NoError(t, err)

	return provider.Substrate{Cache: c, Limiter: limiter}
}
