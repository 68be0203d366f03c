// Package cache provides the expiring key/value store shared by every
// provider client. Entries carry their own expiry and are removed lazily on
// read, or by a periodic sweep.
package cache

import (
	"sync"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultSweepInterval = time.Minute
	DefaultMaxEntries    = 10_000
)

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is an in-memory map from key to value with a per-entry expiry. It is
// safe for concurrent use.
type Cache struct {
	store *otter.Cache[string, entry]
	now   func() time.Time

	// serializes writes with the removal of expired entries, so a fresh Set
	// is never lost to a concurrent expiry check of the previous value.
	mu sync.Mutex

	sweepInterval time.Duration
	maxEntries    int
	stop          chan struct{}
	done          chan struct{}
	destroyOnce   sync.Once

	gauge metric.Registration
}

type Option func(*Cache)

// WithSweepInterval sets how often expired entries are purged in the
// background. A zero interval disables the sweep.
func WithSweepInterval(interval time.Duration) Option {
	return func(c *Cache) {
		c.sweepInterval = interval
	}
}

// WithMaxEntries bounds the number of entries held at once.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		c.maxEntries = n
	}
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a cache and starts its sweep loop. Call Destroy to stop it.
func New(opts ...Option) *Cache {
	c := &Cache{
		now:           time.Now,
		sweepInterval: DefaultSweepInterval,
		maxEntries:    DefaultMaxEntries,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.store = otter.Must(&otter.Options[string, entry]{
		MaximumSize: c.maxEntries,
	})

	initMetrics()
	c.gauge = observeEntries(c)

	if c.sweepInterval > 0 {
		go c.sweepLoop()
	} else {
		close(c.done)
	}

	return c
}

// Get returns the live value stored under key. When refresh is set the
// stored value is ignored, but left in place.
func (c *Cache) Get(key string, refresh bool) (any, bool) {
	if refresh {
		recordOperation("get", "bypass")
		return nil, false
	}

	value, status := c.lookup(key)
	recordOperation("get", status)

	return value, status == statusHit
}

// GetAs is Get with the value asserted to T. A stored value of a different
// type is reported as absent.
func GetAs[T any](c *Cache, key string, refresh bool) (T, bool) {
	var zero T

	value, ok := c.Get(key, refresh)
	if !ok {
		return zero, false
	}

	typed, ok := value.(T)
	if !ok {
		log.Warn().Str("key", key).Msg("cache: stored value has unexpected type, ignoring")
		return zero, false
	}

	return typed, true
}

// Set stores value under key until ttl has elapsed, replacing any previous
// entry.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Set(key, entry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	})
	recordOperation("set", "success")
}

// Has reports whether a live entry exists for key.
func (c *Cache) Has(key string) bool {
	_, status := c.lookup(key)
	return status == statusHit
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Invalidate(key)
	recordOperation("delete", "success")
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.InvalidateAll()
}

// Len is the number of stored entries, including expired entries that have
// not been removed yet.
func (c *Cache) Len() int {
	return c.store.EstimatedSize()
}

// Destroy stops the sweep loop and removes every entry. It may be called
// more than once.
func (c *Cache) Destroy() {
	c.destroyOnce.Do(func() {
		close(c.stop)
		if c.gauge != nil {
			if err := c.gauge.Unregister(); err != nil {
				otel.Handle(err)
			}
		}
	})
	<-c.done

	c.Clear()
}

const (
	statusHit     = "hit"
	statusMiss    = "miss"
	statusExpired = "expired"
)

func (c *Cache) lookup(key string) (any, string) {
	e, ok := c.store.GetIfPresent(key)
	if !ok {
		return nil, statusMiss
	}

	now := c.now()
	if !now.Before(e.expiresAt) {
		c.removeExpired(key, now)
		return nil, statusExpired
	}

	return e.value, statusHit
}

// removeExpired deletes key if the stored entry is still expired at now. The
// check is repeated under the lock because a Set may have replaced the entry
// since it was read.
func (c *Cache) removeExpired(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.store.GetIfPresent(key)
	if !ok || now.Before(e.expiresAt) {
		return false
	}

	c.store.Invalidate(key)
	return true
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	now := c.now()

	var expired []string
	for key, e := range c.store.All() {
		if !now.Before(e.expiresAt) {
			expired = append(expired, key)
		}
	}

	removed := 0
	for _, key := range expired {
		if c.removeExpired(key, now) {
			removed++
		}
	}

	if removed > 0 {
		recordOperation("sweep", "expired")
		log.Debug().Int("removed", removed).Msg("cache: swept expired entries")
	}

	return removed
}

func (c *Cache) sweepLoop() {
	defer close(c.done)

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}
