package cache

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce     sync.Once
	meter           metric.Meter
	cacheOperations metric.Int64Counter
	cacheEntries    metric.Int64ObservableGauge
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter = otel.Meter("github.com/shipmate/shipmate/internal/cache")

		var err error
		cacheOperations, err = meter.Int64Counter(
			"cache.operations",
			metric.WithDescription("Cache operations by operation and result"),
		)
		if err != nil {
			otel.Handle(err)
		}

		cacheEntries, err = meter.Int64ObservableGauge(
			"cache.entries",
			metric.WithDescription("Stored entries, including expired entries not yet swept"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

// recordOperation counts a cache operation. The cache API is synchronous and
// context free, so the measurement is taken without a request context.
func recordOperation(operation, status string) {
	if cacheOperations == nil {
		return
	}
	cacheOperations.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("cache.operation", operation),
			attribute.String("cache.status", status),
		),
	)
}

// observeEntries reports the size of c until the returned registration is
// unregistered. It returns nil when the gauge is unavailable.
func observeEntries(c *Cache) metric.Registration {
	if cacheEntries == nil {
		return nil
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(cacheEntries, int64(c.Len()))
		return nil
	}, cacheEntries)
	if err != nil {
		otel.Handle(err)
		return nil
	}

	return reg
}
