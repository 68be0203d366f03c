package ratelimit

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce sync.Once
	decisions   metric.Int64Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/shipmate/shipmate/internal/ratelimit")

		var err error
		decisions, err = meter.Int64Counter(
			"ratelimit.decisions",
			metric.WithDescription("Token bucket consume attempts by result"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

func recordDecision(result string) {
	if decisions == nil {
		return
	}
	decisions.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("ratelimit.result", result)),
	)
}
