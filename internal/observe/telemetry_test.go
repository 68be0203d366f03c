package observe

import (
	"context"
	"net/http"
	"testing"

	"github.com/shipmate/shipmate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure_Disabled(t *testing.T) {
	shutdown, err := Configure(context.Background(), config.ObserveConfig{Enabled: false, SDKLogLevel: "info"})
	require.NoError(t, err)

	assert.NoError(t, shutdown(context.Background()))
}

func TestConfigure_StdoutExporters(t *testing.T) {
	shutdown, err := Configure(context.Background(), config.ObserveConfig{
		Enabled:                   true,
		MetricsEnabled:            true,
		Type:                      "stdout",
		ServiceName:               "shipmate-test",
		SDKLogLevel:               "warn",
		TraceBatchTimeoutSeconds:  1,
		MetricReadIntervalSeconds: 60,
	})
	require.NoError(t, err)

	assert.NoError(t, shutdown(context.Background()))
}

func TestConfigure_UnknownExporter(t *testing.T) {
	_, err := Configure(context.Background(), config.ObserveConfig{
		Enabled:     true,
		Type:        "carrier-pigeon",
		SDKLogLevel: "info",
	})

	assert.ErrorContains(t, err, "carrier-pigeon")
}

func TestHTTPTransport(t *testing.T) {
	base := http.DefaultTransport

	t.Run("disabled returns wrapped", func(t *testing.T) {
		tr := HTTPTransport(base, config.ObserveConfig{Enabled: false, HTTPTransportEnabled: true})
		assert.Same(t, base, tr)
	})

	t.Run("transport instrumentation disabled returns wrapped", func(t *testing.T) {
		tr := HTTPTransport(base, config.ObserveConfig{Enabled: true, HTTPTransportEnabled: false})
		assert.Same(t, base, tr)
	})

	t.Run("enabled wraps", func(t *testing.T) {
		tr := HTTPTransport(base, config.ObserveConfig{Enabled: true, HTTPTransportEnabled: true, HTTPConnectionTraceEnabled: true})
		assert.NotSame(t, base, tr)
	})
}
