package server

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownHooks_IgnoresNil(t *testing.T) {
	hooks := &ShutdownHooks{}

	hooks.AddContext("nil-context", nil)
	hooks.AddFunc("nil-func", nil)

	assert.Equal(t, 0, hooks.Len())
	hooks.Execute(context.Background())
}

func TestShutdownHooks_ExecutesInOrder(t *testing.T) {
	hooks := &ShutdownHooks{}
	var order []string

	hooks.AddFunc("cache", func() { order = append(order, "cache") })
	hooks.AddContext("telemetry", func(ctx context.Context) error {
		order = append(order, "telemetry")
		return nil
	})

	require.Equal(t, 2, hooks.Len())
	hooks.Execute(context.Background())

	assert.Equal(t, []string{"cache", "telemetry"}, order)
}

func TestShutdownHooks_ContinuesAfterFailure(t *testing.T) {
	hooks := &ShutdownHooks{}
	var executed []string

	hooks.AddContext("failing", func(ctx context.Context) error {
		executed = append(executed, "failing")
		return errors.New("exporter unreachable")
	})
	hooks.AddFunc("after", func() { executed = append(executed, "after") })

	hooks.Execute(context.Background())

	assert.Equal(t, []string{"failing", "after"}, executed)
}

func TestShutdownHooks_PassesContext(t *testing.T) {
	hooks := &ShutdownHooks{}
	type ctxKey struct{}

	var received any
	hooks.AddContext("ctx-check", func(ctx context.Context) error {
		received = ctx.Value(ctxKey{})
		return nil
	})

	hooks.Execute(context.WithValue(context.Background(), ctxKey{}, "deadline-bound"))

	assert.Equal(t, "deadline-bound", received)
}

func TestShutdownHooks_ZeroValue(t *testing.T) {
	var hooks ShutdownHooks
	hooks.Execute(context.Background())
}
