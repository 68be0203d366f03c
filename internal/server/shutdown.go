package server

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// ShutdownHooks releases process resources (the response cache sweeper,
// telemetry exporters) once the transport has stopped. Hooks run in
// registration order and a failing hook does not stop the ones after it.
type ShutdownHooks struct {
	hooks []hook
}

// AddContext registers a hook that may use the shutdown deadline. Nil hooks
// are ignored.
func (s *ShutdownHooks) AddContext(name string, fn func(context.Context) error) {
	if fn == nil {
		log.Warn().Str("hook", name).Msg("ignoring nil shutdown hook")
		return
	}

	log.Debug().Str("hook", name).Msg("shutdown hook registered")
	s.hooks = append(s.hooks, hook{name: name, fn: fn})
}

// AddFunc registers a hook that cannot fail, such as Cache.Destroy.
func (s *ShutdownHooks) AddFunc(name string, fn func()) {
	if fn == nil {
		log.Warn().Str("hook", name).Msg("ignoring nil shutdown hook")
		return
	}

	s.AddContext(name, func(context.Context) error {
		fn()
		return nil
	})
}

func (s *ShutdownHooks) Len() int {
	return len(s.hooks)
}

// Execute runs every hook with ctx, logging the outcome and duration of each.
func (s *ShutdownHooks) Execute(ctx context.Context) {
	l := log.Ctx(ctx)

	for _, h := range s.hooks {
		start := time.Now()
		err := h.fn(ctx)

		if err != nil {
			l.Warn().Err(err).Str("hook", h.name).Dur("elapsed", time.Since(start)).Msg("shutdown hook failed")
			continue
		}
		l.Info().Str("hook", h.name).Dur("elapsed", time.Since(start)).Msg("shutdown hook complete")
	}
}
