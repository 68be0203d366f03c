// Package tools exposes the provider operations as named tools. A tool is
// registered only when its provider has credentials and a scope, and every
// invocation is validated, audited and classified the same way whichever
// transport carries it.
package tools

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/shipmate/shipmate/internal/audit"
	"github.com/shipmate/shipmate/internal/ratelimit"
)

// Transports recorded on audit entries.
const (
	TransportHTTP = "http"
	TransportMCP  = "mcp"
)

type Handler func(ctx context.Context, args Args) (any, error)

type Tool struct {
	Name        string
	Description string
	Params      []Param
	// Target names the resource an invocation addresses, for the audit log.
	Target  func(args Args) string
	Handler Handler
}

// Registry holds tools in registration order. It is populated at startup
// and read-only afterwards.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Add registers a tool, replacing any tool of the same name.
func (r *Registry) Add(t Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) List() []Tool {
	list := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.tools[name])
	}
	return list
}

func (r *Registry) Len() int {
	return len(r.order)
}

// Invoke validates the raw arguments and runs the named tool, recording the
// invocation on the audit entry.
func (r *Registry) Invoke(ctx context.Context, name, transport string, raw map[string]any) (result any, err error) {
	ctx, entry, end := audit.Tool(ctx, name, transport)
	defer end()

	defer func() {
		entry.Outcome = Outcome(err)
		if err == nil && entry.CacheHit {
			entry.Outcome = audit.OutcomeCacheHit
		}
		if err != nil {
			entry.Error = err.Error()

			var limited ratelimit.RateLimitError
			if errors.As(err, &limited) {
				entry.RetryAfter = limited.RetryAfter
			}
		}
	}()

	tool, ok := r.tools[name]
	if !ok {
		return nil, UnknownToolError{Name: name}
	}

	args, err := parseArgs(tool.Params, raw)
	if err != nil {
		return nil, err
	}

	if tool.Target != nil {
		entry.Target = tool.Target(args)
	}

	result, err = tool.Handler(ctx, args)
	if err != nil {
		log.Info().Err(err).Str("tool", name).Str("target", entry.Target).Msg("tool failed")
		return nil, err
	}

	return result, nil
}
