// Package audit records one structured log entry per request or tool
// invocation: who asked, for which tool and target, and how it ended.
package audit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level is the level audit entries are written at. It is above every
// standard level, so audit entries survive any configured log level.
const Level = zerolog.Level(20)

// Outcomes recorded for a tool invocation.
const (
	OutcomeOK             = "ok"
	OutcomeCacheHit       = "cache_hit"
	OutcomeScopeViolation = "scope_violation"
	OutcomeRateLimited    = "rate_limited"
	OutcomeUpstreamError  = "upstream_error"
	OutcomeInvalidRequest = "invalid_request"
	OutcomeNotFound       = "not_found"
	OutcomeError          = "error"
)

type Entry struct {
	Method    string
	Path      string
	Status    int
	SourceIP  string
	UserAgent string

	Tool       string
	Transport  string
	Target     string
	Outcome    string
	RetryAfter time.Duration
	Duration   time.Duration

	CacheKey string
	CacheHit bool

	Error string

	begin time.Time
}

func (e *Entry) MarshalZerologObject(event *zerolog.Event) {
	request := zerolog.Dict().
		Str("method", e.Method).
		Str("path", e.Path).
		Int("status", e.Status).
		Str("sourceIP", e.SourceIP).
		Str("userAgent", e.UserAgent)
	event.Dict("request", request)

	newSection().
		Str("name", e.Tool).
		Str("transport", e.Transport).
		Str("target", e.Target).
		Str("outcome", e.Outcome).
		Millis("retryAfterMs", e.RetryAfter).
		Millis("durationMs", e.Duration).
		attach(event, "tool")

	if e.CacheKey != "" {
		newSection().
			Str("key", e.CacheKey).
			Bool("hit", e.CacheHit).
			attach(event, "cache")
	}

	if e.Error != "" {
		event.Str("error", e.Error)
	}
}

// Begin captures the request details. The status defaults to 200 until the
// handler writes a header.
func (e *Entry) Begin(r *http.Request) {
	e.begin = time.Now()
	e.Method = r.Method
	e.Path = r.URL.Path
	e.UserAgent = r.UserAgent()
	e.SourceIP = sourceIP(r)
	e.Status = http.StatusOK
}

// End returns a function that writes the entry. It is intended to be
// deferred directly: a panic in progress is recorded on the entry and then
// re-raised.
func (e *Entry) End(ctx context.Context) func() {
	return func() {
		if !e.begin.IsZero() {
			e.Duration = time.Since(e.begin)
		}

		if r := recover(); r != nil {
			if e.Error != "" {
				e.Error += "; "
			}
			e.Error += fmt.Sprintf("panic: %v", r)

			e.write(ctx)
			panic(r)
		}

		e.write(ctx)
	}
}

func (e *Entry) write(ctx context.Context) {
	log.Ctx(ctx).WithLevel(Level).EmbedObject(e).Msg("audit_event")
}

type contextKey struct{}

// Context returns the entry carried by ctx, adding a new one if there is
// none.
func Context(ctx context.Context) (context.Context, *Entry) {
	if e, ok := ctx.Value(contextKey{}).(*Entry); ok {
		return ctx, e
	}

	e := &Entry{}
	return context.WithValue(ctx, contextKey{}, e), e
}

// Log returns the entry carried by ctx. When there is none, a detached entry
// is returned so callers can annotate unconditionally.
func Log(ctx context.Context) *Entry {
	_, e := Context(ctx)
	return e
}

// Tool annotates the entry for a tool invocation. HTTP requests already
// carry an entry written by Middleware; for other transports a new entry is
// created and the returned function, which must be deferred, writes it.
func Tool(ctx context.Context, name, transport string) (context.Context, *Entry, func()) {
	if e, ok := ctx.Value(contextKey{}).(*Entry); ok {
		e.Tool = name
		e.Transport = transport
		return ctx, e, func() {}
	}

	ctx, e := Context(ctx)
	e.begin = time.Now()
	e.Tool = name
	e.Transport = transport

	return ctx, e, e.End(ctx)
}

// Middleware adds an audit entry to the request context and writes it when
// the request completes.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, entry := Context(r.Context())
			entry.Begin(r)
			defer entry.End(ctx)()

			next.ServeHTTP(&statusRecorder{ResponseWriter: w, entry: entry}, r.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	entry       *Entry
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.entry.Status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func sourceIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
