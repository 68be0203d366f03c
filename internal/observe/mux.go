package observe

import (
	"net/http"
	"slices"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Multiplexer is satisfied by *http.ServeMux.
type Multiplexer interface {
	Handle(pattern string, handler http.Handler)
	http.Handler
}

// Mux wraps each registered handler in an otelhttp handler named after its
// route. Tool invocations are further told apart by the {name} path value.
type Mux struct {
	routes Multiplexer
}

func NewMux(routes Multiplexer) *Mux {
	return &Mux{routes: routes}
}

func (mux *Mux) Handle(pattern string, handler http.Handler) {
	mux.routes.Handle(pattern, otelhttp.NewHandler(
		handler,
		Operation(pattern),
		otelhttp.WithSpanNameFormatter(SpanName),
	))
}

func (mux *Mux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux.routes.ServeHTTP(w, r)
}

// SpanName appends the invoked tool, if any, to the route operation.
func SpanName(operation string, r *http.Request) string {
	if tool := r.PathValue("name"); tool != "" {
		return operation + " " + tool
	}
	return operation
}

var methods = []string{
	http.MethodConnect,
	http.MethodDelete,
	http.MethodGet,
	http.MethodHead,
	http.MethodOptions,
	http.MethodPatch,
	http.MethodPost,
	http.MethodPut,
	http.MethodTrace,
}

// Operation strips a leading HTTP method from a ServeMux pattern, leaving
// the path template used as the span operation.
func Operation(pattern string) string {
	method, path, found := strings.Cut(pattern, " ")
	if !found || !slices.Contains(methods, method) {
		return pattern
	}
	return path
}
