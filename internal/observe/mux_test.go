package observe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperation(t *testing.T) {
	tests := []struct {
		pattern  string
		expected string
	}{
		{"GET /tools", "/tools"},
		{"POST /tools/{name}", "/tools/{name}"},
		{"DELETE /items/123", "/items/123"},
		{"/healthcheck", "/healthcheck"},
		{"FETCH /tools", "FETCH /tools"},
		{"post /tools", "post /tools"},
		{"GET", "GET"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.expected, Operation(tt.pattern))
		})
	}
}

func TestSpanName(t *testing.T) {
	mux := http.NewServeMux()

	var names []string
	mux.HandleFunc("POST /tools/{name}", func(w http.ResponseWriter, r *http.Request) {
		names = append(names, SpanName("/tools/{name}", r))
	})
	mux.HandleFunc("GET /tools", func(w http.ResponseWriter, r *http.Request) {
		names = append(names, SpanName("/tools", r))
	})

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/tools/jira_search", nil))
	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tools", nil))

	assert.Equal(t, []string{"/tools/{name} jira_search", "/tools"}, names)
}

func TestMux_ServesRegisteredRoutes(t *testing.T) {
	mux := NewMux(http.NewServeMux())
	mux.Handle("POST /tools/{name}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Tool", r.PathValue("name"))
		w.WriteHeader(http.StatusAccepted)
	}))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/tools/sentry_issues", nil))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "sentry_issues", w.Header().Get("X-Tool"))
}
