package testhelpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-github/v80/github"
)

// MockServer is an upstream API stand-in. Routes are registered on Mux
// using the standard pattern syntax; every request is counted, and the
// headers of the last request are kept for assertions.
type MockServer struct {
	Server *httptest.Server
	Mux    *http.ServeMux

	requests atomic.Int32

	mu         sync.Mutex
	lastHeader http.Header
	paths      []string
}

// SetupMockServer starts a MockServer that is closed when the test ends.
func SetupMockServer(t *testing.T) *MockServer {
	t.Helper()

	mock := &MockServer{
		Mux: http.NewServeMux(),
	}

	mock.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.requests.Add(1)

		mock.mu.Lock()
		mock.lastHeader = r.Header.Clone()
		mock.paths = append(mock.paths, r.URL.Path)
		mock.mu.Unlock()

		mock.Mux.ServeHTTP(w, r)
	}))
	t.Cleanup(mock.Server.Close)

	return mock
}

func (m *MockServer) URL() string {
	return m.Server.URL
}

// JSON registers a route that responds with payload.
func (m *MockServer) JSON(pattern string, payload any) {
	m.Mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, payload)
	})
}

// Status registers a route that fails with the given code and body.
func (m *MockServer) Status(pattern string, code int, body string) {
	m.Mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, body, code)
	})
}

// RequestCount is the number of requests received on any route.
func (m *MockServer) RequestCount() int {
	return int(m.requests.Load())
}

// LastHeader returns a header value from the most recent request.
func (m *MockServer) LastHeader(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastHeader.Get(name)
}

// Paths lists the request paths received, in order.
func (m *MockServer) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string{}, m.paths...)
}

// HandleInstallationToken serves GitHub App installation token exchanges,
// returning token with a one hour expiry.
func (m *MockServer) HandleInstallationToken(token string) {
	m.Mux.HandleFunc("POST /app/installations/{installationID}/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		expiry := github.Timestamp{Time: time.Now().Add(1 * time.Hour)}
		WriteJSON(w, &github.InstallationToken{
			Token:     &token,
			ExpiresAt: &expiry,
		})
	})
}

// WriteJSON is a helper function that writes a JSON response.
// It sets the Content-Type header and marshals the payload to JSON.
func WriteJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(payload)
	if err != nil {
		// In test context, this should never happen with valid test data
		http.Error(w, fmt.Sprintf("failed to marshal JSON: %v", err), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(data)
}
