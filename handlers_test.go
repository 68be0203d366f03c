package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shipmate/shipmate/internal/config"
	"github.com/shipmate/shipmate/internal/provider"
	"github.com/shipmate/shipmate/internal/ratelimit"
	"github.com/shipmate/shipmate/internal/scope"
	"github.com/shipmate/shipmate/internal/testhelpers"
	"github.com/shipmate/shipmate/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *tools.Registry {
	reg := tools.NewRegistry()
	reg.Add(tools.Tool{
		Name:        "lookup",
		Description: "Look something up",
		Params: []tools.Param{
			{Name: "key", Type: tools.TypeString, Description: "What to find", Required: true},
		},
		Handler: func(ctx context.Context, args tools.Args) (any, error) {
			switch args.Str("key") {
			case "limited":
				return nil, ratelimit.RateLimitError{RetryAfter: 1500 * time.Millisecond}
			case "forbidden":
				return nil, scope.ViolationError{Domain: "github", Requested: "other/repo", Allowed: []string{"acme/widget"}}
			case "broken":
				return nil, provider.UpstreamError{Provider: "jira", StatusCode: 503, Body: "unavailable"}
			}
			return map[string]string{"found": args.Str("key")}, nil
		},
	})
	return reg
}

func invokeTool(t *testing.T, handler http.Handler, name, body string) *httptest.ResponseRecorder {
	t.Helper()

	req, err := http.NewRequest("POST", "/tools/"+name, strings.NewReader(body))
	require.NoError(t, err)
	req.SetPathValue("name", name)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestHandleInvokeTool_Success(t *testing.T) {
	testhelpers.SetupLogger(t)

	rr := invokeTool(t, handleInvokeTool(testRegistry()), "lookup", `{"key":"widget"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"found":"widget"}`, rr.Body.String())
}

func TestHandleInvokeTool_Failures(t *testing.T) {
	testhelpers.SetupLogger(t)

	cases := []struct {
		name   string
		tool   string
		body   string
		status int
		kind   string
	}{
		{"unknown tool", "missing", `{}`, http.StatusNotFound, "not_found"},
		{"malformed body", "lookup", `[1, 2]`, http.StatusBadRequest, "invalid_request"},
		{"missing argument", "lookup", ``, http.StatusBadRequest, "invalid_request"},
		{"scope violation", "lookup", `{"key":"forbidden"}`, http.StatusForbidden, "scope_violation"},
		{"upstream failure", "lookup", `{"key":"broken"}`, http.StatusBadGateway, "upstream_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := invokeTool(t, handleInvokeTool(testRegistry()), tc.tool, tc.body)

			assert.Equal(t, tc.status, rr.Code)
			body := decodeBody(t, rr)
			assert.Equal(t, tc.kind, body["kind"])
			assert.NotEmpty(t, body["error"])
			assert.NotContains(t, body, "retry_after_ms")
		})
	}
}

func TestHandleInvokeTool_RateLimited(t *testing.T) {
	testhelpers.SetupLogger(t)

	rr := invokeTool(t, handleInvokeTool(testRegistry()), "lookup", `{"key":"limited"}`)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("Retry-After"))

	body := decodeBody(t, rr)
	assert.Equal(t, "rate_limited", body["kind"])
	assert.Equal(t, 1500.0, body["retry_after_ms"])
	assert.Equal(t, "Rate limit exceeded. Retry after 2s.", body["error"])
}

func TestHandleListTools(t *testing.T) {
	req, err := http.NewRequest("GET", "/tools", nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()

	handleListTools(testRegistry()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[{
		"name": "lookup",
		"description": "Look something up",
		"parameters": [{"name": "key", "type": "string", "description": "What to find", "required": true}]
	}]`, rr.Body.String())
}

func TestConfigureServerRoutes(t *testing.T) {
	testhelpers.SetupLogger(t)

	cfg := config.Config{Server: config.ServerConfig{APIToken: "secret"}}
	srv := httptest.NewServer(configureServerRoutes(cfg, testRegistry()))
	t.Cleanup(srv.Close)

	// health checks are open
	resp, err := http.Get(srv.URL + "/healthcheck")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// tools require the token
	resp, err = http.Post(srv.URL+"/tools/lookup", "application/json", strings.NewReader(`{"key":"widget"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest("POST", srv.URL+"/tools/lookup", strings.NewReader(`{"key":"widget"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"found":"widget"}`, string(data))
}

func TestRequireBearer(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		name   string
		token  string
		header string
		status int
	}{
		{"disabled", "", "", http.StatusNoContent},
		{"valid", "secret", "Bearer secret", http.StatusNoContent},
		{"missing", "secret", "", http.StatusUnauthorized},
		{"wrong scheme", "secret", "Basic secret", http.StatusUnauthorized},
		{"wrong token", "secret", "Bearer secreT", http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest("GET", "/tools", nil)
			require.NoError(t, err)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()

			requireBearer(tc.token)(inner).ServeHTTP(rr, req)

			assert.Equal(t, tc.status, rr.Code)
		})
	}
}

func TestHandleHealthCheck_Success(t *testing.T) {
	ctx := context.Background()

	req, err := http.NewRequest("GET", "/healthcheck", nil)
	require.NoError(t, err)

	req = req.WithContext(ctx)
	rr := httptest.NewRecorder()

	// act
	handler := handleHealthCheck()
	handler.ServeHTTP(rr, req)

	// assert
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))

	respBody := rr.Body.String()
	assert.Equal(t, "OK", respBody)
}

func TestMaxRequestSizeMiddleware(t *testing.T) {

	mw := maxRequestSize(10)

	var readError error
	var readBytes int64

	innerHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		readBytes, readError = io.CopyN(io.Discard, r.Body, 5*1024*1024)

		status := http.StatusOK
		if readError != nil {
			status = http.StatusBadRequest
		}

		w.WriteHeader(status)
	})

	handler := mw(innerHandler)

	body := bytes.NewBufferString("0123456789n123456789")
	req, err := http.NewRequest("POST", "/tools/lookup", body)
	require.NoError(t, err)

	rr := httptest.NewRecorder()

	// act
	handler.ServeHTTP(rr, req)

	// assert
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.ErrorContains(t, readError, "http: request body too large")
	assert.Equal(t, int64(10), readBytes)

	respBody := rr.Body.String()
	assert.Equal(t, "", respBody)
}
