package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shipmate/shipmate/internal/ratelimit"
	"github.com/shipmate/shipmate/internal/tools"
)

// ToolDescription is an entry of the tool listing.
type ToolDescription struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
}

type ToolParameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

func handleListTools(reg *tools.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		list := reg.List()
		descriptions := make([]ToolDescription, 0, len(list))
		for _, t := range list {
			params := make([]ToolParameter, 0, len(t.Params))
			for _, p := range t.Params {
				params = append(params, ToolParameter{
					Name:        p.Name,
					Type:        string(p.Type),
					Description: p.Description,
					Required:    p.Required,
					Enum:        p.Enum,
				})
			}
			descriptions = append(descriptions, ToolDescription{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			})
		}

		writeJSON(w, http.StatusOK, descriptions)
	})
}

func handleInvokeTool(reg *tools.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		name := r.PathValue("name")
		if _, ok := reg.Lookup(name); !ok {
			writeToolError(w, tools.UnknownToolError{Name: name})
			return
		}

		args, err := readArguments(r.Body)
		if err != nil {
			log.Info().Err(err).Str("tool", name).Msg("invalid tool request body")
			writeToolError(w, tools.ArgumentError{Name: "body", Reason: err.Error()})
			return
		}

		result, err := reg.Invoke(r.Context(), name, tools.TransportHTTP, args)
		if err != nil {
			writeToolError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	})
}

// readArguments decodes the request body as a JSON object. An empty body is
// an empty argument set.
func readArguments(body io.Reader) (map[string]any, error) {
	args := map[string]any{}

	err := json.NewDecoder(body).Decode(&args)
	if errors.Is(err, io.EOF) {
		return args, nil
	}
	if err != nil {
		return nil, errors.New("expected a JSON object of tool arguments")
	}

	return args, nil
}

func handleHealthCheck() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func maxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, limit)
	}
}

// requireBearer rejects requests that don't present the token. An empty
// token disables the check.
func requireBearer(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}

		expected := []byte(token)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeJSON(w, http.StatusUnauthorized, tools.ErrorResult{
					Error: http.StatusText(http.StatusUnauthorized),
					Kind:  "unauthorized",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeToolError writes the structured failure with the status its error
// maps to. Rate limited responses carry Retry-After in whole seconds.
func writeToolError(w http.ResponseWriter, err error) {
	status, body := tools.Describe(err)

	var limited ratelimit.RateLimitError
	if errors.As(err, &limited) {
		seconds := int(math.Ceil(limited.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
	}

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// At this point the status code has been written, so we can only log
		log.Info().Err(err).Msg("failed to write JSON response")
	}
}

// drainRequestBody drains the request body by reading and discarding the contents.
// This is useful to ensure the request body is fully consumed, which is important
// for connection reuse in HTTP/1 clients.
func drainRequestBody(r *http.Request) {
	if r.Body != nil {
		// 5kb max: after this we'll assume the client is broken or malicious
		// and close the connection
		io.CopyN(io.Discard, r.Body, 5*1024*1024)
	}
}
