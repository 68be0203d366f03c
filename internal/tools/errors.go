package tools

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shipmate/shipmate/internal/audit"
	"github.com/shipmate/shipmate/internal/provider"
	"github.com/shipmate/shipmate/internal/ratelimit"
	"github.com/shipmate/shipmate/internal/scope"
)

// HTTPStatuser provides HTTP status information for errors
type HTTPStatuser interface {
	Status() (int, string)
}

// ArgumentError reports a tool argument that is missing or malformed.
type ArgumentError struct {
	Name   string
	Reason string
}

func (e ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Name, e.Reason)
}

func (e ArgumentError) Status() (int, string) {
	return http.StatusBadRequest, http.StatusText(http.StatusBadRequest)
}

// NotFoundError reports that the requested object does not exist upstream.
type NotFoundError struct {
	Message string
	Hint    string
}

func (e NotFoundError) Error() string {
	return e.Message
}

func (e NotFoundError) Status() (int, string) {
	return http.StatusNotFound, http.StatusText(http.StatusNotFound)
}

// UnknownToolError is returned when no tool of the given name is registered.
type UnknownToolError struct {
	Name string
}

func (e UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

func (e UnknownToolError) Status() (int, string) {
	return http.StatusNotFound, http.StatusText(http.StatusNotFound)
}

// ErrorResult is the structured form of a failed invocation, as returned to
// the caller on every transport.
type ErrorResult struct {
	Error        string `json:"error"`
	Kind         string `json:"kind"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
	Hint         string `json:"hint,omitempty"`
}

// Describe converts an invocation failure into its HTTP status and result
// body. Errors that don't implement HTTPStatuser are internal errors.
func Describe(err error) (int, ErrorResult) {
	result := ErrorResult{
		Error: err.Error(),
		Kind:  Outcome(err),
	}

	var limited ratelimit.RateLimitError
	if errors.As(err, &limited) {
		result.RetryAfterMs = limited.RetryAfter.Milliseconds()
	}

	var notFound NotFoundError
	if errors.As(err, &notFound) {
		result.Hint = notFound.Hint
	}

	var statuser HTTPStatuser
	if errors.As(err, &statuser) {
		status, _ := statuser.Status()
		return status, result
	}

	return http.StatusInternalServerError, result
}

// Outcome classifies an invocation result for the audit log. A nil error is
// "ok"; callers distinguish cache hits themselves.
func Outcome(err error) string {
	var (
		violation scope.ViolationError
		limited   ratelimit.RateLimitError
		upstream  provider.UpstreamError
		argument  ArgumentError
		query     scope.QueryError
		notFound  NotFoundError
		unknown   UnknownToolError
	)

	switch {
	case err == nil:
		return audit.OutcomeOK
	case errors.As(err, &violation):
		return audit.OutcomeScopeViolation
	case errors.As(err, &limited):
		return audit.OutcomeRateLimited
	case errors.As(err, &upstream):
		return audit.OutcomeUpstreamError
	case errors.As(err, &argument), errors.As(err, &query):
		return audit.OutcomeInvalidRequest
	case errors.As(err, &notFound), errors.As(err, &unknown):
		return audit.OutcomeNotFound
	default:
		return audit.OutcomeError
	}
}
