package scope

import (
	"fmt"
	"net/http"
	"strings"
)

// ViolationError reports a request for a resource outside the configured
// allowlist for its domain.
type ViolationError struct {
	Domain    string
	Requested string
	Allowed   []string
}

func (e ViolationError) Error() string {
	return fmt.Sprintf(
		"scope violation: %s %q is not in the allowed list [%s]. Access is limited to the configured project resources.",
		e.Domain, e.Requested, strings.Join(e.Allowed, ", "),
	)
}

func (e ViolationError) Status() (int, string) {
	return http.StatusForbidden, http.StatusText(http.StatusForbidden)
}

// QueryError reports a JQL query that cannot be safely restricted to the
// configured projects.
type QueryError struct {
	Query  string
	Reason string
}

func (e QueryError) Error() string {
	return fmt.Sprintf("malformed JQL query: %s", e.Reason)
}

func (e QueryError) Status() (int, string) {
	return http.StatusBadRequest, http.StatusText(http.StatusBadRequest)
}
