package provider

import (
	"fmt"
	"net/http"
	"unicode/utf8"
)

// maxErrorBody is the number of response body bytes kept on an
// UpstreamError.
const maxErrorBody = 200

// UpstreamError is a failed call to a provider API: either a transport
// failure, or a response with a non-success status.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, e.Body)
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s API error %d: %v", e.Provider, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s API error %d", e.Provider, e.StatusCode)
	default:
		return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
	}
}

func (e UpstreamError) Unwrap() error {
	return e.Err
}

func (e UpstreamError) Status() (int, string) {
	return http.StatusBadGateway, http.StatusText(http.StatusBadGateway)
}

// Truncate limits an upstream response body for inclusion in an error,
// without splitting a UTF-8 sequence.
func Truncate(body string) string {
	if len(body) <= maxErrorBody {
		return body
	}

	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}

	return body[:cut]
}
