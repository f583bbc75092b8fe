// Package providers implements schema.LLMProvider for OpenAI-compatible
// endpoints and the Anthropic Messages API, plus an embeddings client.
// Every HTTP call goes through Transport, which retries transient failures.
package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrTooLarge reports that the provider rejected a request as oversized.
var ErrTooLarge = errors.New("request too large")

// HTTPError is a non-2xx response from a provider.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, friendlyHTTPError(e.StatusCode, []byte(e.Body)))
}

// Is lets errors.Is(err, ErrTooLarge) match oversize rejections.
func (e *HTTPError) Is(target error) bool {
	return target == ErrTooLarge && isTooLarge(e.StatusCode, e.Body)
}

// isTooLarge matches 413 and the 400-with-message variant some
// OpenAI-compatible servers return for oversized inputs.
func isTooLarge(code int, body string) bool {
	if code == http.StatusRequestEntityTooLarge {
		return true
	}
	if code != http.StatusBadRequest {
		return false
	}
	b := strings.ToLower(body)
	return strings.Contains(b, "too large") ||
		strings.Contains(b, "too long") ||
		strings.Contains(b, "maximum context length")
}

// retryableStatus reports whether a response status is worth retrying:
// rate limits, overload and 5xx.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, 529:
		return true
	}
	return code >= 500 && code != http.StatusNotImplemented
}

func friendlyHTTPError(code int, body []byte) string {
	if code == http.StatusTooManyRequests {
		return "rate limit exceeded"
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
