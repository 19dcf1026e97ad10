package backlog

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorDetail is one entry of the "errors" array Backlog returns on a
// non-2xx response.
type ErrorDetail struct {
	Message  string `json:"message"`
	Code     int    `json:"code"`
	MoreInfo string `json:"moreInfo"`
}

// APIError is the typed failure surface of the client. Callers never see a
// raw transport error for an HTTP-level rejection; they see this, and the
// retry gateway decides what is retryable.
type APIError struct {
	StatusCode int
	Errors     []ErrorDetail
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("backlog: API error (status %d)", e.StatusCode)
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, d := range e.Errors {
		msgs = append(msgs, d.Message)
	}
	return fmt.Sprintf("backlog: API error (status %d): %s", e.StatusCode, strings.Join(msgs, "; "))
}

// IsRateLimited reports whether err is the service's HTTP 429 rejection.
// This is the only condition the retry gateway retries.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// IsNoContentChange reports whether err is the "No comment content" 400
// rejection the service raises for an issue update with no net textual
// change. Replay retries that update once with a filler comment.
func IsNoContentChange(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		return false
	}
	for _, d := range apiErr.Errors {
		if strings.Contains(d.Message, "No comment content") {
			return true
		}
	}
	return false
}
