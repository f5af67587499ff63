package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultErrorMessage is used when the server response carries no
// recognizable error-message field.
const DefaultErrorMessage = "request failed"

// messageFields is the ordered set of conventional server error-message
// fields. The first one present in the response body wins.
var messageFields = []string{"error", "message", "detail", "error_description"}

// RequestError is the single error type surfaced for failed API calls.
//
// Both non-retryable HTTP errors and exhausted retries produce a
// RequestError; callers distinguish transport failures by a zero
// HTTPStatus and wrapped underlying error.
type RequestError struct {
	HTTPStatus   int
	StatusText   string
	Endpoint     string
	ResponseBody []byte
	Message      string
	Err          error // underlying transport error, if any
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("%s %s: %s", e.Endpoint, e.StatusText, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Endpoint, e.Message)
}

// Unwrap exposes the underlying transport error for errors.Is/As.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a RequestError with HTTP 404.
func IsNotFound(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.HTTPStatus == 404
}

// extractMessage derives a user-facing message from a server error body.
// Scans the conventional fields in order and falls back to the default.
func extractMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return DefaultErrorMessage
	}
	for _, field := range messageFields {
		if v, ok := payload[field]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return DefaultErrorMessage
}
