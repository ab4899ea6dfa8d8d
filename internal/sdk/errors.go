package sdk

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// StatusError reports a non-2xx response to a unary request.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	// Body is a bounded excerpt of the response body.
	Body string
}

func newStatusError(method, path string, status int, body string) *StatusError {
	if len(body) > errorBodyLimit {
		body = body[:errorBodyLimit]
	}
	return &StatusError{
		Method:     method,
		Path:       path,
		StatusCode: status,
		Body:       strings.TrimSpace(body),
	}
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// IsNotFound reports whether err is a StatusError with status 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// StatusCode extracts the HTTP status from a StatusError anywhere in
// err's chain, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
