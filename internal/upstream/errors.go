package upstream

import (
	"fmt"
	"net/http"
)

// Error is a non-success response from the classifieds API. The raw body is
// kept for logs and diagnostics; callers must not forward it verbatim to
// end users.
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Status)
}

// NotFound reports whether the error is an upstream 404.
func (e *Error) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// retryable reports whether a status code warrants another attempt. Rate
// limiting and server-side failures are transient; any other client error is
// final.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
