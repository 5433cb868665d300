package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// DefaultUserAgent identifies the service to operator EBB sites
const DefaultUserAgent = "Mozilla/5.0 (compatible; ebbwatch/1.0; +https://github.com/ternarybob/ebbwatch)"

// NewDefaultHTTPClient creates a simple HTTP client with a timeout
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
	}
}

// StatusError is returned when a server answers with a non-success status
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d (%s) from %s", e.StatusCode, e.Status, e.URL)
}

// StatusCodeOf extracts the HTTP status carried by err, or 0
func StatusCodeOf(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
