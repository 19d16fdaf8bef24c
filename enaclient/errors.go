package enaclient

import (
	"fmt"
	"time"

	"github.com/carbocation/herring"
)

// StatusError is a non-2xx answer from the portal.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string

	// Body is the start of the response body, for diagnostics.
	Body string

	RetryAfter time.Duration

	transient bool
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
	}

	return fmt.Sprintf("GET %s: %s: %s", e.URL, e.Status, e.Body)
}

// Unwrap classifies the error as herring.ErrTransient or herring.ErrFatal.
func (e *StatusError) Unwrap() error {
	if e.transient {
		return herring.ErrTransient
	}

	return herring.ErrFatal
}

// Transient reports whether the status was classified as retryable.
func (e *StatusError) Transient() bool {
	return e.transient
}
