// Package herring holds the pieces shared by every stage of the study listing
// pipeline: the error taxonomy and helpers for local or Google Storage paths.
package herring

import "errors"

// Errors are classified by wrapping one of these sentinels; use errors.Is to
// decide how to react.
var (
	// ErrInvalidArgument marks bad window or configuration input. It is always
	// reported before any network activity.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTransient marks network failures, timeouts, HTTP 429 and 5xx
	// responses. The transport retries these; callers only see one once the
	// retry budget is spent.
	ErrTransient = errors.New("transient failure")

	// ErrFatal marks non-retryable API errors and malformed response bodies.
	ErrFatal = errors.New("fatal API error")

	// ErrHandshake marks a failed availability probe. It is only ever logged.
	ErrHandshake = errors.New("handshake warning")
)
