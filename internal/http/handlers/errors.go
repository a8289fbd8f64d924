// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// These symbolic constants are mapped to HTTP responses via the fail() helper
// in this package and give clients a stable, machine-readable error taxonomy
// supplementing the human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless noted.
//   - Generic codes (bad_request, not_found, ...) mirror HTTP status
//     semantics to aid interoperability.
//   - Validation failures on ingestion map to bad_request regardless of
//     whether the payload was unparseable or structurally incomplete; the
//     message carries the distinction.
//   - no_data marks the explicit empty-cache case on the query endpoints.
//     It is not an error in the ingestion sense — nothing was invalid, the
//     stream simply has not produced a value yet.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeNoData           = "no_data"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeListFailed = "list_failed"
)
