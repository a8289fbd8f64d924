// Package services implements the ingestion orchestration for the tracking
// backend. This file centralizes service-level error values so they can be
// consistently returned by service methods and checked by callers.
//
// Validation errors surface from the validate package as typed errors; the
// handler layer maps both those and these sentinels to HTTP responses.
package services

import "errors"

// ErrNoData is returned by the query operations while a stream's cache slot
// is still empty. An empty slot is an explicit, expected state — callers
// must distinguish it from an invalid request.
var ErrNoData = errors.New("no data available yet")
