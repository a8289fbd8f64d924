// Package utils holds small helpers shared across layers. Nothing in here
// may know about HTTP, storage, or the domain model.
package utils

import "strconv"

// AtoiDefault parses s as a base-10 integer, falling back to def when s is
// empty or not a valid integer. Intended for query parameters, where a bad
// value should degrade to the default rather than fail the request.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
