// Package validate implements the pure validation and normalization layer
// for ingested payloads. It has no side effects and no I/O: callers hand it
// raw JSON and get back either a canonical domain value or a typed error.
//
// Error taxonomy:
//   - ErrMalformedInput: the payload could not be parsed into the expected
//     shape at all (including a string-wrapped payload whose inner JSON is
//     broken). Distinct from structural incompleteness.
//   - ErrEmptyBatch: a location batch parsed fine but contained no samples.
//   - MissingFieldError: the payload parsed but a required field is absent.
//   - MalformedDateError: a required date field is present but unparseable.
//
// Both ingestion shapes of the original tracker are accepted: structured
// JSON objects and double-encoded ("string-wrapped") JSON. Normalization of
// the two shapes happens here, once, so nothing downstream ever branches on
// payload encoding.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/arnavsinghal09/medtrack-server/internal/domain"
)

// ErrMalformedInput is returned when a payload cannot be parsed into the
// expected shape.
var ErrMalformedInput = errors.New("malformed input")

// ErrEmptyBatch is returned when a location batch contains no samples.
var ErrEmptyBatch = errors.New("empty location batch")

// MissingFieldError reports a required field absent from a parseable payload.
type MissingFieldError struct {
	Field string
}

// Error implements the error interface.
func (e *MissingFieldError) Error() string {
	return "missing required field: " + e.Field
}

// MalformedDateError reports a required date field that is present but does
// not parse to a calendar date.
type MalformedDateError struct {
	Field string
	Value string
}

// Error implements the error interface.
func (e *MalformedDateError) Error() string {
	return fmt.Sprintf("field %s is not a parseable date: %q", e.Field, e.Value)
}

// locationAlias uses pointers for latitude/longitude so that "absent" can be
// told apart from a legitimate zero coordinate.
type locationAlias struct {
	Latitude  *float64        `json:"latitude"`
	Longitude *float64        `json:"longitude"`
	Accuracy  *float64        `json:"accuracy"`
	Speed     *float64        `json:"speed"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// Location validates a batch of location samples and returns the adopted
// sample: the last element of the batch, per the tracker contract (earlier
// elements are superseded by the time the batch arrives).
//
// The batch may be a JSON array or a string-wrapped JSON array. A missing or
// unparseable batch yields ErrMalformedInput, an empty batch ErrEmptyBatch,
// and a last element without latitude or longitude a MissingFieldError.
func Location(raw json.RawMessage) (*domain.LocationSample, error) {
	normalized, err := unwrapString(raw)
	if err != nil {
		return nil, err
	}

	var batch []json.RawMessage
	if err := json.Unmarshal(normalized, &batch); err != nil {
		return nil, fmt.Errorf("%w: locations is not an array: %v", ErrMalformedInput, err)
	}
	if len(batch) == 0 {
		return nil, ErrEmptyBatch
	}

	var last locationAlias
	if err := json.Unmarshal(batch[len(batch)-1], &last); err != nil {
		return nil, fmt.Errorf("%w: location sample is not an object: %v", ErrMalformedInput, err)
	}
	if last.Latitude == nil {
		return nil, &MissingFieldError{Field: "latitude"}
	}
	if last.Longitude == nil {
		return nil, &MissingFieldError{Field: "longitude"}
	}
	if !finite(*last.Latitude) || !finite(*last.Longitude) {
		return nil, fmt.Errorf("%w: coordinates must be finite", ErrMalformedInput)
	}

	return &domain.LocationSample{
		Latitude:  *last.Latitude,
		Longitude: *last.Longitude,
		Accuracy:  last.Accuracy,
		Speed:     last.Speed,
		Timestamp: last.Timestamp,
	}, nil
}

// QrRecord validates a scanned QR payload and returns the canonical record.
//
// Accepted shapes, normalized here and nowhere else:
//   - a record object
//   - {"qrData": <record object>}
//   - {"qrData": "<record JSON as a string>"}
//   - "<record JSON as a string>"
//
// A payload that cannot be parsed yields ErrMalformedInput. A parseable
// record missing any of the five required identity/date fields yields a
// MissingFieldError; a required date that does not parse yields a
// MalformedDateError. Optional fields are carried through untouched.
func QrRecord(body []byte) (*domain.MedicineRecord, error) {
	normalized, err := unwrapString(body)
	if err != nil {
		return nil, err
	}

	// Unwrap the {"qrData": ...} envelope when present.
	var envelope struct {
		QrData json.RawMessage `json:"qrData"`
	}
	if err := json.Unmarshal(normalized, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if len(envelope.QrData) > 0 && !bytes.Equal(envelope.QrData, []byte("null")) {
		if normalized, err = unwrapString(envelope.QrData); err != nil {
			return nil, err
		}
	}

	var rec domain.MedicineRecord
	if err := json.Unmarshal(normalized, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if err := Record(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Record checks the required identity and date fields of an already-decoded
// record. The ledger pipeline calls this again defensively before building a
// transaction, so it must not assume anything about the caller.
func Record(rec *domain.MedicineRecord) error {
	if rec == nil {
		return &MissingFieldError{Field: "qrData"}
	}
	required := []struct{ name, value string }{
		{"batchId", rec.BatchID},
		{"name", rec.Name},
		{"manufacturer", rec.Manufacturer},
		{"manufacturingDate", rec.ManufacturingDate},
		{"expiryDate", rec.ExpiryDate},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return &MissingFieldError{Field: f.name}
		}
	}
	if _, err := ParseDate(rec.ManufacturingDate); err != nil {
		return &MalformedDateError{Field: "manufacturingDate", Value: rec.ManufacturingDate}
	}
	if _, err := ParseDate(rec.ExpiryDate); err != nil {
		return &MalformedDateError{Field: "expiryDate", Value: rec.ExpiryDate}
	}
	return nil
}

// dateLayouts are tried in order against string dates. They cover what the
// original payloads actually carried: RFC 3339 with and without sub-second
// precision, a bare datetime, and a plain calendar date (interpreted UTC).
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate parses a date value into a UTC instant. All-digit values are
// treated as epoch milliseconds, matching what JS Date(...) did for the
// original payloads.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	if isAllDigits(s) {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// unwrapString peels one level of string encoding: if raw is a JSON string,
// its contents are returned as raw JSON; otherwise raw is returned as-is.
// An inner payload that is not valid JSON yields ErrMalformedInput.
func unwrapString(raw []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedInput)
	}
	if trimmed[0] != '"' {
		return trimmed, nil
	}
	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if !json.Valid([]byte(inner)) {
		return nil, fmt.Errorf("%w: wrapped payload is not valid JSON", ErrMalformedInput)
	}
	return json.RawMessage(inner), nil
}

// finite reports whether f is neither NaN nor an infinity.
func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// isAllDigits reports whether s consists solely of ASCII digits (with an
// optional leading minus sign).
func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' {
		s = s[1:]
		if s == "" {
			return false
		}
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
