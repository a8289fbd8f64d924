// Package services – TrackingService
//
// This file implements the TrackingService, the orchestration layer over the
// validator, the state cache, the fanout hub, and the ledger pipeline. Every
// externally visible ingestion and query operation goes through here; the
// HTTP handlers stay transport-thin.
//
// Ordering contract: for one stream, cache write and broadcast happen inside
// the accepted ingestion call, so the cache and the broadcast stream always
// reflect the most recently accepted update in arrival order. The ledger
// submission is the only detached step and runs after cache+broadcast.
package services

import (
	"encoding/json"
	"strconv"

	"github.com/arnavsinghal09/medtrack-server/internal/domain"
	"github.com/arnavsinghal09/medtrack-server/internal/state"
	"github.com/arnavsinghal09/medtrack-server/internal/validate"
	"github.com/arnavsinghal09/medtrack-server/internal/ws"
)

// displayDateLayout is the en-GB UTC format the dashboard expects on the QR
// read-back path (dd/mm/yyyy, 24h clock).
const displayDateLayout = "02/01/2006, 15:04:05"

// Broadcaster delivers a named event to every connected observer.
// Implementations must not block the caller.
type Broadcaster interface {
	Broadcast(event string, data any)
}

// Submitter enqueues a validated record for asynchronous ledger submission.
// Implementations must return immediately; outcomes are never reported back.
type Submitter interface {
	Submit(rec *domain.MedicineRecord)
}

// QrEnvelope is the broadcast payload shape for QR events. The envelope is
// part of the external channel contract.
type QrEnvelope struct {
	QrData *domain.MedicineRecord `json:"qrData"`
}

// TrackingService orchestrates ingestion and queries for both streams.
// Rejections are side-effect-free: a failed validation mutates nothing,
// broadcasts nothing, and submits nothing.
type TrackingService struct {
	// Cache is the latest-value store feeding queries and replay.
	Cache *state.Cache
	// Hub fans accepted updates out to connected observers.
	Hub Broadcaster
	// Pipeline receives accepted QR records for ledger submission.
	Pipeline Submitter
}

// NewTrackingService wires the service to its collaborators.
func NewTrackingService(cache *state.Cache, hub Broadcaster, pipeline Submitter) *TrackingService {
	return &TrackingService{Cache: cache, Hub: hub, Pipeline: pipeline}
}

// RecordLocation validates a location batch, adopts its last sample as the
// new cached location, and broadcasts it. On validation failure the cache
// and the broadcast stream are left untouched.
func (s *TrackingService) RecordLocation(raw json.RawMessage) (*domain.LocationSample, error) {
	sample, err := validate.Location(raw)
	if err != nil {
		return nil, err
	}
	s.Cache.SetLocation(sample)
	s.Hub.Broadcast(ws.EventLocationUpdate, sample)
	return sample, nil
}

// RecordQr validates a scanned QR payload, caches and broadcasts the record,
// and hands it to the ledger pipeline. The pipeline call is fire-and-forget:
// RecordQr returns as soon as cache and broadcast are done, and a later
// ledger failure never retracts the cached record.
func (s *TrackingService) RecordQr(body []byte) (*domain.MedicineRecord, error) {
	rec, err := validate.QrRecord(body)
	if err != nil {
		return nil, err
	}
	s.Cache.SetQr(rec)
	s.Hub.Broadcast(ws.EventQrDataUpdate, QrEnvelope{QrData: rec})
	s.Pipeline.Submit(rec)
	return rec, nil
}

// LastLocation returns the cached location. A non-empty read also broadcasts
// a refresh signal to all observers, distinct from the connect-time replay.
// An empty slot yields ErrNoData.
func (s *TrackingService) LastLocation() (*domain.LocationSample, error) {
	sample, ok := s.Cache.Location()
	if !ok {
		return nil, ErrNoData
	}
	s.Hub.Broadcast(ws.EventFetchLastLocation, sample)
	return sample, nil
}

// LastQr returns a display copy of the cached QR record with the two
// required dates and every parseable journey-step timestamp rendered as
// en-GB UTC strings; unparseable step timestamps pass through untouched.
// A non-empty read broadcasts a refresh signal; an empty slot yields
// ErrNoData.
func (s *TrackingService) LastQr() (*domain.MedicineRecord, error) {
	rec, ok := s.Cache.Qr()
	if !ok {
		return nil, ErrNoData
	}
	s.Hub.Broadcast(ws.EventFetchLastQr, QrEnvelope{QrData: rec})
	return formatQrForDisplay(rec), nil
}

// ReplayEvents implements ws.ReplaySource: one event per non-empty cache
// slot, shaped exactly like the corresponding live broadcast.
func (s *TrackingService) ReplayEvents() []ws.Event {
	events := make([]ws.Event, 0, 2)
	if sample, ok := s.Cache.Location(); ok {
		events = append(events, ws.Event{Event: ws.EventLocationUpdate, Data: sample})
	}
	if rec, ok := s.Cache.Qr(); ok {
		events = append(events, ws.Event{Event: ws.EventQrDataUpdate, Data: QrEnvelope{QrData: rec}})
	}
	return events
}

// formatQrForDisplay returns a copy of rec with display-formatted dates.
// The cached record itself is never mutated.
func formatQrForDisplay(rec *domain.MedicineRecord) *domain.MedicineRecord {
	out := *rec
	out.ManufacturingDate = formatDisplayDate(rec.ManufacturingDate)
	out.ExpiryDate = formatDisplayDate(rec.ExpiryDate)

	if len(rec.JourneySteps) > 0 {
		out.JourneySteps = make([]domain.JourneyStep, len(rec.JourneySteps))
		copy(out.JourneySteps, rec.JourneySteps)
		for i := range out.JourneySteps {
			out.JourneySteps[i].Timestamp = formatStepTimestamp(out.JourneySteps[i].Timestamp)
		}
	}
	return &out
}

// formatDisplayDate renders a parseable date in the display layout and
// returns the input unchanged otherwise.
func formatDisplayDate(s string) string {
	t, err := validate.ParseDate(s)
	if err != nil {
		return s
	}
	return t.UTC().Format(displayDateLayout)
}

// formatStepTimestamp handles the raw JSON step timestamp: quoted strings
// and epoch-millisecond numbers are formatted for display; anything else
// (absent, null, malformed) passes through as-is.
func formatStepTimestamp(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var value string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &value); err != nil {
			return raw
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return raw
		}
		value = n.String()
	}
	t, err := validate.ParseDate(value)
	if err != nil {
		return raw
	}
	return json.RawMessage(strconv.Quote(t.UTC().Format(displayDateLayout)))
}
