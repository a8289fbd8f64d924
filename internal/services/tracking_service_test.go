package services

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/arnavsinghal09/medtrack-server/internal/domain"
	"github.com/arnavsinghal09/medtrack-server/internal/state"
	"github.com/arnavsinghal09/medtrack-server/internal/ws"
)

// call records one collaborator invocation in arrival order.
type call struct {
	kind  string // "broadcast" | "submit"
	event string
	data  any
}

// recorder implements Broadcaster and Submitter and keeps the combined call
// sequence, so ordering between broadcast and submission is observable.
type recorder struct {
	calls []call
}

func (r *recorder) Broadcast(event string, data any) {
	r.calls = append(r.calls, call{kind: "broadcast", event: event, data: data})
}

func (r *recorder) Submit(rec *domain.MedicineRecord) {
	r.calls = append(r.calls, call{kind: "submit", data: rec})
}

func newTestService() (*TrackingService, *recorder) {
	rec := &recorder{}
	return NewTrackingService(state.New(), rec, rec), rec
}

func validQrBody() []byte {
	return []byte(`{
		"batchId": "B-1",
		"name": "Paracetamol",
		"manufacturer": "Acme",
		"manufacturingDate": "2024-01-01T00:00:00.000Z",
		"expiryDate": "2026-06-15"
	}`)
}

func TestRecordLocation_CachesAndBroadcasts(t *testing.T) {
	svc, rec := newTestService()

	sample, err := svc.RecordLocation(json.RawMessage(`[{"latitude": 1.5, "longitude": 2.5}]`))
	if err != nil {
		t.Fatalf("RecordLocation: %v", err)
	}

	cached, ok := svc.Cache.Location()
	if !ok || cached != sample {
		t.Fatalf("cache not updated with adopted sample")
	}
	if len(rec.calls) != 1 || rec.calls[0].event != ws.EventLocationUpdate {
		t.Fatalf("expected one locationUpdate broadcast, got %+v", rec.calls)
	}
	if rec.calls[0].data != sample {
		t.Fatal("broadcast payload is not the cached sample")
	}
}

func TestRecordLocation_RejectionIsSideEffectFree(t *testing.T) {
	svc, rec := newTestService()

	if _, err := svc.RecordLocation(json.RawMessage(`[]`)); err == nil {
		t.Fatal("expected rejection")
	}
	if _, ok := svc.Cache.Location(); ok {
		t.Fatal("rejected batch must not touch the cache")
	}
	if len(rec.calls) != 0 {
		t.Fatalf("rejected batch must not broadcast, got %+v", rec.calls)
	}
}

func TestRecordQr_CachesBroadcastsThenSubmits(t *testing.T) {
	svc, rec := newTestService()

	record, err := svc.RecordQr(validQrBody())
	if err != nil {
		t.Fatalf("RecordQr: %v", err)
	}

	cached, ok := svc.Cache.Qr()
	if !ok || cached != record {
		t.Fatal("cache not updated with accepted record")
	}

	if len(rec.calls) != 2 {
		t.Fatalf("expected broadcast then submit, got %+v", rec.calls)
	}
	if rec.calls[0].kind != "broadcast" || rec.calls[0].event != ws.EventQrDataUpdate {
		t.Fatalf("first call should be the qrDataUpdate broadcast, got %+v", rec.calls[0])
	}
	env, ok := rec.calls[0].data.(QrEnvelope)
	if !ok || env.QrData != record {
		t.Fatalf("broadcast payload must be the qrData envelope, got %+v", rec.calls[0].data)
	}
	if rec.calls[1].kind != "submit" {
		t.Fatalf("second call should be the pipeline submission, got %+v", rec.calls[1])
	}
}

func TestRecordQr_RejectionIsSideEffectFree(t *testing.T) {
	svc, rec := newTestService()

	if _, err := svc.RecordQr([]byte(`{"batchId": "B-1"}`)); err == nil {
		t.Fatal("expected rejection")
	}
	if _, ok := svc.Cache.Qr(); ok {
		t.Fatal("rejected payload must not touch the cache")
	}
	if len(rec.calls) != 0 {
		t.Fatalf("rejected payload must not broadcast or submit, got %+v", rec.calls)
	}
}

func TestLastLocation_EmptyCache(t *testing.T) {
	svc, rec := newTestService()

	if _, err := svc.LastLocation(); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if len(rec.calls) != 0 {
		t.Fatal("empty read must not broadcast")
	}
}

func TestLastLocation_BroadcastsRefresh(t *testing.T) {
	svc, rec := newTestService()
	if _, err := svc.RecordLocation(json.RawMessage(`[{"latitude": 1, "longitude": 2}]`)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rec.calls = nil

	sample, err := svc.LastLocation()
	if err != nil {
		t.Fatalf("LastLocation: %v", err)
	}
	if len(rec.calls) != 1 || rec.calls[0].event != ws.EventFetchLastLocation {
		t.Fatalf("expected fetchLastLocation broadcast, got %+v", rec.calls)
	}
	if sample.Latitude != 1 {
		t.Fatalf("unexpected sample: %+v", sample)
	}
}

func TestLastQr_EmptyCache(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.LastQr(); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestLastQr_FormatsDatesForDisplay(t *testing.T) {
	svc, rec := newTestService()
	if _, err := svc.RecordQr(validQrBody()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rec.calls = nil

	got, err := svc.LastQr()
	if err != nil {
		t.Fatalf("LastQr: %v", err)
	}
	if got.ManufacturingDate != "01/01/2024, 00:00:00" {
		t.Fatalf("manufacturingDate not display-formatted: %q", got.ManufacturingDate)
	}
	if got.ExpiryDate != "15/06/2026, 00:00:00" {
		t.Fatalf("expiryDate not display-formatted: %q", got.ExpiryDate)
	}
	if len(rec.calls) != 1 || rec.calls[0].event != ws.EventFetchLastQr {
		t.Fatalf("expected fetchLastQr broadcast, got %+v", rec.calls)
	}

	// The cached record must stay in its ingested form.
	cached, _ := svc.Cache.Qr()
	if cached.ManufacturingDate != "2024-01-01T00:00:00.000Z" {
		t.Fatalf("cached record was mutated: %q", cached.ManufacturingDate)
	}
}

func TestLastQr_JourneyStepTimestamps(t *testing.T) {
	svc, _ := newTestService()
	body := []byte(`{
		"batchId": "B-1",
		"name": "N",
		"manufacturer": "M",
		"manufacturingDate": "2024-01-01",
		"expiryDate": "2026-01-01",
		"journeySteps": [
			{"stepId": 1, "timestamp": 1704067200000},
			{"stepId": 2, "timestamp": "not a date"},
			{"stepId": 3}
		]
	}`)
	if _, err := svc.RecordQr(body); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := svc.LastQr()
	if err != nil {
		t.Fatalf("LastQr: %v", err)
	}
	steps := got.JourneySteps
	if string(steps[0].Timestamp) != `"01/01/2024, 00:00:00"` {
		t.Fatalf("epoch step timestamp not formatted: %s", steps[0].Timestamp)
	}
	if string(steps[1].Timestamp) != `"not a date"` {
		t.Fatalf("unparseable step timestamp must pass through: %s", steps[1].Timestamp)
	}
	if len(steps[2].Timestamp) != 0 {
		t.Fatalf("absent step timestamp must stay absent: %s", steps[2].Timestamp)
	}

	// Formatting must not leak into the cached steps.
	cached, _ := svc.Cache.Qr()
	if string(cached.JourneySteps[0].Timestamp) != "1704067200000" {
		t.Fatalf("cached step timestamp was mutated: %s", cached.JourneySteps[0].Timestamp)
	}
}

func TestReplayEvents_MirrorsCacheSlots(t *testing.T) {
	svc, _ := newTestService()

	if events := svc.ReplayEvents(); len(events) != 0 {
		t.Fatalf("empty cache should replay nothing, got %+v", events)
	}

	if _, err := svc.RecordLocation(json.RawMessage(`[{"latitude": 1, "longitude": 2}]`)); err != nil {
		t.Fatalf("seed location: %v", err)
	}
	events := svc.ReplayEvents()
	if len(events) != 1 || events[0].Event != ws.EventLocationUpdate {
		t.Fatalf("expected one locationUpdate replay, got %+v", events)
	}

	if _, err := svc.RecordQr(validQrBody()); err != nil {
		t.Fatalf("seed qr: %v", err)
	}
	events = svc.ReplayEvents()
	if len(events) != 2 {
		t.Fatalf("expected two replay events, got %+v", events)
	}
	env, ok := events[1].Data.(QrEnvelope)
	if events[1].Event != ws.EventQrDataUpdate || !ok || env.QrData == nil {
		t.Fatalf("qr replay must use the qrData envelope, got %+v", events[1])
	}
}
