package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/arnavsinghal09/medtrack-server/internal/domain"
	"github.com/arnavsinghal09/medtrack-server/internal/services"
	"github.com/arnavsinghal09/medtrack-server/internal/validate"
)

// fakeTracking scripts the TrackingService responses and records inputs.
type fakeTracking struct {
	recordLocationErr error
	recordQrErr       error
	lastLocationErr   error
	lastQrErr         error

	locationIn json.RawMessage
	qrIn       []byte
}

func (f *fakeTracking) RecordLocation(raw json.RawMessage) (*domain.LocationSample, error) {
	f.locationIn = raw
	if f.recordLocationErr != nil {
		return nil, f.recordLocationErr
	}
	return &domain.LocationSample{Latitude: 1, Longitude: 2}, nil
}

func (f *fakeTracking) RecordQr(body []byte) (*domain.MedicineRecord, error) {
	f.qrIn = body
	if f.recordQrErr != nil {
		return nil, f.recordQrErr
	}
	return &domain.MedicineRecord{BatchID: "B-1"}, nil
}

func (f *fakeTracking) LastLocation() (*domain.LocationSample, error) {
	if f.lastLocationErr != nil {
		return nil, f.lastLocationErr
	}
	return &domain.LocationSample{Latitude: 3, Longitude: 4}, nil
}

func (f *fakeTracking) LastQr() (*domain.MedicineRecord, error) {
	if f.lastQrErr != nil {
		return nil, f.lastQrErr
	}
	return &domain.MedicineRecord{BatchID: "B-1", ManufacturingDate: "01/01/2024, 00:00:00"}, nil
}

func newTrackingRouter(svc TrackingService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := New(svc, nil)
	r.POST("/update-location", h.UpdateLocation)
	r.GET("/last-location", h.LastLocation)
	r.POST("/update-qr", h.UpdateQr)
	r.GET("/last-qr", h.LastQr)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error envelope: %v (body %s)", err, w.Body.String())
	}
	return resp
}

func TestUpdateLocation_OK(t *testing.T) {
	fake := &fakeTracking{}
	r := newTrackingRouter(fake)

	w := doJSON(t, r, http.MethodPost, "/update-location", `{"locations": [{"latitude":1,"longitude":2}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if string(fake.locationIn) != `[{"latitude":1,"longitude":2}]` {
		t.Fatalf("service got wrong raw batch: %s", fake.locationIn)
	}

	var resp UpdateLocationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || !resp.Success {
		t.Fatalf("unexpected body %s (err %v)", w.Body.String(), err)
	}
}

func TestUpdateLocation_FormField(t *testing.T) {
	fake := &fakeTracking{}
	r := newTrackingRouter(fake)

	form := url.Values{"locations": {`[{"latitude":1,"longitude":2}]`}}
	req := httptest.NewRequest(http.MethodPost, "/update-location", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if string(fake.locationIn) != `[{"latitude":1,"longitude":2}]` {
		t.Fatalf("form batch not forwarded: %s", fake.locationIn)
	}
}

func TestUpdateLocation_MissingPayload(t *testing.T) {
	r := newTrackingRouter(&fakeTracking{})

	for _, body := range []string{"", "{}", "not json"} {
		w := doJSON(t, r, http.MethodPost, "/update-location", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d", body, w.Code)
		}
		if resp := decodeError(t, w); resp.Code != ErrCodeBadRequest {
			t.Fatalf("body %q: code = %q", body, resp.Code)
		}
	}
}

func TestUpdateLocation_ValidationRejection(t *testing.T) {
	fake := &fakeTracking{recordLocationErr: validate.ErrEmptyBatch}
	r := newTrackingRouter(fake)

	w := doJSON(t, r, http.MethodPost, "/update-location", `{"locations": []}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decodeError(t, w)
	if resp.Code != ErrCodeBadRequest || resp.Message == "" {
		t.Fatalf("unexpected envelope %+v", resp)
	}
}

func TestLastLocation_OK(t *testing.T) {
	r := newTrackingRouter(&fakeTracking{})

	w := doJSON(t, r, http.MethodGet, "/last-location", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got domain.LocationSample
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil || got.Latitude != 3 {
		t.Fatalf("unexpected body %s (err %v)", w.Body.String(), err)
	}
}

func TestLastLocation_NoData(t *testing.T) {
	r := newTrackingRouter(&fakeTracking{lastLocationErr: services.ErrNoData})

	w := doJSON(t, r, http.MethodGet, "/last-location", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Code != ErrCodeNoData {
		t.Fatalf("code = %q", resp.Code)
	}
}

func TestUpdateQr_OK(t *testing.T) {
	fake := &fakeTracking{}
	r := newTrackingRouter(fake)

	body := `{"batchId":"B-1","name":"N","manufacturer":"M","manufacturingDate":"2024-01-01","expiryDate":"2026-01-01"}`
	w := doJSON(t, r, http.MethodPost, "/update-qr", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if string(fake.qrIn) != body {
		t.Fatalf("raw body not forwarded: %s", fake.qrIn)
	}

	var resp UpdateQrResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || !resp.Success || resp.Data == nil {
		t.Fatalf("unexpected body %s (err %v)", w.Body.String(), err)
	}
}

func TestUpdateQr_EmptyBody(t *testing.T) {
	r := newTrackingRouter(&fakeTracking{})

	w := doJSON(t, r, http.MethodPost, "/update-qr", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestUpdateQr_MissingField(t *testing.T) {
	fake := &fakeTracking{recordQrErr: &validate.MissingFieldError{Field: "expiryDate"}}
	r := newTrackingRouter(fake)

	w := doJSON(t, r, http.MethodPost, "/update-qr", `{"batchId":"B-1"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decodeError(t, w)
	if resp.Code != ErrCodeBadRequest || !strings.Contains(resp.Message, "expiryDate") {
		t.Fatalf("unexpected envelope %+v", resp)
	}
}

func TestLastQr_OK(t *testing.T) {
	r := newTrackingRouter(&fakeTracking{})

	w := doJSON(t, r, http.MethodGet, "/last-qr", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got domain.MedicineRecord
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil || got.BatchID != "B-1" {
		t.Fatalf("unexpected body %s (err %v)", w.Body.String(), err)
	}
}

func TestLastQr_NoData(t *testing.T) {
	r := newTrackingRouter(&fakeTracking{lastQrErr: services.ErrNoData})

	w := doJSON(t, r, http.MethodGet, "/last-qr", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Code != ErrCodeNoData {
		t.Fatalf("code = %q", resp.Code)
	}
}
