// Tracking HTTP handlers.
//
// This file exposes the ingestion and query endpoints for the two real-time
// streams:
//   - POST /update-location  (ingest a batch of GPS samples; last one wins)
//   - GET  /last-location    (current cached sample + refresh broadcast)
//   - POST /update-qr        (ingest a scanned QR record)
//   - GET  /last-qr          (current cached record, display-formatted)
//
// Handlers are transport-thin: they normalize the request body shape,
// delegate to the TrackingService, and translate results into HTTP
// responses. All validation semantics live in the service/validator layers;
// every validation failure maps to 400 with a message carrying the cause,
// and the empty-cache case on queries maps to 404 no_data.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arnavsinghal09/medtrack-server/internal/domain"
	"github.com/arnavsinghal09/medtrack-server/internal/repo"
	"github.com/arnavsinghal09/medtrack-server/internal/services"
	"github.com/arnavsinghal09/medtrack-server/internal/validate"
)

//
// Service contracts
//

// TrackingService defines the stream operations consumed by HTTP handlers.
// Implementations must be safe for concurrent use.
type TrackingService interface {
	// RecordLocation ingests a location batch and returns the adopted sample.
	RecordLocation(raw json.RawMessage) (*domain.LocationSample, error)
	// RecordQr ingests a scanned QR payload and returns the accepted record.
	RecordQr(body []byte) (*domain.MedicineRecord, error)
	// LastLocation returns the cached sample or services.ErrNoData.
	LastLocation() (*domain.LocationSample, error)
	// LastQr returns the display-formatted cached record or services.ErrNoData.
	LastQr() (*domain.MedicineRecord, error)
}

// SubmissionReader defines the journal read-back queries used by the
// /submissions endpoints.
type SubmissionReader interface {
	CountSubmissions(ctx context.Context) (int64, error)
	ListSubmissionsPage(ctx context.Context, offset, limit int) ([]domain.LedgerSubmission, error)
	Stats(ctx context.Context) (repo.SubmissionStats, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for stream ingestion, stream queries,
// and the submission journal read-back.
type Handlers struct {
	trackingSvc TrackingService
	journal     SubmissionReader
}

// New constructs a Handlers instance bound to the given collaborators.
// journal may be nil when the journal endpoints are not mounted.
func New(trackingSvc TrackingService, journal SubmissionReader) *Handlers {
	return &Handlers{trackingSvc: trackingSvc, journal: journal}
}

//
// DTOs
//

// UpdateLocationRequest is the JSON payload for the location ingest
// endpoint. Locations stays raw: it is either a JSON array of samples or a
// string containing one (the tracker app sends the latter).
type UpdateLocationRequest struct {
	Locations json.RawMessage `json:"locations"`
}

// UpdateLocationResponse acknowledges an adopted location sample.
type UpdateLocationResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"Location updated successfully."`
}

// UpdateQrResponse acknowledges an accepted QR record and echoes it back.
type UpdateQrResponse struct {
	Success bool                   `json:"success" example:"true"`
	Data    *domain.MedicineRecord `json:"data"`
}

//
// Handlers
//

// UpdateLocation godoc
// @ID          updateLocation
// @Summary     Ingest a batch of GPS samples
// @Description Accepts an ordered batch of location samples (JSON array or a
// @Description string-wrapped JSON array, also as a form field) and adopts the
// @Description last element as the new cached location, broadcasting it to
// @Description all connected observers.
// @Tags        Tracking
// @Accept      json
// @Accept      x-www-form-urlencoded
// @Produce     json
// @Param       body  body  handlers.UpdateLocationRequest  true  "Location batch"
// @Success     200  {object}  handlers.UpdateLocationResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing, unparseable, or empty batch"
// @Router      /update-location [post]
func (h *Handlers) UpdateLocation(c *gin.Context) {
	raw, okRaw := locationsPayload(c)
	if !okRaw {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "locations is required")
		return
	}

	if _, err := h.trackingSvc.RecordLocation(raw); err != nil {
		rejectIngestion(c, err)
		return
	}
	ok(c, http.StatusOK, UpdateLocationResponse{Success: true, Message: "Location updated successfully."})
}

// LastLocation godoc
// @ID          lastLocation
// @Summary     Query the latest cached location
// @Description Returns the most recently accepted location sample and pushes
// @Description a refresh signal to all connected observers. 404 with code
// @Description no_data while no sample has been ingested yet.
// @Tags        Tracking
// @Produce     json
// @Success     200  {object}  domain.LocationSample
// @Failure     404  {object}  handlers.ErrorResponse  "Empty cache"
// @Router      /last-location [get]
func (h *Handlers) LastLocation(c *gin.Context) {
	sample, err := h.trackingSvc.LastLocation()
	if err != nil {
		if errors.Is(err, services.ErrNoData) {
			fail(c, http.StatusNotFound, ErrCodeNoData, "no location data available")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, sample)
}

// UpdateQr godoc
// @ID          updateQr
// @Summary     Ingest a scanned QR record
// @Description Accepts a medicine record (object, {qrData: ...} envelope, or
// @Description double-encoded JSON string), caches and broadcasts it, and
// @Description queues it for asynchronous ledger submission. The response
// @Description does not wait for the ledger.
// @Tags        Tracking
// @Accept      json
// @Produce     json
// @Success     200  {object}  handlers.UpdateQrResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Unparseable payload or missing required field"
// @Router      /update-qr [post]
func (h *Handlers) UpdateQr(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || len(body) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "QR data is required")
		return
	}

	rec, err := h.trackingSvc.RecordQr(body)
	if err != nil {
		rejectIngestion(c, err)
		return
	}
	ok(c, http.StatusOK, UpdateQrResponse{Success: true, Data: rec})
}

// LastQr godoc
// @ID          lastQr
// @Summary     Query the latest cached QR record
// @Description Returns the most recently accepted record with dates rendered
// @Description for display (en-GB, UTC) and pushes a refresh signal to all
// @Description connected observers. 404 with code no_data while no record
// @Description has been ingested yet.
// @Tags        Tracking
// @Produce     json
// @Success     200  {object}  domain.MedicineRecord
// @Failure     404  {object}  handlers.ErrorResponse  "Empty cache"
// @Router      /last-qr [get]
func (h *Handlers) LastQr(c *gin.Context) {
	rec, err := h.trackingSvc.LastQr()
	if err != nil {
		if errors.Is(err, services.ErrNoData) {
			fail(c, http.StatusNotFound, ErrCodeNoData, "no QR data available")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, rec)
}

//
// Helpers
//

// locationsPayload extracts the raw locations value from either body shape:
// a JSON object with a "locations" key, or a form post with a "locations"
// field (the tracker app submits urlencoded forms).
func locationsPayload(c *gin.Context) (json.RawMessage, bool) {
	ct := c.ContentType()
	if strings.Contains(ct, "form") {
		v := c.PostForm("locations")
		if strings.TrimSpace(v) == "" {
			return nil, false
		}
		return json.RawMessage(v), true
	}

	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, false
	}
	if len(req.Locations) == 0 {
		return nil, false
	}
	return req.Locations, true
}

// rejectIngestion maps a validation error to the caller-visible rejection.
// All ingestion rejections are 400s; anything else would be a programming
// error surfaced as 500.
func rejectIngestion(c *gin.Context, err error) {
	var missing *validate.MissingFieldError
	var badDate *validate.MalformedDateError
	switch {
	case errors.Is(err, validate.ErrMalformedInput),
		errors.Is(err, validate.ErrEmptyBatch),
		errors.As(err, &missing),
		errors.As(err, &badDate):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
