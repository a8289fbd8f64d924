// Package domain defines the data model for the tracking backend: GPS
// location samples, scanned medicine (QR) records, and the outcome of
// ledger submissions. LocationSample and MedicineRecord are the in-memory
// stream values held by the state cache and broadcast to observers;
// LedgerSubmission is the persisted journal row mapped with GORM.
package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// LocationSample is a single GPS fix reported by the tracker.
//
// Latitude and longitude are mandatory; accuracy, speed, and timestamp are
// optional telemetry carried through unmodified. Timestamp stays raw JSON
// because trackers report it either as an epoch-millisecond number or as a
// formatted string, and the cache/broadcast path must not reinterpret it.
type LocationSample struct {
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	Accuracy  *float64        `json:"accuracy,omitempty"`
	Speed     *float64        `json:"speed,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// JourneyStep is one entry of a medicine record's chronological journey.
// Fields stay raw JSON: steps are forwarded opaquely, except that a parseable
// timestamp is reformatted for display on the read-back path.
type JourneyStep struct {
	StepID      json.RawMessage `json:"stepId,omitempty"`
	Location    json.RawMessage `json:"location,omitempty"`
	Description json.RawMessage `json:"description,omitempty"`
	Timestamp   json.RawMessage `json:"timestamp,omitempty"`
}

// MedicineRecord is a scanned QR payload describing a medicine batch.
//
// The five identity/date fields are required for acceptance and for ledger
// submission. Everything else a scanner attaches (supplier, quantity,
// pricing, ...) lands in Extra and survives caching and broadcasting
// verbatim without being interpreted.
type MedicineRecord struct {
	BatchID           string        `json:"batchId"`
	Name              string        `json:"name"`
	Manufacturer      string        `json:"manufacturer"`
	ManufacturingDate string        `json:"manufacturingDate"`
	ExpiryDate        string        `json:"expiryDate"`
	JourneySteps      []JourneyStep `json:"journeySteps,omitempty"`

	// Extra holds unrecognized top-level fields, keyed by their JSON name.
	Extra map[string]json.RawMessage `json:"-"`
}

// knownRecordKeys are the top-level JSON keys mapped to typed fields; all
// other keys round-trip through Extra.
var knownRecordKeys = map[string]struct{}{
	"batchId":           {},
	"name":              {},
	"manufacturer":      {},
	"manufacturingDate": {},
	"expiryDate":        {},
	"journeySteps":      {},
}

// recordAlias mirrors MedicineRecord without custom JSON methods to avoid
// recursion during (un)marshalling.
type recordAlias struct {
	BatchID           string        `json:"batchId"`
	Name              string        `json:"name"`
	Manufacturer      string        `json:"manufacturer"`
	ManufacturingDate string        `json:"manufacturingDate"`
	ExpiryDate        string        `json:"expiryDate"`
	JourneySteps      []JourneyStep `json:"journeySteps,omitempty"`
}

// UnmarshalJSON decodes the typed fields and collects every unrecognized
// top-level key into Extra. Date fields sent as JSON numbers (epoch
// milliseconds) are coerced to their decimal string form so the validator
// can treat all dates uniformly.
func (m *MedicineRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	coerceDate(raw, "manufacturingDate")
	coerceDate(raw, "expiryDate")

	typed, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	var a recordAlias
	if err := json.Unmarshal(typed, &a); err != nil {
		return err
	}
	*m = MedicineRecord{
		BatchID:           a.BatchID,
		Name:              a.Name,
		Manufacturer:      a.Manufacturer,
		ManufacturingDate: a.ManufacturingDate,
		ExpiryDate:        a.ExpiryDate,
		JourneySteps:      a.JourneySteps,
	}

	for k, v := range raw {
		if _, ok := knownRecordKeys[k]; ok {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]json.RawMessage)
		}
		m.Extra[k] = v
	}
	return nil
}

// MarshalJSON re-merges Extra with the typed fields so cached and broadcast
// records look exactly like the ingested payload (plus normalization).
func (m MedicineRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.Extra)+6)
	for k, v := range m.Extra {
		out[k] = v
	}

	typed, err := json.Marshal(recordAlias{
		BatchID:           m.BatchID,
		Name:              m.Name,
		Manufacturer:      m.Manufacturer,
		ManufacturingDate: m.ManufacturingDate,
		ExpiryDate:        m.ExpiryDate,
		JourneySteps:      m.JourneySteps,
	})
	if err != nil {
		return nil, err
	}
	var typedMap map[string]json.RawMessage
	if err := json.Unmarshal(typed, &typedMap); err != nil {
		return nil, err
	}
	for k, v := range typedMap {
		out[k] = v
	}
	return json.Marshal(out)
}

// coerceDate rewrites a JSON-number date value in raw to a JSON string of
// the same digits. Quoted values and absent keys are left untouched.
func coerceDate(raw map[string]json.RawMessage, key string) {
	v, ok := raw[key]
	if !ok || len(v) == 0 || v[0] == '"' {
		return
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return
	}
	raw[key] = json.RawMessage(strconv.Quote(n.String()))
}

// SubmissionStatus is the lifecycle state of one ledger submission attempt.
type SubmissionStatus string

const (
	// SubmissionPending means the record has been handed to the ledger
	// client but inclusion is not yet confirmed.
	SubmissionPending SubmissionStatus = "pending"
	// SubmissionConfirmed means the ledger durably included the record.
	SubmissionConfirmed SubmissionStatus = "confirmed"
	// SubmissionFailed means validation, the write, or the confirmation
	// wait failed. Failures are terminal per attempt; there is no retry.
	SubmissionFailed SubmissionStatus = "failed"
)

// SubmissionOutcome is the result of a single pipeline run. It is surfaced
// via logs, metrics, the journal, and the pipeline's outcome hook; it is
// never returned to the HTTP caller and never invalidates the cached record.
type SubmissionOutcome struct {
	BatchID   string           `json:"batch_id"`
	Status    SubmissionStatus `json:"status"`
	Reference string           `json:"reference,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

// LedgerSubmission is the persisted journal row for one submission attempt.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - BatchID/Name/Manufacturer: identity fields as sent to the ledger.
//   - ManufacturingAt/ExpiryAt: epoch-second timestamps passed to the write.
//   - Status: pending, then confirmed or failed.
//   - TxReference: ledger-assigned transaction identifier once confirmed.
//   - Reason: failure detail when Status is failed.
type LedgerSubmission struct {
	ID              string    `json:"id"           gorm:"type:char(36);primaryKey"`
	BatchID         string    `json:"batch_id"     gorm:"type:varchar(128);not null;index:idx_submissions_batch"`
	Name            string    `json:"name"         gorm:"type:varchar(255);not null"`
	Manufacturer    string    `json:"manufacturer" gorm:"type:varchar(255);not null"`
	ManufacturingAt int64     `json:"manufacturing_at" gorm:"not null"`
	ExpiryAt        int64     `json:"expiry_at"    gorm:"not null"`
	Status          string    `json:"status"       gorm:"type:varchar(16);not null;index;check:status IN ('pending','confirmed','failed')"`
	TxReference     string    `json:"tx_reference,omitempty" gorm:"type:varchar(128)"`
	Reason          string    `json:"reason,omitempty"       gorm:"type:text"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for LedgerSubmission.
func (LedgerSubmission) TableName() string { return "ledger_submissions" }
