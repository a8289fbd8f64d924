// Package ledger implements the provenance side effects of QR ingestion:
// the narrow client contract against the external transaction ledger and
// the asynchronous submission pipeline that drives it.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// RecordArgs are the exact values written to the ledger for one medicine
// record. Dates are integer epoch seconds (truncated, never rounded).
type RecordArgs struct {
	BatchID         string
	Name            string
	Manufacturer    string
	ManufacturingAt int64
	ExpiryAt        int64
}

// Pending is the handle returned by a ledger write before inclusion is
// confirmed. Ref is the ledger-assigned transaction identifier.
type Pending struct {
	Ref string

	// tx carries the implementation's own state between RegisterRecord and
	// AwaitConfirmation (the raw transaction for the Ethereum client).
	tx any
}

// Client is the contract against the external ledger. Both operations may
// fail with network or consensus errors; neither is retried by this package.
//
// Implementations must be safe for concurrent use: multiple submissions can
// be in flight at once and confirmations may arrive out of submission order.
type Client interface {
	// RegisterRecord writes the record to the ledger and returns a handle
	// for the not-yet-confirmed transaction.
	RegisterRecord(ctx context.Context, args RecordArgs) (*Pending, error)

	// AwaitConfirmation blocks until the ledger durably includes the
	// transaction (or ctx expires) and returns the confirmed reference.
	AwaitConfirmation(ctx context.Context, p *Pending) (string, error)
}

// NopClient is a ledger client for development and tests: it "confirms"
// every record immediately with a deterministic pseudo-reference derived
// from the record contents. Used when the ledger is disabled by config so
// the rest of the pipeline stays exercised.
type NopClient struct{}

// RegisterRecord returns a deterministic pseudo-handle without any I/O.
func (NopClient) RegisterRecord(_ context.Context, args RecordArgs) (*Pending, error) {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d|%d",
		args.BatchID, args.Name, args.Manufacturer, args.ManufacturingAt, args.ExpiryAt)))
	return &Pending{Ref: "0x" + hex.EncodeToString(sum[:])}, nil
}

// AwaitConfirmation confirms immediately.
func (NopClient) AwaitConfirmation(_ context.Context, p *Pending) (string, error) {
	return p.Ref, nil
}
