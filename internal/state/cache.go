// Package state holds the process-wide latest-value cache: one slot per
// ingestion stream (location, QR record). The cache is the single source of
// truth for "current state" — it feeds both query responses and the replay
// sent to newly connected observers.
//
// Semantics are deliberately minimal: puts overwrite wholesale
// (last-writer-wins, no versioning, no compare-and-swap) and gets return the
// current value without side effects. There is no delete; a slot holds its
// value until overwritten or the process exits.
//
// The cache is an injected dependency, not package-level state, so tests
// construct a fresh one per case and the pipeline can be exercised against a
// mock-free store.
package state

import (
	"sync"

	"github.com/arnavsinghal09/medtrack-server/internal/domain"
)

// Cache is a two-slot latest-value store. The zero value is ready to use;
// both slots start empty. Safe for concurrent use: slots are guarded by a
// single RWMutex so reads never block reads, and a put is an atomic pointer
// swap under the write lock.
type Cache struct {
	mu       sync.RWMutex
	location *domain.LocationSample
	qr       *domain.MedicineRecord
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{}
}

// SetLocation overwrites the location slot with the given sample.
func (c *Cache) SetLocation(s *domain.LocationSample) {
	c.mu.Lock()
	c.location = s
	c.mu.Unlock()
}

// Location returns the current location slot. ok is false while the slot is
// empty; an empty slot is a normal state, not an error.
func (c *Cache) Location() (s *domain.LocationSample, ok bool) {
	c.mu.RLock()
	s = c.location
	c.mu.RUnlock()
	return s, s != nil
}

// SetQr overwrites the QR record slot with the given record.
func (c *Cache) SetQr(r *domain.MedicineRecord) {
	c.mu.Lock()
	c.qr = r
	c.mu.Unlock()
}

// Qr returns the current QR record slot. ok is false while the slot is empty.
func (c *Cache) Qr() (r *domain.MedicineRecord, ok bool) {
	c.mu.RLock()
	r = c.qr
	c.mu.RUnlock()
	return r, r != nil
}
