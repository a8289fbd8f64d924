// Package repo implements the persistence layer for the ledger submission
// journal. This file provides the repository functions for the
// LedgerSubmission model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a submission is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors the raw gorm error is propagated; the pipeline treats all
//     journal errors as non-fatal.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/arnavsinghal09/medtrack-server/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist. It aliases
// gorm.ErrRecordNotFound for convenience and consistency across layers.
var ErrNotFound = gorm.ErrRecordNotFound

// SubmissionJournal is the ledger.Journal implementation plus the read-back
// queries used by the HTTP layer.
type SubmissionJournal struct {
	DB *gorm.DB
}

// NewSubmissionJournal wraps a GORM handle.
func NewSubmissionJournal(db *gorm.DB) *SubmissionJournal {
	return &SubmissionJournal{DB: db}
}

// CreateSubmission inserts a pending journal row. The caller supplies the ID
// so the row can be updated once the submission reaches a terminal state.
func (j *SubmissionJournal) CreateSubmission(ctx context.Context, sub *domain.LedgerSubmission) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	return j.DB.WithContext(ctx).Create(sub).Error
}

// RecordOutcome marks the journal row id with the submission's terminal
// status, reference, and failure reason. Returns ErrNotFound when the row
// does not exist.
func (j *SubmissionJournal) RecordOutcome(ctx context.Context, id string, out domain.SubmissionOutcome) error {
	res := j.DB.WithContext(ctx).
		Model(&domain.LedgerSubmission{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       string(out.Status),
			"tx_reference": out.Reference,
			"reason":       out.Reason,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountSubmissions returns the total number of journal rows.
func (j *SubmissionJournal) CountSubmissions(ctx context.Context) (int64, error) {
	var total int64
	err := j.DB.WithContext(ctx).Model(&domain.LedgerSubmission{}).Count(&total).Error
	return total, err
}

// ListSubmissionsPage returns a page of journal rows, newest first.
func (j *SubmissionJournal) ListSubmissionsPage(ctx context.Context, offset, limit int) ([]domain.LedgerSubmission, error) {
	var items []domain.LedgerSubmission
	err := j.DB.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error
	return items, err
}

// SubmissionStats holds journal row counts by terminal status.
type SubmissionStats struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Confirmed int64 `json:"confirmed"`
	Failed    int64 `json:"failed"`
}

// Stats aggregates the journal by status in a single grouped query.
func (j *SubmissionJournal) Stats(ctx context.Context) (SubmissionStats, error) {
	var rows []struct {
		Status string
		N      int64
	}
	err := j.DB.WithContext(ctx).
		Model(&domain.LedgerSubmission{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return SubmissionStats{}, err
	}

	var s SubmissionStats
	for _, r := range rows {
		s.Total += r.N
		switch domain.SubmissionStatus(r.Status) {
		case domain.SubmissionPending:
			s.Pending = r.N
		case domain.SubmissionConfirmed:
			s.Confirmed = r.N
		case domain.SubmissionFailed:
			s.Failed = r.N
		}
	}
	return s, nil
}
