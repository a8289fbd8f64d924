// Submission journal HTTP handlers.
//
// Read-only visibility into the ledger submission pipeline:
//   - GET /submissions        (paginated journal rows, newest first)
//   - GET /submissions/stats  (row counts by terminal status)
//
// The journal is observability, not part of the stream contract: a row
// records what the pipeline attempted and how it ended, and a failed row
// never implies anything about the cached/broadcast record.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arnavsinghal09/medtrack-server/internal/domain"
	"github.com/arnavsinghal09/medtrack-server/internal/utils"
)

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListSubmissionsResponse contains a page of journal rows and pagination
// metadata.
type ListSubmissionsResponse struct {
	Submissions []domain.LedgerSubmission `json:"submissions"`
	Pagination  Pagination                `json:"pagination"`
}

// clampPagination parses page/page_size query parameters, applies defaults
// and caps, and returns the validated pair.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// ListSubmissions godoc
// @ID          listSubmissions
// @Summary     List ledger submission attempts
// @Description Returns a paginated list of submission journal rows, newest first.
// @Tags        Submissions
// @Produce     json
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListSubmissionsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /submissions [get]
func (h *Handlers) ListSubmissions(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	total, err := h.journal.CountSubmissions(ctx)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	items := []domain.LedgerSubmission{}
	if total > 0 {
		offset := (page - 1) * pageSize
		items, err = h.journal.ListSubmissionsPage(ctx, offset, pageSize)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
			return
		}
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListSubmissionsResponse{
		Submissions: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// SubmissionStats godoc
// @ID          submissionStats
// @Summary     Summarize ledger submission outcomes
// @Description Returns journal row counts by status (pending/confirmed/failed).
// @Tags        Submissions
// @Produce     json
// @Success     200  {object}  repo.SubmissionStats
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /submissions/stats [get]
func (h *Handlers) SubmissionStats(c *gin.Context) {
	stats, err := h.journal.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, stats)
}
