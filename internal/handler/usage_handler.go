package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/screentime-api/internal/dto"
	"github.com/noah-isme/screentime-api/internal/middleware"
	"github.com/noah-isme/screentime-api/internal/models"
	appErrors "github.com/noah-isme/screentime-api/pkg/errors"
	"github.com/noah-isme/screentime-api/pkg/response"
)

type scoringService interface {
	SubmitUsage(ctx context.Context, studentID string, req dto.SubmitUsageRequest) (*dto.EvaluationResponse, error)
	GetLedger(ctx context.Context, studentID string) (*dto.LedgerResponse, bool, error)
	GetMilestones(ctx context.Context, studentID string) (*dto.MilestonesResponse, error)
	ListEntries(ctx context.Context, studentID string, filter models.LedgerFilter) ([]models.LedgerEntry, error)
}

type batchSubmitter interface {
	SubmitBatch(ctx context.Context, req dto.BatchUsageRequest) (*dto.BatchUsageResponse, error)
}

// UsageHandler exposes usage ingest and the score read models.
type UsageHandler struct {
	scoring scoringService
	sweep   batchSubmitter
}

// NewUsageHandler constructs UsageHandler.
func NewUsageHandler(scoring scoringService, sweep batchSubmitter) *UsageHandler {
	return &UsageHandler{scoring: scoring, sweep: sweep}
}

// Submit godoc
// @Summary Submit daily usage
// @Description Evaluates one day of usage against the student's class policy and updates the ledger.
// @Description Re-submitting a date replaces it; the ledger only changes when the verdict changes.
// @Tags Usage
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.SubmitUsageRequest true "Usage summary"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students/{id}/usage [post]
func (h *UsageHandler) Submit(c *gin.Context) {
	var req dto.SubmitUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidUsageEvent.Code, appErrors.ErrInvalidUsageEvent.Status, "invalid usage payload"))
		return
	}
	result, err := h.scoring.SubmitUsage(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SubmitBatch godoc
// @Summary Submit usage for many students
// @Description Events are evaluated asynchronously. Events beyond the queue capacity are counted as rejected.
// @Tags Usage
// @Accept json
// @Produce json
// @Param payload body dto.BatchUsageRequest true "Usage batch"
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /usage/batch [post]
func (h *UsageHandler) SubmitBatch(c *gin.Context) {
	if h.sweep == nil {
		response.Error(c, appErrors.ErrFeatureDisabled)
		return
	}
	var req dto.BatchUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidUsageEvent.Code, appErrors.ErrInvalidUsageEvent.Status, "invalid usage batch"))
		return
	}
	ack, err := h.sweep.SubmitBatch(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, ack)
}

// Ledger godoc
// @Summary Get score ledger
// @Tags Scores
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/ledger [get]
func (h *UsageHandler) Ledger(c *gin.Context) {
	ledger, cacheHit, err := h.scoring.GetLedger(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, ledger, nil, middleware.ExtractMeta(c))
}

// Milestones godoc
// @Summary Get milestones and level
// @Tags Scores
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/milestones [get]
func (h *UsageHandler) Milestones(c *gin.Context) {
	milestones, err := h.scoring.GetMilestones(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, milestones, nil)
}

// Entries godoc
// @Summary Ledger history
// @Description Per-date evaluations, newest first.
// @Tags Scores
// @Produce json
// @Param id path string true "Student ID"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param limit query int false "Maximum entries (default 31, max 366)"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/ledger/entries [get]
func (h *UsageHandler) Entries(c *gin.Context) {
	var filter models.LedgerFilter
	var err error
	if filter.From, err = dateQuery(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.To, err = dateQuery(c, "to"); err != nil {
		response.Error(c, err)
		return
	}
	if raw := c.Query("limit"); raw != "" {
		limit, convErr := strconv.Atoi(raw)
		if convErr != nil || limit < 1 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}
	entries, err := h.scoring.ListEntries(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
