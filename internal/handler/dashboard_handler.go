package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/screentime-api/internal/dto"
	"github.com/noah-isme/screentime-api/internal/middleware"
	appErrors "github.com/noah-isme/screentime-api/pkg/errors"
	"github.com/noah-isme/screentime-api/pkg/response"
)

type dashboardService interface {
	ClassDashboard(ctx context.Context, classID string) (*dto.ClassDashboardResponse, bool, error)
}

// DashboardHandler wires the class dashboard to HTTP.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Class godoc
// @Summary Class compliance dashboard
// @Tags Dashboard
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/dashboard [get]
func (h *DashboardHandler) Class(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	summary, cacheHit, err := h.service.ClassDashboard(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, summary, nil, meta)
}
