package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/screentime-api/internal/dto"
	"github.com/noah-isme/screentime-api/pkg/response"
)

type reportService interface {
	ClassReport(ctx context.Context, classID string, format dto.ReportFormat) (*dto.ReportFile, error)
}

// ReportHandler streams class reports as file downloads.
type ReportHandler struct {
	reports reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(reports reportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// ClassReport godoc
// @Summary Class standings report
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Class ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /classes/{id}/report [get]
func (h *ReportHandler) ClassReport(c *gin.Context) {
	file, err := h.reports.ClassReport(c.Request.Context(), c.Param("id"), dto.ReportFormat(c.DefaultQuery("format", string(dto.ReportFormatCSV))))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Content)
}
