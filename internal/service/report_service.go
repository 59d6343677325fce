package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/screentime-api/internal/dto"
	"github.com/noah-isme/screentime-api/internal/scoring"
	"github.com/noah-isme/screentime-api/pkg/export"
	appErrors "github.com/noah-isme/screentime-api/pkg/errors"
)

type dashboardSource interface {
	ClassDashboard(ctx context.Context, classID string) (*dto.ClassDashboardResponse, bool, error)
}

// ReportService exports class standings as CSV or PDF.
type ReportService struct {
	dashboards dashboardSource
	exporters  map[dto.ReportFormat]export.Exporter
	enabled    bool
	logger     *zap.Logger
}

// NewReportService constructs ReportService with the CSV and PDF exporters.
func NewReportService(dashboards dashboardSource, enabled bool, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		dashboards: dashboards,
		exporters: map[dto.ReportFormat]export.Exporter{
			dto.ReportFormatCSV: export.NewCSVExporter(),
			dto.ReportFormatPDF: export.NewPDFExporter(),
		},
		enabled: enabled,
		logger:  logger,
	}
}

// ClassReport renders the standings of a class.
func (s *ReportService) ClassReport(ctx context.Context, classID string, format dto.ReportFormat) (*dto.ReportFile, error) {
	if !s.enabled {
		return nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "reports are disabled")
	}
	if format == "" {
		format = dto.ReportFormatCSV
	}
	exporter, ok := s.exporters[dto.ReportFormat(strings.ToLower(string(format)))]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	dashboard, _, err := s.dashboards.ClassDashboard(ctx, classID)
	if err != nil {
		return nil, err
	}

	content, err := exporter.Render(standingsTable(dashboard))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}
	s.logger.Info("class report rendered", zap.String("class_id", classID), zap.String("format", exporter.Extension()), zap.Int("bytes", len(content)))

	return &dto.ReportFile{
		Filename:    fmt.Sprintf("class-%s-%s.%s", classID, dashboard.GeneratedAt.Format("20060102"), exporter.Extension()),
		ContentType: exporter.ContentType(),
		Content:     content,
	}, nil
}

func standingsTable(d *dto.ClassDashboardResponse) export.Table {
	table := export.Table{
		Title: "Screen-time standings: " + d.ClassName,
		Subtitle: fmt.Sprintf("%d students - average %.2f points - %d violations since %s",
			d.StudentCount, d.AveragePoints, d.ViolationsThisWeek, d.WeekStart),
		Headers:     []string{"Student", "Points", "Level", "Streak", "Longest", "Last evaluated", "Attention"},
		GeneratedAt: d.GeneratedAt,
	}
	for _, st := range d.Students {
		level := scoring.LevelOf(st.Points)
		attention := ""
		if level.NeedsAttention {
			attention = "yes"
		}
		last := "-"
		if !st.LastEvaluatedDate.IsZero() {
			last = st.LastEvaluatedDate.String()
		}
		table.Rows = append(table.Rows, []string{
			st.FullName,
			strconv.FormatFloat(st.Points, 'f', 1, 64),
			strconv.Itoa(level.Level),
			strconv.Itoa(st.CurrentStreakDays),
			strconv.Itoa(st.LongestStreakDays),
			last,
			attention,
		})
	}
	return table
}
