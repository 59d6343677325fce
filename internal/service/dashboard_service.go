package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/screentime-api/internal/dto"
	"github.com/noah-isme/screentime-api/internal/models"
	"github.com/noah-isme/screentime-api/internal/scoring"
	"github.com/noah-isme/screentime-api/pkg/cache"
	appErrors "github.com/noah-isme/screentime-api/pkg/errors"
)

type standingsSource interface {
	ListStandings(ctx context.Context, classID string) ([]models.StudentStanding, error)
}

type violationCounter interface {
	CountViolationsSince(ctx context.Context, classID string, since models.Date) (int, error)
}

// DashboardService builds the teacher's class summary.
type DashboardService struct {
	classes    classLookup
	standings  standingsSource
	violations violationCounter
	cache      *CacheService
	ttl        time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewDashboardService constructs DashboardService.
func NewDashboardService(classes classLookup, standings standingsSource, violations violationCounter, cacheSvc *CacheService, ttl time.Duration, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		classes:    classes,
		standings:  standings,
		violations: violations,
		cache:      cacheSvc,
		ttl:        ttl,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ClassDashboard returns the summary of a class and whether it was served from cache.
func (s *DashboardService) ClassDashboard(ctx context.Context, classID string) (*dto.ClassDashboardResponse, bool, error) {
	var cached dto.ClassDashboardResponse
	if s.cache.Get(ctx, cache.DashboardKey(classID), &cached) {
		return &cached, true, nil
	}

	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrUnknownClass, "class not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	standings, err := s.standings.ListStandings(ctx, classID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load standings")
	}
	now := s.now()
	weekStart := startOfWeek(models.DateOf(now))
	violations, err := s.violations.CountViolationsSince(ctx, classID, weekStart)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count violations")
	}

	resp := &dto.ClassDashboardResponse{
		ClassID:            class.ID,
		ClassName:          class.Name,
		StudentCount:       len(standings),
		ViolationsThisWeek: violations,
		WeekStart:          weekStart,
		Students:           standings,
		GeneratedAt:        now,
	}
	if resp.Students == nil {
		resp.Students = []models.StudentStanding{}
	}
	var total float64
	for _, st := range standings {
		total += st.Points
		if scoring.LevelOf(st.Points).NeedsAttention {
			resp.NeedsAttention++
		}
	}
	if len(standings) > 0 {
		resp.AveragePoints = math.Round(total/float64(len(standings))*100) / 100
	}

	s.cache.Set(ctx, cache.DashboardKey(classID), resp, s.ttl)
	return resp, false, nil
}

// startOfWeek returns the Monday on or before d.
func startOfWeek(d models.Date) models.Date {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}
