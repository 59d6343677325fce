package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/screentime-api/internal/dto"
	"github.com/noah-isme/screentime-api/internal/models"
	"github.com/noah-isme/screentime-api/pkg/cache"
	appErrors "github.com/noah-isme/screentime-api/pkg/errors"
)

func newDashboardFixture() (*DashboardService, *fakeLedgerStore, *memoryCache) {
	classes := newFakeClassRepo(models.Class{ID: "c1", Name: "7A", DailyLimitMinutes: 120})
	ledgers := newFakeLedgerStore()
	ledgers.standings = []models.StudentStanding{
		{StudentID: "s1", FullName: "Ana", Points: 14.5, CurrentStreakDays: 9, LongestStreakDays: 9, LastEvaluatedDate: models.MustDate("2024-03-06")},
		{StudentID: "s2", FullName: "Budi", Points: 8, LongestStreakDays: 2, LastEvaluatedDate: models.MustDate("2024-03-05")},
		{StudentID: "s3", FullName: "Citra", Points: 10},
	}
	ledgers.violation = 4
	mem := newMemoryCache()
	cacheSvc := NewCacheService(mem, nil, time.Minute, zap.NewNop(), true)
	svc := NewDashboardService(classes, ledgers, ledgers, cacheSvc, time.Minute, zap.NewNop())
	svc.now = fixedClock("2024-03-07T09:30:00Z")
	return svc, ledgers, mem
}

func TestDashboardServiceClassDashboard(t *testing.T) {
	svc, _, mem := newDashboardFixture()
	ctx := context.Background()

	resp, hit, err := svc.ClassDashboard(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "7A", resp.ClassName)
	assert.Equal(t, 3, resp.StudentCount)
	assert.Equal(t, 10.83, resp.AveragePoints)
	assert.Equal(t, 1, resp.NeedsAttention)
	assert.Equal(t, 4, resp.ViolationsThisWeek)
	assert.Equal(t, models.MustDate("2024-03-04"), resp.WeekStart)
	assert.True(t, mem.has(cache.DashboardKey("c1")))

	cached, hit, err := svc.ClassDashboard(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, resp.AveragePoints, cached.AveragePoints)
	assert.Len(t, cached.Students, 3)
}

func TestDashboardServiceEmptyAndUnknownClass(t *testing.T) {
	svc, ledgers, _ := newDashboardFixture()
	ledgers.standings = nil
	ledgers.violation = 0

	resp, _, err := svc.ClassDashboard(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, resp.StudentCount)
	assert.Equal(t, 0.0, resp.AveragePoints)
	assert.NotNil(t, resp.Students)

	_, _, err = svc.ClassDashboard(context.Background(), "c9")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrUnknownClass.Code))
}

func TestStartOfWeek(t *testing.T) {
	cases := map[string]string{
		"2024-03-04": "2024-03-04",
		"2024-03-07": "2024-03-04",
		"2024-03-10": "2024-03-04",
		"2024-03-11": "2024-03-11",
	}
	for day, want := range cases {
		assert.Equal(t, models.MustDate(want), startOfWeek(models.MustDate(day)), day)
	}
}

type stubDashboards struct {
	resp *dto.ClassDashboardResponse
	err  error
}

func (s stubDashboards) ClassDashboard(context.Context, string) (*dto.ClassDashboardResponse, bool, error) {
	return s.resp, false, s.err
}
