package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/screentime-api/internal/dto"
	"github.com/noah-isme/screentime-api/internal/models"
	"github.com/noah-isme/screentime-api/internal/repository"
	appErrors "github.com/noah-isme/screentime-api/pkg/errors"
)

type recordingEvaluator struct {
	mu      sync.Mutex
	calls   map[string]int
	events  []models.UsageEvent
	failFor map[string][]error
	started chan struct{}
	release chan struct{}
}

func newRecordingEvaluator() *recordingEvaluator {
	return &recordingEvaluator{calls: map[string]int{}, failFor: map[string][]error{}}
}

func (r *recordingEvaluator) Evaluate(ctx context.Context, event models.UsageEvent) (*dto.EvaluationResponse, error) {
	if r.started != nil {
		select {
		case r.started <- struct{}{}:
		default:
		}
	}
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[event.StudentID]++
	r.events = append(r.events, event)
	if queued := r.failFor[event.StudentID]; len(queued) > 0 {
		r.failFor[event.StudentID] = queued[1:]
		return nil, queued[0]
	}
	return &dto.EvaluationResponse{StudentID: event.StudentID}, nil
}

func (r *recordingEvaluator) callsFor(studentID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[studentID]
}

func batchItem(studentID, date string, total int) dto.BatchUsageItem {
	return dto.BatchUsageItem{StudentID: studentID, SubmitUsageRequest: usage(date, total, nil)}
}

func TestSweepServiceEvaluatesBatch(t *testing.T) {
	eval := newRecordingEvaluator()
	svc := NewSweepService(eval, SweepConfig{Enabled: true, Workers: 2, BufferSize: 8, Retries: 1, RetryDelay: 10 * time.Millisecond}, NewMetricsService(), nil, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	resp, err := svc.SubmitBatch(context.Background(), dto.BatchUsageRequest{Events: []dto.BatchUsageItem{
		batchItem("s1", "2024-03-06", 60),
		batchItem("s2", "2024-03-06", 200),
	}})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.BatchID)
	assert.Equal(t, 2, resp.Accepted)
	assert.Equal(t, 0, resp.Rejected)

	require.Eventually(t, func() bool {
		return eval.callsFor("s1") == 1 && eval.callsFor("s2") == 1
	}, time.Second, 5*time.Millisecond)

	eval.mu.Lock()
	defer eval.mu.Unlock()
	for _, event := range eval.events {
		assert.Equal(t, models.MustDate("2024-03-06"), event.Date)
	}
}

func TestSweepServiceRetriesConflicts(t *testing.T) {
	eval := newRecordingEvaluator()
	eval.failFor["s1"] = []error{appErrors.Clone(appErrors.ErrConcurrentUpdate, "")}
	eval.failFor["s2"] = []error{appErrors.Clone(appErrors.ErrUnknownStudent, "")}

	svc := NewSweepService(eval, SweepConfig{Enabled: true, Workers: 1, BufferSize: 4, Retries: 2, RetryDelay: 5 * time.Millisecond}, nil, nil, zap.NewNop())
	svc.Start(context.Background())

	resp, err := svc.SubmitBatch(context.Background(), dto.BatchUsageRequest{Events: []dto.BatchUsageItem{
		batchItem("s1", "2024-03-06", 60),
		batchItem("s2", "2024-03-06", 60),
		batchItem("s2", "2024-03-07", 60),
	}})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Accepted)

	require.Eventually(t, func() bool { return eval.callsFor("s1") == 2 }, time.Second, 5*time.Millisecond)
	svc.Stop()
	// an unknown student stops the rest of its chain
	assert.Equal(t, 1, eval.callsFor("s2"))
}

func TestSweepServiceEvaluatesStudentInDateOrder(t *testing.T) {
	eval := newRecordingEvaluator()
	eval.failFor["s1"] = []error{appErrors.Clone(appErrors.ErrConcurrentUpdate, "")}

	svc := NewSweepService(eval, SweepConfig{Enabled: true, Workers: 2, BufferSize: 4, Retries: 2, RetryDelay: 5 * time.Millisecond}, nil, nil, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	resp, err := svc.SubmitBatch(context.Background(), dto.BatchUsageRequest{Events: []dto.BatchUsageItem{
		batchItem("s1", "2024-03-03", 60),
		batchItem("s2", "2024-03-01", 60),
		batchItem("s1", "2024-03-01", 60),
		batchItem("s1", "2024-03-02", 60),
	}})
	require.NoError(t, err)
	assert.Equal(t, 4, resp.Accepted)

	require.Eventually(t, func() bool {
		return eval.callsFor("s1") == 4 && eval.callsFor("s2") == 1
	}, time.Second, 5*time.Millisecond)

	eval.mu.Lock()
	defer eval.mu.Unlock()
	var dates []string
	for _, event := range eval.events {
		if event.StudentID == "s1" {
			dates = append(dates, event.Date.String())
		}
	}
	assert.Equal(t, []string{"2024-03-01", "2024-03-01", "2024-03-02", "2024-03-03"}, dates)
}

func TestSweepServiceDropsInvalidDayAndContinues(t *testing.T) {
	eval := newRecordingEvaluator()
	eval.failFor["s1"] = []error{appErrors.Clone(appErrors.ErrInvalidUsageEvent, "")}

	svc := NewSweepService(eval, SweepConfig{Enabled: true, Workers: 1, BufferSize: 2}, nil, nil, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	_, err := svc.SubmitBatch(context.Background(), dto.BatchUsageRequest{Events: []dto.BatchUsageItem{
		batchItem("s1", "2024-03-01", 60),
		batchItem("s1", "2024-03-02", 60),
	}})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return eval.callsFor("s1") == 2 }, time.Second, 5*time.Millisecond)
}

func TestSweepServiceKeepsStreakAcrossRetries(t *testing.T) {
	f := newScoringFixture(t)
	f.svc.now = fixedClock("2024-03-08T12:00:00Z")
	f.ledgers.failNext = []error{repository.ErrLedgerLocked}

	svc := NewSweepService(f.svc, SweepConfig{Enabled: true, Workers: 1, BufferSize: 4, Retries: 3, RetryDelay: 5 * time.Millisecond}, f.metrics, nil, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()

	var items []dto.BatchUsageItem
	for day := 7; day >= 1; day-- {
		items = append(items, batchItem("s1", models.NewDate(2024, time.March, day).String(), 60))
	}
	resp, err := svc.SubmitBatch(context.Background(), dto.BatchUsageRequest{Events: items})
	require.NoError(t, err)
	assert.Equal(t, 7, resp.Accepted)

	require.Eventually(t, func() bool {
		ledger, err := f.ledgers.FindByStudent(context.Background(), "s1")
		return err == nil && ledger.LastEvaluatedDate.Equal(models.MustDate("2024-03-07"))
	}, time.Second, 5*time.Millisecond)

	ledger, err := f.ledgers.FindByStudent(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 7, ledger.CurrentStreakDays)
	assert.Equal(t, 7, ledger.LongestStreakDays)
	assert.InDelta(t, 13.5, ledger.Points, 1e-9)

	milestones, err := f.svc.GetMilestones(context.Background(), "s1")
	require.NoError(t, err)
	unlocked := map[models.MilestoneID]bool{}
	for _, m := range milestones.Milestones {
		unlocked[m.ID] = m.Unlocked
	}
	assert.True(t, unlocked[models.MilestoneWeekStreak])
}

func TestSweepServiceBackpressure(t *testing.T) {
	eval := newRecordingEvaluator()
	eval.started = make(chan struct{}, 1)
	eval.release = make(chan struct{})

	svc := NewSweepService(eval, SweepConfig{Enabled: true, Workers: 1, BufferSize: 1}, nil, nil, zap.NewNop())
	svc.Start(context.Background())
	defer svc.Stop()
	ctx := context.Background()

	_, err := svc.SubmitBatch(ctx, dto.BatchUsageRequest{Events: []dto.BatchUsageItem{batchItem("s1", "2024-03-06", 10)}})
	require.NoError(t, err)
	<-eval.started

	resp, err := svc.SubmitBatch(ctx, dto.BatchUsageRequest{Events: []dto.BatchUsageItem{
		batchItem("s2", "2024-03-06", 10),
		batchItem("s3", "2024-03-06", 10),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Accepted)
	assert.Equal(t, 1, resp.Rejected)

	_, err = svc.SubmitBatch(ctx, dto.BatchUsageRequest{Events: []dto.BatchUsageItem{batchItem("s4", "2024-03-06", 10)}})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrQueueFull.Code))

	close(eval.release)
}

func TestSweepServiceRejectsInvalidBatches(t *testing.T) {
	ctx := context.Background()

	disabled := NewSweepService(newRecordingEvaluator(), SweepConfig{}, nil, nil, nil)
	_, err := disabled.SubmitBatch(ctx, dto.BatchUsageRequest{Events: []dto.BatchUsageItem{batchItem("s1", "2024-03-06", 10)}})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrFeatureDisabled.Code))

	svc := NewSweepService(newRecordingEvaluator(), SweepConfig{Enabled: true}, nil, nil, nil)
	svc.Start(ctx)
	defer svc.Stop()

	_, err = svc.SubmitBatch(ctx, dto.BatchUsageRequest{})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInvalidUsageEvent.Code))

	_, err = svc.SubmitBatch(ctx, dto.BatchUsageRequest{Events: []dto.BatchUsageItem{batchItem("", "2024-03-06", 10)}})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInvalidUsageEvent.Code))

	_, err = svc.SubmitBatch(ctx, dto.BatchUsageRequest{Events: []dto.BatchUsageItem{batchItem("s1", "2024-13-01", 10)}})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInvalidUsageEvent.Code))
}
