package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/screentime-api/internal/dto"
	"github.com/noah-isme/screentime-api/internal/models"
	"github.com/noah-isme/screentime-api/pkg/jobs"
	appErrors "github.com/noah-isme/screentime-api/pkg/errors"
)

const usageJobType = "usage.evaluate"

type usageEvaluator interface {
	Evaluate(ctx context.Context, event models.UsageEvent) (*dto.EvaluationResponse, error)
}

// SweepConfig configures the batch worker pool.
type SweepConfig struct {
	Enabled    bool
	Workers    int
	BufferSize int
	Retries    int
	RetryDelay time.Duration
}

// SweepService evaluates batches of usage summaries on a background queue.
// Each student's events run as one job in date order. Lock conflicts and
// transient failures retry from the failed day; invalid events are dropped.
type SweepService struct {
	evaluator usageEvaluator
	queue     *jobs.Queue
	enabled   bool
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSweepService constructs SweepService. Start must be called before batches are accepted.
func NewSweepService(evaluator usageEvaluator, cfg SweepConfig, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *SweepService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SweepService{evaluator: evaluator, enabled: cfg.Enabled, metrics: metrics, validator: validate, logger: logger}
	s.queue = jobs.NewQueue("usage-sweep", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		OnResult:   s.record,
	})
	return s
}

// Start launches the workers when the sweep is enabled.
func (s *SweepService) Start(ctx context.Context) {
	if s.enabled {
		s.queue.Start(ctx)
	}
}

// Stop drains the workers.
func (s *SweepService) Stop() {
	s.queue.Stop()
}

// SubmitBatch validates every event up front and queues one job per student.
// Students whose job does not fit in the buffer have all their events
// reported as rejected.
func (s *SweepService) SubmitBatch(ctx context.Context, req dto.BatchUsageRequest) (*dto.BatchUsageResponse, error) {
	if !s.enabled {
		return nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "batch usage submission is disabled")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidUsageEvent.Code, appErrors.ErrInvalidUsageEvent.Status, "invalid usage batch")
	}

	events := make([]models.UsageEvent, 0, len(req.Events))
	for i, item := range req.Events {
		date, err := models.ParseDate(item.Date)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrInvalidUsageEvent, fmt.Sprintf("events[%d].date must be formatted as YYYY-MM-DD", i))
		}
		events = append(events, models.UsageEvent{
			StudentID:     item.StudentID,
			Date:          date,
			TotalMinutes:  *item.TotalMinutes,
			PerAppMinutes: models.AppMinutes(item.PerAppMinutes),
		})
	}

	resp := &dto.BatchUsageResponse{BatchID: uuid.NewString()}
	for _, chain := range chainsByStudent(events) {
		job := jobs.Job{ID: resp.BatchID + ":" + chain.studentID, Type: usageJobType, Payload: chain}
		if err := s.queue.TryEnqueue(job); err != nil {
			resp.Rejected += len(chain.events)
			s.logger.Warn("usage chain rejected", zap.String("batch_id", resp.BatchID), zap.String("student_id", chain.studentID), zap.Int("events", len(chain.events)), zap.Error(err))
			continue
		}
		resp.Accepted += len(chain.events)
	}
	if resp.Accepted == 0 {
		return nil, appErrors.Clone(appErrors.ErrQueueFull, "")
	}
	s.logger.Info("usage batch queued", zap.String("batch_id", resp.BatchID), zap.Int("accepted", resp.Accepted), zap.Int("rejected", resp.Rejected))
	return resp, nil
}

// usageChain is one student's share of a batch. next is the first event not
// yet evaluated; the job carries a pointer so it survives requeues.
type usageChain struct {
	studentID string
	events    []models.UsageEvent
	next      int
}

// chainsByStudent groups events by student in order of first appearance and
// sorts each group by date. Same-day duplicates keep their submission order.
func chainsByStudent(events []models.UsageEvent) []*usageChain {
	index := make(map[string]*usageChain)
	var chains []*usageChain
	for _, event := range events {
		chain, ok := index[event.StudentID]
		if !ok {
			chain = &usageChain{studentID: event.StudentID}
			index[event.StudentID] = chain
			chains = append(chains, chain)
		}
		chain.events = append(chain.events, event)
	}
	for _, chain := range chains {
		evs := chain.events
		sort.SliceStable(evs, func(i, j int) bool { return evs[i].Date.Before(evs[j].Date) })
	}
	return chains
}

func (s *SweepService) handle(ctx context.Context, job jobs.Job) error {
	chain, ok := job.Payload.(*usageChain)
	if !ok {
		return jobs.Permanent(fmt.Errorf("unexpected payload %T", job.Payload))
	}
	for chain.next < len(chain.events) {
		event := chain.events[chain.next]
		_, err := s.evaluator.Evaluate(ctx, event)
		switch {
		case err == nil:
			s.metrics.RecordSweepJob("succeeded")
		case appErrors.IsCode(err, appErrors.ErrInvalidUsageEvent.Code):
			s.logger.Warn("usage event dropped", zap.String("student_id", event.StudentID), zap.String("date", event.Date.String()), zap.Error(err))
			s.metrics.RecordSweepJob("rejected")
		case retryable(err):
			return err
		default:
			return jobs.Permanent(err)
		}
		chain.next++
	}
	return nil
}

// record reports the events a stopped chain never evaluated.
func (s *SweepService) record(job jobs.Job, err error) {
	if err == nil {
		return
	}
	status := "failed"
	if jobs.IsPermanent(err) {
		status = "rejected"
	}
	chain, ok := job.Payload.(*usageChain)
	if !ok {
		s.metrics.RecordSweepJob(status)
		return
	}
	remaining := len(chain.events) - chain.next
	for i := 0; i < remaining; i++ {
		s.metrics.RecordSweepJob(status)
	}
	if remaining > 0 {
		s.logger.Warn("usage chain stopped",
			zap.String("student_id", chain.studentID),
			zap.String("from_date", chain.events[chain.next].Date.String()),
			zap.Int("skipped", remaining),
			zap.Error(err))
	}
}

func retryable(err error) bool {
	appErr := appErrors.FromError(err)
	return appErr.Code == appErrors.ErrConcurrentUpdate.Code || appErr.Code == appErrors.ErrInternal.Code
}
