package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/screentime-api/internal/dto"
	"github.com/noah-isme/screentime-api/internal/models"
	"github.com/noah-isme/screentime-api/internal/repository"
	"github.com/noah-isme/screentime-api/internal/scoring"
	"github.com/noah-isme/screentime-api/pkg/cache"
	appErrors "github.com/noah-isme/screentime-api/pkg/errors"
)

type studentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type policySource interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	ListAppRules(ctx context.Context, classID string) ([]models.AppRule, error)
}

type ledgerStore interface {
	FindByStudent(ctx context.Context, studentID string) (*models.ScoreLedger, error)
	Apply(ctx context.Context, event models.UsageEvent, fn repository.ApplyFunc) (scoring.Result, error)
	ListEntries(ctx context.Context, studentID string, filter models.LedgerFilter) ([]models.LedgerEntry, error)
}

// ScoringConfig carries the engine settings of ScoringService.
type ScoringConfig struct {
	Rules                 scoring.Rules
	UsageToleranceMinutes int
	LedgerCacheTTL        time.Duration
}

// ScoringService runs usage through ingest, policy resolution, evaluation and
// the ledger, and serves the resulting read models.
type ScoringService struct {
	students  studentLookup
	classes   policySource
	ledgers   ledgerStore
	locks     *scoring.StudentLocks
	cfg       ScoringConfig
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewScoringService constructs ScoringService.
func NewScoringService(students studentLookup, classes policySource, ledgers ledgerStore, cfg ScoringConfig, cacheSvc *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ScoringService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Rules = cfg.Rules.WithDefaults()
	if cfg.UsageToleranceMinutes < 0 {
		cfg.UsageToleranceMinutes = scoring.DefaultUsageToleranceMinutes
	}
	return &ScoringService{
		students:  students,
		classes:   classes,
		ledgers:   ledgers,
		locks:     scoring.NewStudentLocks(),
		cfg:       cfg,
		cache:     cacheSvc,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SubmitUsage evaluates one day of usage for a student.
func (s *ScoringService) SubmitUsage(ctx context.Context, studentID string, req dto.SubmitUsageRequest) (*dto.EvaluationResponse, error) {
	event, err := s.eventFromRequest(studentID, req)
	if err != nil {
		return nil, err
	}
	return s.Evaluate(ctx, event)
}

// Evaluate validates, evaluates and applies a usage event. Re-submitting a date
// replaces its usage and re-evaluates it; the ledger changes only when the
// verdict for that date changes.
func (s *ScoringService) Evaluate(ctx context.Context, event models.UsageEvent) (*dto.EvaluationResponse, error) {
	event, err := scoring.NormalizeUsage(event, s.cfg.UsageToleranceMinutes)
	if err != nil {
		return nil, err
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = s.now()
	}

	student, err := s.student(ctx, event.StudentID)
	if err != nil {
		return nil, err
	}
	if student.ClassID == nil {
		return nil, appErrors.Clone(appErrors.ErrUnknownClass, "student is not assigned to a class")
	}
	policy, err := s.policy(ctx, *student.ClassID)
	if err != nil {
		return nil, err
	}
	snapshot, err := scoring.Resolve(policy, event.Date)
	if err != nil {
		return nil, err
	}
	verdict := scoring.Evaluate(event, snapshot)

	result, err := s.apply(ctx, event, verdict, *student.ClassID)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordVerdict(verdict)
	s.metrics.RecordLedgerOutcome(string(result.Outcome))
	s.logger.Debug("usage evaluated",
		zap.String("student_id", student.ID),
		zap.String("date", event.Date.String()),
		zap.String("verdict", string(verdict.Kind)),
		zap.String("reason", string(verdict.Reason)),
		zap.String("outcome", string(result.Outcome)),
		zap.Float64("points", result.Ledger.Points),
	)

	return &dto.EvaluationResponse{
		StudentID:  student.ID,
		Date:       event.Date,
		Verdict:    verdict,
		Outcome:    string(result.Outcome),
		Ledger:     result.Ledger,
		Milestones: scoring.Milestones(&result.Ledger),
		Level:      scoring.LevelOf(result.Ledger.Points),
		Policy:     policyResponse(policy, snapshot),
	}, nil
}

// GetLedger returns a student's ledger, reporting whether it came from cache.
// A miss is filled under the student's lock so it cannot overwrite the
// eviction of a concurrent apply with a stale read.
func (s *ScoringService) GetLedger(ctx context.Context, studentID string) (*dto.LedgerResponse, bool, error) {
	var cached dto.LedgerResponse
	if s.cache.Get(ctx, cache.LedgerKey(studentID), &cached) {
		return &cached, true, nil
	}

	unlock := s.locks.Lock(studentID)
	defer unlock()
	ledger, err := s.ledgers.FindByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrUnknownStudent, "student not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ledger")
	}
	resp := &dto.LedgerResponse{ScoreLedger: *ledger, Level: scoring.LevelOf(ledger.Points)}
	s.cache.Set(ctx, cache.LedgerKey(studentID), resp, s.cfg.LedgerCacheTTL)
	return resp, false, nil
}

// GetMilestones derives a student's badges. A known student without a ledger
// has every badge locked.
func (s *ScoringService) GetMilestones(ctx context.Context, studentID string) (*dto.MilestonesResponse, error) {
	resp, _, err := s.GetLedger(ctx, studentID)
	if err == nil {
		return &dto.MilestonesResponse{
			StudentID:  studentID,
			Milestones: scoring.Milestones(&resp.ScoreLedger),
			Level:      resp.Level,
		}, nil
	}
	if !appErrors.IsCode(err, appErrors.ErrUnknownStudent.Code) {
		return nil, err
	}
	if _, err := s.student(ctx, studentID); err != nil {
		return nil, err
	}
	return &dto.MilestonesResponse{
		StudentID:  studentID,
		Milestones: scoring.Milestones(nil),
		Level:      scoring.LevelOf(0),
	}, nil
}

// GetClassPolicy resolves a class policy for date, today when date is zero.
func (s *ScoringService) GetClassPolicy(ctx context.Context, classID string, date models.Date) (*dto.ClassPolicyResponse, error) {
	if date.IsZero() {
		date = models.DateOf(s.now())
	}
	policy, err := s.policy(ctx, classID)
	if err != nil {
		return nil, err
	}
	snapshot, err := scoring.Resolve(policy, date)
	if err != nil {
		return nil, err
	}
	resp := policyResponse(policy, snapshot)
	return &resp, nil
}

// ListEntries returns the per-date ledger history of a student.
func (s *ScoringService) ListEntries(ctx context.Context, studentID string, filter models.LedgerFilter) ([]models.LedgerEntry, error) {
	if _, err := s.student(ctx, studentID); err != nil {
		return nil, err
	}
	entries, err := s.ledgers.ListEntries(ctx, studentID, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ledger entries")
	}
	return entries, nil
}

func (s *ScoringService) eventFromRequest(studentID string, req dto.SubmitUsageRequest) (models.UsageEvent, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.UsageEvent{}, appErrors.Wrap(err, appErrors.ErrInvalidUsageEvent.Code, appErrors.ErrInvalidUsageEvent.Status, "invalid usage payload")
	}
	date, err := models.ParseDate(req.Date)
	if err != nil {
		return models.UsageEvent{}, appErrors.Clone(appErrors.ErrInvalidUsageEvent, "date must be formatted as YYYY-MM-DD")
	}
	return models.UsageEvent{
		StudentID:     studentID,
		Date:          date,
		TotalMinutes:  *req.TotalMinutes,
		PerAppMinutes: models.AppMinutes(req.PerAppMinutes),
	}, nil
}

// apply holds the student's lock around the ledger transaction and the
// eviction of cached views, so concurrent submissions for one student
// serialise in-process and cache fills never land between the two.
func (s *ScoringService) apply(ctx context.Context, event models.UsageEvent, verdict models.Verdict, classID string) (scoring.Result, error) {
	unlock := s.locks.Lock(event.StudentID)
	defer unlock()

	now := s.now()
	start := time.Now()
	result, err := s.ledgers.Apply(ctx, event, func(ledger models.ScoreLedger, prior *models.LedgerEntry) (scoring.Result, error) {
		return scoring.Apply(ledger, prior, event.Date, verdict, s.cfg.Rules, now)
	})
	s.metrics.ObserveDBQuery("ledger_apply", time.Since(start))
	if err == nil {
		if result.Changed() {
			s.cache.Evict(ctx, cache.LedgerKey(event.StudentID), cache.DashboardKey(classID))
		}
		return result, nil
	}

	var appErr *appErrors.Error
	switch {
	case errors.Is(err, repository.ErrLedgerLocked):
		s.metrics.RecordLedgerConflict()
		s.logger.Warn("ledger update conflict", zap.String("student_id", event.StudentID), zap.Error(err))
		return scoring.Result{}, appErrors.Wrap(err, appErrors.ErrConcurrentUpdate.Code, appErrors.ErrConcurrentUpdate.Status, appErrors.ErrConcurrentUpdate.Message)
	case errors.Is(err, sql.ErrNoRows):
		return scoring.Result{}, appErrors.Clone(appErrors.ErrUnknownStudent, "student has no score ledger")
	case errors.As(err, &appErr):
		return scoring.Result{}, appErr
	default:
		return scoring.Result{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply evaluation")
	}
}

func (s *ScoringService) student(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnknownStudent, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *ScoringService) policy(ctx context.Context, classID string) (models.ClassPolicy, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ClassPolicy{}, appErrors.Clone(appErrors.ErrUnknownClass, "class not found")
		}
		return models.ClassPolicy{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	rules, err := s.classes.ListAppRules(ctx, classID)
	if err != nil {
		return models.ClassPolicy{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load app rules")
	}
	return models.PolicyFor(*class, rules), nil
}

func policyResponse(policy models.ClassPolicy, snapshot models.PolicySnapshot) dto.ClassPolicyResponse {
	return dto.ClassPolicyResponse{
		ClassID:               policy.ClassID,
		Date:                  snapshot.Date,
		DailyLimitMinutes:     policy.DailyLimitMinutes,
		EffectiveLimitMinutes: snapshot.EffectiveLimitMinutes,
		WeekendMode:           policy.WeekendMode,
		WeekendDoubled:        snapshot.WeekendDoubled,
		StrictMode:            snapshot.StrictMode,
		AllowedApps:           sortedKeys(snapshot.Allow),
		BlockedApps:           sortedKeys(snapshot.Block),
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
