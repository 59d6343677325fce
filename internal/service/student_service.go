package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/screentime-api/internal/dto"
	"github.com/noah-isme/screentime-api/internal/models"
	"github.com/noah-isme/screentime-api/internal/scoring"
	"github.com/noah-isme/screentime-api/pkg/cache"
	appErrors "github.com/noah-isme/screentime-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	Enroll(ctx context.Context, student *models.Student, ledger models.ScoreLedger) error
	UpdateClass(ctx context.Context, id string, classID *string) error
}

type classLookup interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

// StudentService enrolls students and moves them between classes.
type StudentService struct {
	repo      studentRepository
	classes   classLookup
	rules     scoring.Rules
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewStudentService constructs StudentService.
func NewStudentService(repo studentRepository, classes classLookup, rules scoring.Rules, cacheSvc *CacheService, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		repo:      repo,
		classes:   classes,
		rules:     rules.WithDefaults(),
		cache:     cacheSvc,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns students with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnknownStudent, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Enroll creates a student with a fresh ledger at the starting balance.
func (s *StudentService) Enroll(ctx context.Context, req dto.EnrollStudentRequest) (*models.Student, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		req.Email = &email
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student := &models.Student{FullName: req.FullName, Active: true}
	if req.Email != nil && *req.Email != "" {
		email := *req.Email
		exists, err := s.repo.ExistsByEmail(ctx, email, "")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		student.Email = &email
	}
	classID, err := s.resolveClass(ctx, req.ClassID)
	if err != nil {
		return nil, err
	}
	student.ClassID = classID

	ledger := scoring.NewLedger("", s.rules, s.now())
	if err := s.repo.Enroll(ctx, student, ledger); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
	}
	if classID != nil {
		s.cache.Evict(ctx, cache.DashboardKey(*classID))
	}
	s.logger.Info("student enrolled", zap.String("student_id", student.ID), zap.Float64("points", ledger.Points))
	return student, nil
}

// AssignClass moves a student to another class. Points and streaks carry over.
func (s *StudentService) AssignClass(ctx context.Context, id string, req dto.AssignClassRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class assignment")
	}
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	classID, err := s.resolveClass(ctx, req.ClassID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateClass(ctx, id, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnknownStudent, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign class")
	}

	var evict []string
	if student.ClassID != nil {
		evict = append(evict, cache.DashboardKey(*student.ClassID))
	}
	if classID != nil {
		evict = append(evict, cache.DashboardKey(*classID))
	}
	s.cache.Evict(ctx, evict...)

	student.ClassID = classID
	return student, nil
}

func (s *StudentService) resolveClass(ctx context.Context, classID *string) (*string, error) {
	if classID == nil || strings.TrimSpace(*classID) == "" {
		return nil, nil
	}
	id := strings.TrimSpace(*classID)
	if _, err := s.classes.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnknownClass, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return &id, nil
}
