package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/screentime-api/internal/dto"
	"github.com/noah-isme/screentime-api/internal/models"
	"github.com/noah-isme/screentime-api/internal/scoring"
	"github.com/noah-isme/screentime-api/pkg/cache"
	appErrors "github.com/noah-isme/screentime-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassSummary, int, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
	ExistsByName(ctx context.Context, teacherID, name, excludeID string) (bool, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	UpdatePolicy(ctx context.Context, id string, dailyLimit int, weekendMode, strictMode bool) error
	Delete(ctx context.Context, id string) error
	ListAppRules(ctx context.Context, classID string) ([]models.AppRule, error)
	FindAppRule(ctx context.Context, classID, appKey string) (*models.AppRule, error)
	UpsertAppRule(ctx context.Context, rule *models.AppRule) error
	DeleteAppRule(ctx context.Context, classID, ruleID string) error
}

// ClassDefaults are applied to newly created classes.
type ClassDefaults struct {
	DailyLimitMinutes int
	WeekendMode       bool
	StrictMode        bool
}

// ClassService manages classes, their policy and their app lists.
type ClassService struct {
	repo      classRepository
	cache     *CacheService
	defaults  ClassDefaults
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(repo classRepository, cacheSvc *CacheService, defaults ClassDefaults, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.DailyLimitMinutes == 0 {
		defaults.DailyLimitMinutes = 120
		defaults.WeekendMode = true
	}
	return &ClassService{repo: repo, cache: cacheSvc, defaults: defaults, validator: validate, logger: logger}
}

// List returns classes with pagination metadata.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassSummary, *models.Pagination, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one class.
func (s *ClassService) Get(ctx context.Context, id string) (*models.Class, error) {
	return s.load(ctx, id)
}

// Create adds a class. Policy fields left out of the request take the configured defaults.
func (s *ClassService) Create(ctx context.Context, req dto.CreateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	class := &models.Class{
		TeacherID:         strings.TrimSpace(req.TeacherID),
		Name:              strings.TrimSpace(req.Name),
		SchoolYear:        strings.TrimSpace(req.SchoolYear),
		Description:       strings.TrimSpace(req.Description),
		DailyLimitMinutes: s.defaults.DailyLimitMinutes,
		WeekendMode:       s.defaults.WeekendMode,
		StrictMode:        s.defaults.StrictMode,
	}
	if req.DailyLimitMinutes != nil {
		class.DailyLimitMinutes = *req.DailyLimitMinutes
	}
	if req.WeekendMode != nil {
		class.WeekendMode = *req.WeekendMode
	}
	if req.StrictMode != nil {
		class.StrictMode = *req.StrictMode
	}
	if err := scoring.ValidateLimit(class.DailyLimitMinutes); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByName(ctx, class.TeacherID, class.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "class name already exists")
	}

	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	s.logger.Info("class created", zap.String("class_id", class.ID), zap.String("teacher_id", class.TeacherID))
	return class, nil
}

// Update modifies the descriptive fields of a class.
func (s *ClassService) Update(ctx context.Context, id string, req dto.UpdateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	class, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	exists, err := s.repo.ExistsByName(ctx, class.TeacherID, name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "class name already exists")
	}

	class.Name = name
	class.SchoolYear = strings.TrimSpace(req.SchoolYear)
	class.Description = strings.TrimSpace(req.Description)
	if err := s.repo.Update(ctx, class); err != nil {
		return nil, s.notFoundOr(err, "failed to update class")
	}
	s.cache.Evict(ctx, cache.DashboardKey(id))
	return class, nil
}

// UpdatePolicy replaces the daily limit and mode flags. Evaluations already
// applied keep the policy they were made under.
func (s *ClassService) UpdatePolicy(ctx context.Context, id string, req dto.UpdatePolicyRequest) (*models.Class, error) {
	if err := scoring.ValidateLimit(req.DailyLimitMinutes); err != nil {
		return nil, err
	}
	if err := s.repo.UpdatePolicy(ctx, id, req.DailyLimitMinutes, req.WeekendMode, req.StrictMode); err != nil {
		return nil, s.notFoundOr(err, "failed to update class policy")
	}
	s.logger.Info("class policy updated",
		zap.String("class_id", id),
		zap.Int("daily_limit_minutes", req.DailyLimitMinutes),
		zap.Bool("weekend_mode", req.WeekendMode),
		zap.Bool("strict_mode", req.StrictMode),
	)
	return s.load(ctx, id)
}

// Delete removes a class. Its students stay enrolled without a class.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.notFoundOr(err, "failed to delete class")
	}
	s.cache.Evict(ctx, cache.DashboardKey(id))
	return nil
}

// Policy assembles the stored policy of a class.
func (s *ClassService) Policy(ctx context.Context, id string) (models.ClassPolicy, error) {
	class, err := s.load(ctx, id)
	if err != nil {
		return models.ClassPolicy{}, err
	}
	rules, err := s.repo.ListAppRules(ctx, id)
	if err != nil {
		return models.ClassPolicy{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load app rules")
	}
	return models.PolicyFor(*class, rules), nil
}

// ListApps returns the allow and block entries of a class.
func (s *ClassService) ListApps(ctx context.Context, classID string) ([]models.AppRule, error) {
	if _, err := s.load(ctx, classID); err != nil {
		return nil, err
	}
	rules, err := s.repo.ListAppRules(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load app rules")
	}
	return rules, nil
}

// AddApp puts an app on a list. An app already on the other list is moved;
// one already on the requested list is a conflict.
func (s *ClassService) AddApp(ctx context.Context, classID string, req dto.AddAppRuleRequest) (*models.AppRule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid app payload")
	}
	if _, err := s.load(ctx, classID); err != nil {
		return nil, err
	}

	rule := &models.AppRule{
		ClassID: classID,
		AppName: strings.TrimSpace(req.AppName),
		AppType: models.AppType(req.AppType),
	}
	rule.AppKey = models.AppKey(rule.AppName)
	if rule.AppKey == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "app_name must not be blank")
	}

	existing, err := s.repo.FindAppRule(ctx, classID, rule.AppKey)
	switch {
	case err == nil && existing.AppType == rule.AppType:
		return nil, appErrors.Clone(appErrors.ErrConflict, "app is already on the "+string(rule.AppType)+" list")
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check app rule")
	}

	if err := s.repo.UpsertAppRule(ctx, rule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save app rule")
	}
	if existing != nil {
		s.logger.Info("app moved between lists", zap.String("class_id", classID), zap.String("app", rule.AppKey), zap.String("app_type", string(rule.AppType)))
	}
	return rule, nil
}

// RemoveApp deletes an app rule.
func (s *ClassService) RemoveApp(ctx context.Context, classID, ruleID string) error {
	if err := s.repo.DeleteAppRule(ctx, classID, ruleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "app rule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete app rule")
	}
	return nil
}

func (s *ClassService) load(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.notFoundOr(err, "failed to load class")
	}
	return class, nil
}

func (s *ClassService) notFoundOr(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrUnknownClass, "class not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
