package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/screentime-api/internal/dto"
	"github.com/noah-isme/screentime-api/internal/models"
	appErrors "github.com/noah-isme/screentime-api/pkg/errors"
	"github.com/noah-isme/screentime-api/pkg/response"
)

type classService interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassSummary, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Class, error)
	Create(ctx context.Context, req dto.CreateClassRequest) (*models.Class, error)
	Update(ctx context.Context, id string, req dto.UpdateClassRequest) (*models.Class, error)
	UpdatePolicy(ctx context.Context, id string, req dto.UpdatePolicyRequest) (*models.Class, error)
	Delete(ctx context.Context, id string) error
	ListApps(ctx context.Context, classID string) ([]models.AppRule, error)
	AddApp(ctx context.Context, classID string, req dto.AddAppRuleRequest) (*models.AppRule, error)
	RemoveApp(ctx context.Context, classID, ruleID string) error
}

type policyResolver interface {
	GetClassPolicy(ctx context.Context, classID string, date models.Date) (*dto.ClassPolicyResponse, error)
}

// ClassHandler exposes class, policy and app list endpoints.
type ClassHandler struct {
	classes  classService
	policies policyResolver
}

// NewClassHandler constructs a class handler.
func NewClassHandler(classes classService, policies policyResolver) *ClassHandler {
	return &ClassHandler{classes: classes, policies: policies}
}

// List godoc
// @Summary List classes
// @Tags Classes
// @Produce json
// @Param teacherId query string false "Filter by teacher"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /classes [get]
func (h *ClassHandler) List(c *gin.Context) {
	var filter models.ClassFilter
	filter.TeacherID = strings.TrimSpace(c.Query("teacherId"))
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	classes, pagination, err := h.classes.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, pagination)
}

// Get godoc
// @Summary Get class detail
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id} [get]
func (h *ClassHandler) Get(c *gin.Context) {
	class, err := h.classes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// Create godoc
// @Summary Create class
// @Description Policy fields left out take the configured defaults.
// @Tags Classes
// @Accept json
// @Produce json
// @Param payload body dto.CreateClassRequest true "Class payload"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /classes [post]
func (h *ClassHandler) Create(c *gin.Context) {
	var req dto.CreateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	class, err := h.classes.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, class)
}

// Update godoc
// @Summary Update class
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body dto.UpdateClassRequest true "Class payload"
// @Success 200 {object} response.Envelope
// @Router /classes/{id} [put]
func (h *ClassHandler) Update(c *gin.Context) {
	var req dto.UpdateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	class, err := h.classes.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// Delete godoc
// @Summary Delete class
// @Tags Classes
// @Param id path string true "Class ID"
// @Success 204
// @Router /classes/{id} [delete]
func (h *ClassHandler) Delete(c *gin.Context) {
	if err := h.classes.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Policy godoc
// @Summary Resolve class policy
// @Description Returns the rule set in force on the given date, including weekend doubling.
// @Tags Policy
// @Produce json
// @Param id path string true "Class ID"
// @Param date query string false "Date (YYYY-MM-DD). Defaults to today"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/policy [get]
func (h *ClassHandler) Policy(c *gin.Context) {
	date, err := dateQuery(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	policy, err := h.policies.GetClassPolicy(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy, nil)
}

// UpdatePolicy godoc
// @Summary Replace class policy
// @Description Daily limit must be within [1,1440] minutes.
// @Tags Policy
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body dto.UpdatePolicyRequest true "Policy payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /classes/{id}/policy [put]
func (h *ClassHandler) UpdatePolicy(c *gin.Context) {
	var req dto.UpdatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	class, err := h.classes.UpdatePolicy(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// ListApps godoc
// @Summary List allowed and blocked apps
// @Tags Policy
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/apps [get]
func (h *ClassHandler) ListApps(c *gin.Context) {
	rules, err := h.classes.ListApps(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rules, nil)
}

// AddApp godoc
// @Summary Allow or block an app
// @Description An app already on the other list is moved.
// @Tags Policy
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body dto.AddAppRuleRequest true "App rule"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes/{id}/apps [post]
func (h *ClassHandler) AddApp(c *gin.Context) {
	var req dto.AddAppRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	rule, err := h.classes.AddApp(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rule)
}

// RemoveApp godoc
// @Summary Remove an app rule
// @Tags Policy
// @Param id path string true "Class ID"
// @Param appId path string true "App rule ID"
// @Success 204
// @Router /classes/{id}/apps/{appId} [delete]
func (h *ClassHandler) RemoveApp(c *gin.Context) {
	if err := h.classes.RemoveApp(c.Request.Context(), c.Param("id"), c.Param("appId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func invalidPayload(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
}

func dateQuery(c *gin.Context, key string) (models.Date, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return models.Date{}, nil
	}
	date, err := models.ParseDate(raw)
	if err != nil {
		return models.Date{}, appErrors.Clone(appErrors.ErrValidation, "invalid "+key+" format, expected YYYY-MM-DD")
	}
	return date, nil
}
