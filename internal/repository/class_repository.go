package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/screentime-api/internal/models"
)

const classColumns = "c.id, c.teacher_id, c.name, c.school_year, c.description, c.daily_limit_minutes, c.weekend_mode, c.strict_mode, c.created_at, c.updated_at"

// ClassRepository manages persistence for classes and their app rules.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns classes matching filter criteria together with their head count.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassSummary, int, error) {
	base := "FROM classes c WHERE 1=1"
	var args []interface{}

	if filter.TeacherID != "" {
		base += " AND c.teacher_id = ?"
		args = append(args, filter.TeacherID)
	}
	if filter.Search != "" {
		base += " AND LOWER(c.name) LIKE ?"
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	size, offset := pageBounds(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`SELECT %s, (SELECT COUNT(*) FROM students s WHERE s.class_id = c.id) AS student_count %s ORDER BY c.created_at DESC LIMIT %d OFFSET %d`, classColumns, base, size, offset)

	var classes []models.ClassSummary
	if err := r.db.SelectContext(ctx, &classes, r.db.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind("SELECT COUNT(*) "+base), args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// FindByID returns a class record by ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	query := r.db.Rebind("SELECT " + classColumns + " FROM classes c WHERE c.id = ?")
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// ExistsByName checks whether the teacher already owns a class with this name.
func (r *ClassRepository) ExistsByName(ctx context.Context, teacherID, name, excludeID string) (bool, error) {
	query := "SELECT 1 FROM classes WHERE teacher_id = ? AND LOWER(name) = LOWER(?)"
	args := []interface{}{teacherID, name}
	if excludeID != "" {
		query += " AND id <> ?"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, r.db.Rebind(query+" LIMIT 1"), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check class name: %w", err)
	}
	return true, nil
}

// Create persists a class record.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now

	const query = `INSERT INTO classes (id, teacher_id, name, school_year, description, daily_limit_minutes, weekend_mode, strict_mode, created_at, updated_at)
VALUES (:id, :teacher_id, :name, :school_year, :description, :daily_limit_minutes, :weekend_mode, :strict_mode, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update modifies the descriptive fields of a class.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = :name, school_year = :school_year, description = :description, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, class)
	if err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return expectAffected(res)
}

// UpdatePolicy stores a new daily limit and mode flags for a class.
func (r *ClassRepository) UpdatePolicy(ctx context.Context, id string, dailyLimit int, weekendMode, strictMode bool) error {
	query := r.db.Rebind(`UPDATE classes SET daily_limit_minutes = ?, weekend_mode = ?, strict_mode = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, dailyLimit, weekendMode, strictMode, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update class policy: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a class. Students keep their ledgers and become unassigned.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM classes WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return expectAffected(res)
}

// ListAppRules returns the allow and block entries of a class.
func (r *ClassRepository) ListAppRules(ctx context.Context, classID string) ([]models.AppRule, error) {
	query := r.db.Rebind(`SELECT id, class_id, app_name, app_key, app_type, created_at FROM app_rules WHERE class_id = ? ORDER BY app_type, app_key`)
	var rules []models.AppRule
	if err := r.db.SelectContext(ctx, &rules, query, classID); err != nil {
		return nil, fmt.Errorf("list app rules: %w", err)
	}
	return rules, nil
}

// FindAppRule returns the rule for an app key within a class.
func (r *ClassRepository) FindAppRule(ctx context.Context, classID, appKey string) (*models.AppRule, error) {
	query := r.db.Rebind(`SELECT id, class_id, app_name, app_key, app_type, created_at FROM app_rules WHERE class_id = ? AND app_key = ?`)
	var rule models.AppRule
	if err := r.db.GetContext(ctx, &rule, query, classID, appKey); err != nil {
		return nil, err
	}
	return &rule, nil
}

// UpsertAppRule stores a rule, moving the app out of the opposite list if it
// was there. Allow and block lists stay disjoint.
func (r *ClassRepository) UpsertAppRule(ctx context.Context, rule *models.AppRule) (err error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	rule.AppKey = models.AppKey(rule.AppName)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin app rule transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM app_rules WHERE class_id = ? AND app_key = ?`), rule.ClassID, rule.AppKey); err != nil {
		return fmt.Errorf("clear app rule: %w", err)
	}
	const insert = `INSERT INTO app_rules (id, class_id, app_name, app_key, app_type, created_at) VALUES (:id, :class_id, :app_name, :app_key, :app_type, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insert, rule); err != nil {
		return fmt.Errorf("insert app rule: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit app rule: %w", err)
	}
	return nil
}

// DeleteAppRule removes one rule from a class.
func (r *ClassRepository) DeleteAppRule(ctx context.Context, classID, ruleID string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM app_rules WHERE class_id = ? AND id = ?`), classID, ruleID)
	if err != nil {
		return fmt.Errorf("delete app rule: %w", err)
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
