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

const studentColumns = "id, full_name, email, class_id, active, created_at, updated_at"

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students WHERE 1=1"
	var args []interface{}

	if filter.ClassID != "" {
		base += " AND class_id = ?"
		args = append(args, filter.ClassID)
	}
	if filter.Search != "" {
		base += " AND (LOWER(full_name) LIKE ? OR LOWER(COALESCE(email, '')) LIKE ?)"
		like := "%" + strings.ToLower(filter.Search) + "%"
		args = append(args, like, like)
	}

	size, offset := pageBounds(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s %s ORDER BY full_name ASC LIMIT %d OFFSET %d", studentColumns, base, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, r.db.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind("SELECT COUNT(*) "+base), args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, r.db.Rebind("SELECT "+studentColumns+" FROM students WHERE id = ?"), id); err != nil {
		return nil, err
	}
	return &student, nil
}

// ExistsByEmail checks if a student with the given email exists, optionally excluding an ID.
func (r *StudentRepository) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	query := "SELECT 1 FROM students WHERE LOWER(email) = LOWER(?)"
	args := []interface{}{email}
	if excludeID != "" {
		query += " AND id <> ?"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, r.db.Rebind(query+" LIMIT 1"), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check student email: %w", err)
	}
	return true, nil
}

// Enroll inserts a student together with its opening score ledger.
func (r *StudentRepository) Enroll(ctx context.Context, student *models.Student, ledger models.ScoreLedger) (err error) {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	ledger.StudentID = student.ID
	if ledger.UpdatedAt.IsZero() {
		ledger.UpdatedAt = now
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enroll transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertStudent = `INSERT INTO students (id, full_name, email, class_id, active, created_at, updated_at)
VALUES (:id, :full_name, :email, :class_id, :active, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertStudent, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	const insertLedger = `INSERT INTO score_ledgers (student_id, points, current_streak_days, longest_streak_days, last_evaluated_date, updated_at)
VALUES (:student_id, :points, :current_streak_days, :longest_streak_days, :last_evaluated_date, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertLedger, ledger); err != nil {
		return fmt.Errorf("create score ledger: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enroll: %w", err)
	}
	return nil
}

// UpdateClass moves a student to another class, or out of any class when classID is nil.
// The ledger is not touched.
func (r *StudentRepository) UpdateClass(ctx context.Context, id string, classID *string) error {
	query := r.db.Rebind(`UPDATE students SET class_id = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, classID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update student class: %w", err)
	}
	return expectAffected(res)
}

// ListStandings joins the active students of a class with their ledgers, best first.
func (r *StudentRepository) ListStandings(ctx context.Context, classID string) ([]models.StudentStanding, error) {
	query := r.db.Rebind(`SELECT s.id AS student_id, s.full_name, l.points, l.current_streak_days, l.longest_streak_days, l.last_evaluated_date
FROM students s JOIN score_ledgers l ON l.student_id = s.id
WHERE s.class_id = ? AND s.active = ?
ORDER BY l.points DESC, s.full_name ASC`)
	var standings []models.StudentStanding
	if err := r.db.SelectContext(ctx, &standings, query, classID, true); err != nil {
		return nil, fmt.Errorf("list student standings: %w", err)
	}
	return standings, nil
}
