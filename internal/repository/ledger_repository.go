package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/screentime-api/internal/models"
	"github.com/noah-isme/screentime-api/internal/scoring"
)

const (
	ledgerColumns = "student_id, points, current_streak_days, longest_streak_days, last_evaluated_date, updated_at"
	entryColumns  = "student_id, usage_date, verdict, reason, points_delta, bonus_applied, streak_before, longest_before, prev_evaluated_date, backdated, evaluated_at"
)

// ApplyFunc computes the ledger transition for a locked ledger and the entry
// already recorded for the event's date, if any.
type ApplyFunc func(ledger models.ScoreLedger, prior *models.LedgerEntry) (scoring.Result, error)

// LedgerRepository persists score ledgers, their per-date entries and the usage
// events that produced them.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs a LedgerRepository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// FindByStudent returns the ledger of a student.
func (r *LedgerRepository) FindByStudent(ctx context.Context, studentID string) (*models.ScoreLedger, error) {
	var ledger models.ScoreLedger
	if err := r.db.GetContext(ctx, &ledger, r.db.Rebind("SELECT "+ledgerColumns+" FROM score_ledgers WHERE student_id = ?"), studentID); err != nil {
		return nil, err
	}
	return &ledger, nil
}

// Apply stores the usage event and runs fn against the locked ledger in one
// transaction. The ledger and entry are only written when the result changed.
// A ledger row held by another writer yields ErrLedgerLocked; a missing ledger
// yields sql.ErrNoRows.
func (r *LedgerRepository) Apply(ctx context.Context, event models.UsageEvent, fn ApplyFunc) (result scoring.Result, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return scoring.Result{}, r.txError("begin ledger transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var ledger models.ScoreLedger
	lockQuery := tx.Rebind("SELECT " + ledgerColumns + " FROM score_ledgers WHERE student_id = ?" + rowLock(r.db))
	if err = tx.GetContext(ctx, &ledger, lockQuery, event.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return scoring.Result{}, err
		}
		return scoring.Result{}, r.txError("lock score ledger", err)
	}

	var prior *models.LedgerEntry
	var entry models.LedgerEntry
	entryQuery := tx.Rebind("SELECT " + entryColumns + " FROM ledger_entries WHERE student_id = ? AND usage_date = ?")
	switch getErr := tx.GetContext(ctx, &entry, entryQuery, event.StudentID, event.Date); {
	case getErr == nil:
		prior = &entry
	case !errors.Is(getErr, sql.ErrNoRows):
		err = getErr
		return scoring.Result{}, r.txError("load ledger entry", err)
	}

	const upsertUsage = `INSERT INTO usage_events (student_id, usage_date, total_minutes, per_app_minutes, received_at)
VALUES (:student_id, :usage_date, :total_minutes, :per_app_minutes, :received_at)
ON CONFLICT (student_id, usage_date) DO UPDATE SET total_minutes = excluded.total_minutes, per_app_minutes = excluded.per_app_minutes, received_at = excluded.received_at`
	if _, err = tx.NamedExecContext(ctx, upsertUsage, event); err != nil {
		return scoring.Result{}, r.txError("store usage event", err)
	}

	result, err = fn(ledger, prior)
	if err != nil {
		return scoring.Result{}, err
	}

	if result.Changed() {
		const upsertEntry = `INSERT INTO ledger_entries (student_id, usage_date, verdict, reason, points_delta, bonus_applied, streak_before, longest_before, prev_evaluated_date, backdated, evaluated_at)
VALUES (:student_id, :usage_date, :verdict, :reason, :points_delta, :bonus_applied, :streak_before, :longest_before, :prev_evaluated_date, :backdated, :evaluated_at)
ON CONFLICT (student_id, usage_date) DO UPDATE SET verdict = excluded.verdict, reason = excluded.reason, points_delta = excluded.points_delta,
bonus_applied = excluded.bonus_applied, streak_before = excluded.streak_before, longest_before = excluded.longest_before,
prev_evaluated_date = excluded.prev_evaluated_date, backdated = excluded.backdated, evaluated_at = excluded.evaluated_at`
		if _, err = tx.NamedExecContext(ctx, upsertEntry, result.Entry); err != nil {
			return scoring.Result{}, r.txError("store ledger entry", err)
		}

		const updateLedger = `UPDATE score_ledgers SET points = :points, current_streak_days = :current_streak_days, longest_streak_days = :longest_streak_days,
last_evaluated_date = :last_evaluated_date, updated_at = :updated_at WHERE student_id = :student_id`
		if _, err = tx.NamedExecContext(ctx, updateLedger, result.Ledger); err != nil {
			return scoring.Result{}, r.txError("update score ledger", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return scoring.Result{}, r.txError("commit ledger", err)
	}
	return result, nil
}

// ListEntries returns a student's ledger history, newest first.
func (r *LedgerRepository) ListEntries(ctx context.Context, studentID string, filter models.LedgerFilter) ([]models.LedgerEntry, error) {
	query := "SELECT " + entryColumns + " FROM ledger_entries WHERE student_id = ?"
	args := []interface{}{studentID}
	if !filter.From.IsZero() {
		query += " AND usage_date >= ?"
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		query += " AND usage_date <= ?"
		args = append(args, filter.To)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 366 {
		limit = 31
	}
	query += fmt.Sprintf(" ORDER BY usage_date DESC LIMIT %d", limit)

	var entries []models.LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries, nil
}

// CountViolationsSince counts violation entries of a class's students on or after since.
func (r *LedgerRepository) CountViolationsSince(ctx context.Context, classID string, since models.Date) (int, error) {
	query := r.db.Rebind(`SELECT COUNT(*) FROM ledger_entries e JOIN students s ON s.id = e.student_id
WHERE s.class_id = ? AND e.verdict = ? AND e.usage_date >= ?`)
	var count int
	if err := r.db.GetContext(ctx, &count, query, classID, models.VerdictViolation, since); err != nil {
		return 0, fmt.Errorf("count violations: %w", err)
	}
	return count, nil
}

func (r *LedgerRepository) txError(op string, err error) error {
	if isLockConflict(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrLedgerLocked, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
