package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/m5mds/ahmed-academy2/internal/models"
)

// LockRepository persists content lock overrides and their audit trail.
// The content_locks table carries a unique index over
// (scope, level, target_id, COALESCE(student_id, '')) so mutations are
// atomic upserts rather than read-then-write.
type LockRepository struct {
	db *sqlx.DB
}

// NewLockRepository constructs the repository.
func NewLockRepository(db *sqlx.DB) *LockRepository {
	return &LockRepository{db: db}
}

const lockColumns = `id, scope, level, target_id, student_id, locked, created_by, created_at, updated_at`

// Upsert inserts or updates the lock row for its unique key and appends the
// matching audit entry in the same transaction. A failed audit write rolls
// the lock mutation back.
func (r *LockRepository) Upsert(ctx context.Context, lock *models.ContentLock, audit *models.LockAudit) (*models.ContentLock, error) {
	if lock.ID == "" {
		lock.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lock.CreatedAt.IsZero() {
		lock.CreatedAt = now
	}
	lock.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin lock upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const upsert = `INSERT INTO content_locks (id, scope, level, target_id, student_id, locked, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (scope, level, target_id, COALESCE(student_id, ''))
DO UPDATE SET locked = EXCLUDED.locked, created_by = EXCLUDED.created_by, updated_at = EXCLUDED.updated_at
RETURNING ` + lockColumns
	var stored models.ContentLock
	if err := tx.GetContext(ctx, &stored, upsert,
		lock.ID, lock.Scope, lock.Level, lock.TargetID, lock.StudentID,
		lock.Locked, lock.CreatedBy, lock.CreatedAt, lock.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("upsert content lock: %w", err)
	}

	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = now
	}
	const appendAudit = `INSERT INTO lock_audits (id, admin_id, student_id, scope, level, target_id, action, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := tx.ExecContext(ctx, appendAudit,
		audit.ID, audit.AdminID, audit.StudentID, audit.Scope, audit.Level, audit.TargetID, audit.Action, audit.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("append lock audit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit lock upsert: %w", err)
	}
	return &stored, nil
}

// List returns lock rows, newest first, optionally narrowed by scope/level.
func (r *LockRepository) List(ctx context.Context, filter models.LockFilter) ([]models.ContentLock, error) {
	query := `SELECT ` + lockColumns + ` FROM content_locks`
	var conditions []string
	var args []interface{}

	if filter.Scope != "" {
		conditions = append(conditions, fmt.Sprintf("scope = $%d", len(args)+1))
		args = append(args, filter.Scope)
	}
	if filter.Level != "" {
		conditions = append(conditions, fmt.Sprintf("level = $%d", len(args)+1))
		args = append(args, filter.Level)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	var locks []models.ContentLock
	if err := r.db.SelectContext(ctx, &locks, query, args...); err != nil {
		return nil, fmt.Errorf("list content locks: %w", err)
	}
	return locks, nil
}

// HasStudentUnlock reports whether an active per-student unlock exists for
// the student covering any of the given targets.
func (r *LockRepository) HasStudentUnlock(ctx context.Context, studentID string, targets []models.LockTarget) (bool, error) {
	return r.matchExists(ctx, models.ScopePerStudent, false, &studentID, targets)
}

// HasGlobalLock reports whether an active global lock covers any of the
// given targets.
func (r *LockRepository) HasGlobalLock(ctx context.Context, targets []models.LockTarget) (bool, error) {
	return r.matchExists(ctx, models.ScopeGlobal, true, nil, targets)
}

func (r *LockRepository) matchExists(ctx context.Context, scope models.LockScope, locked bool, studentID *string, targets []models.LockTarget) (bool, error) {
	if len(targets) == 0 {
		return false, nil
	}

	args := []interface{}{scope, locked}
	query := `SELECT 1 FROM content_locks WHERE scope = $1 AND locked = $2`
	if studentID != nil {
		args = append(args, *studentID)
		query += fmt.Sprintf(" AND student_id = $%d", len(args))
	}

	matches := make([]string, 0, len(targets))
	for _, target := range targets {
		matches = append(matches, fmt.Sprintf("(level = $%d AND target_id = $%d)", len(args)+1, len(args)+2))
		args = append(args, target.Level, target.TargetID)
	}
	query += " AND (" + strings.Join(matches, " OR ") + ") LIMIT 1"

	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("match content locks: %w", err)
	}
	return true, nil
}

// ListAudits returns the most recent audit entries, newest first.
func (r *LockRepository) ListAudits(ctx context.Context, limit int) ([]models.LockAudit, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const query = `SELECT id, admin_id, student_id, scope, level, target_id, action, created_at
FROM lock_audits ORDER BY created_at DESC LIMIT $1`
	var audits []models.LockAudit
	if err := r.db.SelectContext(ctx, &audits, query, limit); err != nil {
		return nil, fmt.Errorf("list lock audits: %w", err)
	}
	return audits, nil
}

// ListAuditsBetween returns audit entries in the half-open window, oldest
// first, used by the compliance export.
func (r *LockRepository) ListAuditsBetween(ctx context.Context, from, to *time.Time) ([]models.LockAudit, error) {
	query := `SELECT id, admin_id, student_id, scope, level, target_id, action, created_at FROM lock_audits`
	var conditions []string
	var args []interface{}
	if from != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, *from)
	}
	if to != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)+1))
		args = append(args, *to)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC"

	var audits []models.LockAudit
	if err := r.db.SelectContext(ctx, &audits, query, args...); err != nil {
		return nil, fmt.Errorf("list lock audits window: %w", err)
	}
	return audits, nil
}
