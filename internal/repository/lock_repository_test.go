package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/m5mds/ahmed-academy2/internal/models"
)

func newLockRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func lockRows(lock *models.ContentLock) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "scope", "level", "target_id", "student_id", "locked", "created_by", "created_at", "updated_at"}).
		AddRow(lock.ID, lock.Scope, lock.Level, lock.TargetID, lock.StudentID, lock.Locked, lock.CreatedBy, lock.CreatedAt, lock.UpdatedAt)
}

func TestLockRepositoryUpsertWritesAuditInSameTx(t *testing.T) {
	db, mock, cleanup := newLockRepoMock(t)
	defer cleanup()

	repo := NewLockRepository(db)
	lock := &models.ContentLock{
		Scope:     models.ScopeGlobal,
		Level:     models.LevelChapter,
		TargetID:  "chapter-1",
		Locked:    true,
		CreatedBy: "admin-1",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	audit := &models.LockAudit{
		AdminID:  "admin-1",
		Scope:    models.ScopeGlobal,
		Level:    models.LevelChapter,
		TargetID: "chapter-1",
		Action:   models.ActionLock,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO content_locks")).
		WillReturnRows(lockRows(&models.ContentLock{
			ID: "lock-1", Scope: lock.Scope, Level: lock.Level, TargetID: lock.TargetID,
			Locked: true, CreatedBy: "admin-1", CreatedAt: lock.CreatedAt, UpdatedAt: lock.UpdatedAt,
		}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lock_audits")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	stored, err := repo.Upsert(context.Background(), lock, audit)
	require.NoError(t, err)
	require.Equal(t, "lock-1", stored.ID)
	require.True(t, stored.Locked)
	require.NotEmpty(t, audit.ID, "audit id assigned before insert")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRepositoryUpsertRollsBackWhenAuditFails(t *testing.T) {
	db, mock, cleanup := newLockRepoMock(t)
	defer cleanup()

	repo := NewLockRepository(db)
	lock := &models.ContentLock{
		Scope:    models.ScopeGlobal,
		Level:    models.LevelLesson,
		TargetID: "lesson-1",
		Locked:   true,
	}
	audit := &models.LockAudit{
		AdminID:  "admin-1",
		Scope:    models.ScopeGlobal,
		Level:    models.LevelLesson,
		TargetID: "lesson-1",
		Action:   models.ActionLock,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO content_locks")).
		WillReturnRows(lockRows(&models.ContentLock{ID: "lock-1", Scope: lock.Scope, Level: lock.Level, TargetID: lock.TargetID, Locked: true}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lock_audits")).
		WillReturnError(errors.New("audit insert failed"))
	mock.ExpectRollback()

	_, err := repo.Upsert(context.Background(), lock, audit)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newLockRepoMock(t)
	defer cleanup()

	repo := NewLockRepository(db)
	student := "student-1"
	rows := lockRows(&models.ContentLock{
		ID: "lock-1", Scope: models.ScopePerStudent, Level: models.LevelLesson,
		TargetID: "lesson-1", StudentID: &student, Locked: false, CreatedBy: "admin-1",
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, scope, level, target_id")).
		WithArgs(models.ScopePerStudent, models.LevelLesson).
		WillReturnRows(rows)

	locks, err := repo.List(context.Background(), models.LockFilter{Scope: models.ScopePerStudent, Level: models.LevelLesson})
	require.NoError(t, err)
	require.Len(t, locks, 1)
	require.Equal(t, "lock-1", locks[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRepositoryHasGlobalLock(t *testing.T) {
	db, mock, cleanup := newLockRepoMock(t)
	defer cleanup()

	repo := NewLockRepository(db)
	targets := models.LessonTargets("lesson-1", nil, models.TierMid1)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM content_locks")).
		WithArgs(models.ScopeGlobal, true, models.LevelLesson, "lesson-1", models.LevelTier, "MID1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	found, err := repo.HasGlobalLock(context.Background(), targets)
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRepositoryHasStudentUnlockNoRows(t *testing.T) {
	db, mock, cleanup := newLockRepoMock(t)
	defer cleanup()

	repo := NewLockRepository(db)
	targets := models.LessonTargets("lesson-1", nil, models.TierMid1)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM content_locks")).
		WithArgs(models.ScopePerStudent, false, "student-1", models.LevelLesson, "lesson-1", models.LevelTier, "MID1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	found, err := repo.HasStudentUnlock(context.Background(), "student-1", targets)
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRepositoryMatchSkipsEmptyTargets(t *testing.T) {
	db, mock, cleanup := newLockRepoMock(t)
	defer cleanup()

	repo := NewLockRepository(db)
	found, err := repo.HasGlobalLock(context.Background(), nil)
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockRepositoryListAuditsBetween(t *testing.T) {
	db, mock, cleanup := newLockRepoMock(t)
	defer cleanup()

	repo := NewLockRepository(db)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "admin_id", "student_id", "scope", "level", "target_id", "action", "created_at"}).
		AddRow("audit-1", "admin-1", nil, "GLOBAL", "CHAPTER", "chapter-1", "LOCK", from.Add(time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, admin_id, student_id")).
		WithArgs(from, to).
		WillReturnRows(rows)

	audits, err := repo.ListAuditsBetween(context.Background(), &from, &to)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	require.Equal(t, models.ActionLock, audits[0].Action)
	require.NoError(t, mock.ExpectationsWereMet())
}
