package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/m5mds/ahmed-academy2/internal/dto"
	"github.com/m5mds/ahmed-academy2/internal/models"
	appErrors "github.com/m5mds/ahmed-academy2/pkg/errors"
)

type mockLockRepo struct {
	locks      map[string]*models.ContentLock
	audits     []*models.LockAudit
	upsertErr  error
	listResult []models.ContentLock
}

func lockKey(lock *models.ContentLock) string {
	studentID := ""
	if lock.StudentID != nil {
		studentID = *lock.StudentID
	}
	return string(lock.Scope) + "/" + string(lock.Level) + "/" + lock.TargetID + "/" + studentID
}

func (m *mockLockRepo) Upsert(ctx context.Context, lock *models.ContentLock, audit *models.LockAudit) (*models.ContentLock, error) {
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	if m.locks == nil {
		m.locks = make(map[string]*models.ContentLock)
	}
	stored := *lock
	m.locks[lockKey(lock)] = &stored
	m.audits = append(m.audits, audit)
	return &stored, nil
}

func (m *mockLockRepo) List(ctx context.Context, filter models.LockFilter) ([]models.ContentLock, error) {
	return m.listResult, nil
}

func (m *mockLockRepo) ListAudits(ctx context.Context, limit int) ([]models.LockAudit, error) {
	out := make([]models.LockAudit, 0, len(m.audits))
	for _, a := range m.audits {
		out = append(out, *a)
	}
	return out, nil
}

func boolPtr(b bool) *bool { return &b }

func newTestLockService(repo *mockLockRepo) *LockService {
	return NewLockService(repo, validator.New(), zap.NewNop())
}

func TestSetLockGlobalLesson(t *testing.T) {
	repo := &mockLockRepo{}
	svc := newTestLockService(repo)

	lock, err := svc.SetLock(context.Background(), "admin-1", dto.SetLockRequest{
		Scope:    models.ScopeGlobal,
		Level:    models.LevelLesson,
		TargetID: "lesson-1",
		Locked:   boolPtr(true),
	})
	require.NoError(t, err)
	assert.True(t, lock.Locked)
	assert.Equal(t, "admin-1", lock.CreatedBy)

	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.ActionLock, repo.audits[0].Action)
	assert.Equal(t, "admin-1", repo.audits[0].AdminID)
}

func TestSetLockIsIdempotentPerKey(t *testing.T) {
	repo := &mockLockRepo{}
	svc := newTestLockService(repo)

	req := dto.SetLockRequest{
		Scope:    models.ScopeGlobal,
		Level:    models.LevelChapter,
		TargetID: "chapter-1",
		Locked:   boolPtr(true),
	}
	_, err := svc.SetLock(context.Background(), "admin-1", req)
	require.NoError(t, err)

	req.Locked = boolPtr(false)
	lock, err := svc.SetLock(context.Background(), "admin-1", req)
	require.NoError(t, err)

	// One row per key, flipped in place; every mutation still audited.
	assert.Len(t, repo.locks, 1)
	assert.False(t, lock.Locked)
	require.Len(t, repo.audits, 2)
	assert.Equal(t, models.ActionLock, repo.audits[0].Action)
	assert.Equal(t, models.ActionUnlock, repo.audits[1].Action)
}

func TestSetLockPerStudentRequiresStudentID(t *testing.T) {
	repo := &mockLockRepo{}
	svc := newTestLockService(repo)

	_, err := svc.SetLock(context.Background(), "admin-1", dto.SetLockRequest{
		Scope:    models.ScopePerStudent,
		Level:    models.LevelLesson,
		TargetID: "lesson-1",
		Locked:   boolPtr(false),
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Empty(t, repo.audits)
}

func TestSetLockGlobalRejectsStudentID(t *testing.T) {
	repo := &mockLockRepo{}
	svc := newTestLockService(repo)

	studentID := "student-1"
	_, err := svc.SetLock(context.Background(), "admin-1", dto.SetLockRequest{
		Scope:     models.ScopeGlobal,
		Level:     models.LevelLesson,
		TargetID:  "lesson-1",
		StudentID: &studentID,
		Locked:    boolPtr(true),
	})
	require.Error(t, err)
	assert.Empty(t, repo.audits)
}

func TestSetLockTierTargetMustBeKnown(t *testing.T) {
	repo := &mockLockRepo{}
	svc := newTestLockService(repo)

	_, err := svc.SetLock(context.Background(), "admin-1", dto.SetLockRequest{
		Scope:    models.ScopeGlobal,
		Level:    models.LevelTier,
		TargetID: "GOLD",
		Locked:   boolPtr(true),
	})
	require.Error(t, err)
	assert.Empty(t, repo.audits)

	_, err = svc.SetLock(context.Background(), "admin-1", dto.SetLockRequest{
		Scope:    models.ScopeGlobal,
		Level:    models.LevelTier,
		TargetID: string(models.TierMid2),
		Locked:   boolPtr(true),
	})
	require.NoError(t, err)
}

func TestSetLockRejectsUnknownScopeAndLevel(t *testing.T) {
	repo := &mockLockRepo{}
	svc := newTestLockService(repo)

	_, err := svc.SetLock(context.Background(), "admin-1", dto.SetLockRequest{
		Scope:    models.LockScope("EVERYONE"),
		Level:    models.LevelLesson,
		TargetID: "lesson-1",
		Locked:   boolPtr(true),
	})
	require.Error(t, err)

	_, err = svc.SetLock(context.Background(), "admin-1", dto.SetLockRequest{
		Scope:    models.ScopeGlobal,
		Level:    models.LockLevel("COURSE"),
		TargetID: "course-1",
		Locked:   boolPtr(true),
	})
	require.Error(t, err)
	assert.Empty(t, repo.audits)
}

func TestSetLockPerStudentUnlock(t *testing.T) {
	repo := &mockLockRepo{}
	svc := newTestLockService(repo)

	studentID := "student-1"
	lock, err := svc.SetLock(context.Background(), "admin-1", dto.SetLockRequest{
		Scope:     models.ScopePerStudent,
		Level:     models.LevelChapter,
		TargetID:  "chapter-1",
		StudentID: &studentID,
		Locked:    boolPtr(false),
	})
	require.NoError(t, err)
	require.NotNil(t, lock.StudentID)
	assert.Equal(t, "student-1", *lock.StudentID)
	assert.False(t, lock.Locked)

	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.ActionUnlock, repo.audits[0].Action)
	require.NotNil(t, repo.audits[0].StudentID)
	assert.Equal(t, "student-1", *repo.audits[0].StudentID)
}
