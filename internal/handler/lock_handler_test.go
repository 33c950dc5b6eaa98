package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/m5mds/ahmed-academy2/internal/dto"
	"github.com/m5mds/ahmed-academy2/internal/middleware"
	"github.com/m5mds/ahmed-academy2/internal/models"
	"github.com/m5mds/ahmed-academy2/internal/service"
)

type lockRepoStub struct {
	locks      []models.ContentLock
	audits     []models.LockAudit
	upserted   *models.ContentLock
	auditEntry *models.LockAudit
}

func (s *lockRepoStub) Upsert(ctx context.Context, lock *models.ContentLock, audit *models.LockAudit) (*models.ContentLock, error) {
	s.upserted = lock
	s.auditEntry = audit
	stored := *lock
	stored.ID = "lock-1"
	return &stored, nil
}

func (s *lockRepoStub) List(ctx context.Context, filter models.LockFilter) ([]models.ContentLock, error) {
	return s.locks, nil
}

func (s *lockRepoStub) ListAudits(ctx context.Context, limit int) ([]models.LockAudit, error) {
	return s.audits, nil
}

func adminContext(t *testing.T, method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body != nil {
		req, _ = http.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, target, nil)
	}
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	return c, w
}

func TestLockHandlerSet(t *testing.T) {
	repo := &lockRepoStub{}
	handler := NewLockHandler(service.NewLockService(repo, nil, zap.NewNop()), nil)

	locked := true
	payload, _ := json.Marshal(dto.SetLockRequest{
		Scope:    models.ScopeGlobal,
		Level:    models.LevelChapter,
		TargetID: "chapter-1",
		Locked:   &locked,
	})
	c, w := adminContext(t, http.MethodPost, "/admin/locks", payload)

	handler.Set(c)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, repo.upserted)
	assert.Equal(t, "admin-1", repo.upserted.CreatedBy)
	require.NotNil(t, repo.auditEntry)
	assert.Equal(t, models.ActionLock, repo.auditEntry.Action)
}

func TestLockHandlerSetMalformedBody(t *testing.T) {
	handler := NewLockHandler(service.NewLockService(&lockRepoStub{}, nil, zap.NewNop()), nil)

	c, w := adminContext(t, http.MethodPost, "/admin/locks", []byte(`{"scope":"GLOBAL"`))

	handler.Set(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLockHandlerSetValidationError(t *testing.T) {
	repo := &lockRepoStub{}
	handler := NewLockHandler(service.NewLockService(repo, nil, zap.NewNop()), nil)

	// PER_STUDENT without a student id must be rejected before persistence.
	locked := false
	payload, _ := json.Marshal(dto.SetLockRequest{
		Scope:    models.ScopePerStudent,
		Level:    models.LevelLesson,
		TargetID: "lesson-1",
		Locked:   &locked,
	})
	c, w := adminContext(t, http.MethodPost, "/admin/locks", payload)

	handler.Set(c)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Nil(t, repo.upserted)
}

func TestLockHandlerList(t *testing.T) {
	repo := &lockRepoStub{locks: []models.ContentLock{{ID: "lock-1", Scope: models.ScopeGlobal}}}
	handler := NewLockHandler(service.NewLockService(repo, nil, zap.NewNop()), nil)

	c, w := adminContext(t, http.MethodGet, "/admin/locks?scope=GLOBAL", nil)

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lock-1")
}

func TestLockHandlerAuditsRejectsNegativeLimit(t *testing.T) {
	handler := NewLockHandler(service.NewLockService(&lockRepoStub{}, nil, zap.NewNop()), nil)

	c, w := adminContext(t, http.MethodGet, "/admin/locks/audit?limit=-5", nil)

	handler.Audits(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLockHandlerExportEndpointsDisabled(t *testing.T) {
	handler := NewLockHandler(service.NewLockService(&lockRepoStub{}, nil, zap.NewNop()), nil)

	c, w := adminContext(t, http.MethodPost, "/admin/locks/audit/export", []byte(`{"format":"csv"}`))
	handler.EnqueueExport(c)
	require.Equal(t, http.StatusPreconditionFailed, w.Code)

	c, w = adminContext(t, http.MethodGet, "/export/some-token", nil)
	handler.DownloadExport(c)
	require.Equal(t, http.StatusPreconditionFailed, w.Code)
}
