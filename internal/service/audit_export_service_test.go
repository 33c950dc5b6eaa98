package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/m5mds/ahmed-academy2/internal/dto"
	"github.com/m5mds/ahmed-academy2/internal/models"
	"github.com/m5mds/ahmed-academy2/internal/repository"
	appErrors "github.com/m5mds/ahmed-academy2/pkg/errors"
	"github.com/m5mds/ahmed-academy2/pkg/jobs"
)

type mockAuditReader struct {
	audits []models.LockAudit
	err    error
}

func (m *mockAuditReader) ListAuditsBetween(ctx context.Context, from, to *time.Time) ([]models.LockAudit, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.audits, nil
}

type mockExportJobStore struct {
	jobs map[string]*models.ExportJob
}

func newMockExportJobStore() *mockExportJobStore {
	return &mockExportJobStore{jobs: map[string]*models.ExportJob{}}
}

func (m *mockExportJobStore) Create(ctx context.Context, job *models.ExportJob) error {
	m.jobs[job.ID] = job
	return nil
}

func (m *mockExportJobStore) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return job, nil
}

func (m *mockExportJobStore) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	job, ok := m.jobs[id]
	if !ok {
		return errors.New("not found")
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

type mockFileStorage struct {
	saved   map[string][]byte
	saveErr error
	removed []string
}

func newMockFileStorage() *mockFileStorage {
	return &mockFileStorage{saved: map[string][]byte{}}
}

func (m *mockFileStorage) Save(filename string, data []byte) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.saved[filename] = data
	return filename, nil
}

func (m *mockFileStorage) Open(filename string) (*os.File, error) {
	if _, ok := m.saved[filename]; !ok {
		return nil, os.ErrNotExist
	}
	return os.Open(os.DevNull)
}

func (m *mockFileStorage) Delete(filename string) error {
	delete(m.saved, filename)
	return nil
}

func (m *mockFileStorage) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	return m.removed, nil
}

type mockDownloadSigner struct {
	verifyErr error
}

func (m *mockDownloadSigner) Sign(jobID, relPath string) (string, time.Time, error) {
	return "token-" + jobID, time.Now().Add(time.Hour), nil
}

func (m *mockDownloadSigner) Verify(token string, allowExpired bool) (string, string, time.Time, error) {
	if m.verifyErr != nil {
		return "", "", time.Time{}, m.verifyErr
	}
	relPath := strings.TrimPrefix(token, "path:")
	return "job-1", relPath, time.Now().Add(time.Hour), nil
}

type mockExportQueue struct {
	enqueued []jobs.Job
	err      error
}

func (m *mockExportQueue) Enqueue(job jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

func newTestExportService(audits *mockAuditReader, store *mockExportJobStore, storage *mockFileStorage) (*AuditExportService, *mockExportQueue) {
	svc := NewAuditExportService(audits, store, storage, &mockDownloadSigner{}, AuditExportConfig{APIPrefix: "/api/v1"}, zap.NewNop(), nil, nil)
	queue := &mockExportQueue{}
	svc.SetQueue(queue)
	return svc, queue
}

func fixtureAudits() []models.LockAudit {
	student := "student-1"
	return []models.LockAudit{
		{ID: "audit-1", AdminID: "admin-1", Scope: models.ScopeGlobal, Level: models.LevelChapter, TargetID: "chapter-1", Action: models.ActionLock, CreatedAt: time.Now().UTC()},
		{ID: "audit-2", AdminID: "admin-1", StudentID: &student, Scope: models.ScopePerStudent, Level: models.LevelLesson, TargetID: "lesson-1", Action: models.ActionUnlock, CreatedAt: time.Now().UTC()},
	}
}

func TestExportEnqueueCreatesQueuedJob(t *testing.T) {
	store := newMockExportJobStore()
	svc, queue := newTestExportService(&mockAuditReader{}, store, newMockFileStorage())

	job, err := svc.Enqueue(context.Background(), "admin-1", dto.ExportAuditRequest{Format: models.ExportFormatCSV})
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, job.Status)
	assert.Equal(t, "admin-1", job.CreatedBy)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, job.ID, queue.enqueued[0].Payload)
}

func TestExportEnqueueRejectsUnknownFormat(t *testing.T) {
	svc, queue := newTestExportService(&mockAuditReader{}, newMockExportJobStore(), newMockFileStorage())

	_, err := svc.Enqueue(context.Background(), "admin-1", dto.ExportAuditRequest{Format: "xlsx"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, queue.enqueued)
}

func TestExportEnqueueWithoutQueue(t *testing.T) {
	svc := NewAuditExportService(&mockAuditReader{}, newMockExportJobStore(), newMockFileStorage(), &mockDownloadSigner{}, AuditExportConfig{}, zap.NewNop(), nil, nil)

	_, err := svc.Enqueue(context.Background(), "admin-1", dto.ExportAuditRequest{Format: models.ExportFormatCSV})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestExportEnqueueFailureMarksJobFailed(t *testing.T) {
	store := newMockExportJobStore()
	svc, queue := newTestExportService(&mockAuditReader{}, store, newMockFileStorage())
	queue.err = errors.New("queue full")

	_, err := svc.Enqueue(context.Background(), "admin-1", dto.ExportAuditRequest{Format: models.ExportFormatCSV})
	require.Error(t, err)
	require.Len(t, store.jobs, 1)
	for _, job := range store.jobs {
		assert.Equal(t, models.ExportStatusFailed, job.Status)
		require.NotNil(t, job.ErrorMessage)
	}
}

func TestExportProcessRendersCSVAndSignsURL(t *testing.T) {
	store := newMockExportJobStore()
	storage := newMockFileStorage()
	svc, _ := newTestExportService(&mockAuditReader{audits: fixtureAudits()}, store, storage)

	job, err := svc.Enqueue(context.Background(), "admin-1", dto.ExportAuditRequest{Format: models.ExportFormatCSV})
	require.NoError(t, err)

	err = svc.Process(context.Background(), jobs.Job{ID: job.ID, Type: "lock_audit_export", Payload: job.ID})
	require.NoError(t, err)

	stored := store.jobs[job.ID]
	assert.Equal(t, models.ExportStatusFinished, stored.Status)
	require.NotNil(t, stored.ResultURL)
	assert.True(t, strings.HasPrefix(*stored.ResultURL, "/api/v1/export/"), *stored.ResultURL)
	require.NotNil(t, stored.FinishedAt)
	require.Len(t, storage.saved, 1)

	for _, data := range storage.saved {
		body := string(data)
		assert.Contains(t, body, "audit-1")
		assert.Contains(t, body, "UNLOCK")
	}
}

func TestExportProcessFailureRecordsError(t *testing.T) {
	store := newMockExportJobStore()
	svc, _ := newTestExportService(&mockAuditReader{err: errors.New("db down")}, store, newMockFileStorage())

	job, err := svc.Enqueue(context.Background(), "admin-1", dto.ExportAuditRequest{Format: models.ExportFormatPDF})
	require.NoError(t, err)

	err = svc.Process(context.Background(), jobs.Job{ID: job.ID, Payload: job.ID})
	require.Error(t, err)

	stored := store.jobs[job.ID]
	assert.Equal(t, models.ExportStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "db down")
}

func TestExportProcessRejectsBadPayload(t *testing.T) {
	svc, _ := newTestExportService(&mockAuditReader{}, newMockExportJobStore(), newMockFileStorage())

	err := svc.Process(context.Background(), jobs.Job{ID: "x", Payload: 42})
	require.Error(t, err)
}

func TestExportOpenByTokenRejectsInvalidToken(t *testing.T) {
	storage := newMockFileStorage()
	svc := NewAuditExportService(&mockAuditReader{}, newMockExportJobStore(), storage, &mockDownloadSigner{verifyErr: errors.New("expired")}, AuditExportConfig{}, zap.NewNop(), nil, nil)

	_, _, err := svc.OpenByToken("bad-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportOpenByTokenMissingFile(t *testing.T) {
	storage := newMockFileStorage()
	svc := NewAuditExportService(&mockAuditReader{}, newMockExportJobStore(), storage, &mockDownloadSigner{}, AuditExportConfig{}, zap.NewNop(), nil, nil)

	_, _, err := svc.OpenByToken("path:missing.csv")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestBuildAuditDatasetColumns(t *testing.T) {
	dataset := buildAuditDataset(fixtureAudits())
	assert.Equal(t, []string{"Audit ID", "Admin ID", "Student ID", "Scope", "Level", "Target ID", "Action", "Created At"}, dataset.Headers)
	require.Len(t, dataset.Rows, 2)
	assert.Equal(t, "student-1", dataset.Rows[1]["Student ID"])
	assert.Equal(t, "", dataset.Rows[0]["Student ID"])
}
