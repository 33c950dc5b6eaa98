package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/m5mds/ahmed-academy2/internal/dto"
	"github.com/m5mds/ahmed-academy2/internal/models"
	"github.com/m5mds/ahmed-academy2/internal/repository"
	appErrors "github.com/m5mds/ahmed-academy2/pkg/errors"
	"github.com/m5mds/ahmed-academy2/pkg/export"
	"github.com/m5mds/ahmed-academy2/pkg/jobs"
)

type auditReader interface {
	ListAuditsBetween(ctx context.Context, from, to *time.Time) ([]models.LockAudit, error)
}

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type downloadSigner interface {
	Sign(jobID, relPath string) (string, time.Time, error)
	Verify(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error)
}

type exportQueue interface {
	Enqueue(job jobs.Job) error
}

// AuditExportConfig tunes export behaviour.
type AuditExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// AuditExportService produces lock-audit compliance exports asynchronously.
// Queueing returns immediately; a worker renders the file, stores it under
// the export directory and records a signed download URL on the job row.
type AuditExportService struct {
	audits  auditReader
	store   exportJobStore
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  downloadSigner
	queue   exportQueue
	logger  *zap.Logger
	cfg     AuditExportConfig
}

// NewAuditExportService constructs an AuditExportService. The queue is
// attached afterwards via SetQueue so the queue handler can close over the
// service.
func NewAuditExportService(audits auditReader, store exportJobStore, storage fileStorage, signer downloadSigner, cfg AuditExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *AuditExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &AuditExportService{
		audits:  audits,
		store:   store,
		storage: storage,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// SetQueue attaches the worker queue used for background processing.
func (s *AuditExportService) SetQueue(queue exportQueue) {
	s.queue = queue
}

// Enqueue persists a QUEUED job row and schedules background generation.
func (s *AuditExportService) Enqueue(ctx context.Context, adminID string, req dto.ExportAuditRequest) (*models.ExportJob, error) {
	if req.Format != models.ExportFormatCSV && req.Format != models.ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "exports are disabled")
	}

	job := &models.ExportJob{
		ID:        uuid.NewString(),
		Params:    models.ExportJobParams{Format: req.Format},
		Status:    models.ExportStatusQueued,
		CreatedBy: adminID,
	}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "lock_audit_export", Payload: job.ID}); err != nil {
		msg := err.Error()
		failed := models.ExportStatusFailed
		if updErr := s.store.Update(ctx, job.ID, repository.UpdateExportJobParams{Status: &failed, ErrorMessage: &msg}); updErr != nil {
			s.logger.Error("failed to mark export job as failed", zap.String("job_id", job.ID), zap.Error(updErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}

	return job, nil
}

// Status returns the job row for polling.
func (s *AuditExportService) Status(ctx context.Context, jobID string) (*models.ExportJob, error) {
	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	return job, nil
}

// Process is the queue handler: it renders the export for the given job id.
func (s *AuditExportService) Process(ctx context.Context, job jobs.Job) error {
	jobID, ok := job.Payload.(string)
	if !ok || jobID == "" {
		return fmt.Errorf("export job payload must be a job id")
	}

	stored, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load export job %s: %w", jobID, err)
	}

	processing := models.ExportStatusProcessing
	if err := s.store.Update(ctx, jobID, repository.UpdateExportJobParams{Status: &processing}); err != nil {
		s.logger.Warn("failed to mark export job processing", zap.String("job_id", jobID), zap.Error(err))
	}

	url, genErr := s.generate(ctx, stored)
	now := time.Now().UTC()
	if genErr != nil {
		msg := genErr.Error()
		failed := models.ExportStatusFailed
		if err := s.store.Update(ctx, jobID, repository.UpdateExportJobParams{Status: &failed, ErrorMessage: &msg, FinishedAt: &now}); err != nil {
			s.logger.Error("failed to record export failure", zap.String("job_id", jobID), zap.Error(err))
		}
		return genErr
	}

	finished := models.ExportStatusFinished
	if err := s.store.Update(ctx, jobID, repository.UpdateExportJobParams{Status: &finished, ResultURL: &url, FinishedAt: &now}); err != nil {
		return fmt.Errorf("record export result %s: %w", jobID, err)
	}

	s.logger.Info("lock audit export finished",
		zap.String("job_id", jobID),
		zap.String("format", string(stored.Params.Format)),
	)
	return nil
}

// OpenByToken verifies a download token and opens the underlying file.
func (s *AuditExportService) OpenByToken(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Verify(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export file not found")
	}
	return file, relPath, nil
}

// Cleanup removes stored exports older than the configured TTL.
func (s *AuditExportService) Cleanup() ([]string, error) {
	return s.storage.CleanupOlderThan(s.cfg.ResultTTL)
}

func (s *AuditExportService) generate(ctx context.Context, job *models.ExportJob) (string, error) {
	audits, err := s.audits.ListAuditsBetween(ctx, job.Params.From, job.Params.To)
	if err != nil {
		return "", fmt.Errorf("load lock audits: %w", err)
	}

	dataset := buildAuditDataset(audits)
	title := fmt.Sprintf("Lock Audit Trail %s", time.Now().UTC().Format("2006-01-02"))

	var payload []byte
	switch job.Params.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("lock_audit_%s.%s", time.Now().UTC().Format("20060102_150405"), job.Params.Format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return "", fmt.Errorf("store export: %w", err)
	}

	token, _, err := s.signer.Sign(job.ID, relPath)
	if err != nil {
		return "", fmt.Errorf("sign download token: %w", err)
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return fmt.Sprintf("%s/export/%s", prefix, token), nil
}

func buildAuditDataset(audits []models.LockAudit) export.Dataset {
	rows := make([]map[string]string, 0, len(audits))
	for _, a := range audits {
		studentID := ""
		if a.StudentID != nil {
			studentID = *a.StudentID
		}
		rows = append(rows, map[string]string{
			"Audit ID":   a.ID,
			"Admin ID":   a.AdminID,
			"Student ID": studentID,
			"Scope":      string(a.Scope),
			"Level":      string(a.Level),
			"Target ID":  a.TargetID,
			"Action":     string(a.Action),
			"Created At": a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return export.Dataset{
		Headers: []string{"Audit ID", "Admin ID", "Student ID", "Scope", "Level", "Target ID", "Action", "Created At"},
		Rows:    rows,
	}
}
