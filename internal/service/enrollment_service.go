package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/m5mds/ahmed-academy2/internal/dto"
	"github.com/m5mds/ahmed-academy2/internal/models"
	appErrors "github.com/m5mds/ahmed-academy2/pkg/errors"
)

type enrollmentRepository interface {
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error)
	Upsert(ctx context.Context, enrollment *models.Enrollment) (*models.Enrollment, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

// EnrollmentService manages course subscriptions. A user holds at most one
// enrollment per course; assignment and renewal are the same upsert.
type EnrollmentService struct {
	repo      enrollmentRepository
	users     authUserRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs an EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, users authUserRepository, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, users: users, validator: validate, logger: logger}
}

// Assign creates or renews an enrollment. Renewal replaces expires_at; a
// tier change replaces tier. The single-row-per-pair invariant lives in the
// repository's upsert.
func (s *EnrollmentService) Assign(ctx context.Context, adminID string, req dto.AssignEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	var expiresAt *time.Time
	if req.ExpiresAt != nil && *req.ExpiresAt != "" {
		parsed, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "expires_at must be RFC3339")
		}
		utc := parsed.UTC()
		expiresAt = &utc
	}

	enrollment := &models.Enrollment{
		UserID:    req.UserID,
		CourseID:  req.CourseID,
		Tier:      req.Tier,
		ExpiresAt: expiresAt,
	}
	stored, err := s.repo.Upsert(ctx, enrollment)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to upsert enrollment")
	}

	if s.users != nil {
		if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &adminID,
			Action:     models.AuditActionEnrollmentChange,
			Resource:   "enrollment",
			ResourceID: &stored.ID,
			NewValues:  []byte(`{"tier":"` + string(stored.Tier) + `"}`),
		}); err != nil {
			s.logger.Warn("failed to record enrollment audit log", zap.Error(err))
		}
	}

	return stored, nil
}

// List returns enrollment details for admin listings.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	details, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return details, total, nil
}

// ListByUser returns the caller's enrollments.
func (s *EnrollmentService) ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error) {
	enrollments, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}
