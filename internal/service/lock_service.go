package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/m5mds/ahmed-academy2/internal/dto"
	"github.com/m5mds/ahmed-academy2/internal/models"
	appErrors "github.com/m5mds/ahmed-academy2/pkg/errors"
)

type lockRepository interface {
	Upsert(ctx context.Context, lock *models.ContentLock, audit *models.LockAudit) (*models.ContentLock, error)
	List(ctx context.Context, filter models.LockFilter) ([]models.ContentLock, error)
	ListAudits(ctx context.Context, limit int) ([]models.LockAudit, error)
}

// LockService owns content lock mutations. Every successful mutation lands
// exactly one audit entry; the repository performs both writes in one
// transaction.
type LockService struct {
	repo      lockRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLockService constructs a LockService.
func NewLockService(repo lockRepository, validate *validator.Validate, logger *zap.Logger) *LockService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockService{repo: repo, validator: validate, logger: logger}
}

// SetLock validates and upserts the lock row for the request's unique key.
func (s *LockService) SetLock(ctx context.Context, adminID string, req dto.SetLockRequest) (*models.ContentLock, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lock payload")
	}
	if err := validateLockKey(req); err != nil {
		return nil, err
	}

	studentID := req.StudentID
	locked := *req.Locked

	lock := &models.ContentLock{
		Scope:     req.Scope,
		Level:     req.Level,
		TargetID:  req.TargetID,
		StudentID: studentID,
		Locked:    locked,
		CreatedBy: adminID,
	}
	action := models.ActionUnlock
	if locked {
		action = models.ActionLock
	}
	audit := &models.LockAudit{
		AdminID:   adminID,
		StudentID: studentID,
		Scope:     req.Scope,
		Level:     req.Level,
		TargetID:  req.TargetID,
		Action:    action,
	}

	stored, err := s.repo.Upsert(ctx, lock, audit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist lock")
	}

	s.logger.Info("content lock mutated",
		zap.String("scope", string(req.Scope)),
		zap.String("level", string(req.Level)),
		zap.String("target_id", req.TargetID),
		zap.Bool("locked", locked),
		zap.String("admin_id", adminID),
	)
	return stored, nil
}

// List returns lock rows filtered by optional scope/level.
func (s *LockService) List(ctx context.Context, filter models.LockFilter) ([]models.ContentLock, error) {
	locks, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list locks")
	}
	return locks, nil
}

// Audits returns the most recent lock audit entries.
func (s *LockService) Audits(ctx context.Context, limit int) ([]models.LockAudit, error) {
	audits, err := s.repo.ListAudits(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lock audits")
	}
	return audits, nil
}

// validateLockKey rejects scope/level/target combinations that cannot form a
// valid lock key. Nothing is persisted on rejection.
func validateLockKey(req dto.SetLockRequest) error {
	if req.Scope == models.ScopePerStudent && (req.StudentID == nil || *req.StudentID == "") {
		return appErrors.Clone(appErrors.ErrValidation, "student_id required for PER_STUDENT scope")
	}
	if req.Scope == models.ScopeGlobal && req.StudentID != nil && *req.StudentID != "" {
		return appErrors.Clone(appErrors.ErrValidation, "student_id not allowed for GLOBAL scope")
	}
	if req.Level == models.LevelTier && !models.ValidTier(models.Tier(req.TargetID)) {
		return appErrors.Clone(appErrors.ErrValidation, "target_id must be a known tier for TIER level")
	}
	return nil
}
