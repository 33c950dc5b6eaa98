package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/m5mds/ahmed-academy2/internal/dto"
	"github.com/m5mds/ahmed-academy2/internal/models"
	appErrors "github.com/m5mds/ahmed-academy2/pkg/errors"
)

type chapterRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Chapter, error)
	FindByID(ctx context.Context, id string) (*models.Chapter, error)
	Create(ctx context.Context, chapter *models.Chapter) error
	UpdateTitle(ctx context.Context, id, title string) error
	UpdateTierCascade(ctx context.Context, id string, tier models.Tier) error
	Reorder(ctx context.Context, courseID string, orderedIDs []string) error
	Delete(ctx context.Context, id string) error
}

// ChapterService manages chapters. Tier changes cascade to the chapter's
// lessons inside a single transaction so the tree never shows a mixed state.
type ChapterService struct {
	repo        chapterRepository
	invalidator catalogInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewChapterService constructs a ChapterService.
func NewChapterService(repo chapterRepository, invalidator catalogInvalidator, validate *validator.Validate, logger *zap.Logger) *ChapterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChapterService{repo: repo, invalidator: invalidator, validator: validate, logger: logger}
}

// ListByCourse returns a course's chapters ordered by order_index.
func (s *ChapterService) ListByCourse(ctx context.Context, courseID string) ([]models.Chapter, error) {
	chapters, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list chapters")
	}
	return chapters, nil
}

// Create adds a chapter to a course.
func (s *ChapterService) Create(ctx context.Context, req dto.CreateChapterRequest) (*models.Chapter, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid chapter payload")
	}

	chapter := &models.Chapter{
		ID:         uuid.NewString(),
		CourseID:   req.CourseID,
		Title:      req.Title,
		Tier:       req.Tier,
		OrderIndex: req.OrderIndex,
	}
	if err := s.repo.Create(ctx, chapter); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create chapter")
	}
	s.invalidate(ctx)
	return chapter, nil
}

// Update applies title and tier changes. A tier change rewrites the
// chapter's lessons to the same tier in the same transaction.
func (s *ChapterService) Update(ctx context.Context, id string, req dto.UpdateChapterRequest) (*models.Chapter, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid chapter payload")
	}

	if req.Title != nil {
		if err := s.repo.UpdateTitle(ctx, id, *req.Title); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "chapter not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update chapter title")
		}
	}

	if req.Tier != nil {
		if err := s.repo.UpdateTierCascade(ctx, id, *req.Tier); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "chapter not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update chapter tier")
		}
		s.logger.Info("chapter tier cascaded to lessons",
			zap.String("chapter_id", id),
			zap.String("tier", string(*req.Tier)),
		)
	}

	chapter, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "chapter not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load chapter")
	}
	s.invalidate(ctx)
	return chapter, nil
}

// Reorder replaces the ordering of a course's chapters.
func (s *ChapterService) Reorder(ctx context.Context, req dto.ReorderChaptersRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reorder payload")
	}
	if err := s.repo.Reorder(ctx, req.CourseID, req.OrderedIDs); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reorder chapters")
	}
	s.invalidate(ctx)
	return nil
}

// Delete removes a chapter.
func (s *ChapterService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "chapter not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete chapter")
	}
	s.invalidate(ctx)
	return nil
}

func (s *ChapterService) invalidate(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.InvalidateCatalog(ctx)
	}
}
