package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/m5mds/ahmed-academy2/internal/models"
	appErrors "github.com/m5mds/ahmed-academy2/pkg/errors"
)

type entitlementLessonReader interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
}

type entitlementEnrollmentReader interface {
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
}

type lockMatcher interface {
	HasStudentUnlock(ctx context.Context, studentID string, targets []models.LockTarget) (bool, error)
	HasGlobalLock(ctx context.Context, targets []models.LockTarget) (bool, error)
}

// EntitlementService decides whether a user may access a lesson. Checks run
// in a fixed order: preview exemption, enrollment existence, expiry,
// per-student unlock, global lock, tier entitlement. The first check that
// resolves wins; an expired subscription is never rescued by an unlock or a
// tier match, and a per-student unlock beats any global lock.
type EntitlementService struct {
	lessons     entitlementLessonReader
	enrollments entitlementEnrollmentReader
	locks       lockMatcher
	logger      *zap.Logger
	now         func() time.Time
}

// NewEntitlementService constructs an EntitlementService.
func NewEntitlementService(lessons entitlementLessonReader, enrollments entitlementEnrollmentReader, locks lockMatcher, logger *zap.Logger) *EntitlementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntitlementService{
		lessons:     lessons,
		enrollments: enrollments,
		locks:       locks,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate returns the access verdict for a user and lesson. A denial is a
// normal result; the error return is reserved for infrastructure failures.
func (s *EntitlementService) Evaluate(ctx context.Context, userID, lessonID string) (*models.AccessVerdict, error) {
	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Deny(models.DenyNotFound), nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}

	if lesson.IsPreview {
		return models.Allow(), nil
	}

	enrollment, err := s.enrollments.FindByUserAndCourse(ctx, userID, lesson.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Deny(models.DenyNotEnrolled), nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if enrollment.ExpiredAt(s.now()) {
		return models.Deny(models.DenySubscriptionExpired), nil
	}

	targets := models.LessonTargets(lesson.ID, lesson.ChapterID, lesson.Tier)

	unlocked, err := s.locks.HasStudentUnlock(ctx, userID, targets)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to query student unlocks")
	}
	if unlocked {
		return models.Allow(), nil
	}

	locked, err := s.locks.HasGlobalLock(ctx, targets)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to query global locks")
	}
	if locked {
		return models.Deny(models.DenyContentLocked), nil
	}

	if !enrollment.Tier.Covers(lesson.Tier) {
		return models.Deny(models.DenyTierMismatch), nil
	}

	return models.Allow(), nil
}

// LockStatus is the batch variant used when annotating a content tree. The
// caller has already resolved the enrollment, so expiry and tier arrive as
// pre-computed inputs. Its precedence mirrors Evaluate minus the enrollment
// existence step and must agree with Evaluate for every lesson.
func (s *EntitlementService) LockStatus(ctx context.Context, userID, lessonID string, lessonTier models.Tier, chapterID *string, enrollmentTier models.Tier, isExpired bool) (*models.LockStatus, error) {
	if isExpired {
		return &models.LockStatus{Locked: true, Reason: models.DenySubscriptionExpired}, nil
	}

	targets := models.LessonTargets(lessonID, chapterID, lessonTier)

	unlocked, err := s.locks.HasStudentUnlock(ctx, userID, targets)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to query student unlocks")
	}
	if unlocked {
		return &models.LockStatus{Locked: false}, nil
	}

	locked, err := s.locks.HasGlobalLock(ctx, targets)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to query global locks")
	}
	if locked {
		return &models.LockStatus{Locked: true, Reason: models.DenyContentLocked}, nil
	}

	if enrollmentTier != "" && !enrollmentTier.Covers(lessonTier) {
		return &models.LockStatus{Locked: true, Reason: models.DenyTierMismatch}, nil
	}

	return &models.LockStatus{Locked: false}, nil
}
