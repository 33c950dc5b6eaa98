package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/m5mds/ahmed-academy2/internal/dto"
	"github.com/m5mds/ahmed-academy2/internal/models"
	appErrors "github.com/m5mds/ahmed-academy2/pkg/errors"
)

type catalogCourseReader interface {
	List(ctx context.Context, publishedOnly bool) ([]models.Course, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type catalogChapterReader interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.Chapter, error)
}

type catalogLessonReader interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Lesson, error)
}

type contentCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type accessEvaluator interface {
	Evaluate(ctx context.Context, userID, lessonID string) (*models.AccessVerdict, error)
	LockStatus(ctx context.Context, userID, lessonID string, lessonTier models.Tier, chapterID *string, enrollmentTier models.Tier, isExpired bool) (*models.LockStatus, error)
}

type playbackSigner interface {
	SignedPlaybackURL(videoID string) (string, error)
}

// catalogPayload is the cacheable part of a course's content tree. Lock and
// enrollment state never enter the cache; they are evaluated per request.
type catalogPayload struct {
	Course   models.Course   `json:"course"`
	Chapters []models.Chapter `json:"chapters"`
	Lessons  []models.Lesson  `json:"lessons"`
	Courses  []dto.CourseRef  `json:"courses"`
}

// ContentService renders the student-facing content tree and grants access
// to lesson videos through the entitlement evaluator.
type ContentService struct {
	courses     catalogCourseReader
	chapters    catalogChapterReader
	lessons     catalogLessonReader
	enrollments entitlementEnrollmentReader
	evaluator   accessEvaluator
	signer      playbackSigner
	cache       contentCache
	cacheTTL    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewContentService constructs a ContentService. cache may be nil to disable
// catalog caching.
func NewContentService(
	courses catalogCourseReader,
	chapters catalogChapterReader,
	lessons catalogLessonReader,
	enrollments entitlementEnrollmentReader,
	evaluator accessEvaluator,
	signer playbackSigner,
	cache contentCache,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *ContentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentService{
		courses:     courses,
		chapters:    chapters,
		lessons:     lessons,
		enrollments: enrollments,
		evaluator:   evaluator,
		signer:      signer,
		cache:       cache,
		cacheTTL:    cacheTTL,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ChapterTree returns the course's chapters grouped by tier, every lesson
// annotated with the caller's lock state. A student with no enrollment gets
// empty groups rather than an error.
func (s *ContentService) ChapterTree(ctx context.Context, userID, courseID string) (*dto.ContentTreeResponse, error) {
	payload, err := s.loadCatalog(ctx, courseID)
	if err != nil {
		return nil, err
	}

	resp := &dto.ContentTreeResponse{
		Grouped: map[models.Tier][]dto.ChapterTree{},
		Courses: payload.Courses,
	}

	enrollment, err := s.enrollments.FindByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return resp, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	isExpired := enrollment.ExpiredAt(s.now())
	resp.Enrollment = &dto.EnrollmentSummary{Tier: enrollment.Tier, ExpiresAt: enrollment.ExpiresAt}

	lessonsByChapter := make(map[string][]models.Lesson, len(payload.Chapters))
	for _, lesson := range payload.Lessons {
		if lesson.ChapterID == nil {
			continue
		}
		lessonsByChapter[*lesson.ChapterID] = append(lessonsByChapter[*lesson.ChapterID], lesson)
	}

	for _, chapter := range payload.Chapters {
		tree := dto.ChapterTree{
			ID:         chapter.ID,
			Title:      chapter.Title,
			Tier:       chapter.Tier,
			OrderIndex: chapter.OrderIndex,
			Lessons:    make([]dto.LessonItem, 0, len(lessonsByChapter[chapter.ID])),
		}
		for _, lesson := range lessonsByChapter[chapter.ID] {
			item, err := s.annotateLesson(ctx, userID, lesson, enrollment.Tier, isExpired)
			if err != nil {
				return nil, err
			}
			tree.Lessons = append(tree.Lessons, item)
		}
		resp.Grouped[chapter.Tier] = append(resp.Grouped[chapter.Tier], tree)
	}

	for tier := range resp.Grouped {
		group := resp.Grouped[tier]
		sort.SliceStable(group, func(i, j int) bool { return group[i].OrderIndex < group[j].OrderIndex })
	}

	return resp, nil
}

// VideoAccess runs the full evaluator for a lesson. On allow it returns the
// signed playback URL; on deny the verdict carries the reason and the
// response is nil.
func (s *ContentService) VideoAccess(ctx context.Context, userID, lessonID string) (*dto.VideoAccessResponse, *models.AccessVerdict, error) {
	verdict, err := s.evaluator.Evaluate(ctx, userID, lessonID)
	if err != nil {
		return nil, nil, err
	}
	if !verdict.Allowed {
		return nil, verdict, nil
	}

	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.Deny(models.DenyNotFound), nil
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	if lesson.VideoID == nil || *lesson.VideoID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "lesson has no video")
	}

	signedURL, err := s.signer.SignedPlaybackURL(*lesson.VideoID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign playback url")
	}

	return &dto.VideoAccessResponse{
		SignedURL:  signedURL,
		TrackingID: uuid.NewString(),
	}, verdict, nil
}

// InvalidateCatalog drops cached catalog payloads after an admin mutation.
func (s *ContentService) InvalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "catalog:*"); err != nil {
		s.logger.Warn("failed to invalidate catalog cache", zap.Error(err))
	}
}

func (s *ContentService) annotateLesson(ctx context.Context, userID string, lesson models.Lesson, enrollmentTier models.Tier, isExpired bool) (dto.LessonItem, error) {
	item := dto.LessonItem{
		ID:              lesson.ID,
		Title:           lesson.Title,
		DurationMinutes: lesson.DurationMinutes,
		IsPreview:       lesson.IsPreview,
		Tier:            lesson.Tier,
	}
	if lesson.IsPreview {
		return item, nil
	}

	status, err := s.evaluator.LockStatus(ctx, userID, lesson.ID, lesson.Tier, lesson.ChapterID, enrollmentTier, isExpired)
	if err != nil {
		return dto.LessonItem{}, err
	}
	item.Locked = status.Locked
	item.LockReason = status.Reason
	return item, nil
}

func (s *ContentService) loadCatalog(ctx context.Context, courseID string) (*catalogPayload, error) {
	cacheKey := fmt.Sprintf("catalog:course:%s", courseID)
	if s.cache != nil {
		var cached catalogPayload
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("catalog cache read failed", zap.Error(err))
		}
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.IsPublished {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}

	chapters, err := s.chapters.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load chapters")
	}
	lessons, err := s.lessons.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lessons")
	}
	courses, err := s.courses.List(ctx, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course index")
	}

	refs := make([]dto.CourseRef, 0, len(courses))
	for _, c := range courses {
		refs = append(refs, dto.CourseRef{ID: c.ID, Title: c.Title})
	}

	payload := &catalogPayload{
		Course:   *course,
		Chapters: chapters,
		Lessons:  lessons,
		Courses:  refs,
	}

	if s.cache != nil && s.cacheTTL > 0 {
		if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL); err != nil {
			s.logger.Warn("catalog cache write failed", zap.Error(err))
		}
	}
	return payload, nil
}
