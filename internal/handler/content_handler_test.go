package handler

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/m5mds/ahmed-academy2/internal/middleware"
	"github.com/m5mds/ahmed-academy2/internal/models"
	"github.com/m5mds/ahmed-academy2/internal/service"
)

type courseReaderStub struct {
	course *models.Course
}

func (s *courseReaderStub) List(ctx context.Context, publishedOnly bool) ([]models.Course, error) {
	return []models.Course{*s.course}, nil
}

func (s *courseReaderStub) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if s.course == nil || s.course.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.course, nil
}

type chapterReaderStub struct {
	chapters []models.Chapter
}

func (s *chapterReaderStub) ListByCourse(ctx context.Context, courseID string) ([]models.Chapter, error) {
	return s.chapters, nil
}

type lessonReaderStub struct {
	lessons map[string]*models.Lesson
}

func (s *lessonReaderStub) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	lesson, ok := s.lessons[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return lesson, nil
}

func (s *lessonReaderStub) ListByCourse(ctx context.Context, courseID string) ([]models.Lesson, error) {
	out := make([]models.Lesson, 0, len(s.lessons))
	for _, l := range s.lessons {
		out = append(out, *l)
	}
	return out, nil
}

type enrollmentReaderStub struct {
	enrollment *models.Enrollment
}

func (s *enrollmentReaderStub) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	if s.enrollment == nil {
		return nil, sql.ErrNoRows
	}
	return s.enrollment, nil
}

type lockMatcherStub struct {
	globalLocked bool
}

func (s *lockMatcherStub) HasStudentUnlock(ctx context.Context, studentID string, targets []models.LockTarget) (bool, error) {
	return false, nil
}

func (s *lockMatcherStub) HasGlobalLock(ctx context.Context, targets []models.LockTarget) (bool, error) {
	return s.globalLocked, nil
}

type signerStub struct{}

func (s *signerStub) SignedPlaybackURL(videoID string) (string, error) {
	return "https://videos.test/" + videoID, nil
}

func newContentHandlerFixture(enrollment *models.Enrollment, globalLocked bool) *ContentHandler {
	video := "vid-1"
	chapterID := "chapter-1"
	lessons := &lessonReaderStub{lessons: map[string]*models.Lesson{
		"l1": {ID: "l1", CourseID: "course-1", ChapterID: &chapterID, Title: "Intro", Tier: models.TierMid1, VideoID: &video},
	}}
	enrollments := &enrollmentReaderStub{enrollment: enrollment}
	locks := &lockMatcherStub{globalLocked: globalLocked}

	evaluator := service.NewEntitlementService(lessons, enrollments, locks, zap.NewNop())
	content := service.NewContentService(
		&courseReaderStub{course: &models.Course{ID: "course-1", Title: "Algebra", IsPublished: true}},
		&chapterReaderStub{chapters: []models.Chapter{{ID: chapterID, CourseID: "course-1", Title: "Basics", Tier: models.TierMid1}}},
		lessons, enrollments, evaluator, &signerStub{}, nil, 0, zap.NewNop(),
	)
	return NewContentHandler(content, service.NewMetricsService())
}

func studentContext(t *testing.T, target string, params gin.Params) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, target, nil)
	c.Request = req
	c.Params = params
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})
	return c, w
}

func TestContentHandlerChapters(t *testing.T) {
	handler := newContentHandlerFixture(&models.Enrollment{
		ID: "enr-1", UserID: "student-1", CourseID: "course-1", Tier: models.TierMid1,
	}, false)

	c, w := studentContext(t, "/content/chapters?courseId=course-1", nil)
	handler.Chapters(c)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Basics")
}

func TestContentHandlerChaptersMissingCourseID(t *testing.T) {
	handler := newContentHandlerFixture(nil, false)

	c, w := studentContext(t, "/content/chapters", nil)
	handler.Chapters(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContentHandlerVideoAllowed(t *testing.T) {
	handler := newContentHandlerFixture(&models.Enrollment{
		ID: "enr-1", UserID: "student-1", CourseID: "course-1", Tier: models.TierMid1,
	}, false)

	c, w := studentContext(t, "/content/video/l1", gin.Params{{Key: "lessonId", Value: "l1"}})
	handler.Video(c)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "https://videos.test/vid-1")
}

func TestContentHandlerVideoDenyMapping(t *testing.T) {
	cases := []struct {
		name       string
		enrollment *models.Enrollment
		locked     bool
		lessonID   string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown lesson",
			enrollment: &models.Enrollment{UserID: "student-1", CourseID: "course-1", Tier: models.TierMid1},
			lessonID:   "missing",
			wantStatus: http.StatusNotFound,
			wantCode:   string(models.DenyNotFound),
		},
		{
			name:       "not enrolled",
			lessonID:   "l1",
			wantStatus: http.StatusForbidden,
			wantCode:   string(models.DenyNotEnrolled),
		},
		{
			name:       "globally locked",
			enrollment: &models.Enrollment{UserID: "student-1", CourseID: "course-1", Tier: models.TierMid1},
			locked:     true,
			lessonID:   "l1",
			wantStatus: http.StatusForbidden,
			wantCode:   string(models.DenyContentLocked),
		},
		{
			name:       "tier mismatch",
			enrollment: &models.Enrollment{UserID: "student-1", CourseID: "course-1", Tier: models.TierFinal},
			lessonID:   "l1",
			wantStatus: http.StatusForbidden,
			wantCode:   string(models.DenyTierMismatch),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newContentHandlerFixture(tc.enrollment, tc.locked)

			c, w := studentContext(t, "/content/video/"+tc.lessonID, gin.Params{{Key: "lessonId", Value: tc.lessonID}})
			handler.Video(c)
			require.Equal(t, tc.wantStatus, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), tc.wantCode)
		})
	}
}

func TestContentHandlerVideoUnauthenticated(t *testing.T) {
	handler := newContentHandlerFixture(nil, false)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/content/video/l1", nil)
	c.Request = req

	handler.Video(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
