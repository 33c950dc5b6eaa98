package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/m5mds/ahmed-academy2/internal/models"
)

type mockLessonReader struct {
	lessons map[string]*models.Lesson
	err     error
}

func (m *mockLessonReader) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	if m.err != nil {
		return nil, m.err
	}
	lesson, ok := m.lessons[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return lesson, nil
}

type mockEnrollmentReader struct {
	enrollments map[string]*models.Enrollment
	err         error
}

func enrollmentKey(userID, courseID string) string {
	return userID + "/" + courseID
}

func (m *mockEnrollmentReader) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	if m.err != nil {
		return nil, m.err
	}
	enrollment, ok := m.enrollments[enrollmentKey(userID, courseID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return enrollment, nil
}

// mockLockStore mirrors the repository's matching semantics: a query matches
// when any candidate target appears in the configured set.
type mockLockStore struct {
	unlocks map[string][]models.LockTarget
	globals []models.LockTarget
	err     error
}

func targetsIntersect(a, b []models.LockTarget) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func (m *mockLockStore) HasStudentUnlock(ctx context.Context, studentID string, targets []models.LockTarget) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return targetsIntersect(m.unlocks[studentID], targets), nil
}

func (m *mockLockStore) HasGlobalLock(ctx context.Context, targets []models.LockTarget) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return targetsIntersect(m.globals, targets), nil
}

func strPtr(s string) *string { return &s }

func newTestEvaluator(lessons *mockLessonReader, enrollments *mockEnrollmentReader, locks *mockLockStore) *EntitlementService {
	svc := NewEntitlementService(lessons, enrollments, locks, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func fixtureLesson(id string, tier models.Tier, preview bool) *models.Lesson {
	return &models.Lesson{
		ID:        id,
		CourseID:  "course-1",
		ChapterID: strPtr("chapter-1"),
		Title:     "Lesson " + id,
		Tier:      tier,
		IsPreview: preview,
	}
}

func fixtureEnrollment(tier models.Tier, expiresAt *time.Time) *models.Enrollment {
	return &models.Enrollment{
		ID:        "enr-1",
		UserID:    "student-1",
		CourseID:  "course-1",
		Tier:      tier,
		ExpiresAt: expiresAt,
	}
}

func TestEvaluateUnknownLesson(t *testing.T) {
	svc := newTestEvaluator(&mockLessonReader{lessons: map[string]*models.Lesson{}}, &mockEnrollmentReader{}, &mockLockStore{})

	verdict, err := svc.Evaluate(context.Background(), "student-1", "missing")
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, models.DenyNotFound, verdict.Reason)
}

func TestEvaluatePreviewBypassesEverything(t *testing.T) {
	lessons := &mockLessonReader{lessons: map[string]*models.Lesson{
		"l1": fixtureLesson("l1", models.TierFinal, true),
	}}
	// No enrollment, and the lesson's chapter is globally locked.
	locks := &mockLockStore{globals: []models.LockTarget{models.ChapterTarget("chapter-1")}}
	svc := newTestEvaluator(lessons, &mockEnrollmentReader{enrollments: map[string]*models.Enrollment{}}, locks)

	verdict, err := svc.Evaluate(context.Background(), "student-1", "l1")
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
}

func TestEvaluateNotEnrolled(t *testing.T) {
	lessons := &mockLessonReader{lessons: map[string]*models.Lesson{
		"l1": fixtureLesson("l1", models.TierMid1, false),
	}}
	svc := newTestEvaluator(lessons, &mockEnrollmentReader{enrollments: map[string]*models.Enrollment{}}, &mockLockStore{})

	verdict, err := svc.Evaluate(context.Background(), "student-1", "l1")
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, models.DenyNotEnrolled, verdict.Reason)
}

func TestEvaluateExpiryBeatsUnlock(t *testing.T) {
	lessons := &mockLessonReader{lessons: map[string]*models.Lesson{
		"l1": fixtureLesson("l1", models.TierMid1, false),
	}}
	expired := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	enrollments := &mockEnrollmentReader{enrollments: map[string]*models.Enrollment{
		enrollmentKey("student-1", "course-1"): fixtureEnrollment(models.TierMid1, &expired),
	}}
	// The student holds an unlock for the exact lesson; it must not rescue
	// an expired subscription.
	locks := &mockLockStore{unlocks: map[string][]models.LockTarget{
		"student-1": {models.LessonTarget("l1")},
	}}
	svc := newTestEvaluator(lessons, enrollments, locks)

	verdict, err := svc.Evaluate(context.Background(), "student-1", "l1")
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, models.DenySubscriptionExpired, verdict.Reason)
}

func TestEvaluateNilExpiryNeverExpires(t *testing.T) {
	lessons := &mockLessonReader{lessons: map[string]*models.Lesson{
		"l1": fixtureLesson("l1", models.TierMid1, false),
	}}
	enrollments := &mockEnrollmentReader{enrollments: map[string]*models.Enrollment{
		enrollmentKey("student-1", "course-1"): fixtureEnrollment(models.TierMid1, nil),
	}}
	svc := newTestEvaluator(lessons, enrollments, &mockLockStore{})

	verdict, err := svc.Evaluate(context.Background(), "student-1", "l1")
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
}

func TestEvaluateStudentUnlockBeatsGlobalLock(t *testing.T) {
	lessons := &mockLessonReader{lessons: map[string]*models.Lesson{
		"l1": fixtureLesson("l1", models.TierMid1, false),
	}}
	enrollments := &mockEnrollmentReader{enrollments: map[string]*models.Enrollment{
		enrollmentKey("student-1", "course-1"): fixtureEnrollment(models.TierMid1, nil),
	}}
	locks := &mockLockStore{
		unlocks: map[string][]models.LockTarget{"student-1": {models.ChapterTarget("chapter-1")}},
		globals: []models.LockTarget{models.LessonTarget("l1")},
	}
	svc := newTestEvaluator(lessons, enrollments, locks)

	verdict, err := svc.Evaluate(context.Background(), "student-1", "l1")
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
}

func TestEvaluateStudentUnlockBeatsTierMismatch(t *testing.T) {
	lessons := &mockLessonReader{lessons: map[string]*models.Lesson{
		"l1": fixtureLesson("l1", models.TierFinal, false),
	}}
	enrollments := &mockEnrollmentReader{enrollments: map[string]*models.Enrollment{
		enrollmentKey("student-1", "course-1"): fixtureEnrollment(models.TierMid1, nil),
	}}
	locks := &mockLockStore{unlocks: map[string][]models.LockTarget{
		"student-1": {models.LessonTarget("l1")},
	}}
	svc := newTestEvaluator(lessons, enrollments, locks)

	verdict, err := svc.Evaluate(context.Background(), "student-1", "l1")
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
}

func TestEvaluateGlobalLockBeatsTierMatch(t *testing.T) {
	lessons := &mockLessonReader{lessons: map[string]*models.Lesson{
		"l1": fixtureLesson("l1", models.TierMid1, false),
	}}
	enrollments := &mockEnrollmentReader{enrollments: map[string]*models.Enrollment{
		enrollmentKey("student-1", "course-1"): fixtureEnrollment(models.TierMid1, nil),
	}}

	for name, target := range map[string]models.LockTarget{
		"lesson":  models.LessonTarget("l1"),
		"chapter": models.ChapterTarget("chapter-1"),
		"tier":    models.TierTarget(models.TierMid1),
	} {
		t.Run(name, func(t *testing.T) {
			locks := &mockLockStore{globals: []models.LockTarget{target}}
			svc := newTestEvaluator(lessons, enrollments, locks)

			verdict, err := svc.Evaluate(context.Background(), "student-1", "l1")
			require.NoError(t, err)
			assert.False(t, verdict.Allowed)
			assert.Equal(t, models.DenyContentLocked, verdict.Reason)
		})
	}
}

func TestEvaluateTierRules(t *testing.T) {
	cases := []struct {
		name       string
		enrollment models.Tier
		lesson     models.Tier
		allowed    bool
	}{
		{"exact match", models.TierMid2, models.TierMid2, true},
		{"full dominates", models.TierFull, models.TierFinal, true},
		{"mismatch", models.TierMid1, models.TierFinal, false},
		{"full content needs full", models.TierMid1, models.TierFull, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lessons := &mockLessonReader{lessons: map[string]*models.Lesson{
				"l1": fixtureLesson("l1", tc.lesson, false),
			}}
			enrollments := &mockEnrollmentReader{enrollments: map[string]*models.Enrollment{
				enrollmentKey("student-1", "course-1"): fixtureEnrollment(tc.enrollment, nil),
			}}
			svc := newTestEvaluator(lessons, enrollments, &mockLockStore{})

			verdict, err := svc.Evaluate(context.Background(), "student-1", "l1")
			require.NoError(t, err)
			assert.Equal(t, tc.allowed, verdict.Allowed)
			if !tc.allowed {
				assert.Equal(t, models.DenyTierMismatch, verdict.Reason)
			}
		})
	}
}

func TestEvaluateInfrastructureErrorIsNotAVerdict(t *testing.T) {
	lessons := &mockLessonReader{err: errors.New("connection refused")}
	svc := newTestEvaluator(lessons, &mockEnrollmentReader{}, &mockLockStore{})

	verdict, err := svc.Evaluate(context.Background(), "student-1", "l1")
	require.Error(t, err)
	assert.Nil(t, verdict)
}

// Lessons without a chapter must not produce a chapter lock candidate.
func TestEvaluateStandaloneLessonIgnoresChapterLocks(t *testing.T) {
	lesson := fixtureLesson("l1", models.TierMid1, false)
	lesson.ChapterID = nil
	lessons := &mockLessonReader{lessons: map[string]*models.Lesson{"l1": lesson}}
	enrollments := &mockEnrollmentReader{enrollments: map[string]*models.Enrollment{
		enrollmentKey("student-1", "course-1"): fixtureEnrollment(models.TierMid1, nil),
	}}
	locks := &mockLockStore{globals: []models.LockTarget{models.ChapterTarget("chapter-1")}}
	svc := newTestEvaluator(lessons, enrollments, locks)

	verdict, err := svc.Evaluate(context.Background(), "student-1", "l1")
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
}

// LockStatus must agree with Evaluate for every enrolled, non-preview
// combination of expiry, unlocks, global locks and tiers.
func TestLockStatusAgreesWithEvaluate(t *testing.T) {
	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)

	expiries := map[string]*time.Time{"expired": &past, "active": &future, "unbounded": nil}
	enrollmentTiers := []models.Tier{models.TierMid1, models.TierFull}
	lessonTiers := []models.Tier{models.TierMid1, models.TierFinal}
	unlockSets := map[string][]models.LockTarget{
		"none":   nil,
		"lesson": {models.LessonTarget("l1")},
	}
	globalSets := map[string][]models.LockTarget{
		"none":    nil,
		"chapter": {models.ChapterTarget("chapter-1")},
		"tier":    {models.TierTarget(models.TierMid1)},
	}

	for expName, expiresAt := range expiries {
		for _, enrTier := range enrollmentTiers {
			for _, lessonTier := range lessonTiers {
				for unlockName, unlocks := range unlockSets {
					for globalName, globals := range globalSets {
						name := expName + "/" + string(enrTier) + "/" + string(lessonTier) + "/u-" + unlockName + "/g-" + globalName
						t.Run(name, func(t *testing.T) {
							lessons := &mockLessonReader{lessons: map[string]*models.Lesson{
								"l1": fixtureLesson("l1", lessonTier, false),
							}}
							enrollments := &mockEnrollmentReader{enrollments: map[string]*models.Enrollment{
								enrollmentKey("student-1", "course-1"): fixtureEnrollment(enrTier, expiresAt),
							}}
							locks := &mockLockStore{
								unlocks: map[string][]models.LockTarget{"student-1": unlocks},
								globals: globals,
							}
							svc := newTestEvaluator(lessons, enrollments, locks)

							verdict, err := svc.Evaluate(context.Background(), "student-1", "l1")
							require.NoError(t, err)

							isExpired := expiresAt != nil && expiresAt.Before(svc.now())
							status, err := svc.LockStatus(context.Background(), "student-1", "l1", lessonTier, strPtr("chapter-1"), enrTier, isExpired)
							require.NoError(t, err)

							assert.Equal(t, verdict.Allowed, !status.Locked, "verdict %+v vs status %+v", verdict, status)
							if !verdict.Allowed {
								assert.Equal(t, verdict.Reason, status.Reason)
							}
						})
					}
				}
			}
		}
	}
}

func TestEvaluateScenarioExpiredStudentWithUnlockAndGlobalLock(t *testing.T) {
	// An expired MID1 student holding a lesson unlock, with the tier globally
	// locked: expiry wins over everything.
	lessons := &mockLessonReader{lessons: map[string]*models.Lesson{
		"l1": fixtureLesson("l1", models.TierMid1, false),
	}}
	expired := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	enrollments := &mockEnrollmentReader{enrollments: map[string]*models.Enrollment{
		enrollmentKey("student-1", "course-1"): fixtureEnrollment(models.TierMid1, &expired),
	}}
	locks := &mockLockStore{
		unlocks: map[string][]models.LockTarget{"student-1": {models.LessonTarget("l1")}},
		globals: []models.LockTarget{models.TierTarget(models.TierMid1)},
	}
	svc := newTestEvaluator(lessons, enrollments, locks)

	verdict, err := svc.Evaluate(context.Background(), "student-1", "l1")
	require.NoError(t, err)
	assert.Equal(t, models.DenySubscriptionExpired, verdict.Reason)
}

func TestEvaluateScenarioFullStudentWithChapterLock(t *testing.T) {
	// A FULL subscriber hits a chapter-level global lock: the lock wins even
	// though the tier covers the lesson.
	lessons := &mockLessonReader{lessons: map[string]*models.Lesson{
		"l1": fixtureLesson("l1", models.TierFinal, false),
	}}
	enrollments := &mockEnrollmentReader{enrollments: map[string]*models.Enrollment{
		enrollmentKey("student-1", "course-1"): fixtureEnrollment(models.TierFull, nil),
	}}
	locks := &mockLockStore{globals: []models.LockTarget{models.ChapterTarget("chapter-1")}}
	svc := newTestEvaluator(lessons, enrollments, locks)

	verdict, err := svc.Evaluate(context.Background(), "student-1", "l1")
	require.NoError(t, err)
	assert.Equal(t, models.DenyContentLocked, verdict.Reason)
}
