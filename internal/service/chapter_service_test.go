package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/m5mds/ahmed-academy2/internal/dto"
	"github.com/m5mds/ahmed-academy2/internal/models"
	appErrors "github.com/m5mds/ahmed-academy2/pkg/errors"
)

type mockChapterRepo struct {
	chapters map[string]*models.Chapter
	lessons  map[string]*models.Lesson

	cascades  int
	reordered []string
}

func (m *mockChapterRepo) ListByCourse(ctx context.Context, courseID string) ([]models.Chapter, error) {
	out := []models.Chapter{}
	for _, c := range m.chapters {
		if c.CourseID == courseID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockChapterRepo) FindByID(ctx context.Context, id string) (*models.Chapter, error) {
	c, ok := m.chapters[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

func (m *mockChapterRepo) Create(ctx context.Context, chapter *models.Chapter) error {
	m.chapters[chapter.ID] = chapter
	return nil
}

func (m *mockChapterRepo) UpdateTitle(ctx context.Context, id, title string) error {
	c, ok := m.chapters[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.Title = title
	return nil
}

func (m *mockChapterRepo) UpdateTierCascade(ctx context.Context, id string, tier models.Tier) error {
	c, ok := m.chapters[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.Tier = tier
	for _, l := range m.lessons {
		if l.ChapterID != nil && *l.ChapterID == id {
			l.Tier = tier
		}
	}
	m.cascades++
	return nil
}

func (m *mockChapterRepo) Reorder(ctx context.Context, courseID string, orderedIDs []string) error {
	m.reordered = orderedIDs
	return nil
}

func (m *mockChapterRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.chapters[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.chapters, id)
	return nil
}

type mockInvalidator struct {
	calls int
}

func (m *mockInvalidator) InvalidateCatalog(ctx context.Context) { m.calls++ }

func newChapterFixture() *mockChapterRepo {
	return &mockChapterRepo{
		chapters: map[string]*models.Chapter{
			"chapter-1": {ID: "chapter-1", CourseID: "course-1", Title: "Basics", Tier: models.TierMid1},
		},
		lessons: map[string]*models.Lesson{
			"l1": {ID: "l1", CourseID: "course-1", ChapterID: strPtr("chapter-1"), Tier: models.TierMid1},
			"l2": {ID: "l2", CourseID: "course-1", ChapterID: strPtr("chapter-1"), Tier: models.TierMid1},
			"l3": {ID: "l3", CourseID: "course-1", ChapterID: strPtr("chapter-2"), Tier: models.TierFinal},
		},
	}
}

func TestChapterUpdateTierCascadesToLessons(t *testing.T) {
	repo := newChapterFixture()
	inv := &mockInvalidator{}
	svc := NewChapterService(repo, inv, nil, zap.NewNop())

	tier := models.TierFinal
	chapter, err := svc.Update(context.Background(), "chapter-1", dto.UpdateChapterRequest{Tier: &tier})
	require.NoError(t, err)

	assert.Equal(t, models.TierFinal, chapter.Tier)
	assert.Equal(t, models.TierFinal, repo.lessons["l1"].Tier)
	assert.Equal(t, models.TierFinal, repo.lessons["l2"].Tier)
	assert.Equal(t, models.TierFinal, repo.lessons["l3"].Tier, "other chapter untouched")
	assert.Equal(t, 1, repo.cascades)
	assert.Equal(t, 1, inv.calls, "catalog cache invalidated")
}

func TestChapterUpdateTitleOnlySkipsCascade(t *testing.T) {
	repo := newChapterFixture()
	svc := NewChapterService(repo, &mockInvalidator{}, nil, zap.NewNop())

	chapter, err := svc.Update(context.Background(), "chapter-1", dto.UpdateChapterRequest{Title: strPtr("Renamed")})
	require.NoError(t, err)

	assert.Equal(t, "Renamed", chapter.Title)
	assert.Equal(t, models.TierMid1, repo.lessons["l1"].Tier)
	assert.Zero(t, repo.cascades)
}

func TestChapterUpdateUnknownChapter(t *testing.T) {
	repo := newChapterFixture()
	svc := NewChapterService(repo, &mockInvalidator{}, nil, zap.NewNop())

	tier := models.TierMid2
	_, err := svc.Update(context.Background(), "missing", dto.UpdateChapterRequest{Tier: &tier})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestChapterUpdateRejectsUnknownTier(t *testing.T) {
	repo := newChapterFixture()
	svc := NewChapterService(repo, &mockInvalidator{}, nil, zap.NewNop())

	tier := models.Tier("GOLD")
	_, err := svc.Update(context.Background(), "chapter-1", dto.UpdateChapterRequest{Tier: &tier})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Zero(t, repo.cascades)
}

func TestChapterCreate(t *testing.T) {
	repo := newChapterFixture()
	inv := &mockInvalidator{}
	svc := NewChapterService(repo, inv, nil, zap.NewNop())

	chapter, err := svc.Create(context.Background(), dto.CreateChapterRequest{
		CourseID:   "course-1",
		Title:      "Trigonometry",
		Tier:       models.TierMid2,
		OrderIndex: 3,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, chapter.ID)
	assert.Len(t, repo.chapters, 2)
	assert.Equal(t, 1, inv.calls)
}

func TestChapterReorder(t *testing.T) {
	repo := newChapterFixture()
	svc := NewChapterService(repo, &mockInvalidator{}, nil, zap.NewNop())

	err := svc.Reorder(context.Background(), dto.ReorderChaptersRequest{
		CourseID:   "course-1",
		OrderedIDs: []string{"chapter-2", "chapter-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"chapter-2", "chapter-1"}, repo.reordered)
}

func TestChapterDeleteUnknown(t *testing.T) {
	repo := newChapterFixture()
	svc := NewChapterService(repo, &mockInvalidator{}, nil, zap.NewNop())

	err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
