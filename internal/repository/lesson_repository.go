package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/m5mds/ahmed-academy2/internal/models"
)

// LessonRepository handles persistence of lessons.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

const lessonColumns = `id, course_id, chapter_id, title, tier, is_preview, video_id, duration_minutes, order_index, created_at, updated_at`

// FindByID returns a lesson by its identifier.
func (r *LessonRepository) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	const query = `SELECT ` + lessonColumns + ` FROM lessons WHERE id = $1`
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find lesson by id: %w", err)
	}
	return &lesson, nil
}

// ListByCourse returns a course's lessons ordered by position.
func (r *LessonRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Lesson, error) {
	const query = `SELECT ` + lessonColumns + ` FROM lessons WHERE course_id = $1 ORDER BY order_index ASC`
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, courseID); err != nil {
		return nil, fmt.Errorf("list course lessons: %w", err)
	}
	return lessons, nil
}

// ListByChapter returns a chapter's lessons ordered by position.
func (r *LessonRepository) ListByChapter(ctx context.Context, chapterID string) ([]models.Lesson, error) {
	const query = `SELECT ` + lessonColumns + ` FROM lessons WHERE chapter_id = $1 ORDER BY order_index ASC`
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, chapterID); err != nil {
		return nil, fmt.Errorf("list chapter lessons: %w", err)
	}
	return lessons, nil
}

// Create persists a new lesson appended to the end of its grouping.
func (r *LessonRepository) Create(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = now
	}
	lesson.UpdatedAt = now

	if lesson.OrderIndex <= 0 {
		const next = `SELECT COALESCE(MAX(order_index), 0) + 1 FROM lessons WHERE course_id = $1`
		if err := r.db.GetContext(ctx, &lesson.OrderIndex, next, lesson.CourseID); err != nil {
			return fmt.Errorf("next lesson order: %w", err)
		}
	}

	const query = `INSERT INTO lessons (id, course_id, chapter_id, title, tier, is_preview, video_id, duration_minutes, order_index, created_at, updated_at)
VALUES (:id, :course_id, :chapter_id, :title, :tier, :is_preview, :video_id, :duration_minutes, :order_index, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}
	return nil
}

// Update persists mutable lesson fields.
func (r *LessonRepository) Update(ctx context.Context, lesson *models.Lesson) error {
	lesson.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lessons SET chapter_id = :chapter_id, title = :title, tier = :tier, is_preview = :is_preview, video_id = :video_id, duration_minutes = :duration_minutes, order_index = :order_index, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("update lesson: %w", err)
	}
	return nil
}

// Delete removes a lesson row.
func (r *LessonRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM lessons WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	return nil
}
