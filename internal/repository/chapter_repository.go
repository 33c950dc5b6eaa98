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

// ChapterRepository handles persistence of chapters.
type ChapterRepository struct {
	db *sqlx.DB
}

// NewChapterRepository constructs the repository.
func NewChapterRepository(db *sqlx.DB) *ChapterRepository {
	return &ChapterRepository{db: db}
}

const chapterColumns = `id, course_id, title, tier, order_index, created_at, updated_at`

// ListByCourse returns a course's chapters ordered by position.
func (r *ChapterRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Chapter, error) {
	const query = `SELECT ` + chapterColumns + ` FROM chapters WHERE course_id = $1 ORDER BY order_index ASC`
	var chapters []models.Chapter
	if err := r.db.SelectContext(ctx, &chapters, query, courseID); err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	return chapters, nil
}

// FindByID returns a chapter by its identifier.
func (r *ChapterRepository) FindByID(ctx context.Context, id string) (*models.Chapter, error) {
	const query = `SELECT ` + chapterColumns + ` FROM chapters WHERE id = $1`
	var chapter models.Chapter
	if err := r.db.GetContext(ctx, &chapter, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find chapter by id: %w", err)
	}
	return &chapter, nil
}

// Create persists a new chapter appended to the end of the course ordering.
func (r *ChapterRepository) Create(ctx context.Context, chapter *models.Chapter) error {
	if chapter.ID == "" {
		chapter.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if chapter.CreatedAt.IsZero() {
		chapter.CreatedAt = now
	}
	chapter.UpdatedAt = now

	if chapter.OrderIndex <= 0 {
		const next = `SELECT COALESCE(MAX(order_index), 0) + 1 FROM chapters WHERE course_id = $1`
		if err := r.db.GetContext(ctx, &chapter.OrderIndex, next, chapter.CourseID); err != nil {
			return fmt.Errorf("next chapter order: %w", err)
		}
	}

	const query = `INSERT INTO chapters (id, course_id, title, tier, order_index, created_at, updated_at)
VALUES (:id, :course_id, :title, :tier, :order_index, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, chapter); err != nil {
		return fmt.Errorf("create chapter: %w", err)
	}
	return nil
}

// UpdateTitle renames a chapter without touching its tier.
func (r *ChapterRepository) UpdateTitle(ctx context.Context, id, title string) error {
	const query = `UPDATE chapters SET title = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, title, time.Now().UTC()); err != nil {
		return fmt.Errorf("update chapter title: %w", err)
	}
	return nil
}

// UpdateTierCascade changes a chapter's tier and propagates it to every
// child lesson in a single transaction, so concurrent readers never observe
// a chapter and its lessons at different tiers.
func (r *ChapterRepository) UpdateTierCascade(ctx context.Context, id string, tier models.Tier) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tier cascade: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `UPDATE chapters SET tier = $2, updated_at = $3 WHERE id = $1`, id, tier, now)
	if err != nil {
		return fmt.Errorf("update chapter tier: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, `UPDATE lessons SET tier = $2, updated_at = $3 WHERE chapter_id = $1`, id, tier, now); err != nil {
		return fmt.Errorf("cascade lesson tiers: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tier cascade: %w", err)
	}
	return nil
}

// Reorder rewrites the order_index of the given chapters in one transaction.
func (r *ChapterRepository) Reorder(ctx context.Context, courseID string, orderedIDs []string) error {
	if len(orderedIDs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chapter reorder: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for i, id := range orderedIDs {
		if _, err := tx.ExecContext(ctx, `UPDATE chapters SET order_index = $2, updated_at = $3 WHERE id = $1 AND course_id = $4`, id, i+1, now, courseID); err != nil {
			return fmt.Errorf("reorder chapter %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chapter reorder: %w", err)
	}
	return nil
}

// Delete removes a chapter row.
func (r *ChapterRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM chapters WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete chapter: %w", err)
	}
	return nil
}
