package models

import "time"

// Tier is the subscription level gating content. FULL is the superset tier.
type Tier string

const (
	TierMid1  Tier = "MID1"
	TierMid2  Tier = "MID2"
	TierFinal Tier = "FINAL"
	TierFull  Tier = "FULL"
)

// ValidTier reports whether the provided value is a known tier name.
func ValidTier(t Tier) bool {
	switch t {
	case TierMid1, TierMid2, TierFinal, TierFull:
		return true
	}
	return false
}

// Covers reports whether a subscription at tier t grants access to content
// at tier content. FULL covers everything, otherwise the tiers must match.
func (t Tier) Covers(content Tier) bool {
	if t == TierFull {
		return true
	}
	return t == content
}

// Course is a published course containing chapters and lessons.
type Course struct {
	ID               string    `db:"id" json:"id"`
	Slug             string    `db:"slug" json:"slug"`
	Title            string    `db:"title" json:"title"`
	Description      string    `db:"description" json:"description"`
	ShortDescription string    `db:"short_description" json:"short_description"`
	IsPublished      bool      `db:"is_published" json:"is_published"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Chapter groups lessons within a course. Its tier is administratively
// assigned and cascades to child lessons on update.
type Chapter struct {
	ID         string    `db:"id" json:"id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	Title      string    `db:"title" json:"title"`
	Tier       Tier      `db:"tier" json:"tier"`
	OrderIndex int       `db:"order_index" json:"order_index"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Lesson is a single video lesson. IsPreview exempts it from every
// entitlement check.
type Lesson struct {
	ID              string    `db:"id" json:"id"`
	CourseID        string    `db:"course_id" json:"course_id"`
	ChapterID       *string   `db:"chapter_id" json:"chapter_id,omitempty"`
	Title           string    `db:"title" json:"title"`
	Tier            Tier      `db:"tier" json:"tier"`
	IsPreview       bool      `db:"is_preview" json:"is_preview"`
	VideoID         *string   `db:"video_id" json:"video_id,omitempty"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	OrderIndex      int       `db:"order_index" json:"order_index"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
