package dto

import "github.com/m5mds/ahmed-academy2/internal/models"

// CreateCourseRequest creates a course.
type CreateCourseRequest struct {
	Slug             string `json:"slug" validate:"required"`
	Title            string `json:"title" validate:"required"`
	Description      string `json:"description"`
	ShortDescription string `json:"short_description"`
	IsPublished      bool   `json:"is_published"`
}

// UpdateCourseRequest updates mutable course fields.
type UpdateCourseRequest struct {
	Title            *string `json:"title,omitempty"`
	Description      *string `json:"description,omitempty"`
	ShortDescription *string `json:"short_description,omitempty"`
	IsPublished      *bool   `json:"is_published,omitempty"`
}

// CreateChapterRequest creates a chapter within a course.
type CreateChapterRequest struct {
	CourseID   string      `json:"course_id" validate:"required"`
	Title      string      `json:"title" validate:"required"`
	Tier       models.Tier `json:"tier" validate:"required,oneof=MID1 MID2 FINAL FULL"`
	OrderIndex int         `json:"order_index"`
}

// UpdateChapterRequest updates a chapter. A tier change cascades to every
// lesson in the chapter.
type UpdateChapterRequest struct {
	Title *string      `json:"title,omitempty"`
	Tier  *models.Tier `json:"tier,omitempty" validate:"omitempty,oneof=MID1 MID2 FINAL FULL"`
}

// ReorderChaptersRequest replaces the chapter ordering of a course.
type ReorderChaptersRequest struct {
	CourseID   string   `json:"course_id" validate:"required"`
	OrderedIDs []string `json:"ordered_ids" validate:"required,min=1"`
}

// CreateLessonRequest creates a lesson.
type CreateLessonRequest struct {
	CourseID        string      `json:"course_id" validate:"required"`
	ChapterID       *string     `json:"chapter_id,omitempty"`
	Title           string      `json:"title" validate:"required"`
	Tier            models.Tier `json:"tier" validate:"required,oneof=MID1 MID2 FINAL FULL"`
	IsPreview       bool        `json:"is_preview"`
	VideoID         *string     `json:"video_id,omitempty"`
	DurationMinutes int         `json:"duration_minutes"`
	OrderIndex      int         `json:"order_index"`
}

// UpdateLessonRequest updates mutable lesson fields.
type UpdateLessonRequest struct {
	Title           *string      `json:"title,omitempty"`
	Tier            *models.Tier `json:"tier,omitempty" validate:"omitempty,oneof=MID1 MID2 FINAL FULL"`
	IsPreview       *bool        `json:"is_preview,omitempty"`
	VideoID         *string      `json:"video_id,omitempty"`
	DurationMinutes *int         `json:"duration_minutes,omitempty"`
	OrderIndex      *int         `json:"order_index,omitempty"`
}

// AssignEnrollmentRequest assigns or renews a subscription. The upsert key is
// (user_id, course_id): renewals extend expires_at, tier changes replace tier.
type AssignEnrollmentRequest struct {
	UserID    string      `json:"user_id" validate:"required"`
	CourseID  string      `json:"course_id" validate:"required"`
	Tier      models.Tier `json:"tier" validate:"required,oneof=MID1 MID2 FINAL FULL"`
	ExpiresAt *string     `json:"expires_at,omitempty"`
}
