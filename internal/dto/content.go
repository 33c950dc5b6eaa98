package dto

import (
	"time"

	"github.com/m5mds/ahmed-academy2/internal/models"
)

// LessonItem is a lesson annotated with the caller's access state.
type LessonItem struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	DurationMinutes int               `json:"duration_minutes"`
	IsPreview       bool              `json:"is_preview"`
	Tier            models.Tier       `json:"tier"`
	Locked          bool              `json:"locked"`
	LockReason      models.DenyReason `json:"lock_reason,omitempty"`
}

// ChapterTree is a chapter with its annotated lessons.
type ChapterTree struct {
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	Tier       models.Tier  `json:"tier"`
	OrderIndex int          `json:"order_index"`
	Lessons    []LessonItem `json:"lessons"`
}

// EnrollmentSummary describes the enrollment the tree was evaluated against.
type EnrollmentSummary struct {
	Tier      models.Tier `json:"tier"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
}

// CourseRef is a minimal course reference for the course switcher.
type CourseRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ContentTreeResponse groups a course's chapters by tier with per-lesson
// access flags for the requesting student.
type ContentTreeResponse struct {
	Grouped    map[models.Tier][]ChapterTree `json:"grouped"`
	Enrollment *EnrollmentSummary            `json:"enrollment"`
	Courses    []CourseRef                   `json:"courses"`
}

// VideoAccessResponse carries the signed playback URL for an allowed lesson.
type VideoAccessResponse struct {
	SignedURL  string `json:"signed_url"`
	TrackingID string `json:"tracking_id"`
}
