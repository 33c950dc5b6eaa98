package models

import "time"

// Enrollment captures a student's subscription to a course at a tier.
// There is exactly one row per (user, course) pair; renewals extend
// ExpiresAt in place and tier changes update Tier in place.
type Enrollment struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	CourseID  string     `db:"course_id" json:"course_id"`
	Tier      Tier       `db:"tier" json:"tier"`
	ExpiresAt *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// ExpiredAt reports whether the enrollment has lapsed at the given instant.
// A nil ExpiresAt never expires.
func (e *Enrollment) ExpiredAt(now time.Time) bool {
	return e.ExpiresAt != nil && e.ExpiresAt.Before(now)
}

// EnrollmentDetail enriches Enrollment with user and course info for listings.
type EnrollmentDetail struct {
	Enrollment
	UserName    string `db:"user_name" json:"user_name"`
	UserEmail   string `db:"user_email" json:"user_email"`
	CourseTitle string `db:"course_title" json:"course_title"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	UserID    string
	CourseID  string
	Tier      Tier
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
