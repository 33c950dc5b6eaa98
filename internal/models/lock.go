package models

import "time"

// LockScope distinguishes platform-wide locks from per-student overrides.
type LockScope string

const (
	ScopeGlobal     LockScope = "GLOBAL"
	ScopePerStudent LockScope = "PER_STUDENT"
)

// LockLevel is the granularity a lock applies at.
type LockLevel string

const (
	LevelTier    LockLevel = "TIER"
	LevelChapter LockLevel = "CHAPTER"
	LevelLesson  LockLevel = "LESSON"
)

// LockTarget identifies what a lock applies to: a tier name, a chapter id
// or a lesson id, discriminated by Level.
type LockTarget struct {
	Level    LockLevel
	TargetID string
}

// TierTarget builds a tier-level lock target.
func TierTarget(tier Tier) LockTarget {
	return LockTarget{Level: LevelTier, TargetID: string(tier)}
}

// ChapterTarget builds a chapter-level lock target.
func ChapterTarget(chapterID string) LockTarget {
	return LockTarget{Level: LevelChapter, TargetID: chapterID}
}

// LessonTarget builds a lesson-level lock target.
func LessonTarget(lessonID string) LockTarget {
	return LockTarget{Level: LevelLesson, TargetID: lessonID}
}

// LessonTargets returns the lock targets that can match a lesson: the lesson
// itself, its chapter when it has one, and its tier.
func LessonTargets(lessonID string, chapterID *string, tier Tier) []LockTarget {
	targets := make([]LockTarget, 0, 3)
	targets = append(targets, LessonTarget(lessonID))
	if chapterID != nil && *chapterID != "" {
		targets = append(targets, ChapterTarget(*chapterID))
	}
	targets = append(targets, TierTarget(tier))
	return targets
}

// ContentLock is the override primitive. At most one row exists per
// (scope, level, target_id, student_id) key; mutations are upserts.
type ContentLock struct {
	ID        string    `db:"id" json:"id"`
	Scope     LockScope `db:"scope" json:"scope"`
	Level     LockLevel `db:"level" json:"level"`
	TargetID  string    `db:"target_id" json:"target_id"`
	StudentID *string   `db:"student_id" json:"student_id,omitempty"`
	Locked    bool      `db:"locked" json:"locked"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Target returns the lock's tagged target.
func (l *ContentLock) Target() LockTarget {
	return LockTarget{Level: l.Level, TargetID: l.TargetID}
}

// LockAction labels an audit entry.
type LockAction string

const (
	ActionLock   LockAction = "LOCK"
	ActionUnlock LockAction = "UNLOCK"
)

// LockAudit is an immutable record of an administrator lock/unlock action.
// Rows are only ever appended.
type LockAudit struct {
	ID        string     `db:"id" json:"id"`
	AdminID   string     `db:"admin_id" json:"admin_id"`
	StudentID *string    `db:"student_id" json:"student_id,omitempty"`
	Scope     LockScope  `db:"scope" json:"scope"`
	Level     LockLevel  `db:"level" json:"level"`
	TargetID  string     `db:"target_id" json:"target_id"`
	Action    LockAction `db:"action" json:"action"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// LockFilter narrows lock listings.
type LockFilter struct {
	Scope LockScope
	Level LockLevel
}
