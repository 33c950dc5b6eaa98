package dto

import "github.com/m5mds/ahmed-academy2/internal/models"

// SetLockRequest is the lock mutation payload consumed by admin tooling.
type SetLockRequest struct {
	Scope     models.LockScope `json:"scope" validate:"required,oneof=GLOBAL PER_STUDENT"`
	Level     models.LockLevel `json:"level" validate:"required,oneof=TIER CHAPTER LESSON"`
	TargetID  string           `json:"target_id" validate:"required"`
	StudentID *string          `json:"student_id,omitempty"`
	Locked    *bool            `json:"locked" validate:"required"`
}

// ExportAuditRequest queues a lock-audit export.
type ExportAuditRequest struct {
	Format models.ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportJobResponse reports an export job's state to admin tooling.
type ExportJobResponse struct {
	ID        string              `json:"id"`
	Status    models.ExportStatus `json:"status"`
	ResultURL *string             `json:"result_url,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
