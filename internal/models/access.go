package models

// DenyReason is the closed set of entitlement denial codes. Callers match on
// these codes, never on message text.
type DenyReason string

const (
	DenyNotFound            DenyReason = "NOT_FOUND"
	DenyNotEnrolled         DenyReason = "NOT_ENROLLED"
	DenySubscriptionExpired DenyReason = "SUBSCRIPTION_EXPIRED"
	DenyContentLocked       DenyReason = "CONTENT_LOCKED"
	DenyTierMismatch        DenyReason = "TIER_MISMATCH"
)

// AccessVerdict is the outcome of evaluating a user against a lesson.
// A denial is an expected result, not an error.
type AccessVerdict struct {
	Allowed bool       `json:"allowed"`
	Reason  DenyReason `json:"reason,omitempty"`
}

// Allow returns an allowing verdict.
func Allow() *AccessVerdict {
	return &AccessVerdict{Allowed: true}
}

// Deny returns a denying verdict carrying the given reason.
func Deny(reason DenyReason) *AccessVerdict {
	return &AccessVerdict{Allowed: false, Reason: reason}
}

// LockStatus is the batch-evaluation result attached to each lesson when
// rendering a content tree.
type LockStatus struct {
	Locked bool       `json:"locked"`
	Reason DenyReason `json:"reason,omitempty"`
}
