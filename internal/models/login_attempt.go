package models

import "time"

// LoginAttempt is one row of the append-only authentication audit log.
// Email is recorded as submitted and need not match an existing user.
// Rows are never updated or deleted in normal operation.
type LoginAttempt struct {
	ID            string
	Email         string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	AttemptedAt   time.Time
}

// Internal failure reasons stored with attempts. Callers only ever see the
// generic invalid-credentials error.
const (
	FailureReasonUserNotFound  = "user_not_found"
	FailureReasonUserSuspended = "user_suspended"
	FailureReasonUserPending   = "user_pending"
	FailureReasonWrongPassword = "wrong_password"
)
