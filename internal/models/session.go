package models

import "time"

// LogoutType records how a session reached its terminal state.
type LogoutType string

const (
	LogoutTypeManual         LogoutType = "manual"
	LogoutTypeExpired        LogoutType = "expired"
	LogoutTypeForced         LogoutType = "forced"
	LogoutTypePasswordChange LogoutType = "password_change"
)

// Session is one tracked login. UserID is nullable so rows survive a hard
// user deletion for audit purposes. Invariant: IsActive iff EndedAt == nil;
// once EndedAt is set the row is terminal.
type Session struct {
	ID             string
	UserID         *string
	IPAddress      string
	UserAgent      string
	CreatedAt      time.Time
	LastActivityAt time.Time
	EndedAt        *time.Time
	IsActive       bool
	LogoutType     LogoutType
}

// ExpiredAt reports whether the session's inactivity window had elapsed at
// the given instant. Callers must use a single now per request so one
// response never sees the session flap between active and expired.
func (s Session) ExpiredAt(now time.Time, inactivity time.Duration) bool {
	return s.IsActive && now.Sub(s.LastActivityAt) > inactivity
}
