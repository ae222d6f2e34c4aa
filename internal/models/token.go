package models

import "time"

// Token is an opaque bearer credential. Only the sha256 hash of the secret
// is stored. One token per session: each login mints a fresh token and
// revoking it affects exactly that login.
type Token struct {
	ID        string
	UserID    string
	SessionID string
	TokenHash []byte `json:"-"`
	CreatedAt time.Time
	ExpiresAt time.Time
}
