package models

import "time"

type UserRole string

const (
	UserRoleEmployee   UserRole = "employee"
	UserRoleAdmin      UserRole = "admin"
	UserRoleSuperAdmin UserRole = "superadmin"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusPending   UserStatus = "pending"
)

type User struct {
	ID            string
	Email         string
	Username      string
	PasswordHash  []byte `json:"-"`
	FullName      string
	Phone         string
	Department    string
	Position      string
	HireDate      *time.Time
	Bio           string
	Role          UserRole
	Status        UserStatus
	EmailVerified bool
	LastLoginAt   *time.Time
	LastLoginIP   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsAdmin reports whether the user may hit admin-only routes.
func (u User) IsAdmin() bool {
	return u.Role == UserRoleAdmin || u.Role == UserRoleSuperAdmin
}
