// Package auth handles password verification, server-side sessions, and
// route authorization for Pagecraft. Sessions live in Redis under an opaque
// random token; the browser only ever holds that token in an HttpOnly
// cookie.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"time"
)

// Role is a user's privilege level. The zero value is an unprivileged
// account.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleMod   Role = "mod"
	RoleNone  Role = ""
)

// IsPrivileged reports whether r may hold a session. Only admins and
// moderators sign in; visitors read published pages anonymously.
func (r Role) IsPrivileged() bool {
	return r == RoleAdmin || r == RoleMod
}

// User is a registered account as stored by the UserRepository.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"` // Never expose in JSON responses.
	JoinedAt     time.Time `json:"joined_at"`
}

// Summary projects the user onto the fields safe to return to clients.
func (u *User) Summary() *UserSummary {
	return &UserSummary{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
	}
}

// UserSummary is what sign-in and user creation return to the caller.
type UserSummary struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// UserSession is the value stored in Redis for a live session. It is
// deliberately minimal: only what authorization decisions need, so a leaked
// store dump exposes no emails or names.
type UserSession struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// --- Request DTOs (bound from HTTP requests) ---

// SignInRequest holds the data submitted by the sign-in form or JSON API.
type SignInRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
	Next     string `json:"-" form:"next"`
}

// CreateUserRequest holds the data submitted by an admin creating an
// editor account.
type CreateUserRequest struct {
	Email       string `json:"email" form:"email"`
	DisplayName string `json:"display_name" form:"display_name"`
	Password    string `json:"password" form:"password"`
	Role        string `json:"role" form:"role"`
}

// --- Service Input DTOs (passed from handler to service) ---

// SignInInput is the unvalidated input for authenticating a user.
type SignInInput struct {
	Email    string
	Password string
}

// CreateUserInput is the unvalidated input for creating a privileged user.
type CreateUserInput struct {
	Email       string
	DisplayName string
	Password    string
	Role        Role
}
