package dto

import "github.com/spec-kit/ticket-tracker/internal/domain"

// UserRegisterRequest payload for new users.
type UserRegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserLoginRequest payload for login.
type UserLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	IsStaff  bool   `json:"is_staff"`
	UserID   int64  `json:"user_id"`
}

// MeResponse describes the caller.
type MeResponse struct {
	Username string `json:"username"`
	IsStaff  bool   `json:"is_staff"`
	UserID   int64  `json:"user_id"`
	Email    string `json:"email"`
}

// User is the public view of an account.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsStaff  bool   `json:"is_staff"`
}

// NewUser maps an account.
func NewUser(u *domain.User) User {
	return User{ID: u.ID, Username: u.Username, Email: u.Email, IsStaff: u.IsStaff}
}
