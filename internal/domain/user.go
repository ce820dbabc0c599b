package domain

import "time"

// User is an account that can open tickets. Staff users triage them.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	IsStaff      bool
	CreatedAt    time.Time
}

// Actor is the authenticated identity performing an operation.
type Actor struct {
	ID       int64
	Username string
	IsStaff  bool
}

// Actor returns the identity snapshot used by policy checks.
func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Username: u.Username, IsStaff: u.IsStaff}
}
