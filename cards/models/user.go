package models

import (
	"fmt"
	"time"
)

type UserRole string

const (
	RoleUser  UserRole = "USER"
	RoleAdmin UserRole = "ADMIN"
)

func ParseUserRole(s string) (UserRole, error) {
	switch UserRole(s) {
	case RoleUser, RoleAdmin:
		return UserRole(s), nil
	}
	return "", fmt.Errorf("unknown user role %q", s)
}

// User is a registered account holder. The role decides which API surface
// is reachable; card ownership is always re-checked independently.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
