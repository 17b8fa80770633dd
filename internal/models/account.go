package models

import "time"

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash []byte
	FirstName    string
	LastName     string
	Verified     bool
	Role         UserRole
	AvatarKey    *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (a Account) IsAdmin() bool {
	return a.Role == UserRoleAdmin
}

type ProfileUpdate struct {
	FirstName *string
	LastName  *string
}
