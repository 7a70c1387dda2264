package models

import "time"

type UserRole string

const (
	RoleReferee      UserRole = "referee"
	RoleChiefReferee UserRole = "chief_referee"
	RoleAdmin        UserRole = "admin"
)

type User struct {
	ID           int       `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
