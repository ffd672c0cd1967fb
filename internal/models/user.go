package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the platform role carried in the JWT.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleOrganizer Role = "organizer"
	RoleViewer    Role = "viewer"
)

// OperatorRoles may issue tickets and manage stream sessions.
var OperatorRoles = []Role{RoleAdmin, RoleOrganizer}

// Operator reports whether r is one of OperatorRoles.
func (r Role) Operator() bool {
	for _, op := range OperatorRoles {
		if r == op {
			return true
		}
	}
	return false
}

// User is a ticket holder or operator account.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Profile is the part of User returned by the auth endpoints.
type Profile struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Role     Role      `json:"role"`
	Operator bool      `json:"operator"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:       u.ID,
		Email:    u.Email,
		FullName: u.FullName,
		Role:     u.Role,
		Operator: u.Role.Operator(),
	}
}
