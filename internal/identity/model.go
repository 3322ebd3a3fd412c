// Package identity registers and authenticates clinic users and issues the
// bearer tokens the API trusts.
package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/appointment"
)

type Role string

const (
	RolePatient   Role = "PATIENT"
	RoleSecretary Role = "SECRETARY"
	RoleAdmin     Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleSecretary, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether r may manage every patient's appointments.
func (r Role) IsStaff() bool {
	return r == RoleSecretary || r == RoleAdmin
}

type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CEP          *string
	Address      *appointment.Address
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal is the verified caller attached to authenticated requests.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}
