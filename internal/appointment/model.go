package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "PENDING"
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusCanceled  AppointmentStatus = "CANCELED"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCanceled:
		return true
	}
	return false
}

type Appointment struct {
	ID             uuid.UUID
	PatientID      uuid.UUID
	Date           string // YYYY-MM-DD
	Time           string // HH:mm
	Status         AppointmentStatus
	RainAlert      bool
	WeatherSummary *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewAppointment is what the lifecycle manager hands the ledger on create.
type NewAppointment struct {
	PatientID      uuid.UUID
	Date           string
	Time           string
	RainAlert      bool
	WeatherSummary *string
}

// Address is the subset of a patient's address used for enrichment and
// shown to staff.
type Address struct {
	Street       string
	Neighborhood string
	City         string
	State        string
}

// Patient is the owner view attached to staff listings.
type Patient struct {
	ID      uuid.UUID
	Name    string
	Email   string
	CEP     *string
	Address *Address
}

type AppointmentDetail struct {
	Appointment
	Patient *Patient
}

// ListFilter narrows staff listings. Nil fields match everything.
type ListFilter struct {
	Date   *string
	Status *AppointmentStatus
}
