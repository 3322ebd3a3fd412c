package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrSlotConflict is the storage-level unique violation on (date, time).
	ErrSlotConflict = errors.New("active appointment already exists for slot")
)

// Repository is the booking ledger. Exclusivity of live bookings per
// (date, time) is enforced by the storage itself: Insert fails with
// ErrSlotConflict instead of creating a second live row.
type Repository interface {
	Insert(ctx context.Context, in NewAppointment) (*Appointment, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	FindActiveByDateTime(ctx context.Context, date, time string) (*Appointment, error)

	// Availability
	ListActiveTimes(ctx context.Context, date string) ([]string, error)

	// Listings, ordered by (date, time) ascending
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)
	List(ctx context.Context, filter ListFilter) ([]AppointmentDetail, error)

	// UpdateStatus moves id from -> to in one conditional write. It returns
	// ErrAppointmentNotFound when no row has that id with status from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
}
