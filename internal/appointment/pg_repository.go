package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/clinic-appointments/internal/db"
)

const activeSlotConstraint = "appointments_active_slot_uniq"

// DBTX is the slice of pgxpool.Pool the ledger needs; pgxmock satisfies it too.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db DBTX
}

func NewPgRepository(db DBTX) *PgRepository {
	return &PgRepository{db: db}
}

const appointmentColumns = `id, patient_id, slot_date, slot_time, status, rain_alert, weather_summary, created_at, updated_at`

const detailSelect = `
	SELECT a.id, a.patient_id, a.slot_date, a.slot_time, a.status, a.rain_alert, a.weather_summary,
	       a.created_at, a.updated_at,
	       u.id, u.name, u.email, u.cep, u.street, u.neighborhood, u.city, u.state
	FROM appointments a
	LEFT JOIN users u ON u.id = a.patient_id
`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var summary *string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.Date,
		&a.Time,
		&a.Status,
		&a.RainAlert,
		&summary,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.WeatherSummary = summary
	return &a, nil
}

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	var summary *string
	var (
		ownerID                           *uuid.UUID
		name, email, cep                  *string
		street, neighborhood, city, state *string
	)

	err := row.Scan(
		&d.ID,
		&d.PatientID,
		&d.Date,
		&d.Time,
		&d.Status,
		&d.RainAlert,
		&summary,
		&d.CreatedAt,
		&d.UpdatedAt,
		&ownerID,
		&name,
		&email,
		&cep,
		&street,
		&neighborhood,
		&city,
		&state,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	d.WeatherSummary = summary
	if ownerID != nil {
		d.Patient = buildPatient(*ownerID, name, email, cep, street, neighborhood, city, state)
	}
	return &d, nil
}

func buildPatient(id uuid.UUID, name, email, cep, street, neighborhood, city, state *string) *Patient {
	p := &Patient{ID: id, Name: deref(name), Email: deref(email), CEP: cep}
	if street != nil || neighborhood != nil || city != nil || state != nil {
		p.Address = &Address{
			Street:       deref(street),
			Neighborhood: deref(neighborhood),
			City:         deref(city),
			State:        deref(state),
		}
	}
	return p
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Interface methods

func (r *PgRepository) Insert(ctx context.Context, in NewAppointment) (*Appointment, error) {
	id := uuid.New()

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, slot_date, slot_time, status, rain_alert, weather_summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'PENDING', $5, $6, now(), now())
		RETURNING `+appointmentColumns,
		id, in.PatientID, in.Date, in.Time, in.RainAlert, in.WeatherSummary)

	appt, err := scanAppointment(row)
	if err != nil {
		if db.IsPgUniqueViolation(err, activeSlotConstraint) {
			return nil, ErrSlotConflict
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return appt, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.db.QueryRow(ctx, detailSelect+`WHERE a.id = $1`, id)
	return scanDetail(row)
}

func (r *PgRepository) FindActiveByDateTime(ctx context.Context, date, slotTime string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE slot_date = $1 AND slot_time = $2 AND status <> 'CANCELED'
	`, date, slotTime)
	return scanAppointment(row)
}

func (r *PgRepository) ListActiveTimes(ctx context.Context, date string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT slot_time
		FROM appointments
		WHERE slot_date = $1 AND status <> 'CANCELED'
	`, date)
	if err != nil {
		return nil, fmt.Errorf("list booked times: %w", err)
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return times, nil
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY slot_date ASC, slot_time ASC
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) List(ctx context.Context, filter ListFilter) ([]AppointmentDetail, error) {
	var (
		where []string
		args  []any
	)
	if filter.Date != nil {
		args = append(args, *filter.Date)
		where = append(where, fmt.Sprintf("a.slot_date = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("a.status = $%d", len(args)))
	}

	query := detailSelect
	if len(where) > 0 {
		query += "WHERE " + strings.Join(where, " AND ") + "\n"
	}
	query += "ORDER BY a.slot_date ASC, a.slot_time ASC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	result := []AppointmentDetail{}
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, to, from)

	appt, err := scanAppointment(row)
	if err != nil {
		// Reopening a canceled row can collide with a newer live booking.
		if db.IsPgUniqueViolation(err, activeSlotConstraint) {
			return nil, ErrSlotConflict
		}
		return nil, err
	}
	return appt, nil
}
