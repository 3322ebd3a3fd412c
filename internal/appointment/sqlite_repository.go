package appointment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/db"
)

// SQLiteRepository is the ledger over the embedded sqlite backend used for
// local runs and tests. Timestamps are stored as RFC3339 text in UTC.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(conn *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: conn}
}

const sqliteDetailSelect = `
	SELECT a.id, a.patient_id, a.slot_date, a.slot_time, a.status, a.rain_alert, a.weather_summary,
	       a.created_at, a.updated_at,
	       u.id, u.name, u.email, u.cep, u.street, u.neighborhood, u.city, u.state
	FROM appointments a
	LEFT JOIN users u ON u.id = a.patient_id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func sqliteNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func scanSQLiteAppointment(row rowScanner) (*Appointment, error) {
	var (
		a                Appointment
		status           string
		summary          sql.NullString
		created, updated string
	)
	err := row.Scan(&a.ID, &a.PatientID, &a.Date, &a.Time, &status, &a.RainAlert, &summary, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	a.Status = AppointmentStatus(status)
	if summary.Valid {
		a.WeatherSummary = &summary.String
	}
	if a.CreatedAt, err = parseSQLiteTime(created); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseSQLiteTime(updated); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanSQLiteDetail(row rowScanner) (*AppointmentDetail, error) {
	var (
		d                                 AppointmentDetail
		status                            string
		summary                           sql.NullString
		created, updated                  string
		ownerID                           uuid.NullUUID
		name, email, cep                  sql.NullString
		street, neighborhood, city, state sql.NullString
	)
	err := row.Scan(
		&d.ID, &d.PatientID, &d.Date, &d.Time, &status, &d.RainAlert, &summary, &created, &updated,
		&ownerID, &name, &email, &cep, &street, &neighborhood, &city, &state,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	d.Status = AppointmentStatus(status)
	if summary.Valid {
		d.WeatherSummary = &summary.String
	}
	if d.CreatedAt, err = parseSQLiteTime(created); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseSQLiteTime(updated); err != nil {
		return nil, err
	}
	if ownerID.Valid {
		d.Patient = buildPatient(ownerID.UUID, nullPtr(name), nullPtr(email), nullPtr(cep),
			nullPtr(street), nullPtr(neighborhood), nullPtr(city), nullPtr(state))
	}
	return &d, nil
}

func nullPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func (r *SQLiteRepository) Insert(ctx context.Context, in NewAppointment) (*Appointment, error) {
	now := sqliteNow()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO appointments (id, patient_id, slot_date, slot_time, status, rain_alert, weather_summary, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'PENDING', ?, ?, ?, ?)
		RETURNING `+appointmentColumns,
		uuid.NewString(), in.PatientID.String(), in.Date, in.Time, in.RainAlert, nullString(in.WeatherSummary), now, now)

	appt, err := scanSQLiteAppointment(row)
	if err != nil {
		if db.IsSQLiteUniqueViolation(err) {
			return nil, ErrSlotConflict
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return appt, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id.String())
	return scanSQLiteAppointment(row)
}

func (r *SQLiteRepository) GetDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.db.QueryRowContext(ctx, sqliteDetailSelect+`WHERE a.id = ?`, id.String())
	return scanSQLiteDetail(row)
}

func (r *SQLiteRepository) FindActiveByDateTime(ctx context.Context, date, slotTime string) (*Appointment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE slot_date = ? AND slot_time = ? AND status <> 'CANCELED'
	`, date, slotTime)
	return scanSQLiteAppointment(row)
}

func (r *SQLiteRepository) ListActiveTimes(ctx context.Context, date string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT slot_time
		FROM appointments
		WHERE slot_date = ? AND status <> 'CANCELED'
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
	return times, rows.Err()
}

func (r *SQLiteRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = ?
		ORDER BY slot_date ASC, slot_time ASC
	`, patientID.String())
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanSQLiteAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) List(ctx context.Context, filter ListFilter) ([]AppointmentDetail, error) {
	var (
		where []string
		args  []any
	)
	if filter.Date != nil {
		where = append(where, "a.slot_date = ?")
		args = append(args, *filter.Date)
	}
	if filter.Status != nil {
		where = append(where, "a.status = ?")
		args = append(args, string(*filter.Status))
	}

	query := sqliteDetailSelect
	if len(where) > 0 {
		query += "WHERE " + strings.Join(where, " AND ") + "\n"
	}
	query += "ORDER BY a.slot_date ASC, a.slot_time ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	result := []AppointmentDetail{}
	for rows.Next() {
		d, err := scanSQLiteDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE appointments
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
		RETURNING `+appointmentColumns,
		string(to), sqliteNow(), id.String(), string(from))

	appt, err := scanSQLiteAppointment(row)
	if err != nil {
		if db.IsSQLiteUniqueViolation(err) {
			return nil, ErrSlotConflict
		}
		return nil, err
	}
	return appt, nil
}
