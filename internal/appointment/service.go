package appointment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hackgods/clinic-appointments/internal/metrics"
	"github.com/hackgods/clinic-appointments/internal/schedule"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrSlotTaken       = errors.New("slot already booked")
	ErrForbidden       = errors.New("appointment belongs to another patient")
	ErrPastAppointment = errors.New("appointment already started")
)

// maxUpdateAttempts bounds re-reads when a conditional status write loses a race.
const maxUpdateAttempts = 3

var tracer = otel.Tracer("github.com/hackgods/clinic-appointments/internal/appointment")

// Enricher annotates a booking with rain risk for the patient's city.
// Implementations may fail; the service absorbs every error.
type Enricher interface {
	Enrich(ctx context.Context, city, state, date string) (rainAlert bool, summary *string, err error)
}

// AddressBook resolves the address a booking is enriched with.
type AddressBook interface {
	PatientAddress(ctx context.Context, patientID uuid.UUID) (*Address, error)
}

type Options struct {
	Location          *time.Location
	EnrichmentTimeout time.Duration
	Now               func() time.Time
}

type Service struct {
	repo      Repository
	addresses AddressBook
	enricher  Enricher
	metrics   *metrics.Metrics

	loc               *time.Location
	enrichmentTimeout time.Duration
	now               func() time.Time
}

// NewService builds the booking service. addresses, enricher and m may be nil.
func NewService(repo Repository, addresses AddressBook, enricher Enricher, m *metrics.Metrics, opts Options) *Service {
	s := &Service{
		repo:              repo,
		addresses:         addresses,
		enricher:          enricher,
		metrics:           m,
		loc:               opts.Location,
		enrichmentTimeout: opts.EnrichmentTimeout,
		now:               opts.Now,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.enrichmentTimeout <= 0 {
		s.enrichmentTimeout = 5 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// AvailableSlots returns the catalog slots of date not held by a live booking.
func (s *Service) AvailableSlots(ctx context.Context, date string) ([]string, error) {
	day, err := schedule.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if schedule.IsWeekend(day) {
		return []string{}, nil
	}

	booked, err := s.repo.ListActiveTimes(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list booked times: %w", err)
	}
	taken := make(map[string]struct{}, len(booked))
	for _, t := range booked {
		taken[t] = struct{}{}
	}

	free := []string{}
	for _, slot := range schedule.SlotsFor(day) {
		if _, ok := taken[slot]; !ok {
			free = append(free, slot)
		}
	}
	return free, nil
}

// CreateAppointment books (date, slotTime) for the patient. The insert is the
// only exclusivity check: a concurrent winner surfaces as ErrSlotTaken.
func (s *Service) CreateAppointment(ctx context.Context, patientID uuid.UUID, date, slotTime string) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.create")
	defer span.End()
	span.SetAttributes(attribute.String("slot.date", date), attribute.String("slot.time", slotTime))

	day, err := schedule.ParseDate(date)
	if err != nil {
		s.metrics.RecordBooking(metrics.OutcomeInvalid)
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if schedule.IsWeekend(day) {
		s.metrics.RecordBooking(metrics.OutcomeInvalid)
		return nil, fmt.Errorf("%w: %w", ErrValidation, schedule.ErrWeekend)
	}
	if err := schedule.ValidTime(slotTime); err != nil {
		s.metrics.RecordBooking(metrics.OutcomeInvalid)
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	rainAlert, summary := s.enrich(ctx, patientID, date)

	appt, err := s.repo.Insert(ctx, NewAppointment{
		PatientID:      patientID,
		Date:           date,
		Time:           slotTime,
		RainAlert:      rainAlert,
		WeatherSummary: summary,
	})
	if err != nil {
		if errors.Is(err, ErrSlotConflict) {
			s.metrics.RecordBooking(metrics.OutcomeConflict)
			span.SetAttributes(attribute.Bool("slot.conflict", true))
			if holder, ferr := s.repo.FindActiveByDateTime(ctx, date, slotTime); ferr == nil {
				log.Printf("booking conflict date=%s time=%s patient_id=%s holder=%s", date, slotTime, patientID, holder.ID)
			} else {
				log.Printf("booking conflict date=%s time=%s patient_id=%s", date, slotTime, patientID)
			}
			return nil, ErrSlotTaken
		}
		s.metrics.RecordBooking(metrics.OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.metrics.RecordBooking(metrics.OutcomeCreated)
	log.Printf("appointment created id=%s date=%s time=%s patient_id=%s rain_alert=%t", appt.ID, date, slotTime, patientID, appt.RainAlert)
	return appt, nil
}

// enrich returns the rain annotation for a booking, or the default when the
// address or the forecast is unavailable.
func (s *Service) enrich(ctx context.Context, patientID uuid.UUID, date string) (bool, *string) {
	if s.enricher == nil || s.addresses == nil {
		s.metrics.RecordEnrichment(metrics.OutcomeSkipped, 0)
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.enrichmentTimeout)
	defer cancel()

	addr, err := s.addresses.PatientAddress(ctx, patientID)
	if err != nil {
		log.Printf("enrichment skipped patient_id=%s: address lookup: %v", patientID, err)
		s.metrics.RecordEnrichment(metrics.OutcomeError, 0)
		return false, nil
	}
	if addr == nil || addr.City == "" {
		s.metrics.RecordEnrichment(metrics.OutcomeSkipped, 0)
		return false, nil
	}

	type result struct {
		alert   bool
		summary *string
		err     error
	}
	start := time.Now()
	done := make(chan result, 1)
	go func() {
		alert, summary, err := s.enricher.Enrich(ctx, addr.City, addr.State, date)
		done <- result{alert, summary, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			log.Printf("enrichment failed patient_id=%s city=%q date=%s: %v", patientID, addr.City, date, r.err)
			s.metrics.RecordEnrichment(metrics.OutcomeError, time.Since(start))
			return false, nil
		}
		s.metrics.RecordEnrichment(metrics.OutcomeOK, time.Since(start))
		return r.alert, r.summary
	case <-ctx.Done():
		log.Printf("enrichment timed out patient_id=%s city=%q date=%s after %s", patientID, addr.City, date, s.enrichmentTimeout)
		s.metrics.RecordEnrichment(metrics.OutcomeTimeout, time.Since(start))
		return false, nil
	}
}

// ListMine returns the patient's appointments ordered by date and time.
func (s *Service) ListMine(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	appts, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

// CancelByPatient cancels the patient's own appointment. Canceling an already
// canceled appointment returns it unchanged.
func (s *Service) CancelByPatient(ctx context.Context, id, patientID uuid.UUID) (*Appointment, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		appt, err := s.repo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load appointment: %w", err)
		}

		if appt.PatientID != patientID {
			return nil, ErrForbidden
		}
		if appt.Status == StatusCanceled {
			return appt, nil
		}

		start, err := schedule.Instant(appt.Date, appt.Time, s.loc)
		if err != nil {
			return nil, fmt.Errorf("appointment %s has malformed slot: %w", appt.ID, err)
		}
		if start.Before(s.now()) {
			return nil, ErrPastAppointment
		}

		updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, StatusCanceled)
		if err == nil {
			s.metrics.RecordStatusChange(string(appt.Status), string(StatusCanceled))
			log.Printf("appointment canceled by patient id=%s patient_id=%s", id, patientID)
			return updated, nil
		}
		if !errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("cancel appointment: %w", err)
		}
		// status moved underneath us; re-evaluate against the fresh row
	}
	return nil, fmt.Errorf("cancel appointment %s: status kept changing", id)
}

// ListAll returns appointments matching filter with their owners attached.
func (s *Service) ListAll(ctx context.Context, filter ListFilter) ([]AppointmentDetail, error) {
	if filter.Date != nil {
		if _, err := schedule.ParseDate(*filter.Date); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, *filter.Status)
	}

	appts, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// UpdateStatus sets any known status on behalf of staff, including reopening
// a canceled booking. Reopening fails with ErrSlotTaken when the slot has
// been booked again since.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) (*AppointmentDetail, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load appointment: %w", err)
		}

		if current.Status != status {
			_, err = s.repo.UpdateStatus(ctx, id, current.Status, status)
			if errors.Is(err, ErrAppointmentNotFound) {
				continue
			}
			if errors.Is(err, ErrSlotConflict) {
				return nil, ErrSlotTaken
			}
			if err != nil {
				return nil, fmt.Errorf("update status: %w", err)
			}
			s.metrics.RecordStatusChange(string(current.Status), string(status))
			log.Printf("appointment status changed id=%s from=%s to=%s", id, current.Status, status)
		}

		return s.GetAppointment(ctx, id)
	}
	return nil, fmt.Errorf("update status %s: status kept changing", id)
}

// GetAppointment retrieves an appointment with its owner attached.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetDetail(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return detail, nil
}
