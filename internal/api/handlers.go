package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/identity"
	"github.com/hackgods/clinic-appointments/internal/postal"
)

// AppointmentService is the booking surface the handlers depend on.
type AppointmentService interface {
	AvailableSlots(ctx context.Context, date string) ([]string, error)
	CreateAppointment(ctx context.Context, patientID uuid.UUID, date, slotTime string) (*appointment.Appointment, error)
	ListMine(ctx context.Context, patientID uuid.UUID) ([]appointment.Appointment, error)
	CancelByPatient(ctx context.Context, id, patientID uuid.UUID) (*appointment.Appointment, error)
	ListAll(ctx context.Context, filter appointment.ListFilter) ([]appointment.AppointmentDetail, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status appointment.AppointmentStatus) (*appointment.AppointmentDetail, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.AppointmentDetail, error)
}

type IdentityService interface {
	Authenticator
	Register(ctx context.Context, in identity.RegisterInput) (*identity.Session, error)
	Login(ctx context.Context, email, password string) (*identity.Session, error)
	Me(ctx context.Context, userID uuid.UUID) (*identity.User, error)
}

type AddressLookup interface {
	Lookup(ctx context.Context, cep string) (postal.Address, error)
}

// Auth

func registerHandler(svc IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		sess, err := svc.Register(r.Context(), identity.RegisterInput{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
			CEP:      req.CEP,
		})
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, AuthResponse{User: toUserResponse(sess.User), Token: sess.Token})
	}
}

func loginHandler(svc IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Email) == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "validation_error", "email and password are required")
			return
		}

		sess, err := svc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AuthResponse{User: toUserResponse(sess.User), Token: sess.Token})
	}
}

func meHandler(svc IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFrom(r.Context())

		u, err := svc.Me(r.Context(), p.UserID)
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, MeResponse{User: toUserResponse(u)})
	}
}

// Integrations

func cepLookupHandler(lookup AddressLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, err := lookup.Lookup(r.Context(), chi.URLParam(r, "cep"))
		if err != nil {
			switch {
			case errors.Is(err, postal.ErrInvalidCEP):
				writeError(w, http.StatusBadRequest, "invalid_cep", err.Error())
			case errors.Is(err, postal.ErrCEPNotFound):
				writeError(w, http.StatusNotFound, "cep_not_found", err.Error())
			default:
				writeError(w, http.StatusBadGateway, "cep_lookup_failed", "address service unavailable")
			}
			return
		}

		writeJSON(w, http.StatusOK, addr)
	}
}

// Appointments

func availableSlotsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")

		slots, err := svc.AvailableSlots(r.Context(), date)
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{Date: date, Slots: slots})
	}
}

func createAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		p, _ := PrincipalFrom(r.Context())

		appt, err := svc.CreateAppointment(r.Context(), p.UserID, req.Date, req.Time)
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, AppointmentEnvelope{Appointment: toAppointmentResponse(*appt)})
	}
}

func listMyAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFrom(r.Context())

		appts, err := svc.ListMine(r.Context(), p.UserID)
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}

		resp := AppointmentListResponse{Appointments: make([]AppointmentResponse, 0, len(appts))}
		for _, a := range appts {
			resp.Appointments = append(resp.Appointments, toAppointmentResponse(a))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func cancelAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}
		p, _ := PrincipalFrom(r.Context())

		appt, err := svc.CancelByPatient(r.Context(), id, p.UserID)
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentEnvelope{Appointment: toAppointmentResponse(*appt)})
	}
}

// Admin

func listAllAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var filter appointment.ListFilter
		q := r.URL.Query()
		if date := q.Get("date"); date != "" {
			filter.Date = &date
		}
		if status := q.Get("status"); status != "" {
			s := appointment.AppointmentStatus(strings.ToUpper(status))
			filter.Status = &s
		}

		details, err := svc.ListAll(r.Context(), filter)
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}

		resp := AppointmentListResponse{Appointments: make([]AppointmentResponse, 0, len(details))}
		for _, d := range details {
			resp.Appointments = append(resp.Appointments, toDetailResponse(d))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		detail, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentEnvelope{Appointment: toDetailResponse(*detail)})
	}
}

func updateStatusHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}
		var req UpdateStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		detail, err := svc.UpdateStatus(r.Context(), id, appointment.AppointmentStatus(req.Status))
		if err != nil {
			handleAppointmentError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentEnvelope{Appointment: toDetailResponse(*detail)})
	}
}

func appointmentIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleAppointmentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appointment.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, appointment.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", "this time slot is already booked")
	case errors.Is(err, appointment.ErrPastAppointment):
		writeError(w, http.StatusConflict, "past_appointment", "cannot cancel an appointment in the past")
	default:
		writeInternal(w, r, err)
	}
}

func handleIdentityError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, postal.ErrInvalidCEP):
		writeError(w, http.StatusBadRequest, "invalid_cep", err.Error())
	case errors.Is(err, postal.ErrCEPNotFound):
		writeError(w, http.StatusNotFound, "cep_not_found", err.Error())
	case errors.Is(err, identity.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", err.Error())
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, identity.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	default:
		writeInternal(w, r, err)
	}
}
