package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/identity"
)

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	CEP      string `json:"cep,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateAppointmentRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type AddressResponse struct {
	Street       string `json:"street"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
}

type UserResponse struct {
	ID      uuid.UUID        `json:"id"`
	Name    string           `json:"name"`
	Email   string           `json:"email"`
	Role    identity.Role    `json:"role"`
	CEP     *string          `json:"cep,omitempty"`
	Address *AddressResponse `json:"address,omitempty"`
}

type AuthResponse struct {
	User  UserResponse `json:"user"`
	Token string       `json:"token"`
}

type MeResponse struct {
	User UserResponse `json:"user"`
}

type PatientResponse struct {
	ID      uuid.UUID        `json:"id"`
	Name    string           `json:"name"`
	Email   string           `json:"email"`
	CEP     *string          `json:"cep,omitempty"`
	Address *AddressResponse `json:"address,omitempty"`
}

type AppointmentResponse struct {
	ID             uuid.UUID        `json:"id"`
	PatientID      uuid.UUID        `json:"patientId"`
	Date           string           `json:"date"`
	Time           string           `json:"time"`
	Status         string           `json:"status"`
	RainAlert      bool             `json:"rainAlert"`
	WeatherSummary *string          `json:"weatherSummary,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
	Patient        *PatientResponse `json:"patient,omitempty"`
}

type AppointmentEnvelope struct {
	Appointment AppointmentResponse `json:"appointment"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
}

type AvailabilityResponse struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAddressResponse(a *appointment.Address) *AddressResponse {
	if a == nil {
		return nil
	}
	return &AddressResponse{
		Street:       a.Street,
		Neighborhood: a.Neighborhood,
		City:         a.City,
		State:        a.State,
	}
}

func toUserResponse(u *identity.User) UserResponse {
	return UserResponse{
		ID:      u.ID,
		Name:    u.Name,
		Email:   u.Email,
		Role:    u.Role,
		CEP:     u.CEP,
		Address: toAddressResponse(u.Address),
	}
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:             a.ID,
		PatientID:      a.PatientID,
		Date:           a.Date,
		Time:           a.Time,
		Status:         string(a.Status),
		RainAlert:      a.RainAlert,
		WeatherSummary: a.WeatherSummary,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func toDetailResponse(d appointment.AppointmentDetail) AppointmentResponse {
	resp := toAppointmentResponse(d.Appointment)
	if d.Patient != nil {
		resp.Patient = &PatientResponse{
			ID:      d.Patient.ID,
			Name:    d.Patient.Name,
			Email:   d.Patient.Email,
			CEP:     d.Patient.CEP,
			Address: toAddressResponse(d.Patient.Address),
		}
	}
	return resp
}
