package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/smartbridgein/lemicare-opd-maangement-service-sub000/internal/appointment"
)

type CreateAppointmentRequest struct {
	DoctorID    string     `json:"doctor_id"`
	PatientID   string     `json:"patient_id"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	Reason      *string    `json:"reason,omitempty"`
}

type CancelAppointmentRequest struct {
	Reason *string `json:"reason,omitempty"`
}

type RescheduleAppointmentRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

type ReassignAppointmentRequest struct {
	DoctorID string `json:"doctor_id"`
}

type AppointmentResponse struct {
	ID          uuid.UUID  `json:"id"`
	DoctorID    uuid.UUID  `json:"doctor_id"`
	PatientID   uuid.UUID  `json:"patient_id"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	Status      string     `json:"status"`
	TokenNumber int        `json:"token_number,omitempty"`
	TokenStatus string     `json:"token_status"`
	TokenOrder  int        `json:"token_order,omitempty"`
	Reason      *string    `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// QueueResponse wraps queue lookups; a null appointment means "queue empty" /
// "no current patient", which is a normal state rather than an error.
type QueueResponse struct {
	Appointment *AppointmentResponse `json:"appointment"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Count        int                   `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		DoctorID:    a.DoctorID,
		PatientID:   a.PatientID,
		ScheduledAt: a.ScheduledAt,
		Status:      string(a.Status),
		TokenNumber: a.TokenNumber,
		TokenStatus: string(a.TokenStatus),
		TokenOrder:  a.TokenOrder,
		Reason:      a.Reason,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}
