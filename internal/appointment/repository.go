package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all DB interactions needed by the service and the token
// queue manager.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	ListDoctors(ctx context.Context) ([]Doctor, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)

	// UpdateAppointment upserts by appointment ID and returns the stored row.
	UpdateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)

	// Queue manager reads
	FindAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error)
	FindAllAppointments(ctx context.Context) ([]Appointment, error)

	// Listing filters for the API layer
	FindAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)
	FindAppointmentsByStatus(ctx context.Context, status AppointmentStatus) ([]Appointment, error)
	FindAppointmentsByDateRange(ctx context.Context, from, to time.Time) ([]Appointment, error)
}
