package appointment

import (
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus is an open enumeration; the values below are the ones the
// service itself writes, but unknown values read from the store are passed
// through untouched. The odd casing of StatusQueue is the store's historical
// literal and is load-bearing for existing documents.
type AppointmentStatus string

const (
	StatusQueue       AppointmentStatus = "Queue"
	StatusEngaged     AppointmentStatus = "ENGAGED"
	StatusCompleted   AppointmentStatus = "COMPLETED"
	StatusCancelled   AppointmentStatus = "CANCELLED"
	StatusRescheduled AppointmentStatus = "RESCHEDULED"
)

// TokenStatus is the queue-position state machine: WAITING -> CURRENT ->
// COMPLETED or SKIPPED. A SKIPPED token is never re-queued automatically.
type TokenStatus string

const (
	TokenWaiting   TokenStatus = "WAITING"
	TokenCurrent   TokenStatus = "CURRENT"
	TokenCompleted TokenStatus = "COMPLETED"
	TokenSkipped   TokenStatus = "SKIPPED"
)

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment is one OPD visit. TokenNumber is the per-doctor, per-day ticket
// number shown to the patient; TokenOrder is the priority key used when
// selecting the next patient. Both are zero when unassigned (undated
// appointments never receive a token number).
type Appointment struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	PatientID   uuid.UUID
	ScheduledAt *time.Time
	Status      AppointmentStatus
	TokenNumber int
	TokenStatus TokenStatus
	TokenOrder  int
	Reason      *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DateLayout renders the calendar-date half of a doctor-day partition key.
const DateLayout = "2006-01-02"

// DayKey returns the doctor-day partition key "{doctorId}_{yyyy-mm-dd}" for
// an explicit date, evaluated in the clinic's wall clock.
func DayKey(doctorID uuid.UUID, day time.Time, loc *time.Location) string {
	return doctorID.String() + "_" + day.In(loc).Format(DateLayout)
}

// OnDay reports whether the appointment's scheduled date falls on the given
// calendar day in the clinic's wall clock. Undated appointments belong to no
// day.
func (a *Appointment) OnDay(day time.Time, loc *time.Location) bool {
	if a.ScheduledAt == nil {
		return false
	}
	return a.ScheduledAt.In(loc).Format(DateLayout) == day.In(loc).Format(DateLayout)
}
