package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smartbridgein/lemicare-opd-maangement-service-sub000/internal/config"
	redisclient "github.com/smartbridgein/lemicare-opd-maangement-service-sub000/internal/redis"
)

var (
	ErrQueueBusy        = errors.New("doctor queue is being updated, please retry")
	ErrAlreadyCancelled = errors.New("appointment is already cancelled")
	ErrVisitFinished    = errors.New("appointment visit is already completed")
)

// QueueManager is the slice of the token queue manager the lifecycle service
// needs when booking: issue a token number and compute the queue position.
type QueueManager interface {
	AssignToken(ctx context.Context, doctorID uuid.UUID, day time.Time) (int, error)
	QueuePosition(ctx context.Context, a *Appointment) (int, error)
}

type Service struct {
	repo   Repository
	locker redisclient.Locker
	queue  QueueManager
	cfg    config.Config
}

func NewService(repo Repository, locker redisclient.Locker, queue QueueManager, cfg config.Config) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		queue:  queue,
		cfg:    cfg,
	}
}

type CreateInput struct {
	DoctorID    uuid.UUID
	PatientID   uuid.UUID
	ScheduledAt *time.Time
	Reason      *string
}

// Create books an OPD appointment. Dated appointments receive a token number
// and queue position inside the doctor-day lock so that two near-simultaneous
// bookings for the same queue cannot interleave the assign-then-persist
// sequence. Undated appointments get no token number and sort last.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Appointment, error) {
	if _, err := s.repo.GetDoctorByID(ctx, in.DoctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if _, err := s.repo.GetPatientByID(ctx, in.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	appt := &Appointment{
		ID:          uuid.New(),
		DoctorID:    in.DoctorID,
		PatientID:   in.PatientID,
		ScheduledAt: in.ScheduledAt,
		Status:      StatusQueue,
		TokenStatus: TokenWaiting,
		Reason:      in.Reason,
	}

	if in.ScheduledAt == nil {
		pos, err := s.queue.QueuePosition(ctx, appt)
		if err != nil {
			return nil, err
		}
		appt.TokenOrder = pos

		created, err := s.repo.CreateAppointment(ctx, appt)
		if err != nil {
			return nil, fmt.Errorf("create appointment: %w", err)
		}
		return created, nil
	}

	var created *Appointment
	err := s.withQueueLock(ctx, in.DoctorID, *in.ScheduledAt, func(lockCtx context.Context) error {
		if err := s.tokenize(lockCtx, appt); err != nil {
			return err
		}

		c, err := s.repo.CreateAppointment(lockCtx, appt)
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// Cancel marks the appointment CANCELLED. Its token fields are retained:
// issued numbers are never reclaimed, and the queue manager skips anything
// that is no longer WAITING.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason *string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if appt.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	if appt.Status == StatusCompleted {
		return nil, ErrVisitFinished
	}

	appt.Status = StatusCancelled
	if appt.TokenStatus == TokenWaiting || appt.TokenStatus == TokenCurrent {
		appt.TokenStatus = TokenSkipped
	}
	if reason != nil {
		appt.Reason = reason
	}

	updated, err := s.repo.UpdateAppointment(ctx, appt)
	if err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}
	return updated, nil
}

// Reschedule moves the appointment to a new time. The appointment lands in
// the new doctor-day partition with a fresh token number and queue position;
// the old token number stays burned in its original partition.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newTime time.Time) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if appt.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	if appt.Status == StatusCompleted {
		return nil, ErrVisitFinished
	}

	appt.ScheduledAt = &newTime
	appt.Status = StatusRescheduled
	appt.TokenStatus = TokenWaiting

	var updated *Appointment
	err = s.withQueueLock(ctx, appt.DoctorID, newTime, func(lockCtx context.Context) error {
		if err := s.tokenize(lockCtx, appt); err != nil {
			return err
		}

		u, err := s.repo.UpdateAppointment(lockCtx, appt)
		if err != nil {
			return fmt.Errorf("reschedule appointment: %w", err)
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Reassign hands the appointment to a different doctor, re-tokenizing it in
// the new doctor's partition. The appointment status is left alone.
func (s *Service) Reassign(ctx context.Context, id, newDoctorID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if appt.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	if appt.Status == StatusCompleted {
		return nil, ErrVisitFinished
	}

	if _, err := s.repo.GetDoctorByID(ctx, newDoctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	appt.DoctorID = newDoctorID
	appt.TokenStatus = TokenWaiting

	if appt.ScheduledAt == nil {
		updated, err := s.repo.UpdateAppointment(ctx, appt)
		if err != nil {
			return nil, fmt.Errorf("reassign appointment: %w", err)
		}
		return updated, nil
	}

	var updated *Appointment
	err = s.withQueueLock(ctx, newDoctorID, *appt.ScheduledAt, func(lockCtx context.Context) error {
		if err := s.tokenize(lockCtx, appt); err != nil {
			return err
		}

		u, err := s.repo.UpdateAppointment(lockCtx, appt)
		if err != nil {
			return fmt.Errorf("reassign appointment: %w", err)
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Get retrieves an appointment by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

type ListFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    *AppointmentStatus
	From      *time.Time
	To        *time.Time
}

// List returns appointments matching the filter. Filters are applied by the
// most selective single predicate the store supports; the rest narrow the
// result in memory.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Appointment, error) {
	var (
		list []Appointment
		err  error
	)

	switch {
	case f.DoctorID != nil:
		list, err = s.repo.FindAppointmentsByDoctor(ctx, *f.DoctorID)
	case f.PatientID != nil:
		list, err = s.repo.FindAppointmentsByPatient(ctx, *f.PatientID)
	case f.Status != nil:
		list, err = s.repo.FindAppointmentsByStatus(ctx, *f.Status)
	case f.From != nil && f.To != nil:
		list, err = s.repo.FindAppointmentsByDateRange(ctx, *f.From, *f.To)
	default:
		list, err = s.repo.FindAllAppointments(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	out := list[:0]
	for i := range list {
		if f.matchesRest(&list[i]) {
			out = append(out, list[i])
		}
	}
	return out, nil
}

func (f *ListFilter) matchesRest(a *Appointment) bool {
	if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
		return false
	}
	if f.PatientID != nil && a.PatientID != *f.PatientID {
		return false
	}
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	if f.From != nil && (a.ScheduledAt == nil || a.ScheduledAt.Before(*f.From)) {
		return false
	}
	if f.To != nil && (a.ScheduledAt == nil || !a.ScheduledAt.Before(*f.To)) {
		return false
	}
	return true
}

// tokenize issues the token number and queue position for a dated
// appointment. Must run inside the doctor-day lock.
func (s *Service) tokenize(ctx context.Context, appt *Appointment) error {
	n, err := s.queue.AssignToken(ctx, appt.DoctorID, *appt.ScheduledAt)
	if err != nil {
		return err
	}
	pos, err := s.queue.QueuePosition(ctx, appt)
	if err != nil {
		return err
	}

	appt.TokenNumber = n
	appt.TokenOrder = pos
	return nil
}

func (s *Service) withQueueLock(ctx context.Context, doctorID uuid.UUID, day time.Time, fn func(ctx context.Context) error) error {
	dayStr := day.In(s.cfg.ClinicLocation).Format(DateLayout)

	err := s.locker.WithDoctorDayLock(ctx, doctorID, dayStr, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrQueueBusy
	}
	return err
}
