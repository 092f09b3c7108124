package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/smartbridgein/lemicare-opd-maangement-service-sub000/internal/config"
	redisclient "github.com/smartbridgein/lemicare-opd-maangement-service-sub000/internal/redis"
)

// MockRepository is a testify mock over the persistence contract.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Doctor), args.Error(1)
}

func (m *MockRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Patient), args.Error(1)
}

func (m *MockRepository) ListDoctors(ctx context.Context) ([]Doctor, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Doctor), args.Error(1)
}

func (m *MockRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Appointment), args.Error(1)
}

func (m *MockRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	args := m.Called(ctx, a)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Appointment), args.Error(1)
}

func (m *MockRepository) UpdateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	args := m.Called(ctx, a)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Appointment), args.Error(1)
}

func (m *MockRepository) FindAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	args := m.Called(ctx, doctorID)
	return args.Get(0).([]Appointment), args.Error(1)
}

func (m *MockRepository) FindAllAppointments(ctx context.Context) ([]Appointment, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Appointment), args.Error(1)
}

func (m *MockRepository) FindAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	args := m.Called(ctx, patientID)
	return args.Get(0).([]Appointment), args.Error(1)
}

func (m *MockRepository) FindAppointmentsByStatus(ctx context.Context, status AppointmentStatus) ([]Appointment, error) {
	args := m.Called(ctx, status)
	return args.Get(0).([]Appointment), args.Error(1)
}

func (m *MockRepository) FindAppointmentsByDateRange(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).([]Appointment), args.Error(1)
}

// passLocker runs the critical section inline and records the partitions it
// was asked to guard.
type passLocker struct {
	locked []string
}

func (l *passLocker) WithDoctorDayLock(ctx context.Context, doctorID uuid.UUID, day string, fn func(ctx context.Context) error) error {
	l.locked = append(l.locked, doctorID.String()+"_"+day)
	return fn(ctx)
}

// busyLocker simulates a contended doctor-day lock.
type busyLocker struct{}

func (busyLocker) WithDoctorDayLock(ctx context.Context, doctorID uuid.UUID, day string, fn func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

// stubQueue hands out canned token numbers and positions and counts calls.
type stubQueue struct {
	number      int
	position    int
	assignCalls int
}

func (q *stubQueue) AssignToken(ctx context.Context, doctorID uuid.UUID, day time.Time) (int, error) {
	q.assignCalls++
	return q.number, nil
}

func (q *stubQueue) QueuePosition(ctx context.Context, a *Appointment) (int, error) {
	return q.position, nil
}

func testConfig() config.Config {
	return config.Config{ClinicLocation: time.UTC}
}

func setupService() (*Service, *MockRepository, *passLocker, *stubQueue) {
	repo := &MockRepository{}
	locker := &passLocker{}
	queue := &stubQueue{number: 4, position: 4}
	svc := NewService(repo, locker, queue, testConfig())
	return svc, repo, locker, queue
}

func TestCreateTokenizesInsideDoctorDayLock(t *testing.T) {
	svc, repo, locker, queue := setupService()

	doctorID, patientID := uuid.New(), uuid.New()
	when := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

	repo.On("GetDoctorByID", mock.Anything, doctorID).Return(&Doctor{ID: doctorID}, nil)
	repo.On("GetPatientByID", mock.Anything, patientID).Return(&Patient{ID: patientID}, nil)
	repo.On("CreateAppointment", mock.Anything, mock.MatchedBy(func(a *Appointment) bool {
		return a.TokenNumber == 4 && a.TokenOrder == 4 &&
			a.Status == StatusQueue && a.TokenStatus == TokenWaiting
	})).Return(&Appointment{ID: uuid.New(), TokenNumber: 4, TokenOrder: 4}, nil)

	created, err := svc.Create(context.Background(), CreateInput{
		DoctorID:    doctorID,
		PatientID:   patientID,
		ScheduledAt: &when,
	})
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.Equal(t, 1, queue.assignCalls)
	require.Len(t, locker.locked, 1)
	assert.Equal(t, doctorID.String()+"_2025-03-10", locker.locked[0])
	repo.AssertExpectations(t)
}

func TestCreateUndatedGetsNoTokenNumber(t *testing.T) {
	svc, repo, locker, queue := setupService()
	queue.position = 1<<31 - 1 // the manager returns its sentinel here

	doctorID, patientID := uuid.New(), uuid.New()

	repo.On("GetDoctorByID", mock.Anything, doctorID).Return(&Doctor{ID: doctorID}, nil)
	repo.On("GetPatientByID", mock.Anything, patientID).Return(&Patient{ID: patientID}, nil)
	repo.On("CreateAppointment", mock.Anything, mock.MatchedBy(func(a *Appointment) bool {
		return a.TokenNumber == 0 && a.TokenOrder == 1<<31-1
	})).Return(&Appointment{ID: uuid.New()}, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		DoctorID:  doctorID,
		PatientID: patientID,
	})
	require.NoError(t, err)

	assert.Zero(t, queue.assignCalls, "undated appointments never consume a token number")
	assert.Empty(t, locker.locked, "no partition to lock without a date")
	repo.AssertExpectations(t)
}

func TestCreateUnknownDoctor(t *testing.T) {
	svc, repo, _, _ := setupService()

	doctorID := uuid.New()
	repo.On("GetDoctorByID", mock.Anything, doctorID).Return(nil, ErrDoctorNotFound)

	_, err := svc.Create(context.Background(), CreateInput{
		DoctorID:  doctorID,
		PatientID: uuid.New(),
	})
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestCreateContendedQueue(t *testing.T) {
	repo := &MockRepository{}
	svc := NewService(repo, busyLocker{}, &stubQueue{}, testConfig())

	doctorID, patientID := uuid.New(), uuid.New()
	when := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

	repo.On("GetDoctorByID", mock.Anything, doctorID).Return(&Doctor{ID: doctorID}, nil)
	repo.On("GetPatientByID", mock.Anything, patientID).Return(&Patient{ID: patientID}, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		DoctorID:    doctorID,
		PatientID:   patientID,
		ScheduledAt: &when,
	})
	assert.ErrorIs(t, err, ErrQueueBusy)
}

func TestCancelRetiresWaitingToken(t *testing.T) {
	svc, repo, _, _ := setupService()

	id := uuid.New()
	when := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	appt := &Appointment{
		ID:          id,
		ScheduledAt: &when,
		Status:      StatusQueue,
		TokenNumber: 2,
		TokenStatus: TokenWaiting,
		TokenOrder:  2,
	}

	repo.On("GetAppointmentByID", mock.Anything, id).Return(appt, nil)
	repo.On("UpdateAppointment", mock.Anything, mock.MatchedBy(func(a *Appointment) bool {
		return a.Status == StatusCancelled &&
			a.TokenStatus == TokenSkipped &&
			a.TokenNumber == 2 // the issued number is never reclaimed
	})).Return(appt, nil)

	_, err := svc.Cancel(context.Background(), id, nil)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestCancelTwiceConflicts(t *testing.T) {
	svc, repo, _, _ := setupService()

	id := uuid.New()
	repo.On("GetAppointmentByID", mock.Anything, id).Return(&Appointment{
		ID:     id,
		Status: StatusCancelled,
	}, nil)

	_, err := svc.Cancel(context.Background(), id, nil)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestRescheduleReTokenizes(t *testing.T) {
	svc, repo, locker, queue := setupService()
	queue.number = 9
	queue.position = 3

	id := uuid.New()
	oldTime := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	newTime := time.Date(2025, 3, 12, 11, 0, 0, 0, time.UTC)

	repo.On("GetAppointmentByID", mock.Anything, id).Return(&Appointment{
		ID:          id,
		DoctorID:    uuid.New(),
		ScheduledAt: &oldTime,
		Status:      StatusQueue,
		TokenNumber: 2,
		TokenStatus: TokenCurrent,
		TokenOrder:  2,
	}, nil)
	repo.On("UpdateAppointment", mock.Anything, mock.MatchedBy(func(a *Appointment) bool {
		return a.Status == StatusRescheduled &&
			a.TokenStatus == TokenWaiting &&
			a.TokenNumber == 9 && a.TokenOrder == 3 &&
			a.ScheduledAt.Equal(newTime)
	})).Return(&Appointment{ID: id}, nil)

	_, err := svc.Reschedule(context.Background(), id, newTime)
	require.NoError(t, err)

	require.Len(t, locker.locked, 1)
	assert.Contains(t, locker.locked[0], "2025-03-12", "lock taken on the new partition")
	repo.AssertExpectations(t)
}

func TestReassignValidatesNewDoctor(t *testing.T) {
	svc, repo, _, _ := setupService()

	id, newDoctor := uuid.New(), uuid.New()
	when := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

	repo.On("GetAppointmentByID", mock.Anything, id).Return(&Appointment{
		ID:          id,
		DoctorID:    uuid.New(),
		ScheduledAt: &when,
		Status:      StatusQueue,
	}, nil)
	repo.On("GetDoctorByID", mock.Anything, newDoctor).Return(nil, ErrDoctorNotFound)

	_, err := svc.Reassign(context.Background(), id, newDoctor)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestListFilterNarrowsInMemory(t *testing.T) {
	svc, repo, _, _ := setupService()

	doctorID := uuid.New()
	engaged := StatusEngaged

	appts := []Appointment{
		{ID: uuid.New(), DoctorID: doctorID, Status: StatusQueue},
		{ID: uuid.New(), DoctorID: doctorID, Status: StatusEngaged},
	}
	repo.On("FindAppointmentsByDoctor", mock.Anything, doctorID).Return(appts, nil)

	got, err := svc.List(context.Background(), ListFilter{
		DoctorID: &doctorID,
		Status:   &engaged,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, StatusEngaged, got[0].Status)
}
