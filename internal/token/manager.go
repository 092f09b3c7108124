package token

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smartbridgein/lemicare-opd-maangement-service-sub000/internal/appointment"
)

// OrderLast is the queue position given to appointments that cannot be
// ordered (no scheduled time). They sort behind every dated appointment.
const OrderLast = math.MaxInt32

// Directory is the manager's only data dependency: the persisted appointment
// store, always authoritative over the in-memory counters.
type Directory interface {
	FindAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]appointment.Appointment, error)
	FindAllAppointments(ctx context.Context) ([]appointment.Appointment, error)
	UpdateAppointment(ctx context.Context, a *appointment.Appointment) (*appointment.Appointment, error)
}

// Manager assigns, orders, and advances per-doctor per-day queue tokens.
//
// The counters map is a cache over the directory, keyed by the doctor-day
// partition "{doctorId}_{yyyy-mm-dd}". Every assignment re-synchronizes
// against the persisted maximum before incrementing, so a restarted process
// never reissues a token number. One Manager instance per process; the cache
// is not safe across multiple instances sharing a store.
type Manager struct {
	dir Directory
	loc *time.Location
	now func() time.Time

	mu        sync.Mutex
	counters  map[string]int
	lastReset string // clinic-local date of the last counter rebuild
}

func NewManager(dir Directory, loc *time.Location) *Manager {
	if loc == nil {
		loc = time.Local
	}
	return &Manager{
		dir:      dir,
		loc:      loc,
		now:      time.Now,
		counters: make(map[string]int),
	}
}

// AssignToken returns the next token number for the doctor's queue on the
// given day: strictly greater than every token number already issued for that
// partition, persisted or in memory. The caller persists the number on the
// appointment; the manager only mutates its counter.
func (m *Manager) AssignToken(ctx context.Context, doctorID uuid.UUID, day time.Time) (int, error) {
	if err := m.ensureFresh(ctx); err != nil {
		return 0, err
	}

	persisted, err := m.persistedMax(ctx, doctorID, day)
	if err != nil {
		return 0, fmt.Errorf("sync token counter: %w", err)
	}

	key := appointment.DayKey(doctorID, day, m.loc)

	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.counters[key]
	if persisted > c {
		c = persisted
	}
	c++
	m.counters[key] = c

	return c, nil
}

// QueuePosition returns 1 + the number of other appointments already booked
// for the same doctor on the same day, used as the appointment's tokenOrder.
// An appointment without a scheduled time cannot be ordered against timed
// ones and is deprioritized with OrderLast instead of rejected.
func (m *Manager) QueuePosition(ctx context.Context, a *appointment.Appointment) (int, error) {
	if a.ScheduledAt == nil {
		return OrderLast, nil
	}

	existing, err := m.dir.FindAppointmentsByDoctor(ctx, a.DoctorID)
	if err != nil {
		return 0, fmt.Errorf("count queue position: %w", err)
	}

	pos := 1
	for i := range existing {
		if existing[i].ID == a.ID {
			continue
		}
		if existing[i].OnDay(*a.ScheduledAt, m.loc) {
			pos++
		}
	}

	return pos, nil
}

// CurrentToken returns the doctor's appointment holding the CURRENT token
// today, or nil when no patient is engaged.
func (m *Manager) CurrentToken(ctx context.Context, doctorID uuid.UUID) (*appointment.Appointment, error) {
	if err := m.ensureFresh(ctx); err != nil {
		return nil, err
	}

	today, err := m.todays(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	for i := range today {
		if today[i].TokenStatus == appointment.TokenCurrent {
			return &today[i], nil
		}
	}
	return nil, nil
}

// NextToken returns the WAITING appointment with the smallest
// (tokenOrder, tokenNumber) for the doctor today, or nil when the queue is
// empty. Appointments missing either field sort last rather than erroring.
func (m *Manager) NextToken(ctx context.Context, doctorID uuid.UUID) (*appointment.Appointment, error) {
	if err := m.ensureFresh(ctx); err != nil {
		return nil, err
	}

	today, err := m.todays(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	var next *appointment.Appointment
	for i := range today {
		a := &today[i]
		if a.TokenStatus != appointment.TokenWaiting {
			continue
		}
		if next == nil || before(a, next) {
			next = a
		}
	}
	return next, nil
}

// Advance completes the doctor's current visit and promotes the next waiting
// patient: the CURRENT token (if any) becomes COMPLETED along with the
// appointment status, then the head of the waiting queue becomes
// CURRENT/ENGAGED and is returned. Returns nil when the queue is empty.
//
// The two writes are not transactional. A fault between them leaves the
// partition with no CURRENT token, which the next Advance or Skip call
// repairs by finding no current token and proceeding straight to promotion —
// "no current" is a normal starting state, never an error.
func (m *Manager) Advance(ctx context.Context, doctorID uuid.UUID) (*appointment.Appointment, error) {
	return m.step(ctx, doctorID, func(cur *appointment.Appointment) {
		cur.TokenStatus = appointment.TokenCompleted
		cur.Status = appointment.StatusCompleted
	})
}

// Skip is Advance except the current token is marked SKIPPED and the
// appointment status is left unchanged. A skipped token stays in the store
// but is no longer WAITING, so it is never re-selected; getting the patient
// seen again requires rebooking.
func (m *Manager) Skip(ctx context.Context, doctorID uuid.UUID) (*appointment.Appointment, error) {
	return m.step(ctx, doctorID, func(cur *appointment.Appointment) {
		cur.TokenStatus = appointment.TokenSkipped
	})
}

func (m *Manager) step(ctx context.Context, doctorID uuid.UUID, retire func(*appointment.Appointment)) (*appointment.Appointment, error) {
	cur, err := m.CurrentToken(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	if cur != nil {
		retire(cur)
		if _, err := m.dir.UpdateAppointment(ctx, cur); err != nil {
			return nil, fmt.Errorf("retire current token: %w", err)
		}
	}

	next, err := m.NextToken(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, nil
	}

	next.TokenStatus = appointment.TokenCurrent
	next.Status = appointment.StatusEngaged

	promoted, err := m.dir.UpdateAppointment(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("promote next token: %w", err)
	}
	return promoted, nil
}

// EnsureFresh runs the daily counter rebuild if the clinic-local date has
// rolled over since the last one. Exposed for the queue worker; every other
// entry point performs the same check implicitly.
func (m *Manager) EnsureFresh(ctx context.Context) error {
	return m.ensureFresh(ctx)
}

// ensureFresh rebuilds the counter cache on date rollover: scan every
// appointment, group by doctor-day, keep each partition's maximum token
// number. Pure cache warming — idempotent, and a counter already in memory
// is never lowered, since lowering could reissue a number already in use.
func (m *Manager) ensureFresh(ctx context.Context) error {
	today := m.now().In(m.loc).Format(appointment.DateLayout)

	m.mu.Lock()
	if m.lastReset == today {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	all, err := m.dir.FindAllAppointments(ctx)
	if err != nil {
		return fmt.Errorf("rebuild token counters: %w", err)
	}

	rebuilt := make(map[string]int)
	for i := range all {
		a := &all[i]
		if a.ScheduledAt == nil || a.TokenNumber <= 0 {
			continue
		}
		key := appointment.DayKey(a.DoctorID, *a.ScheduledAt, m.loc)
		if a.TokenNumber > rebuilt[key] {
			rebuilt[key] = a.TokenNumber
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, c := range m.counters {
		if c > rebuilt[key] {
			rebuilt[key] = c
		}
	}
	m.counters = rebuilt
	m.lastReset = today

	return nil
}

// persistedMax scans the doctor's persisted appointments for the largest
// token number on the given day. Cancelled appointments still count: their
// numbers were issued and must never be reused.
func (m *Manager) persistedMax(ctx context.Context, doctorID uuid.UUID, day time.Time) (int, error) {
	list, err := m.dir.FindAppointmentsByDoctor(ctx, doctorID)
	if err != nil {
		return 0, err
	}

	max := 0
	for i := range list {
		a := &list[i]
		if !a.OnDay(day, m.loc) {
			continue
		}
		if a.TokenNumber > max {
			max = a.TokenNumber
		}
	}
	return max, nil
}

func (m *Manager) todays(ctx context.Context, doctorID uuid.UUID) ([]appointment.Appointment, error) {
	list, err := m.dir.FindAppointmentsByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor queue: %w", err)
	}

	now := m.now()
	var today []appointment.Appointment
	for i := range list {
		if list[i].OnDay(now, m.loc) {
			today = append(today, list[i])
		}
	}
	return today, nil
}

// before orders a ahead of b by (tokenOrder, tokenNumber) ascending, with
// unassigned values treated as infinitely large.
func before(a, b *appointment.Appointment) bool {
	ao, bo := orderOrLast(a.TokenOrder), orderOrLast(b.TokenOrder)
	if ao != bo {
		return ao < bo
	}
	return orderOrLast(a.TokenNumber) < orderOrLast(b.TokenNumber)
}

func orderOrLast(v int) int {
	if v <= 0 {
		return OrderLast
	}
	return v
}
