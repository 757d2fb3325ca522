package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telecare/booking-engine/internal/schedule"
)

// MemoryRepository is a mutex-guarded in-memory store with the same atomicity
// guarantees as the Postgres repository: conditional insert over the
// reservation key and CAS status updates happen under one lock. Used for
// STORE=memory dev mode and in tests.
type MemoryRepository struct {
	mu     sync.Mutex
	appts  map[uuid.UUID]*Appointment
	events []EventLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{appts: make(map[uuid.UUID]*Appointment)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) ListOccupying(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return r.list(doctorID, from, to, true)
}

func (r *MemoryRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return r.list(doctorID, from, to, false)
}

func (r *MemoryRepository) list(doctorID uuid.UUID, from, to time.Time, occupyingOnly bool) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fromKey, toKey := schedule.DateKey(from), schedule.DateKey(to)

	var result []Appointment
	for _, a := range r.appts {
		if a.DoctorID != doctorID {
			continue
		}
		if occupyingOnly && !a.Status.Occupying() {
			continue
		}
		k := schedule.DateKey(a.Date)
		if k < fromKey || k > toKey {
			continue
		}
		result = append(result, *a)
	}

	sort.Slice(result, func(i, j int) bool {
		di, dj := schedule.DateKey(result[i].Date), schedule.DateKey(result[j].Date)
		if di != dj {
			return di < dj
		}
		return result[i].Start < result[j].Start
	})

	return result, nil
}

func (r *MemoryRepository) ListCompleted(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fromKey, toKey := schedule.DateKey(from), schedule.DateKey(to)

	var result []Appointment
	for _, a := range r.appts {
		if a.Status != StatusCompleted {
			continue
		}
		k := schedule.DateKey(a.Date)
		if k < fromKey || k > toKey {
			continue
		}
		result = append(result, *a)
	}

	sort.Slice(result, func(i, j int) bool {
		di, dj := schedule.DateKey(result[i].Date), schedule.DateKey(result[j].Date)
		if di != dj {
			return di < dj
		}
		return result[i].Start < result[j].Start
	})

	return result, nil
}

func (r *MemoryRepository) FindOccupying(ctx context.Context, doctorID uuid.UUID, date time.Time, start, end schedule.TimeOfDay) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.findOccupyingLocked(doctorID, date, start, end)
	if a == nil {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) findOccupyingLocked(doctorID uuid.UUID, date time.Time, start, end schedule.TimeOfDay) *Appointment {
	for _, a := range r.appts {
		if a.DoctorID == doctorID &&
			schedule.DateKey(a.Date) == schedule.DateKey(date) &&
			a.Start == start && a.End == end &&
			a.Status.Occupying() {
			return a
		}
	}
	return nil
}

func (r *MemoryRepository) FindByIdempotencyKey(ctx context.Context, key string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.appts {
		if a.IdempotencyKey != nil && *a.IdempotencyKey == key {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *MemoryRepository) CreateOccupying(ctx context.Context, appt *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findOccupyingLocked(appt.DoctorID, appt.Date, appt.Start, appt.End) != nil {
		return nil, ErrSlotOccupied
	}

	now := time.Now()
	cp := *appt
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.appts[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}

	a.Status = to
	a.UpdatedAt = time.Now()

	cp := *a
	return &cp, nil
}

func (r *MemoryRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}
