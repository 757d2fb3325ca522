package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/telecare/booking-engine/internal/schedule"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// transitions is the single source of truth for the lifecycle. Terminal
// states have no outgoing edges.
var transitions = map[Status][]Status{
	StatusScheduled:  {StatusConfirmed, StatusCancelled, StatusNoShow},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted, StatusCancelled, StatusNoShow},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusNoShow:     {},
}

func ValidStatus(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// Occupying reports whether the status holds its slot against rebooking.
// Occupancy is derived from status at read time, so entering cancelled or
// no_show frees the slot with no explicit release step.
func (s Status) Occupying() bool {
	return s == StatusScheduled || s == StatusConfirmed || s == StatusInProgress
}

func (s Status) Terminal() bool {
	return ValidStatus(s) && len(transitions[s]) == 0
}

// CanTransition reports whether from -> to is an edge of the lifecycle table.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Appointment is the durable booking record. Its interval always equals one
// slot of the grid that was active when it was reserved. Rows are never
// physically deleted; terminal statuses are retained for audit and billing.
type Appointment struct {
	ID               uuid.UUID
	DoctorID         uuid.UUID
	PatientID        uuid.UUID
	Date             time.Time
	Start            schedule.TimeOfDay
	End              schedule.TimeOfDay
	Status           Status
	ConsultationType string
	IdempotencyKey   *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ReservationKey is the mutual-exclusion and uniqueness boundary for
// bookings: one key per (doctor, date, interval).
func (a *Appointment) ReservationKey() string {
	return ReservationKey(a.DoctorID, a.Date, a.Start, a.End)
}

func ReservationKey(doctorID uuid.UUID, date time.Time, start, end schedule.TimeOfDay) string {
	return fmt.Sprintf("reservation:%s:%s:%s-%s", doctorID, schedule.DateKey(date), start, end)
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
