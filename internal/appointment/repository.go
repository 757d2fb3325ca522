package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/telecare/booking-engine/internal/schedule"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotOccupied is the store-level conflict: the conditional insert
	// found an occupying appointment for the same reservation key.
	ErrSlotOccupied = errors.New("slot already occupied")
)

// Repository contains all DB interactions needed by the service. Both the
// Postgres and the in-memory implementation guarantee that CreateOccupying is
// an atomic check-then-insert over the reservation key and that UpdateStatus
// is a compare-and-swap on the current status.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListOccupying returns appointments with an occupying status for the
	// doctor over the inclusive [from, to] date range.
	ListOccupying(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)

	// FindOccupying returns the occupying appointment holding the exact
	// reservation key, or ErrAppointmentNotFound.
	FindOccupying(ctx context.Context, doctorID uuid.UUID, date time.Time, start, end schedule.TimeOfDay) (*Appointment, error)

	// FindByIdempotencyKey returns the appointment created by a previous
	// reserve call carrying the same key, or ErrAppointmentNotFound.
	FindByIdempotencyKey(ctx context.Context, key string) (*Appointment, error)

	// CreateOccupying inserts the appointment if and only if no occupying
	// appointment exists for its reservation key, else ErrSlotOccupied.
	CreateOccupying(ctx context.Context, appt *Appointment) (*Appointment, error)

	// UpdateStatus applies from -> to only while the row still has status
	// from; a lost race surfaces as ErrAppointmentNotFound.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)

	// ListCompleted returns completed appointments across all doctors over
	// the inclusive [from, to] date range. Drives billing reconciliation.
	ListCompleted(ctx context.Context, from, to time.Time) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
