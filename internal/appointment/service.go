package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/telecare/booking-engine/internal/lock"
	"github.com/telecare/booking-engine/internal/schedule"
)

const (
	EventAppointmentReserved  = "APPOINTMENT_RESERVED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentStarted   = "APPOINTMENT_STARTED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentNoShow    = "APPOINTMENT_NO_SHOW"
)

var (
	// ErrInvalidSlot: the requested interval is not on the doctor's grid.
	// Not retryable without changing input.
	ErrInvalidSlot = errors.New("requested interval is not a bookable slot")

	// ErrSlotTaken: lost the reservation race. The caller re-renders
	// availability and picks another slot; the service never retries itself.
	ErrSlotTaken = errors.New("slot already has an occupying appointment")

	// ErrSlotBeingBooked: the reservation lock is held by a concurrent
	// request for the same key.
	ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")

	ErrInvalidTransition = errors.New("invalid status transition")
)

// PolicyProvider resolves the working-hours policy for a doctor. The
// configuration source is an external collaborator; a static global default
// satisfies it.
type PolicyProvider interface {
	PolicyFor(ctx context.Context, doctorID uuid.UUID) (schedule.WorkingHoursPolicy, error)
}

type StaticPolicy struct {
	Policy schedule.WorkingHoursPolicy
}

func (s StaticPolicy) PolicyFor(ctx context.Context, doctorID uuid.UUID) (schedule.WorkingHoursPolicy, error) {
	return s.Policy, nil
}

// CompletionListener is notified after an appointment enters completed. The
// billing aggregator implements it.
type CompletionListener interface {
	AppointmentCompleted(ctx context.Context, appt Appointment) error
}

type Service struct {
	repo     Repository
	locker   lock.Locker
	policies PolicyProvider
	billing  CompletionListener
}

func NewService(repo Repository, locker lock.Locker, policies PolicyProvider, billing CompletionListener) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		policies: policies,
		billing:  billing,
	}
}

// Availability computes the doctor's open slots over the inclusive date
// range: the grid minus slots held by occupying appointments. Purely a read;
// nothing is reserved by calling it.
func (s *Service) Availability(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]schedule.Slot, error) {
	policy, err := s.policies.PolicyFor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load working hours policy: %w", err)
	}

	occupying, err := s.repo.ListOccupying(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list occupying appointments: %w", err)
	}

	occupied := make([]schedule.Occupied, 0, len(occupying))
	for _, a := range occupying {
		occupied = append(occupied, schedule.Occupied{Date: a.Date, Start: a.Start, End: a.End})
	}

	return schedule.AvailableSlots(doctorID, from, to, policy, occupied), nil
}

type ReserveParams struct {
	DoctorID         uuid.UUID
	PatientID        uuid.UUID
	Date             time.Time
	Start            schedule.TimeOfDay
	End              schedule.TimeOfDay
	ConsultationType string

	// PreAuthorized creates the appointment directly in confirmed.
	PreAuthorized bool

	// IdempotencyKey, when set, makes a retried reserve return the
	// appointment created by the first attempt instead of ErrSlotTaken.
	IdempotencyKey string
}

// Reserve validates the requested interval against the doctor's grid and, if
// free, atomically transitions the slot from open to booked. Exactly one of N
// concurrent reserves for the same reservation key succeeds; the others
// observe ErrSlotTaken or ErrSlotBeingBooked. Reserves for different keys
// never contend.
func (s *Service) Reserve(ctx context.Context, p ReserveParams) (*Appointment, error) {
	policy, err := s.policies.PolicyFor(ctx, p.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("load working hours policy: %w", err)
	}

	if !schedule.OnGrid(p.Start, p.End, policy) {
		return nil, ErrInvalidSlot
	}

	if p.IdempotencyKey != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, p.IdempotencyKey)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	status := StatusScheduled
	if p.PreAuthorized {
		status = StatusConfirmed
	}

	var created *Appointment

	key := ReservationKey(p.DoctorID, p.Date, p.Start, p.End)
	err = s.locker.WithLock(ctx, key, func(lockCtx context.Context) error {
		// Re-check inside the critical section; the store's conditional
		// insert below is the hard backstop.
		existing, err := s.repo.FindOccupying(lockCtx, p.DoctorID, p.Date, p.Start, p.End)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check occupying appointment: %w", err)
		}
		if existing != nil {
			return ErrSlotTaken
		}

		appt := &Appointment{
			ID:               uuid.New(),
			DoctorID:         p.DoctorID,
			PatientID:        p.PatientID,
			Date:             p.Date,
			Start:            p.Start,
			End:              p.End,
			Status:           status,
			ConsultationType: p.ConsultationType,
		}
		if p.IdempotencyKey != "" {
			k := p.IdempotencyKey
			appt.IdempotencyKey = &k
		}

		created, err = s.repo.CreateOccupying(lockCtx, appt)
		if err != nil {
			if errors.Is(err, ErrSlotOccupied) {
				return ErrSlotTaken
			}
			return fmt.Errorf("create appointment: %w", err)
		}

		s.logEvent(lockCtx, created.ID, EventAppointmentReserved, map[string]any{
			"doctor_id":  p.DoctorID.String(),
			"patient_id": p.PatientID.String(),
			"date":       schedule.DateKey(p.Date),
			"start":      p.Start.String(),
			"end":        p.End.String(),
			"status":     string(status),
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, lock.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	return created, nil
}

// Confirm moves a scheduled appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusConfirmed, EventAppointmentConfirmed)
}

// Start moves a confirmed appointment to in_progress.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusInProgress, EventAppointmentStarted)
}

// Complete moves an in_progress appointment to completed and notifies the
// billing listener. A billing failure does not roll the completion back; the
// reconciliation worker re-delivers it.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.transition(ctx, id, StatusCompleted, EventAppointmentCompleted)
	if err != nil {
		return nil, err
	}

	if s.billing != nil {
		if err := s.billing.AppointmentCompleted(ctx, *appt); err != nil {
			log.Printf("billing listener failed for appointment %s: %v", appt.ID, err)
		}
	}

	return appt, nil
}

// Cancel moves a non-terminal appointment to cancelled, freeing its slot.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCancelled, EventAppointmentCancelled)
}

// MarkNoShow moves a non-terminal appointment to no_show, freeing its slot.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusNoShow, EventAppointmentNoShow)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, eventType string) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if !CanTransition(appt.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, to)
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// the CAS missed: another request moved the status first
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, to)
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.logEvent(ctx, updated.ID, eventType, map[string]any{
		"from": string(appt.Status),
		"to":   string(to),
	})

	return updated, nil
}

// GetAppointment retrieves an appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListByDoctor retrieves all appointments for a doctor over the inclusive
// date range, occupying or not.
func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	appts, err := s.repo.ListByDoctor(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appts, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for appointment %s: %v", eventType, appointmentID, err)
	}
}
