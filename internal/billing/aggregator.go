package billing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/telecare/booking-engine/internal/appointment"
	"github.com/telecare/booking-engine/internal/lock"
	"github.com/telecare/booking-engine/internal/schedule"
)

// Mode selects how completions are grouped into invoices.
type Mode string

const (
	// ModeAccumulate keeps one open invoice per doctor collecting line items
	// until it is issued.
	ModeAccumulate Mode = "accumulate"

	// ModePerAppointment creates a fresh invoice for every completion.
	ModePerAppointment Mode = "per_appointment"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAccumulate, ModePerAppointment:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown billing mode %q", s)
	}
}

// invoices fall due two weeks after creation
const dueAfterDays = 14

type Config struct {
	RatePerAppointment float64
	Currency           string
	Mode               Mode
}

// Aggregator consumes completed lifecycle events and maintains invoices:
// one line item per completed appointment, invoice amount recomputed as the
// sum of its items. Mutations for one doctor are serialized under a
// doctor-keyed lock; different doctors never contend.
type Aggregator struct {
	repo   Repository
	locker lock.Locker
	cfg    Config
}

var _ appointment.CompletionListener = (*Aggregator)(nil)

func NewAggregator(repo Repository, locker lock.Locker, cfg Config) *Aggregator {
	return &Aggregator{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
	}
}

func doctorBillingKey(doctorID uuid.UUID) string {
	return "billing:doctor:" + doctorID.String()
}

// AppointmentCompleted bills one completed appointment. Re-delivery of the
// same completion is a no-op, so both the lifecycle hook and the
// reconciliation worker can call it without double billing.
func (a *Aggregator) AppointmentCompleted(ctx context.Context, appt appointment.Appointment) error {
	if appt.Status != appointment.StatusCompleted {
		return fmt.Errorf("appointment %s is %s, not completed", appt.ID, appt.Status)
	}

	return a.locker.WithLock(ctx, doctorBillingKey(appt.DoctorID), func(lockCtx context.Context) error {
		billed, err := a.repo.HasLineItemForAppointment(lockCtx, appt.ID)
		if err != nil {
			return fmt.Errorf("check existing line item: %w", err)
		}
		if billed {
			return nil
		}

		inv, err := a.targetInvoice(lockCtx, appt.DoctorID)
		if err != nil {
			return err
		}

		item := &LineItem{
			ID:            uuid.New(),
			InvoiceID:     inv.ID,
			AppointmentID: appt.ID,
			Amount:        a.cfg.RatePerAppointment,
			Quantity:      1,
			Description: fmt.Sprintf("Consultation %s %s-%s",
				schedule.DateKey(appt.Date), appt.Start, appt.End),
		}

		if err := a.repo.AppendLineItem(lockCtx, item); err != nil {
			if errors.Is(err, ErrDuplicateLineItem) {
				// concurrent delivery won; treat as success
				log.Printf("appointment %s already billed, skipping", appt.ID)
				return nil
			}
			return fmt.Errorf("append line item: %w", err)
		}

		if _, err := a.repo.RecomputeAmount(lockCtx, inv.ID); err != nil {
			return fmt.Errorf("recompute invoice amount: %w", err)
		}

		return nil
	})
}

func (a *Aggregator) targetInvoice(ctx context.Context, doctorID uuid.UUID) (*Invoice, error) {
	if a.cfg.Mode == ModeAccumulate {
		inv, err := a.repo.FindOpenInvoiceByDoctor(ctx, doctorID)
		if err == nil {
			return inv, nil
		}
		if !errors.Is(err, ErrInvoiceNotFound) {
			return nil, fmt.Errorf("find open invoice: %w", err)
		}
	}

	now := time.Now()
	inv, err := a.repo.CreateInvoice(ctx, &Invoice{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		Amount:      0,
		Currency:    a.cfg.Currency,
		Status:      InvoiceOpen,
		InvoiceDate: now,
		DueDate:     now.AddDate(0, 0, dueAfterDays),
	})
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	return inv, nil
}

// Issue closes an open invoice; accumulate mode starts a fresh one on the
// doctor's next completion.
func (a *Aggregator) Issue(ctx context.Context, invoiceID uuid.UUID) (*Invoice, error) {
	inv, err := a.repo.UpdateInvoiceStatus(ctx, invoiceID, InvoiceOpen, InvoiceIssued)
	if err != nil {
		if errors.Is(err, ErrInvoiceNotFound) {
			return nil, fmt.Errorf("issue invoice %s: %w", invoiceID, err)
		}
		return nil, fmt.Errorf("issue invoice: %w", err)
	}
	return inv, nil
}

// MarkPaid moves an issued invoice to paid.
func (a *Aggregator) MarkPaid(ctx context.Context, invoiceID uuid.UUID) (*Invoice, error) {
	inv, err := a.repo.UpdateInvoiceStatus(ctx, invoiceID, InvoiceIssued, InvoicePaid)
	if err != nil {
		return nil, fmt.Errorf("mark invoice paid: %w", err)
	}
	return inv, nil
}

// Void cancels an invoice and releases its appointments for re-billing.
func (a *Aggregator) Void(ctx context.Context, invoiceID uuid.UUID) (*Invoice, error) {
	inv, err := a.repo.VoidInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("void invoice: %w", err)
	}
	return inv, nil
}

func (a *Aggregator) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := a.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

func (a *Aggregator) ListInvoices(ctx context.Context, doctorID uuid.UUID) ([]Invoice, error) {
	invs, err := a.repo.ListInvoicesByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return invs, nil
}

// Reconcile re-delivers completions that never produced a line item, e.g.
// when the billing store was down at completion time. Intended to be called
// periodically by the billing worker; idempotence makes over-delivery safe.
func (a *Aggregator) Reconcile(ctx context.Context, appts appointment.Repository, from, to time.Time) (int, error) {
	completed, err := appts.ListCompleted(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("list completed appointments: %w", err)
	}

	billed := 0
	for _, appt := range completed {
		already, err := a.repo.HasLineItemForAppointment(ctx, appt.ID)
		if err != nil {
			return billed, fmt.Errorf("check line item for %s: %w", appt.ID, err)
		}
		if already {
			continue
		}
		if err := a.AppointmentCompleted(ctx, appt); err != nil {
			log.Printf("reconcile: billing appointment %s failed: %v", appt.ID, err)
			continue
		}
		billed++
	}
	return billed, nil
}
