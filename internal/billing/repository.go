package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrDuplicateLineItem: the appointment already has a non-voided line
	// item. The aggregator swallows this as an idempotent no-op.
	ErrDuplicateLineItem = errors.New("appointment already billed")
)

// Repository contains all DB interactions needed by the aggregator.
type Repository interface {
	GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error)
	ListInvoicesByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Invoice, error)

	// FindOpenInvoiceByDoctor returns the doctor's accumulating invoice, or
	// ErrInvoiceNotFound when none is open.
	FindOpenInvoiceByDoctor(ctx context.Context, doctorID uuid.UUID) (*Invoice, error)

	CreateInvoice(ctx context.Context, inv *Invoice) (*Invoice, error)

	// HasLineItemForAppointment reports whether a non-voided line item
	// already bills the appointment.
	HasLineItemForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error)

	// AppendLineItem inserts the item, or ErrDuplicateLineItem if the
	// appointment is already billed.
	AppendLineItem(ctx context.Context, item *LineItem) error

	// RecomputeAmount sets invoice.amount to the sum of its non-voided line
	// items and returns the updated invoice.
	RecomputeAmount(ctx context.Context, invoiceID uuid.UUID) (*Invoice, error)

	// UpdateInvoiceStatus applies from -> to only while the invoice still
	// has status from; a lost race surfaces as ErrInvoiceNotFound.
	UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, from, to InvoiceStatus) (*Invoice, error)

	// VoidInvoice marks the invoice void and voids its line items, releasing
	// their appointments for re-billing.
	VoidInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error)
}
