package billing

import (
	"time"

	"github.com/google/uuid"
)

type InvoiceStatus string

const (
	InvoiceOpen   InvoiceStatus = "open"
	InvoiceIssued InvoiceStatus = "issued"
	InvoicePaid   InvoiceStatus = "paid"
	InvoiceVoid   InvoiceStatus = "void"
)

// Invoice aggregates completed appointments for one doctor. Amount is always
// the sum of its non-voided line items; it is never written directly.
type Invoice struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	Amount      float64
	Currency    string
	Status      InvoiceStatus
	InvoiceDate time.Time
	DueDate     time.Time
	LineItems   []LineItem
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LineItem bills one completed appointment. An appointment appears in at most
// one non-voided line item across all invoices; voiding an invoice voids its
// items and releases the appointments for re-billing.
type LineItem struct {
	ID            uuid.UUID
	InvoiceID     uuid.UUID
	AppointmentID uuid.UUID
	Amount        float64
	Quantity      int
	Description   string
	Voided        bool
	CreatedAt     time.Time
}
