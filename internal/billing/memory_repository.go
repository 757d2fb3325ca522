package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository mirrors the Postgres repository's guarantees in memory:
// line-item uniqueness per appointment is checked under the store mutex.
type MemoryRepository struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]*Invoice
	items    map[uuid.UUID]*LineItem
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		invoices: make(map[uuid.UUID]*Invoice),
		items:    make(map[uuid.UUID]*LineItem),
	}
}

func (r *MemoryRepository) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invoices[id]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	return r.hydrateLocked(inv), nil
}

func (r *MemoryRepository) hydrateLocked(inv *Invoice) *Invoice {
	cp := *inv
	cp.LineItems = nil
	for _, it := range r.items {
		if it.InvoiceID == inv.ID {
			cp.LineItems = append(cp.LineItems, *it)
		}
	}
	sort.Slice(cp.LineItems, func(i, j int) bool {
		return cp.LineItems[i].CreatedAt.Before(cp.LineItems[j].CreatedAt)
	})
	return &cp
}

func (r *MemoryRepository) ListInvoicesByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Invoice
	for _, inv := range r.invoices {
		if inv.DoctorID == doctorID {
			result = append(result, *r.hydrateLocked(inv))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].InvoiceDate.After(result[j].InvoiceDate)
	})
	return result, nil
}

func (r *MemoryRepository) FindOpenInvoiceByDoctor(ctx context.Context, doctorID uuid.UUID) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var oldest *Invoice
	for _, inv := range r.invoices {
		if inv.DoctorID == doctorID && inv.Status == InvoiceOpen {
			if oldest == nil || inv.InvoiceDate.Before(oldest.InvoiceDate) {
				oldest = inv
			}
		}
	}
	if oldest == nil {
		return nil, ErrInvoiceNotFound
	}
	return r.hydrateLocked(oldest), nil
}

func (r *MemoryRepository) CreateInvoice(ctx context.Context, inv *Invoice) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cp := *inv
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.invoices[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (r *MemoryRepository) HasLineItemForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasLiveItemLocked(appointmentID), nil
}

func (r *MemoryRepository) hasLiveItemLocked(appointmentID uuid.UUID) bool {
	for _, it := range r.items {
		if it.AppointmentID == appointmentID && !it.Voided {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) AppendLineItem(ctx context.Context, item *LineItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hasLiveItemLocked(item.AppointmentID) {
		return ErrDuplicateLineItem
	}

	cp := *item
	cp.CreatedAt = time.Now()
	r.items[cp.ID] = &cp
	return nil
}

func (r *MemoryRepository) RecomputeAmount(ctx context.Context, invoiceID uuid.UUID) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invoices[invoiceID]
	if !ok {
		return nil, ErrInvoiceNotFound
	}

	var total float64
	for _, it := range r.items {
		if it.InvoiceID == invoiceID && !it.Voided {
			total += it.Amount * float64(it.Quantity)
		}
	}
	inv.Amount = total
	inv.UpdatedAt = time.Now()

	return r.hydrateLocked(inv), nil
}

func (r *MemoryRepository) UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, from, to InvoiceStatus) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invoices[id]
	if !ok || inv.Status != from {
		return nil, ErrInvoiceNotFound
	}

	inv.Status = to
	inv.UpdatedAt = time.Now()
	return r.hydrateLocked(inv), nil
}

func (r *MemoryRepository) VoidInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.invoices[id]
	if !ok || inv.Status == InvoiceVoid {
		return nil, ErrInvoiceNotFound
	}

	inv.Status = InvoiceVoid
	inv.UpdatedAt = time.Now()
	for _, it := range r.items {
		if it.InvoiceID == id {
			it.Voided = true
		}
	}

	return r.hydrateLocked(inv), nil
}
