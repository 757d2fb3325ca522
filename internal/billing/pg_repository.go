package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const invoiceColumns = `id, doctor_id, amount, currency, status, invoice_date, due_date, created_at, updated_at`
const lineItemColumns = `id, invoice_id, appointment_id, amount, quantity, description, voided, created_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice

	err := row.Scan(
		&inv.ID,
		&inv.DoctorID,
		&inv.Amount,
		&inv.Currency,
		&inv.Status,
		&inv.InvoiceDate,
		&inv.DueDate,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}

	return &inv, nil
}

func (r *PgRepository) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE id = $1
	`, id)

	inv, err := scanInvoice(row)
	if err != nil {
		return nil, err
	}

	items, err := r.listLineItems(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	inv.LineItems = items

	return inv, nil
}

func (r *PgRepository) listLineItems(ctx context.Context, invoiceID uuid.UUID) ([]LineItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+lineItemColumns+`
		FROM invoice_line_items
		WHERE invoice_id = $1
		ORDER BY created_at
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		var it LineItem
		err := rows.Scan(&it.ID, &it.InvoiceID, &it.AppointmentID, &it.Amount,
			&it.Quantity, &it.Description, &it.Voided, &it.CreatedAt)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}

	return items, rows.Err()
}

func (r *PgRepository) ListInvoicesByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE doctor_id = $1
		ORDER BY invoice_date DESC
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *inv)
	}

	return result, rows.Err()
}

func (r *PgRepository) FindOpenInvoiceByDoctor(ctx context.Context, doctorID uuid.UUID) (*Invoice, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE doctor_id = $1 AND status = 'open'
		ORDER BY invoice_date
		LIMIT 1
	`, doctorID)
	return scanInvoice(row)
}

func (r *PgRepository) CreateInvoice(ctx context.Context, inv *Invoice) (*Invoice, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+invoiceColumns+`
	`, inv.ID, inv.DoctorID, inv.Amount, inv.Currency, inv.Status, inv.InvoiceDate, inv.DueDate)
	return scanInvoice(row)
}

func (r *PgRepository) HasLineItemForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM invoice_line_items
			WHERE appointment_id = $1 AND NOT voided
		)
	`, appointmentID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// AppendLineItem relies on the partial unique index
// uq_line_items_appointment to reject a second non-voided item for the same
// appointment even if two aggregators race past the exists check.
func (r *PgRepository) AppendLineItem(ctx context.Context, item *LineItem) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO invoice_line_items (`+lineItemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, false, now())
	`, item.ID, item.InvoiceID, item.AppointmentID, item.Amount, item.Quantity, item.Description)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateLineItem
		}
		return fmt.Errorf("insert line item: %w", err)
	}
	return nil
}

func (r *PgRepository) RecomputeAmount(ctx context.Context, invoiceID uuid.UUID) (*Invoice, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE invoices
		SET amount = (
			SELECT COALESCE(SUM(amount * quantity), 0)
			FROM invoice_line_items
			WHERE invoice_id = $1 AND NOT voided
		),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+invoiceColumns+`
	`, invoiceID)
	return scanInvoice(row)
}

func (r *PgRepository) UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, from, to InvoiceStatus) (*Invoice, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE invoices
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+invoiceColumns+`
	`, id, to, from)
	return scanInvoice(row)
}

// VoidInvoice flips the invoice and its line items in one transaction so a
// reconcile run never observes a void invoice with live items.
func (r *PgRepository) VoidInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin void tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE invoices
		SET status = 'void',
		    updated_at = now()
		WHERE id = $1
		  AND status != 'void'
		RETURNING `+invoiceColumns+`
	`, id)

	inv, err := scanInvoice(row)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE invoice_line_items
		SET voided = true
		WHERE invoice_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("void line items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit void tx: %w", err)
	}

	return inv, nil
}
