package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/quartiermarkt/billing/internal/domain"
)

const uniqueViolation = "23505"

const invoiceColumns = `id, seller_id, sale_id, subtotal, vat_rate, vat_amount, total,
	status, due_date, paid_at, payment_method, payment_reference,
	reminder_count, late_fee_added, late_fee_amount, created_at, updated_at`

type InvoiceRepository struct {
	db *sql.DB
}

func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) Create(ctx context.Context, inv *domain.Invoice) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invoices (
			id, seller_id, sale_id, subtotal, vat_rate, vat_amount, total,
			status, due_date, reminder_count, late_fee_added, late_fee_amount,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		inv.ID, inv.SellerID, inv.SaleID, inv.Subtotal, inv.VATRate, inv.VATAmount, inv.Total,
		inv.Status, inv.DueDate, inv.ReminderCount, inv.LateFeeAdded, inv.LateFeeAmount,
		inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("Create: sale %s: %w", inv.SaleID, domain.ErrDuplicateInvoice)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id,
	)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return inv, nil
}

func (r *InvoiceRepository) GetBySaleID(ctx context.Context, saleID uuid.UUID) (*domain.Invoice, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE sale_id = $1`, saleID,
	)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetBySaleID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetBySaleID: %w", err)
	}
	return inv, nil
}

// ListDuePending returns pending invoices whose due date has passed, oldest
// first, for the sweep's overdue flip.
func (r *InvoiceRepository) ListDuePending(ctx context.Context, now time.Time, limit int) ([]domain.Invoice, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
		WHERE status = 'pending' AND due_date < $1
		ORDER BY due_date ASC
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListDuePending: %w", err)
	}
	defer rows.Close()
	return collectInvoices(rows, "ListDuePending")
}

func (r *InvoiceRepository) ListOverdue(ctx context.Context, limit int) ([]domain.Invoice, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
		WHERE status = 'overdue'
		ORDER BY due_date ASC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListOverdue: %w", err)
	}
	defer rows.Close()
	return collectInvoices(rows, "ListOverdue")
}

// MarkOverdue flips pending to overdue, conditional on the due date having
// passed. Returns false when the invoice was not in a flippable state, which
// the sweep treats as a no-op.
func (r *InvoiceRepository) MarkOverdue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE invoices SET status = 'overdue', updated_at = $2
		WHERE id = $1 AND status = 'pending' AND due_date < $2`,
		id, now,
	)
	if err != nil {
		return false, fmt.Errorf("MarkOverdue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("MarkOverdue: rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkPaid is a compare-and-set: only pending or overdue invoices can become
// paid. The updated row is returned so the caller can reconcile the seller.
func (r *InvoiceRepository) MarkPaid(ctx context.Context, id uuid.UUID, method, reference *string, now time.Time) (*domain.Invoice, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE invoices
		SET status = 'paid', paid_at = $2, payment_method = $3, payment_reference = $4, updated_at = $2
		WHERE id = $1 AND status IN ('pending', 'overdue')
		RETURNING `+invoiceColumns,
		id, now, method, reference,
	)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.conflictOrNotFound(ctx, id, "MarkPaid")
		}
		return nil, fmt.Errorf("MarkPaid: %w", err)
	}
	return inv, nil
}

func (r *InvoiceRepository) Cancel(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Invoice, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE invoices SET status = 'cancelled', updated_at = $2
		WHERE id = $1 AND status IN ('pending', 'overdue')
		RETURNING `+invoiceColumns,
		id, now,
	)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.conflictOrNotFound(ctx, id, "Cancel")
		}
		return nil, fmt.Errorf("Cancel: %w", err)
	}
	return inv, nil
}

// EscalateReminder advances reminder_count by exactly one, conditional on the
// count the sweep read. A concurrent sweep or payment makes this a lost race,
// reported as false.
func (r *InvoiceRepository) EscalateReminder(ctx context.Context, id uuid.UUID, fromCount int, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE invoices SET reminder_count = reminder_count + 1, updated_at = $3
		WHERE id = $1 AND status = 'overdue' AND reminder_count = $2`,
		id, fromCount, now,
	)
	if err != nil {
		return false, fmt.Errorf("EscalateReminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("EscalateReminder: rows affected: %w", err)
	}
	return n > 0, nil
}

// ApplyLateFee adds the fee to the total exactly once, guarded by
// late_fee_added inside the same UPDATE.
func (r *InvoiceRepository) ApplyLateFee(ctx context.Context, id uuid.UUID, fee decimal.Decimal, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE invoices
		SET late_fee_added = TRUE, late_fee_amount = $2, total = total + $2, updated_at = $3
		WHERE id = $1 AND status = 'overdue' AND late_fee_added = FALSE`,
		id, fee, now,
	)
	if err != nil {
		return false, fmt.Errorf("ApplyLateFee: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ApplyLateFee: rows affected: %w", err)
	}
	return n > 0, nil
}

// CountFinalTierUnpaid counts the seller's overdue invoices at or past the
// final escalation tier; the block decision derives from this.
func (r *InvoiceRepository) CountFinalTierUnpaid(ctx context.Context, sellerID uuid.UUID, finalLevel int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM invoices
		WHERE seller_id = $1 AND status = 'overdue' AND reminder_count >= $2`,
		sellerID, finalLevel,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountFinalTierUnpaid: %w", err)
	}
	return n, nil
}

func (r *InvoiceRepository) conflictOrNotFound(ctx context.Context, id uuid.UUID, op string) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, domain.ErrInvoiceConflict)
}

func collectInvoices(rows *sql.Rows, op string) ([]domain.Invoice, error) {
	var out []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func scanInvoice(s scanner) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := s.Scan(
		&inv.ID, &inv.SellerID, &inv.SaleID, &inv.Subtotal, &inv.VATRate, &inv.VATAmount, &inv.Total,
		&inv.Status, &inv.DueDate, &inv.PaidAt, &inv.PaymentMethod, &inv.PaymentReference,
		&inv.ReminderCount, &inv.LateFeeAdded, &inv.LateFeeAmount, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
