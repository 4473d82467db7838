// Package ledger owns the invoice lifecycle: creation from a completed sale,
// payment confirmation, the overdue flip, and late fees. Every transition is
// a conditional single-row update so concurrent sweeps and payment
// confirmations cannot clobber each other.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quartiermarkt/billing/internal/domain"
	"github.com/quartiermarkt/billing/internal/logging"
)

type invoiceRepo interface {
	Create(ctx context.Context, inv *domain.Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error)
	MarkPaid(ctx context.Context, id uuid.UUID, method, reference *string, now time.Time) (*domain.Invoice, error)
	MarkOverdue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	Cancel(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Invoice, error)
	ApplyLateFee(ctx context.Context, id uuid.UUID, fee decimal.Decimal, now time.Time) (bool, error)
}

type reconciler interface {
	Reconcile(ctx context.Context, sellerID uuid.UUID) error
}

// Pricing is the externally supplied pricing configuration applied at invoice
// creation.
type Pricing struct {
	CommissionRate decimal.Decimal
	VATRate        decimal.Decimal
	GracePeriod    time.Duration
}

type Service struct {
	invoices     invoiceRepo
	locks        reconciler
	pricing      Pricing
	platformIBAN string
	now          func() time.Time
}

func NewService(invoices invoiceRepo, locks reconciler, pricing Pricing, platformIBAN string) *Service {
	return &Service{
		invoices:     invoices,
		locks:        locks,
		pricing:      pricing,
		platformIBAN: platformIBAN,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CreateFromSale turns a completed sale into a pending invoice. The subtotal
// is the platform commission on the sale's line total; VAT is computed on the
// unrounded intermediate and rounding happens once, at the total, so the
// stored amounts always satisfy subtotal + VAT == total. Creating twice for
// the same sale is a duplicate conflict, never a second row.
func (s *Service) CreateFromSale(ctx context.Context, sale domain.CompletedSale) (*domain.Invoice, error) {
	if !sale.LineTotal.IsPositive() {
		return nil, fmt.Errorf("CreateFromSale: %w", domain.ErrInvalidAmount)
	}

	subtotal := sale.LineTotal.Mul(s.pricing.CommissionRate).Round(2)
	vatRaw := subtotal.Mul(s.pricing.VATRate)
	total := subtotal.Add(vatRaw).Round(2)
	vat := total.Sub(subtotal)

	now := s.now()
	inv := &domain.Invoice{
		ID:            uuid.New(),
		SellerID:      sale.SellerID,
		SaleID:        sale.SaleID,
		Subtotal:      subtotal,
		VATRate:       s.pricing.VATRate,
		VATAmount:     vat,
		Total:         total,
		Status:        domain.InvoiceStatusPending,
		DueDate:       now.Add(s.pricing.GracePeriod),
		LateFeeAmount: decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := inv.CheckAmounts(); err != nil {
		return nil, fmt.Errorf("CreateFromSale: %w", err)
	}

	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("CreateFromSale: %w", err)
	}

	logging.FromContext(ctx).Info("invoice created",
		"invoice_id", inv.ID,
		"seller_id", inv.SellerID,
		"sale_id", inv.SaleID,
		"total", inv.Total,
		"due_date", inv.DueDate,
	)

	return inv, nil
}

// MarkPaid confirms a payment against a pending or overdue invoice and
// re-evaluates the seller's block. An invoice that is already paid or
// cancelled reports a conflict. The block reconciliation is best-effort: the
// payment stands even if it fails.
func (s *Service) MarkPaid(ctx context.Context, invoiceID uuid.UUID, method, reference *string) (*domain.Invoice, error) {
	log := logging.FromContext(ctx)

	inv, err := s.invoices.MarkPaid(ctx, invoiceID, method, reference, s.now())
	if err != nil {
		return nil, fmt.Errorf("MarkPaid: %w", err)
	}

	log.Info("invoice paid",
		"invoice_id", inv.ID,
		"seller_id", inv.SellerID,
		"total", inv.Total,
	)

	if err := s.locks.Reconcile(ctx, inv.SellerID); err != nil {
		log.Error("block reconciliation after payment failed",
			"invoice_id", inv.ID,
			"seller_id", inv.SellerID,
			"error", err,
		)
	}

	return inv, nil
}

// MarkOverdue flips a pending invoice whose due date has passed. Invoked by
// the dunning sweep. Returns false without error when the invoice was already
// overdue, paid, or cancelled; a losing race is a no-op here.
func (s *Service) MarkOverdue(ctx context.Context, invoiceID uuid.UUID) (bool, error) {
	changed, err := s.invoices.MarkOverdue(ctx, invoiceID, s.now())
	if err != nil {
		return false, fmt.Errorf("MarkOverdue: %w", err)
	}
	if changed {
		logging.FromContext(ctx).Info("invoice overdue", "invoice_id", invoiceID)
	}
	return changed, nil
}

// ApplyLateFee adds the fee to the invoice total exactly once. Returns false
// when the fee was already applied or the invoice left the overdue state.
func (s *Service) ApplyLateFee(ctx context.Context, invoiceID uuid.UUID, fee decimal.Decimal) (bool, error) {
	if !fee.IsPositive() {
		return false, fmt.Errorf("ApplyLateFee: %w", domain.ErrInvalidAmount)
	}

	applied, err := s.invoices.ApplyLateFee(ctx, invoiceID, fee, s.now())
	if err != nil {
		return false, fmt.Errorf("ApplyLateFee: %w", err)
	}
	if applied {
		logging.FromContext(ctx).Info("late fee applied", "invoice_id", invoiceID, "fee", fee)
	}
	return applied, nil
}

// Cancel terminates a pending or overdue invoice on an external decision.
func (s *Service) Cancel(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error) {
	inv, err := s.invoices.Cancel(ctx, invoiceID, s.now())
	if err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}

	logging.FromContext(ctx).Info("invoice cancelled", "invoice_id", inv.ID)

	if err := s.locks.Reconcile(ctx, inv.SellerID); err != nil {
		logging.FromContext(ctx).Error("block reconciliation after cancellation failed",
			"invoice_id", inv.ID,
			"seller_id", inv.SellerID,
			"error", err,
		)
	}

	return inv, nil
}

func (s *Service) GetInvoice(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("GetInvoice: %w", err)
	}
	return inv, nil
}

// WithNow overrides the clock. Test hook.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}
