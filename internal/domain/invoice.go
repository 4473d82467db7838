package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// Invoice is the platform's fee claim against a seller for one completed sale.
type Invoice struct {
	ID               uuid.UUID
	SellerID         uuid.UUID
	SaleID           uuid.UUID
	Subtotal         decimal.Decimal
	VATRate          decimal.Decimal
	VATAmount        decimal.Decimal
	Total            decimal.Decimal
	Status           InvoiceStatus
	DueDate          time.Time
	PaidAt           *time.Time
	PaymentMethod    *string
	PaymentReference *string
	ReminderCount    int
	LateFeeAdded     bool
	LateFeeAmount    decimal.Decimal
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CheckAmounts enforces subtotal + VAT + late fee == total. A violation means
// inconsistent data was about to be persisted and the operation must abort.
func (i *Invoice) CheckAmounts() error {
	want := i.Subtotal.Add(i.VATAmount).Add(i.LateFeeAmount)
	if !want.Equal(i.Total) {
		return fmt.Errorf("CheckAmounts: %s + %s + %s != %s: %w",
			i.Subtotal, i.VATAmount, i.LateFeeAmount, i.Total, ErrAmountInvariant)
	}
	return nil
}

// CompletedSale is what the sale-completion collaborator hands over when a
// listing sells. LineTotal is the gross sale price the fee is computed from.
type CompletedSale struct {
	SaleID    uuid.UUID
	SellerID  uuid.UUID
	LineTotal decimal.Decimal
}
