package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quartiermarkt/billing/internal/iban"
	"github.com/quartiermarkt/billing/internal/scor"
)

// PaymentInstructions is what the slip renderer needs to display a bank
// transfer: the platform's account (masked for display, full for the QR
// payload), the amount due, and the creditor reference that lets an incoming
// transfer be matched back to its invoice.
type PaymentInstructions struct {
	CreditorIBAN       string
	CreditorIBANMasked string
	Reference          string
	AmountDue          decimal.Decimal
}

// BuildPaymentInstructions assembles the transfer details for an invoice.
// The reference is deterministic, so reprinting a slip always shows the same
// reference as the first print.
func (s *Service) BuildPaymentInstructions(ctx context.Context, invoiceID uuid.UUID) (*PaymentInstructions, error) {
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("BuildPaymentInstructions: %w", err)
	}

	ref, err := scor.Generate(inv.ID.String())
	if err != nil {
		return nil, fmt.Errorf("BuildPaymentInstructions: %w", err)
	}

	return &PaymentInstructions{
		CreditorIBAN:       iban.Normalize(s.platformIBAN),
		CreditorIBANMasked: iban.Mask(s.platformIBAN),
		Reference:          ref,
		AmountDue:          inv.Total,
	}, nil
}
