package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quartiermarkt/billing/internal/domain"
)

func SeedSeller(t *testing.T, db *sql.DB, email string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := db.Exec(
		`INSERT INTO sellers (id, display_name, email) VALUES ($1, $2, $3)`,
		id, "Seller "+id.String()[:8], email,
	)
	if err != nil {
		t.Fatalf("seed seller: %v", err)
	}
	return id
}

func SeedInvoice(t *testing.T, db *sql.DB, sellerID uuid.UUID, status domain.InvoiceStatus, dueDate time.Time, reminderCount int) uuid.UUID {
	t.Helper()

	subtotal := decimal.RequireFromString("100.00")
	vat := decimal.RequireFromString("7.70")
	total := subtotal.Add(vat)

	id := uuid.New()
	_, err := db.Exec(
		`INSERT INTO invoices (id, seller_id, sale_id, subtotal, vat_rate, vat_amount, total,
			status, due_date, reminder_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, sellerID, uuid.New(), subtotal, decimal.RequireFromString("0.077"), vat, total,
		status, dueDate, reminderCount,
	)
	if err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return id
}

func SeedPayoutProfile(t *testing.T, db *sql.DB, sellerID uuid.UUID, iban string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := db.Exec(
		`INSERT INTO payout_profiles (id, seller_id, holder_name, iban, iban_last4, status)
		VALUES ($1, $2, $3, $4, $5, 'ACTIVE')`,
		id, sellerID, "Initial Holder", iban, iban[len(iban)-4:],
	)
	if err != nil {
		t.Fatalf("seed payout profile: %v", err)
	}
	return id
}

func BlockSeller(t *testing.T, db *sql.DB, sellerID uuid.UUID, blockedBy *string) {
	t.Helper()

	_, err := db.Exec(
		`UPDATE sellers SET is_blocked = TRUE, blocked_at = now(), blocked_reason = 'policy violation', blocked_by = $2
		WHERE id = $1`,
		sellerID, blockedBy,
	)
	if err != nil {
		t.Fatalf("block seller: %v", err)
	}
}
