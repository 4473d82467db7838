package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartiermarkt/billing/internal/domain"
	"github.com/quartiermarkt/billing/internal/repository"
	"github.com/quartiermarkt/billing/internal/testutil"
)

func newInvoice(sellerID uuid.UUID, dueDate time.Time) *domain.Invoice {
	now := time.Now().UTC().Truncate(time.Millisecond)
	subtotal := decimal.RequireFromString("100.00")
	vat := decimal.RequireFromString("7.70")
	return &domain.Invoice{
		ID:            uuid.New(),
		SellerID:      sellerID,
		SaleID:        uuid.New(),
		Subtotal:      subtotal,
		VATRate:       decimal.RequireFromString("0.077"),
		VATAmount:     vat,
		Total:         subtotal.Add(vat),
		Status:        domain.InvoiceStatusPending,
		DueDate:       dueDate,
		LateFeeAmount: decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestInvoiceCreateRejectsDuplicateSale(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewInvoiceRepository(db)
	ctx := context.Background()

	sellerID := testutil.SeedSeller(t, db, "mia@test.ch")
	inv := newInvoice(sellerID, time.Now().UTC().AddDate(0, 0, 30))
	require.NoError(t, repo.Create(ctx, inv))

	dup := newInvoice(sellerID, inv.DueDate)
	dup.SaleID = inv.SaleID
	err := repo.Create(ctx, dup)
	require.ErrorIs(t, err, domain.ErrDuplicateInvoice)

	got, err := repo.GetBySaleID(ctx, inv.SaleID)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.ID, "the original invoice survives the duplicate attempt")
}

func TestInvoiceGetByIDNotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewInvoiceRepository(db)

	_, err := repo.GetByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInvoiceListDuePendingOrdering(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewInvoiceRepository(db)
	ctx := context.Background()

	sellerID := testutil.SeedSeller(t, db, "mia@test.ch")
	now := time.Now().UTC()

	older := testutil.SeedInvoice(t, db, sellerID, domain.InvoiceStatusPending, now.AddDate(0, 0, -10), 0)
	newer := testutil.SeedInvoice(t, db, sellerID, domain.InvoiceStatusPending, now.AddDate(0, 0, -2), 0)
	testutil.SeedInvoice(t, db, sellerID, domain.InvoiceStatusPending, now.AddDate(0, 0, 5), 0)  // not yet due
	testutil.SeedInvoice(t, db, sellerID, domain.InvoiceStatusPaid, now.AddDate(0, 0, -10), 0)   // terminal
	testutil.SeedInvoice(t, db, sellerID, domain.InvoiceStatusOverdue, now.AddDate(0, 0, -5), 1) // already flipped

	due, err := repo.ListDuePending(ctx, now, 100)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, older, due[0].ID, "oldest due date first")
	assert.Equal(t, newer, due[1].ID)

	limited, err := repo.ListDuePending(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, older, limited[0].ID)
}

func TestInvoiceMarkOverdueConditions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewInvoiceRepository(db)
	ctx := context.Background()

	sellerID := testutil.SeedSeller(t, db, "mia@test.ch")
	now := time.Now().UTC()

	tests := []struct {
		name    string
		status  domain.InvoiceStatus
		dueDate time.Time
		want    bool
	}{
		{name: "pending past due flips", status: domain.InvoiceStatusPending, dueDate: now.AddDate(0, 0, -1), want: true},
		{name: "pending not yet due", status: domain.InvoiceStatusPending, dueDate: now.AddDate(0, 0, 1), want: false},
		{name: "already overdue", status: domain.InvoiceStatusOverdue, dueDate: now.AddDate(0, 0, -1), want: false},
		{name: "paid stays paid", status: domain.InvoiceStatusPaid, dueDate: now.AddDate(0, 0, -1), want: false},
		{name: "cancelled stays cancelled", status: domain.InvoiceStatusCancelled, dueDate: now.AddDate(0, 0, -1), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := testutil.SeedInvoice(t, db, sellerID, tt.status, tt.dueDate, 0)
			flipped, err := repo.MarkOverdue(ctx, id, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, flipped)
		})
	}
}

func TestInvoiceMarkPaidFromPendingAndOverdue(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewInvoiceRepository(db)
	ctx := context.Background()

	sellerID := testutil.SeedSeller(t, db, "mia@test.ch")
	now := time.Now().UTC().Truncate(time.Millisecond)
	method := "bank_transfer"
	ref := "RF18539007547034"

	for _, status := range []domain.InvoiceStatus{domain.InvoiceStatusPending, domain.InvoiceStatusOverdue} {
		id := testutil.SeedInvoice(t, db, sellerID, status, now.AddDate(0, 0, -1), 0)

		inv, err := repo.MarkPaid(ctx, id, &method, &ref, now)
		require.NoError(t, err)
		assert.Equal(t, domain.InvoiceStatusPaid, inv.Status)
		require.NotNil(t, inv.PaidAt)
		assert.WithinDuration(t, now, *inv.PaidAt, time.Second)
		require.NotNil(t, inv.PaymentReference)
		assert.Equal(t, ref, *inv.PaymentReference)
	}
}

func TestInvoiceMarkPaidConflicts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewInvoiceRepository(db)
	ctx := context.Background()

	sellerID := testutil.SeedSeller(t, db, "mia@test.ch")
	now := time.Now().UTC()

	paid := testutil.SeedInvoice(t, db, sellerID, domain.InvoiceStatusPaid, now, 0)
	_, err := repo.MarkPaid(ctx, paid, nil, nil, now)
	require.ErrorIs(t, err, domain.ErrInvoiceConflict)

	cancelled := testutil.SeedInvoice(t, db, sellerID, domain.InvoiceStatusCancelled, now, 0)
	_, err = repo.MarkPaid(ctx, cancelled, nil, nil, now)
	require.ErrorIs(t, err, domain.ErrInvoiceConflict)

	_, err = repo.MarkPaid(ctx, uuid.New(), nil, nil, now)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInvoiceEscalateReminderCAS(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewInvoiceRepository(db)
	ctx := context.Background()

	sellerID := testutil.SeedSeller(t, db, "mia@test.ch")
	now := time.Now().UTC()
	id := testutil.SeedInvoice(t, db, sellerID, domain.InvoiceStatusOverdue, now.AddDate(0, 0, -8), 1)

	ok, err := repo.EscalateReminder(ctx, id, 1, now)
	require.NoError(t, err)
	assert.True(t, ok)

	// Replaying the same escalation is a lost race, not an error.
	ok, err = repo.EscalateReminder(ctx, id, 1, now)
	require.NoError(t, err)
	assert.False(t, ok)

	inv, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, inv.ReminderCount)

	// Payment racing ahead of the escalation leaves the count alone.
	_, err = repo.MarkPaid(ctx, id, nil, nil, now)
	require.NoError(t, err)
	ok, err = repo.EscalateReminder(ctx, id, 2, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvoiceApplyLateFeeOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewInvoiceRepository(db)
	ctx := context.Background()

	sellerID := testutil.SeedSeller(t, db, "mia@test.ch")
	now := time.Now().UTC()
	id := testutil.SeedInvoice(t, db, sellerID, domain.InvoiceStatusOverdue, now.AddDate(0, 0, -15), 2)
	fee := decimal.RequireFromString("15.00")

	ok, err := repo.ApplyLateFee(ctx, id, fee, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ApplyLateFee(ctx, id, fee, now)
	require.NoError(t, err)
	assert.False(t, ok, "the fee guard must hold on replay")

	inv, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, inv.LateFeeAdded)
	assert.True(t, inv.LateFeeAmount.Equal(fee))
	assert.Equal(t, "122.70", inv.Total.StringFixed(2))
	require.NoError(t, inv.CheckAmounts())
}

func TestInvoiceApplyLateFeeRequiresOverdue(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewInvoiceRepository(db)
	ctx := context.Background()

	sellerID := testutil.SeedSeller(t, db, "mia@test.ch")
	now := time.Now().UTC()
	id := testutil.SeedInvoice(t, db, sellerID, domain.InvoiceStatusPending, now.AddDate(0, 0, 5), 0)

	ok, err := repo.ApplyLateFee(ctx, id, decimal.RequireFromString("15.00"), now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvoiceCountFinalTierUnpaid(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewInvoiceRepository(db)
	ctx := context.Background()

	sellerID := testutil.SeedSeller(t, db, "mia@test.ch")
	otherSeller := testutil.SeedSeller(t, db, "ben@test.ch")
	now := time.Now().UTC()

	testutil.SeedInvoice(t, db, sellerID, domain.InvoiceStatusOverdue, now.AddDate(0, 0, -20), 3)
	testutil.SeedInvoice(t, db, sellerID, domain.InvoiceStatusOverdue, now.AddDate(0, 0, -10), 2)  // below final tier
	testutil.SeedInvoice(t, db, sellerID, domain.InvoiceStatusPaid, now.AddDate(0, 0, -20), 3)     // settled
	testutil.SeedInvoice(t, db, otherSeller, domain.InvoiceStatusOverdue, now.AddDate(0, 0, -20), 3)

	n, err := repo.CountFinalTierUnpaid(ctx, sellerID, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.CountFinalTierUnpaid(ctx, otherSeller, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
