// Package accountlock derives a seller's blocked state from that seller's
// unpaid invoices. It is the only component allowed to lift a billing block,
// and it never touches blocks an admin applied for other reasons.
package accountlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quartiermarkt/billing/internal/domain"
	"github.com/quartiermarkt/billing/internal/logging"
)

type invoiceRepo interface {
	CountFinalTierUnpaid(ctx context.Context, sellerID uuid.UUID, finalLevel int) (int, error)
}

type sellerRepo interface {
	GetBlockState(ctx context.Context, sellerID uuid.UUID) (*domain.SellerBlockState, error)
	Block(ctx context.Context, sellerID uuid.UUID, reason string, blockedBy *string, now time.Time) (bool, error)
	UnblockSystem(ctx context.Context, sellerID uuid.UUID, now time.Time) (bool, error)
}

type Controller struct {
	invoices   invoiceRepo
	sellers    sellerRepo
	finalLevel int
	now        func() time.Time
}

func NewController(invoices invoiceRepo, sellers sellerRepo, finalLevel int) *Controller {
	return &Controller{
		invoices:   invoices,
		sellers:    sellers,
		finalLevel: finalLevel,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile recomputes the desired block state and applies the difference.
// Safe to call redundantly: when the desired state already holds, nothing is
// written. A block with a non-nil BlockedBy belongs to an admin and is left
// alone in both directions.
func (c *Controller) Reconcile(ctx context.Context, sellerID uuid.UUID) error {
	log := logging.FromContext(ctx)

	unpaid, err := c.invoices.CountFinalTierUnpaid(ctx, sellerID, c.finalLevel)
	if err != nil {
		return fmt.Errorf("Reconcile: %w", err)
	}

	state, err := c.sellers.GetBlockState(ctx, sellerID)
	if err != nil {
		return fmt.Errorf("Reconcile: %w", err)
	}

	switch {
	case unpaid > 0 && !state.IsBlocked:
		blocked, err := c.sellers.Block(ctx, sellerID, domain.BlockReasonUnpaidInvoices, nil, c.now())
		if err != nil {
			return fmt.Errorf("Reconcile: %w", err)
		}
		if blocked {
			log.Info("seller blocked for unpaid invoices",
				"seller_id", sellerID,
				"final_tier_invoices", unpaid,
			)
		}

	case unpaid == 0 && state.SystemBlocked():
		unblocked, err := c.sellers.UnblockSystem(ctx, sellerID, c.now())
		if err != nil {
			return fmt.Errorf("Reconcile: %w", err)
		}
		if unblocked {
			log.Info("seller unblocked, no unpaid invoices remain", "seller_id", sellerID)
		}
	}

	return nil
}

// WithNow overrides the clock. Test hook.
func (c *Controller) WithNow(now func() time.Time) *Controller {
	c.now = now
	return c
}
