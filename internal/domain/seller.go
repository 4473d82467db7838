package domain

import (
	"time"

	"github.com/google/uuid"
)

const BlockReasonUnpaidInvoices = "unpaid invoices"

// SellerBlockState lives on the seller record. BlockedBy is nil when the
// billing system applied the block; an admin-applied block carries the admin's
// identity and is never lifted automatically.
type SellerBlockState struct {
	SellerID      uuid.UUID
	IsBlocked     bool
	BlockedAt     *time.Time
	BlockedReason *string
	BlockedBy     *string
}

// SystemBlocked reports whether the current block, if any, was applied by the
// billing system rather than an admin.
func (s *SellerBlockState) SystemBlocked() bool {
	return s.IsBlocked && s.BlockedBy == nil
}
