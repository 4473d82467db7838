package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quartiermarkt/billing/internal/domain"
)

type SellerRepository struct {
	db *sql.DB
}

func NewSellerRepository(db *sql.DB) *SellerRepository {
	return &SellerRepository{db: db}
}

func (r *SellerRepository) GetBlockState(ctx context.Context, sellerID uuid.UUID) (*domain.SellerBlockState, error) {
	var s domain.SellerBlockState
	err := r.db.QueryRowContext(ctx,
		`SELECT id, is_blocked, blocked_at, blocked_reason, blocked_by
		FROM sellers WHERE id = $1`,
		sellerID,
	).Scan(&s.SellerID, &s.IsBlocked, &s.BlockedAt, &s.BlockedReason, &s.BlockedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetBlockState: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetBlockState: %w", err)
	}
	return &s, nil
}

// Block applies a system block. Conditional on the seller not being blocked
// already, so redundant reconciles write nothing.
func (r *SellerRepository) Block(ctx context.Context, sellerID uuid.UUID, reason string, blockedBy *string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sellers
		SET is_blocked = TRUE, blocked_at = $2, blocked_reason = $3, blocked_by = $4, updated_at = $2
		WHERE id = $1 AND is_blocked = FALSE`,
		sellerID, now, reason, blockedBy,
	)
	if err != nil {
		return false, fmt.Errorf("Block: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Block: rows affected: %w", err)
	}
	return n > 0, nil
}

// UnblockSystem lifts a block only when it was system-applied (blocked_by is
// NULL). Admin blocks are out of reach here by construction.
func (r *SellerRepository) UnblockSystem(ctx context.Context, sellerID uuid.UUID, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sellers
		SET is_blocked = FALSE, blocked_at = NULL, blocked_reason = NULL, blocked_by = NULL, updated_at = $2
		WHERE id = $1 AND is_blocked = TRUE AND blocked_by IS NULL`,
		sellerID, now,
	)
	if err != nil {
		return false, fmt.Errorf("UnblockSystem: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("UnblockSystem: rows affected: %w", err)
	}
	return n > 0, nil
}

// Email resolves the seller's notification recipient address.
func (r *SellerRepository) Email(ctx context.Context, sellerID uuid.UUID) (string, error) {
	var email string
	err := r.db.QueryRowContext(ctx,
		`SELECT email FROM sellers WHERE id = $1`, sellerID,
	).Scan(&email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("Email: %w", domain.ErrNotFound)
		}
		return "", fmt.Errorf("Email: %w", err)
	}
	return email, nil
}
