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

const profileColumns = `id, seller_id, holder_name, iban, iban_last4, status, locked_reason, created_at, updated_at`

const requestColumns = `id, profile_id, requested_holder, requested_iban, requested_last4,
	status, reason, decided_at, decided_by, created_at, updated_at`

type PayoutRepository struct {
	db *sql.DB
}

func NewPayoutRepository(db *sql.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

func (r *PayoutRepository) GetProfile(ctx context.Context, id uuid.UUID) (*domain.PayoutProfile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM payout_profiles WHERE id = $1`, id,
	)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetProfile: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetProfile: %w", err)
	}
	return p, nil
}

// GetProfileForUpdate locks the profile row for the duration of the workflow
// transaction.
func (r *PayoutRepository) GetProfileForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.PayoutProfile, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM payout_profiles WHERE id = $1 FOR UPDATE`, id,
	)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetProfileForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetProfileForUpdate: %w", err)
	}
	return p, nil
}

func (r *PayoutRepository) CreateProfile(ctx context.Context, p *domain.PayoutProfile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payout_profiles (id, seller_id, holder_name, iban, iban_last4, status, locked_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.SellerID, p.HolderName, p.IBAN, p.IBANLast4, p.Status, p.LockedReason, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("CreateProfile: %w", err)
	}
	return nil
}

func (r *PayoutRepository) SetProfileStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.PayoutProfileStatus, lockedReason *string, now time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payout_profiles SET status = $2, locked_reason = $3, updated_at = $4 WHERE id = $1`,
		id, status, lockedReason, now,
	)
	if err != nil {
		return fmt.Errorf("SetProfileStatus: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SetProfileStatus: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("SetProfileStatus: %w", domain.ErrNotFound)
	}
	return nil
}

// ApplyProfileChange writes the approved bank details and reactivates the
// profile in one statement.
func (r *PayoutRepository) ApplyProfileChange(ctx context.Context, tx *sql.Tx, id uuid.UUID, holder, iban, last4 string, now time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payout_profiles
		SET holder_name = $2, iban = $3, iban_last4 = $4, status = 'ACTIVE', locked_reason = NULL, updated_at = $5
		WHERE id = $1`,
		id, holder, iban, last4, now,
	)
	if err != nil {
		return fmt.Errorf("ApplyProfileChange: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ApplyProfileChange: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("ApplyProfileChange: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *PayoutRepository) CreateChangeRequest(ctx context.Context, tx *sql.Tx, req *domain.PayoutChangeRequest) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payout_change_requests (
			id, profile_id, requested_holder, requested_iban, requested_last4,
			status, reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		req.ID, req.ProfileID, req.RequestedHolder, req.RequestedIBAN, req.RequestedLast4,
		req.Status, req.Reason, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("CreateChangeRequest: %w", err)
	}
	return nil
}

func (r *PayoutRepository) GetRequest(ctx context.Context, id uuid.UUID) (*domain.PayoutChangeRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM payout_change_requests WHERE id = $1`, id,
	)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetRequest: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetRequest: %w", err)
	}
	return req, nil
}

func (r *PayoutRepository) GetRequestForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.PayoutChangeRequest, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM payout_change_requests WHERE id = $1 FOR UPDATE`, id,
	)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetRequestForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetRequestForUpdate: %w", err)
	}
	return req, nil
}

func (r *PayoutRepository) HasPendingRequest(ctx context.Context, tx *sql.Tx, profileID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM payout_change_requests WHERE profile_id = $1 AND status = 'PENDING')`,
		profileID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("HasPendingRequest: %w", err)
	}
	return exists, nil
}

// DecideRequest moves a PENDING request to a terminal state. Conditional on
// the current status so a second decision loses the race and reports a
// conflict. The reason text is appended, never overwritten.
func (r *PayoutRepository) DecideRequest(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.ChangeRequestStatus, appendReason, decidedBy string, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE payout_change_requests
		SET status = $2,
			reason = CASE WHEN $3 = '' THEN reason
				WHEN reason = '' THEN $3
				ELSE reason || '; ' || $3 END,
			decided_by = $4, decided_at = $5, updated_at = $5
		WHERE id = $1 AND status = 'PENDING'`,
		id, status, appendReason, decidedBy, now,
	)
	if err != nil {
		return false, fmt.Errorf("DecideRequest: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("DecideRequest: rows affected: %w", err)
	}
	return n > 0, nil
}

// AppendAudit inserts an audit row. The table has no update or delete path;
// this is the only writer.
func (r *PayoutRepository) AppendAudit(ctx context.Context, tx *sql.Tx, entry *domain.PayoutAuditLogEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payout_audit_log (id, profile_id, request_id, action, actor, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.ProfileID, entry.RequestID, entry.Action, entry.Actor, entry.Metadata, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("AppendAudit: %w", err)
	}
	return nil
}

func (r *PayoutRepository) ListAudit(ctx context.Context, profileID uuid.UUID) ([]domain.PayoutAuditLogEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, profile_id, request_id, action, actor, metadata, created_at
		FROM payout_audit_log WHERE profile_id = $1 ORDER BY created_at ASC`,
		profileID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListAudit: %w", err)
	}
	defer rows.Close()

	var out []domain.PayoutAuditLogEntry
	for rows.Next() {
		var e domain.PayoutAuditLogEntry
		var requestID uuid.NullUUID
		if err := rows.Scan(&e.ID, &e.ProfileID, &requestID, &e.Action, &e.Actor, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListAudit: %w", err)
		}
		if requestID.Valid {
			e.RequestID = &requestID.UUID
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListAudit: %w", err)
	}
	return out, nil
}

func scanProfile(s scanner) (*domain.PayoutProfile, error) {
	var p domain.PayoutProfile
	err := s.Scan(
		&p.ID, &p.SellerID, &p.HolderName, &p.IBAN, &p.IBANLast4,
		&p.Status, &p.LockedReason, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanRequest(s scanner) (*domain.PayoutChangeRequest, error) {
	var req domain.PayoutChangeRequest
	err := s.Scan(
		&req.ID, &req.ProfileID, &req.RequestedHolder, &req.RequestedIBAN, &req.RequestedLast4,
		&req.Status, &req.Reason, &req.DecidedAt, &req.DecidedBy, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}
