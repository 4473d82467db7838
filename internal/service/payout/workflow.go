// Package payout runs the approval state machine for seller bank-detail
// changes. Requests move PENDING -> APPROVED or REJECTED and are immutable
// afterwards; every decision lands in the append-only audit log inside the
// same transaction as the profile update.
package payout

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quartiermarkt/billing/internal/domain"
	"github.com/quartiermarkt/billing/internal/iban"
	"github.com/quartiermarkt/billing/internal/logging"
	"github.com/quartiermarkt/billing/internal/notify"
)

type payoutRepo interface {
	GetProfileForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.PayoutProfile, error)
	SetProfileStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.PayoutProfileStatus, lockedReason *string, now time.Time) error
	ApplyProfileChange(ctx context.Context, tx *sql.Tx, id uuid.UUID, holder, ibanValue, last4 string, now time.Time) error
	CreateChangeRequest(ctx context.Context, tx *sql.Tx, req *domain.PayoutChangeRequest) error
	GetRequestForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.PayoutChangeRequest, error)
	HasPendingRequest(ctx context.Context, tx *sql.Tx, profileID uuid.UUID) (bool, error)
	DecideRequest(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.ChangeRequestStatus, appendReason, decidedBy string, now time.Time) (bool, error)
	AppendAudit(ctx context.Context, tx *sql.Tx, entry *domain.PayoutAuditLogEntry) error
}

type sellerDirectory interface {
	Email(ctx context.Context, sellerID uuid.UUID) (string, error)
}

type Workflow struct {
	repo     payoutRepo
	sellers  sellerDirectory
	notifier notify.Notifier
	db       *sql.DB
	now      func() time.Time
}

func NewWorkflow(repo payoutRepo, sellers sellerDirectory, notifier notify.Notifier, db *sql.DB) *Workflow {
	return &Workflow{
		repo:     repo,
		sellers:  sellers,
		notifier: notifier,
		db:       db,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RequestChange opens a change request for new bank details. The IBAN is
// validated before anything is written; an invalid IBAN never produces a
// request row. The profile drops to PENDING_CHANGE until an admin decides.
func (w *Workflow) RequestChange(ctx context.Context, profileID uuid.UUID, newHolder, newIBAN, actor string) (*domain.PayoutChangeRequest, error) {
	if strings.TrimSpace(newHolder) == "" {
		return nil, fmt.Errorf("RequestChange: %w", domain.ErrMissingHolder)
	}
	if err := iban.Validate(newIBAN); err != nil {
		return nil, fmt.Errorf("RequestChange: %w", err)
	}
	normalized := iban.Normalize(newIBAN)

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("RequestChange: begin tx: %w", err)
	}
	defer tx.Rollback()

	profile, err := w.repo.GetProfileForUpdate(ctx, tx, profileID)
	if err != nil {
		return nil, fmt.Errorf("RequestChange: %w", err)
	}
	if profile.Status == domain.PayoutProfileSuspended {
		return nil, fmt.Errorf("RequestChange: %w", domain.ErrProfileSuspended)
	}

	pending, err := w.repo.HasPendingRequest(ctx, tx, profileID)
	if err != nil {
		return nil, fmt.Errorf("RequestChange: %w", err)
	}
	if pending {
		return nil, fmt.Errorf("RequestChange: %w", domain.ErrRequestPending)
	}

	now := w.now()
	req := &domain.PayoutChangeRequest{
		ID:              uuid.New(),
		ProfileID:       profileID,
		RequestedHolder: strings.TrimSpace(newHolder),
		RequestedIBAN:   normalized,
		RequestedLast4:  iban.Last4(normalized),
		Status:          domain.ChangeRequestPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := w.repo.CreateChangeRequest(ctx, tx, req); err != nil {
		return nil, fmt.Errorf("RequestChange: %w", err)
	}
	if err := w.repo.SetProfileStatus(ctx, tx, profileID, domain.PayoutProfilePendingChange, nil, now); err != nil {
		return nil, fmt.Errorf("RequestChange: %w", err)
	}
	if err := w.audit(ctx, tx, profile, req, domain.AuditChangeRequested, actor, now); err != nil {
		return nil, fmt.Errorf("RequestChange: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("RequestChange: commit: %w", err)
	}

	logging.FromContext(ctx).Info("payout change requested",
		"profile_id", profileID,
		"request_id", req.ID,
		"iban_last4", req.RequestedLast4,
		"actor", actor,
	)

	return req, nil
}

// Approve applies a pending request to the profile and reactivates it. The
// audit write shares the transaction; an approved change without its audit
// row cannot happen.
func (w *Workflow) Approve(ctx context.Context, requestID uuid.UUID, actor string) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Approve: begin tx: %w", err)
	}
	defer tx.Rollback()

	req, err := w.repo.GetRequestForUpdate(ctx, tx, requestID)
	if err != nil {
		return fmt.Errorf("Approve: %w", err)
	}
	if req.Status != domain.ChangeRequestPending {
		return fmt.Errorf("Approve: %w", domain.ErrRequestDecided)
	}

	// The profile must never go ACTIVE holding an IBAN that fails the
	// checksum, whatever was stored since the request was made.
	if err := iban.Validate(req.RequestedIBAN); err != nil {
		return fmt.Errorf("Approve: %w", err)
	}

	profile, err := w.repo.GetProfileForUpdate(ctx, tx, req.ProfileID)
	if err != nil {
		return fmt.Errorf("Approve: %w", err)
	}

	now := w.now()
	decided, err := w.repo.DecideRequest(ctx, tx, requestID, domain.ChangeRequestApproved, "", actor, now)
	if err != nil {
		return fmt.Errorf("Approve: %w", err)
	}
	if !decided {
		return fmt.Errorf("Approve: %w", domain.ErrRequestDecided)
	}

	if err := w.repo.ApplyProfileChange(ctx, tx, req.ProfileID, req.RequestedHolder, req.RequestedIBAN, req.RequestedLast4, now); err != nil {
		return fmt.Errorf("Approve: %w", err)
	}
	if err := w.audit(ctx, tx, profile, req, domain.AuditChangeApproved, actor, now); err != nil {
		return fmt.Errorf("Approve: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Approve: commit: %w", err)
	}

	logging.FromContext(ctx).Info("payout change approved",
		"profile_id", req.ProfileID,
		"request_id", requestID,
		"actor", actor,
	)

	w.notifyDecision(ctx, profile.SellerID,
		"Bank details updated",
		fmt.Sprintf("Your payout account ending in %s is now active.", req.RequestedLast4),
	)

	return nil
}

// Reject declines a pending request and reverts the profile to ACTIVE with
// the reason recorded. Reasons accumulate across revisits of a request; prior
// text is never overwritten.
func (w *Workflow) Reject(ctx context.Context, requestID uuid.UUID, actor, reason string) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Reject: begin tx: %w", err)
	}
	defer tx.Rollback()

	req, err := w.repo.GetRequestForUpdate(ctx, tx, requestID)
	if err != nil {
		return fmt.Errorf("Reject: %w", err)
	}
	if req.Status != domain.ChangeRequestPending {
		return fmt.Errorf("Reject: %w", domain.ErrRequestDecided)
	}

	profile, err := w.repo.GetProfileForUpdate(ctx, tx, req.ProfileID)
	if err != nil {
		return fmt.Errorf("Reject: %w", err)
	}

	now := w.now()
	decided, err := w.repo.DecideRequest(ctx, tx, requestID, domain.ChangeRequestRejected, strings.TrimSpace(reason), actor, now)
	if err != nil {
		return fmt.Errorf("Reject: %w", err)
	}
	if !decided {
		return fmt.Errorf("Reject: %w", domain.ErrRequestDecided)
	}

	var lockedReason *string
	if r := strings.TrimSpace(reason); r != "" {
		lockedReason = &r
	}
	if err := w.repo.SetProfileStatus(ctx, tx, req.ProfileID, domain.PayoutProfileActive, lockedReason, now); err != nil {
		return fmt.Errorf("Reject: %w", err)
	}
	if err := w.audit(ctx, tx, profile, req, domain.AuditChangeRejected, actor, now); err != nil {
		return fmt.Errorf("Reject: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Reject: commit: %w", err)
	}

	logging.FromContext(ctx).Info("payout change rejected",
		"profile_id", req.ProfileID,
		"request_id", requestID,
		"actor", actor,
	)

	w.notifyDecision(ctx, profile.SellerID,
		"Bank detail change rejected",
		fmt.Sprintf("Your requested payout account change was rejected: %s", reason),
	)

	return nil
}

func (w *Workflow) audit(ctx context.Context, tx *sql.Tx, profile *domain.PayoutProfile, req *domain.PayoutChangeRequest, action domain.AuditAction, actor string, now time.Time) error {
	meta, err := json.Marshal(map[string]string{
		"requested_last4":  req.RequestedLast4,
		"requested_holder": req.RequestedHolder,
	})
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	reqID := req.ID
	entry := &domain.PayoutAuditLogEntry{
		ID:        uuid.New(),
		ProfileID: profile.ID,
		RequestID: &reqID,
		Action:    action,
		Actor:     actor,
		Metadata:  meta,
		CreatedAt: now,
	}
	if err := w.repo.AppendAudit(ctx, tx, entry); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

// notifyDecision is best-effort and runs after commit; a delivery failure
// never undoes a decided request.
func (w *Workflow) notifyDecision(ctx context.Context, sellerID uuid.UUID, subject, body string) {
	log := logging.FromContext(ctx)

	email, err := w.sellers.Email(ctx, sellerID)
	if err != nil {
		log.Warn("decision notification skipped, no recipient", "seller_id", sellerID, "error", err)
		return
	}
	if err := w.notifier.Send(ctx, notify.Message{Recipient: email, Subject: subject, Body: body}); err != nil {
		log.Warn("decision notification failed", "seller_id", sellerID, "error", err)
	}
}

// WithNow overrides the clock. Test hook.
func (w *Workflow) WithNow(now func() time.Time) *Workflow {
	w.now = now
	return w
}
