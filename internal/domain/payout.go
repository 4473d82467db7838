package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type PayoutProfileStatus string

const (
	PayoutProfileActive        PayoutProfileStatus = "ACTIVE"
	PayoutProfilePendingChange PayoutProfileStatus = "PENDING_CHANGE"
	PayoutProfileSuspended     PayoutProfileStatus = "SUSPENDED"
)

// PayoutProfile is the seller's registered bank payout target. The full IBAN
// stays inside this core; display paths only ever see the last four characters.
type PayoutProfile struct {
	ID           uuid.UUID
	SellerID     uuid.UUID
	HolderName   string
	IBAN         string
	IBANLast4    string
	Status       PayoutProfileStatus
	LockedReason *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ChangeRequestStatus string

const (
	ChangeRequestPending  ChangeRequestStatus = "PENDING"
	ChangeRequestApproved ChangeRequestStatus = "APPROVED"
	ChangeRequestRejected ChangeRequestStatus = "REJECTED"
)

// PayoutChangeRequest is a pending mutation of a PayoutProfile. Terminal
// requests are immutable; revisiting a decision means creating a new request.
type PayoutChangeRequest struct {
	ID              uuid.UUID
	ProfileID       uuid.UUID
	RequestedHolder string
	RequestedIBAN   string
	RequestedLast4  string
	Status          ChangeRequestStatus
	Reason          string
	DecidedAt       *time.Time
	DecidedBy       *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type AuditAction string

const (
	AuditChangeRequested AuditAction = "CHANGE_REQUESTED"
	AuditChangeApproved  AuditAction = "CHANGE_APPROVED"
	AuditChangeRejected  AuditAction = "CHANGE_REJECTED"
)

// PayoutAuditLogEntry is append-only; nothing in the repository layer can
// update or delete one.
type PayoutAuditLogEntry struct {
	ID        uuid.UUID
	ProfileID uuid.UUID
	RequestID *uuid.UUID
	Action    AuditAction
	Actor     string
	Metadata  json.RawMessage
	CreatedAt time.Time
}
