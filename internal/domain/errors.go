package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateInvoice = errors.New("invoice already exists for this sale")
	ErrInvoiceConflict  = errors.New("invoice not in a state that allows this transition")
	ErrInvalidAmount    = errors.New("amount must be greater than zero")
	ErrMissingHolder    = errors.New("account holder name is required")
	ErrAmountInvariant  = errors.New("invoice amounts do not add up")
	ErrRequestDecided   = errors.New("change request already decided")
	ErrRequestPending   = errors.New("another change request is still pending")
	ErrProfileSuspended = errors.New("payout profile is suspended")

	ErrIBANEmpty    = errors.New("iban is empty")
	ErrIBANLength   = errors.New("iban must be 21 characters")
	ErrIBANCountry  = errors.New("only swiss (CH) ibans are accepted")
	ErrIBANChecksum = errors.New("iban checksum is invalid")
	ErrIBANChar     = errors.New("iban contains an invalid character")

	ErrReferenceEmpty = errors.New("reference input has no alphanumeric characters")
)
