package services

import "errors"

// Error taxonomy for the request-gating flow. Collaborator failures are
// converted to these at the service boundary; handlers map them to HTTP
// statuses and the orchestrator maps them to user-facing replies.
var (
	ErrRateLimitExceeded = errors.New("rate_limit_exceeded")
	ErrLocked            = errors.New("otp_locked")
	ErrInvalidPhone      = errors.New("invalid_phone_number")
	ErrOtpProvider       = errors.New("verification_provider_error")
	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrPayerNotFound     = errors.New("payer_not_found")
	ErrMissingEntities   = errors.New("missing_amount_or_account")
	ErrLedgerProvider    = errors.New("ledger_provider_error")
	ErrRequestConflict   = errors.New("request_state_conflict")
)
