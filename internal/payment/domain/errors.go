package domain

import "errors"

var (
	// Validation, rejected before any external call.
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidOrder        = errors.New("invalid_order")
	ErrInvalidGateway      = errors.New("invalid_gateway")
	ErrInvalidConfig       = errors.New("invalid_gateway_config")
	ErrInvalidEvent        = errors.New("invalid_callback_event")
	ErrProviderRefMismatch = errors.New("provider_ref_mismatch")

	// Gateway taxonomy. Rejected is terminal for the attempt and never
	// retried; unavailable is transient and safe to retry after a state check.
	ErrGatewayRejected    = errors.New("gateway_rejected")
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrAmountMismatch     = errors.New("gateway_amount_mismatch")

	// Ingestion. Raised only while a duplicate delivery races the first
	// one; settled duplicates return the recorded outcome instead.
	ErrEventInFlight = errors.New("callback_event_in_flight")

	// Lifecycle.
	ErrTransactionNotFound = errors.New("transaction_not_found")
	ErrStateConflict       = errors.New("state_conflict")
	ErrRefundExceedsAmount = errors.New("refund_exceeds_amount")
)
