package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// InitiateOrder is the caller's request to open a payment for an order.
// Roles come from the validated principal on the inbound request; CompanyID
// is the seller company when the principal acts for one. MultiParty marks
// orders whose funds are held in the intermediary wallet until settlement.
type InitiateOrder struct {
	OrderID      string
	UserID       string
	Amount       int64
	Currency     string
	Gateway      Gateway
	Description  string
	PayerContact string
	Roles        []string
	CompanyID    string
	MultiParty   bool
}

// Orchestrator drives a transaction through its lifecycle against a gateway.
type Orchestrator interface {
	// Initiate persists a new transaction and opens it with the gateway.
	// The redirect URL is returned beside the record, not stored on it.
	Initiate(ctx context.Context, req InitiateOrder) (*Transaction, string, error)
	// Verify confirms a collected payment after the gateway callback. A
	// transaction already verified is returned unchanged without a provider
	// call.
	Verify(ctx context.Context, id snowflake.ID, claimedProviderRef string) (*Transaction, error)
	// Refund requests a full or partial refund against a verified
	// transaction. The attempt is recorded even when the provider call fails.
	Refund(ctx context.Context, id snowflake.ID, amount int64, reason string) (*RefundAttempt, error)
	Get(ctx context.Context, id snowflake.ID) (*Transaction, []RefundAttempt, error)
}

// Ingestor is the single entry point for asynchronous inbound notifications:
// gateway payment callbacks and third-party event webhooks. Deliveries are
// deduplicated on (source, eventID); redelivery returns the recorded outcome
// without re-invoking business logic.
type Ingestor interface {
	Ingest(ctx context.Context, source string, eventID string, payload []byte) (CallbackOutcome, error)
}
