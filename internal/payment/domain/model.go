package domain

import (
	"strings"
	"time"

	walletdomain "github.com/bazaarhq/paygate/internal/wallet/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Gateway identifies a payment provider. Immutable once set on a
// transaction; a transaction never migrates between gateways.
type Gateway string

const (
	GatewayZarinpal Gateway = "zarinpal"
	GatewayZibal    Gateway = "zibal"
)

// ParseGateway normalizes a provider name into the closed Gateway set.
func ParseGateway(raw string) (Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(GatewayZarinpal):
		return GatewayZarinpal, nil
	case string(GatewayZibal):
		return GatewayZibal, nil
	default:
		return "", ErrInvalidGateway
	}
}

// State is a payment transaction lifecycle state.
type State string

const (
	StateInitiated         State = "initiated"
	StatePendingCallback   State = "pending_callback"
	StateVerified          State = "verified"
	StateFailed            State = "failed"
	StateRefundRequested   State = "refund_requested"
	StateRefunded          State = "refunded"
	StatePartiallyRefunded State = "partially_refunded"
)

// Terminal reports whether no further transitions are accepted from s.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateRefunded
}

// transitions is the full forward edge set of the lifecycle. The
// refund_requested edges back to verified and partially_refunded exist only
// to release the in-flight claim when a provider refund call errors; the
// transaction is then observably unchanged.
var transitions = map[State][]State{
	StateInitiated:         {StatePendingCallback, StateFailed},
	StatePendingCallback:   {StateVerified, StateFailed},
	StateVerified:          {StateRefundRequested},
	StatePartiallyRefunded: {StateRefundRequested},
	StateRefundRequested:   {StateVerified, StatePartiallyRefunded, StateRefunded},
}

// CanTransition reports whether from → to is a legal lifecycle edge.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transaction is one payment attempt against a single gateway.
type Transaction struct {
	ID          snowflake.ID                 `json:"id" gorm:"primaryKey"`
	OrderID     string                       `json:"order_id" gorm:"type:text;not null;index"`
	UserID      string                       `json:"user_id" gorm:"type:text;not null;index"`
	Gateway     Gateway                      `json:"gateway" gorm:"type:text;not null"`
	ProviderRef string                       `json:"provider_ref" gorm:"type:text"`
	Amount      int64                        `json:"amount" gorm:"not null"`
	Currency    string                       `json:"currency" gorm:"type:text;not null"`
	State       State                        `json:"state" gorm:"type:text;not null;index"`
	OwnerType   walletdomain.WalletOwnerType `json:"owner_type" gorm:"type:text;not null"`
	OwnerID     string                       `json:"owner_id" gorm:"type:text;not null"`
	CreatedAt   time.Time                    `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time                    `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "payment_transactions" }

// Owner returns the resolved destination wallet for this transaction.
func (t *Transaction) Owner() walletdomain.WalletOwnerIdentity {
	return walletdomain.WalletOwnerIdentity{OwnerType: t.OwnerType, OwnerID: t.OwnerID}
}

// RefundStatus is the recorded outcome of one refund attempt.
type RefundStatus string

const (
	RefundStatusSucceeded RefundStatus = "succeeded"
	RefundStatusFailed    RefundStatus = "failed"
)

// RefundAttempt is one row in a transaction's ordered refund ledger.
// Failed attempts are kept; only succeeded amounts count against the cap.
type RefundAttempt struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	TransactionID    snowflake.ID `json:"transaction_id" gorm:"not null;index"`
	Amount           int64        `json:"amount" gorm:"not null"`
	Reason           string       `json:"reason" gorm:"type:text"`
	ProviderRefundID string       `json:"provider_refund_id" gorm:"type:text"`
	Status           RefundStatus `json:"status" gorm:"type:text;not null"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (RefundAttempt) TableName() string { return "payment_refunds" }

// CallbackOutcome is the recorded result of ingesting one callback event.
type CallbackOutcome string

const (
	OutcomeVerified CallbackOutcome = "verified"
	OutcomeFailed   CallbackOutcome = "failed"
	OutcomeIgnored  CallbackOutcome = "ignored"
)

// CallbackEvent is the dedupe ledger for asynchronous inbound notifications.
// The (source, provider_event_id) pair is unique; redelivery returns the
// recorded outcome without re-running business logic.
type CallbackEvent struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey"`
	Source          string          `json:"source" gorm:"type:text;not null;uniqueIndex:ux_callback_events_source_event,priority:1"`
	ProviderEventID string          `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_callback_events_source_event,priority:2"`
	Payload         datatypes.JSON  `json:"payload" gorm:"type:jsonb"`
	Outcome         CallbackOutcome `json:"outcome" gorm:"type:text"`
	ReceivedAt      time.Time       `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time      `json:"processed_at"`
}

// TableName sets the database table name.
func (CallbackEvent) TableName() string { return "callback_events" }
