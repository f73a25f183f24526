package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the durable transaction store. State transitions use
// optimistic concurrency: writes name the expected current state and report
// whether the row actually moved, so no lock is held across provider calls.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tx *Transaction) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	FindByProviderRef(ctx context.Context, db *gorm.DB, gateway Gateway, providerRef string) (*Transaction, error)

	// TransitionState moves id from → to and returns false when the stored
	// state no longer matches from.
	TransitionState(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to State, updatedAt time.Time) (bool, error)
	// SetProviderRef records the provider authority exactly once, together
	// with the initiated → pending_callback transition.
	SetProviderRef(ctx context.Context, db *gorm.DB, id snowflake.ID, providerRef string, updatedAt time.Time) (bool, error)

	InsertRefund(ctx context.Context, db *gorm.DB, refund *RefundAttempt) error
	ListRefunds(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) ([]RefundAttempt, error)
	SumRefunded(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) (int64, error)

	InsertEvent(ctx context.Context, db *gorm.DB, event *CallbackEvent) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, source string, providerEventID string) (*CallbackEvent, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome CallbackOutcome, processedAt time.Time) error
	// DeleteEvent removes a claimed but unprocessed event so a redelivery
	// can run again after a transient downstream failure.
	DeleteEvent(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
