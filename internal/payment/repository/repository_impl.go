package repository

import (
	"context"
	"time"

	"github.com/bazaarhq/paygate/internal/payment/domain"
	pkgdb "github.com/bazaarhq/paygate/pkg/db"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_transactions (
			id, order_id, user_id, gateway, provider_ref, amount, currency,
			state, owner_type, owner_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.OrderID,
		tx.UserID,
		string(tx.Gateway),
		tx.ProviderRef,
		tx.Amount,
		tx.Currency,
		string(tx.State),
		string(tx.OwnerType),
		tx.OwnerID,
		tx.CreatedAt,
		tx.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	var item domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, user_id, gateway, provider_ref, amount, currency,
			state, owner_type, owner_id, created_at, updated_at
		 FROM payment_transactions
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByProviderRef(ctx context.Context, db *gorm.DB, gateway domain.Gateway, providerRef string) (*domain.Transaction, error) {
	var item domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, user_id, gateway, provider_ref, amount, currency,
			state, owner_type, owner_id, created_at, updated_at
		 FROM payment_transactions
		 WHERE gateway = ? AND provider_ref = ?
		 LIMIT 1`,
		string(gateway),
		providerRef,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) TransitionState(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.State, updatedAt time.Time) (bool, error) {
	if !domain.CanTransition(from, to) {
		return false, domain.ErrStateConflict
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_transactions
		 SET state = ?, updated_at = ?
		 WHERE id = ? AND state = ?`,
		string(to),
		updatedAt,
		id,
		string(from),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetProviderRef(ctx context.Context, db *gorm.DB, id snowflake.ID, providerRef string, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_transactions
		 SET provider_ref = ?, state = ?, updated_at = ?
		 WHERE id = ? AND state = ? AND provider_ref = ''`,
		providerRef,
		string(domain.StatePendingCallback),
		updatedAt,
		id,
		string(domain.StateInitiated),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertRefund(ctx context.Context, db *gorm.DB, refund *domain.RefundAttempt) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_refunds (
			id, transaction_id, amount, reason, provider_refund_id, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		refund.ID,
		refund.TransactionID,
		refund.Amount,
		refund.Reason,
		refund.ProviderRefundID,
		string(refund.Status),
		refund.CreatedAt,
	).Error
}

func (r *repo) ListRefunds(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) ([]domain.RefundAttempt, error) {
	var items []domain.RefundAttempt
	err := db.WithContext(ctx).Raw(
		`SELECT id, transaction_id, amount, reason, provider_refund_id, status, created_at
		 FROM payment_refunds
		 WHERE transaction_id = ?
		 ORDER BY created_at ASC, id ASC`,
		transactionID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SumRefunded(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM payment_refunds
		 WHERE transaction_id = ? AND status = ?`,
		transactionID,
		string(domain.RefundStatusSucceeded),
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.CallbackEvent) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO callback_events (
			id, source, provider_event_id, payload, outcome, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, provider_event_id) DO NOTHING`,
		event.ID,
		event.Source,
		event.ProviderEventID,
		event.Payload,
		string(event.Outcome),
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, source string, providerEventID string) (*domain.CallbackEvent, error) {
	var item domain.CallbackEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, source, provider_event_id, payload, outcome, received_at, processed_at
		 FROM callback_events
		 WHERE source = ? AND provider_event_id = ?
		 LIMIT 1`,
		source,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome domain.CallbackOutcome, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE callback_events
		 SET outcome = ?, processed_at = ?
		 WHERE id = ?`,
		string(outcome),
		processedAt,
		id,
	).Error
}

func (r *repo) DeleteEvent(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM callback_events WHERE id = ?`,
		id,
	).Error
}
