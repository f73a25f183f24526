package service

import (
	"context"
	"strings"
	"time"

	walletdomain "github.com/bazaarhq/paygate/internal/wallet/domain"
	"github.com/bazaarhq/paygate/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) walletdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("wallet.service"),
		genID: p.GenID,
	}
}

func (s *Service) Credit(ctx context.Context, owner walletdomain.WalletOwnerIdentity, amount int64, currency string, reference string) error {
	return s.post(ctx, owner, walletdomain.LedgerDirectionCredit, amount, currency, reference)
}

func (s *Service) Debit(ctx context.Context, owner walletdomain.WalletOwnerIdentity, amount int64, currency string, reference string) error {
	return s.post(ctx, owner, walletdomain.LedgerDirectionDebit, amount, currency, reference)
}

func (s *Service) post(
	ctx context.Context,
	owner walletdomain.WalletOwnerIdentity,
	direction walletdomain.LedgerDirection,
	amount int64,
	currency string,
	reference string,
) error {
	if owner.OwnerID == "" {
		return walletdomain.ErrInvalidOwner
	}
	switch owner.OwnerType {
	case walletdomain.OwnerTypeCompany, walletdomain.OwnerTypeIntermediary, walletdomain.OwnerTypeUser:
	default:
		return walletdomain.ErrInvalidOwner
	}
	if amount <= 0 {
		return walletdomain.ErrInvalidAmount
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return walletdomain.ErrInvalidCurrency
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return walletdomain.ErrInvalidReference
	}

	result := s.db.WithContext(ctx).Exec(
		`INSERT INTO wallet_ledger_entries (
			id, owner_type, owner_id, direction, amount, currency, reference, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (reference) DO NOTHING`,
		s.genID.Generate(),
		string(owner.OwnerType),
		owner.OwnerID,
		string(direction),
		amount,
		currency,
		reference,
		time.Now().UTC(),
	)
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return nil
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		s.log.Debug("wallet posting already recorded",
			zap.String("reference", reference),
			zap.String("direction", string(direction)),
		)
	}
	return nil
}
