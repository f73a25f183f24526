package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bazaarhq/paygate/internal/config"
	"github.com/bazaarhq/paygate/internal/payment/adapters"
	paymentdomain "github.com/bazaarhq/paygate/internal/payment/domain"
	"github.com/bazaarhq/paygate/internal/wallet"
	walletdomain "github.com/bazaarhq/paygate/internal/wallet/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      paymentdomain.Repository
	WalletSvc walletdomain.Service
	Escrow    *wallet.EscrowWallet
	Adapters  *adapters.Registry
	Cfg       config.Config
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      paymentdomain.Repository
	walletSvc walletdomain.Service
	escrow    *wallet.EscrowWallet
	adapters  *adapters.Registry
	cfg       config.Config
}

func NewService(p Params) paymentdomain.Orchestrator {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		walletSvc: p.WalletSvc,
		escrow:    p.Escrow,
		adapters:  p.Adapters,
		cfg:       p.Cfg,
	}
}

func (s *Service) Initiate(ctx context.Context, req paymentdomain.InitiateOrder) (*paymentdomain.Transaction, string, error) {
	if req.Amount <= 0 {
		return nil, "", paymentdomain.ErrInvalidAmount
	}
	if strings.TrimSpace(req.OrderID) == "" || strings.TrimSpace(req.UserID) == "" {
		return nil, "", paymentdomain.ErrInvalidOrder
	}
	gateway, err := paymentdomain.ParseGateway(string(req.Gateway))
	if err != nil {
		return nil, "", err
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "IRR"
	}

	adapter, err := s.adapterFor(gateway)
	if err != nil {
		return nil, "", err
	}

	owner := s.resolveOwner(req)
	now := time.Now().UTC()
	tx := &paymentdomain.Transaction{
		ID:        s.genID.Generate(),
		OrderID:   strings.TrimSpace(req.OrderID),
		UserID:    strings.TrimSpace(req.UserID),
		Gateway:   gateway,
		Amount:    req.Amount,
		Currency:  currency,
		State:     paymentdomain.StateInitiated,
		OwnerType: owner.OwnerType,
		OwnerID:   owner.OwnerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, tx); err != nil {
		return nil, "", err
	}

	result, err := adapter.Initiate(ctx, paymentdomain.InitiateRequest{
		Amount:       tx.Amount,
		Currency:     currency,
		CallbackURL:  s.callbackURL(gateway, tx.ID),
		Description:  req.Description,
		PayerContact: req.PayerContact,
		UserID:       tx.UserID,
		OrderID:      tx.OrderID,
	})
	if err != nil {
		if errors.Is(err, paymentdomain.ErrGatewayUnavailable) {
			// Transient trouble: the transaction stays initiated so the
			// caller can retry with a fresh provider attempt.
			return nil, "", err
		}
		if _, failErr := s.repo.TransitionState(ctx, s.db, tx.ID, paymentdomain.StateInitiated, paymentdomain.StateFailed, time.Now().UTC()); failErr != nil {
			return nil, "", failErr
		}
		tx.State = paymentdomain.StateFailed
		return tx, "", err
	}

	ok, err := s.repo.SetProviderRef(ctx, s.db, tx.ID, result.ProviderRef, time.Now().UTC())
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", paymentdomain.ErrStateConflict
	}
	tx.ProviderRef = result.ProviderRef
	tx.State = paymentdomain.StatePendingCallback

	s.log.Info("payment initiated",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("gateway", string(gateway)),
		zap.String("provider_ref", result.ProviderRef),
		zap.Int64("amount", tx.Amount),
	)
	return tx, result.RedirectURL, nil
}

func (s *Service) Verify(ctx context.Context, id snowflake.ID, claimedProviderRef string) (*paymentdomain.Transaction, error) {
	tx, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	// The spoofing check comes first: even an already-verified transaction
	// must not answer to a forged provider reference.
	claimedProviderRef = strings.TrimSpace(claimedProviderRef)
	if tx.ProviderRef == "" || claimedProviderRef != tx.ProviderRef {
		return nil, paymentdomain.ErrProviderRefMismatch
	}

	// Idempotent re-verification: the record is returned unchanged and no
	// ledger intent is emitted, so re-entrant calls cannot double-credit.
	if tx.State == paymentdomain.StateVerified {
		return tx, nil
	}

	if tx.State != paymentdomain.StatePendingCallback {
		return nil, paymentdomain.ErrStateConflict
	}

	adapter, err := s.adapterFor(tx.Gateway)
	if err != nil {
		return nil, err
	}

	if _, err := adapter.Verify(ctx, tx.ProviderRef, tx.Amount); err != nil {
		if errors.Is(err, paymentdomain.ErrGatewayUnavailable) {
			return nil, err
		}
		if _, failErr := s.repo.TransitionState(ctx, s.db, tx.ID, paymentdomain.StatePendingCallback, paymentdomain.StateFailed, time.Now().UTC()); failErr != nil {
			return nil, failErr
		}
		tx.State = paymentdomain.StateFailed
		return tx, err
	}

	moved, err := s.repo.TransitionState(ctx, s.db, tx.ID, paymentdomain.StatePendingCallback, paymentdomain.StateVerified, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !moved {
		// A concurrent verify won the transition and owns the ledger credit.
		return s.load(ctx, id)
	}
	tx.State = paymentdomain.StateVerified

	if err := s.walletSvc.Credit(ctx, tx.Owner(), tx.Amount, tx.Currency, creditReference(tx.ID)); err != nil {
		s.log.Error("wallet credit failed after verify",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.log.Info("payment verified",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("owner_type", string(tx.OwnerType)),
		zap.Int64("amount", tx.Amount),
	)
	return tx, nil
}

func (s *Service) Refund(ctx context.Context, id snowflake.ID, amount int64, reason string) (*paymentdomain.RefundAttempt, error) {
	if amount <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}

	tx, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch tx.State {
	case paymentdomain.StateVerified, paymentdomain.StatePartiallyRefunded:
	default:
		return nil, paymentdomain.ErrStateConflict
	}

	refunded, err := s.repo.SumRefunded(ctx, s.db, tx.ID)
	if err != nil {
		return nil, err
	}
	if refunded+amount > tx.Amount {
		return nil, paymentdomain.ErrRefundExceedsAmount
	}

	// Claim the refund slot; a concurrent refund observes the claim and
	// conflicts instead of double-submitting to the provider.
	claimed, err := s.repo.TransitionState(ctx, s.db, tx.ID, tx.State, paymentdomain.StateRefundRequested, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, paymentdomain.ErrStateConflict
	}

	adapter, err := s.adapterFor(tx.Gateway)
	if err != nil {
		s.release(ctx, tx.ID, tx.State)
		return nil, err
	}

	attempt := &paymentdomain.RefundAttempt{
		ID:            s.genID.Generate(),
		TransactionID: tx.ID,
		Amount:        amount,
		Reason:        strings.TrimSpace(reason),
		CreatedAt:     time.Now().UTC(),
	}

	result, err := adapter.Refund(ctx, tx.ProviderRef, amount, reason)
	if err != nil {
		// Provider failure must not corrupt a settled payment: the attempt
		// is recorded failed and the transaction returns to its prior state.
		attempt.Status = paymentdomain.RefundStatusFailed
		if insertErr := s.repo.InsertRefund(ctx, s.db, attempt); insertErr != nil {
			s.log.Error("failed to record refund attempt", zap.Error(insertErr))
		}
		s.release(ctx, tx.ID, tx.State)
		return attempt, err
	}

	attempt.Status = paymentdomain.RefundStatusSucceeded
	attempt.ProviderRefundID = result.RefundID
	if err := s.repo.InsertRefund(ctx, s.db, attempt); err != nil {
		// The provider already moved the money; the attempt row is the only
		// local record of it. Release the claim so the transaction is not
		// stranded, and flag the orphaned provider refund for reconciliation.
		s.log.Error("provider refund succeeded but could not be recorded",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("provider_refund_id", result.RefundID),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
		s.release(ctx, tx.ID, tx.State)
		return nil, err
	}

	next := paymentdomain.StatePartiallyRefunded
	if refunded+amount == tx.Amount {
		next = paymentdomain.StateRefunded
	}
	if _, err := s.repo.TransitionState(ctx, s.db, tx.ID, paymentdomain.StateRefundRequested, next, time.Now().UTC()); err != nil {
		s.release(ctx, tx.ID, tx.State)
		return nil, err
	}

	if err := s.walletSvc.Debit(ctx, tx.Owner(), amount, tx.Currency, refundReference(attempt.ID)); err != nil {
		s.log.Error("wallet debit failed after refund",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.log.Info("payment refunded",
		zap.String("transaction_id", tx.ID.String()),
		zap.Int64("amount", amount),
		zap.String("state", string(next)),
	)
	return attempt, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*paymentdomain.Transaction, []paymentdomain.RefundAttempt, error) {
	tx, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	refunds, err := s.repo.ListRefunds(ctx, s.db, id)
	if err != nil {
		return nil, nil, err
	}
	return tx, refunds, nil
}

func (s *Service) load(ctx context.Context, id snowflake.ID) (*paymentdomain.Transaction, error) {
	tx, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, paymentdomain.ErrTransactionNotFound
	}
	return tx, nil
}

// release returns a refund-claimed transaction to its prior state.
func (s *Service) release(ctx context.Context, id snowflake.ID, prior paymentdomain.State) {
	if _, err := s.repo.TransitionState(ctx, s.db, id, paymentdomain.StateRefundRequested, prior, time.Now().UTC()); err != nil {
		s.log.Error("failed to release refund claim",
			zap.String("transaction_id", id.String()),
			zap.Error(err),
		)
	}
}

// resolveOwner picks the destination wallet for collected funds. Multi-party
// orders always settle into the intermediary escrow wallet; otherwise the
// principal's highest-priority role decides.
func (s *Service) resolveOwner(req paymentdomain.InitiateOrder) walletdomain.WalletOwnerIdentity {
	if req.MultiParty {
		return walletdomain.WalletOwnerIdentity{
			OwnerType: walletdomain.OwnerTypeIntermediary,
			OwnerID:   s.escrow.WalletID(),
		}
	}
	switch walletdomain.ResolveOwnerType(req.Roles) {
	case walletdomain.OwnerTypeCompany:
		if companyID := strings.TrimSpace(req.CompanyID); companyID != "" {
			return walletdomain.WalletOwnerIdentity{
				OwnerType: walletdomain.OwnerTypeCompany,
				OwnerID:   companyID,
			}
		}
		// Company role without a company id: hold in escrow rather than
		// misroute to a personal wallet.
		return walletdomain.WalletOwnerIdentity{
			OwnerType: walletdomain.OwnerTypeIntermediary,
			OwnerID:   s.escrow.WalletID(),
		}
	case walletdomain.OwnerTypeIntermediary:
		return walletdomain.WalletOwnerIdentity{
			OwnerType: walletdomain.OwnerTypeIntermediary,
			OwnerID:   s.escrow.WalletID(),
		}
	default:
		return walletdomain.WalletOwnerIdentity{
			OwnerType: walletdomain.OwnerTypeUser,
			OwnerID:   strings.TrimSpace(req.UserID),
		}
	}
}

func (s *Service) adapterFor(gateway paymentdomain.Gateway) (paymentdomain.GatewayAdapter, error) {
	cfg := paymentdomain.AdapterConfig{Gateway: gateway}
	switch gateway {
	case paymentdomain.GatewayZarinpal:
		cfg.MerchantID = s.cfg.Zarinpal.MerchantID
		cfg.AccessToken = s.cfg.Zarinpal.AccessToken
		cfg.Sandbox = s.cfg.Zarinpal.Sandbox
	case paymentdomain.GatewayZibal:
		cfg.MerchantID = s.cfg.Zibal.MerchantID
		cfg.AccessToken = s.cfg.Zibal.AccessToken
		cfg.Sandbox = s.cfg.Zibal.Sandbox
	}
	return s.adapters.NewAdapter(gateway, cfg)
}

func (s *Service) callbackURL(gateway paymentdomain.Gateway, id snowflake.ID) string {
	return fmt.Sprintf("%s/callbacks/%s?tx=%s", s.cfg.CallbackBaseURL, gateway, id.String())
}

func creditReference(id snowflake.ID) string {
	return "payment:" + id.String()
}

func refundReference(id snowflake.ID) string {
	return "refund:" + id.String()
}
