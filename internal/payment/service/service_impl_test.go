package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bazaarhq/paygate/internal/config"
	"github.com/bazaarhq/paygate/internal/payment/adapters"
	paymentdomain "github.com/bazaarhq/paygate/internal/payment/domain"
	paymentrepo "github.com/bazaarhq/paygate/internal/payment/repository"
	paymentservice "github.com/bazaarhq/paygate/internal/payment/service"
	"github.com/bazaarhq/paygate/internal/wallet"
	walletservice "github.com/bazaarhq/paygate/internal/wallet/service"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeAdapter struct {
	initiateErr error
	verifyErr   error
	refundErr   error

	initiateCalls int
	verifyCalls   int
	refundCalls   int
}

func (a *fakeAdapter) Gateway() paymentdomain.Gateway {
	return paymentdomain.GatewayZarinpal
}

func (a *fakeAdapter) Initiate(ctx context.Context, req paymentdomain.InitiateRequest) (paymentdomain.InitiateResult, error) {
	a.initiateCalls++
	if a.initiateErr != nil {
		return paymentdomain.InitiateResult{}, a.initiateErr
	}
	return paymentdomain.InitiateResult{
		ProviderRef: fmt.Sprintf("A%06d", a.initiateCalls),
		RedirectURL: "https://pay.test/start/A000001",
	}, nil
}

func (a *fakeAdapter) Verify(ctx context.Context, providerRef string, amount int64) (paymentdomain.VerifyResult, error) {
	a.verifyCalls++
	if a.verifyErr != nil {
		return paymentdomain.VerifyResult{}, a.verifyErr
	}
	return paymentdomain.VerifyResult{ProviderTxRef: "ref-1", Status: "verified"}, nil
}

func (a *fakeAdapter) Refund(ctx context.Context, providerRef string, amount int64, reason string) (paymentdomain.RefundResult, error) {
	a.refundCalls++
	if a.refundErr != nil {
		return paymentdomain.RefundResult{}, a.refundErr
	}
	return paymentdomain.RefundResult{RefundID: fmt.Sprintf("rf-%d", a.refundCalls), Status: "DONE"}, nil
}

type fakeFactory struct {
	adapter *fakeAdapter
}

func (f *fakeFactory) Gateway() paymentdomain.Gateway {
	return paymentdomain.GatewayZarinpal
}

func (f *fakeFactory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.GatewayAdapter, error) {
	return f.adapter, nil
}

func newOrchestrator(t *testing.T, db *gorm.DB, adapter *fakeAdapter) paymentdomain.Orchestrator {
	t.Helper()
	return newOrchestratorWithRepo(t, db, adapter, paymentrepo.Provide())
}

func newOrchestratorWithRepo(t *testing.T, db *gorm.DB, adapter *fakeAdapter, repo paymentdomain.Repository) paymentdomain.Orchestrator {
	t.Helper()

	node, err := snowflake.NewNode(10)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	cfg := config.Config{CallbackBaseURL: "https://pay.test"}
	walletSvc := walletservice.NewService(walletservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
	})

	return paymentservice.NewService(paymentservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Repo:      repo,
		WalletSvc: walletSvc,
		Escrow:    wallet.NewEscrowWallet(cfg),
		Adapters:  adapters.NewRegistry(&fakeFactory{adapter: adapter}),
		Cfg:       cfg,
	})
}

// recordFailRepo simulates the refund row failing to persist after the
// provider already accepted the refund.
type recordFailRepo struct {
	paymentdomain.Repository

	failSucceededInsert bool
}

func (r *recordFailRepo) InsertRefund(ctx context.Context, db *gorm.DB, refund *paymentdomain.RefundAttempt) error {
	if r.failSucceededInsert && refund.Status == paymentdomain.RefundStatusSucceeded {
		return errors.New("insert refund: connection reset")
	}
	return r.Repository.InsertRefund(ctx, db, refund)
}

func TestInitiateAndVerifyCreditsOwnerWallet(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	adapter := &fakeAdapter{}
	svc := newOrchestrator(t, db, adapter)

	tx, redirectURL, err := svc.Initiate(ctx, paymentdomain.InitiateOrder{
		OrderID: "order-1",
		UserID:  "user-1",
		Amount:  100000,
		Gateway: paymentdomain.GatewayZarinpal,
		Roles:   []string{"user"},
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if redirectURL == "" {
		t.Fatal("expected a redirect URL")
	}
	if tx.State != paymentdomain.StatePendingCallback {
		t.Fatalf("expected state %s, got %s", paymentdomain.StatePendingCallback, tx.State)
	}
	if tx.ProviderRef == "" {
		t.Fatal("expected provider ref to be recorded")
	}
	if tx.Currency != "IRR" {
		t.Fatalf("expected default currency IRR, got %s", tx.Currency)
	}

	verified, err := svc.Verify(ctx, tx.ID, tx.ProviderRef)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.State != paymentdomain.StateVerified {
		t.Fatalf("expected state %s, got %s", paymentdomain.StateVerified, verified.State)
	}

	assertCount(t, db, "SELECT COUNT(1) FROM wallet_ledger_entries", 1)

	var ownerType string
	if err := db.Raw("SELECT owner_type FROM wallet_ledger_entries LIMIT 1").Scan(&ownerType).Error; err != nil {
		t.Fatalf("scan owner_type: %v", err)
	}
	if ownerType != "user" {
		t.Fatalf("expected owner_type user, got %s", ownerType)
	}

	var reference string
	if err := db.Raw("SELECT reference FROM wallet_ledger_entries LIMIT 1").Scan(&reference).Error; err != nil {
		t.Fatalf("scan reference: %v", err)
	}
	if reference != "payment:"+tx.ID.String() {
		t.Fatalf("unexpected ledger reference %s", reference)
	}
}

func TestVerifyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	adapter := &fakeAdapter{}
	svc := newOrchestrator(t, db, adapter)

	tx := initiatePayment(t, svc, 100000)

	if _, err := svc.Verify(ctx, tx.ID, tx.ProviderRef); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	again, err := svc.Verify(ctx, tx.ID, tx.ProviderRef)
	if err != nil {
		t.Fatalf("second verify: %v", err)
	}
	if again.State != paymentdomain.StateVerified {
		t.Fatalf("expected state %s, got %s", paymentdomain.StateVerified, again.State)
	}
	if adapter.verifyCalls != 1 {
		t.Fatalf("expected 1 provider verify call, got %d", adapter.verifyCalls)
	}
	assertCount(t, db, "SELECT COUNT(1) FROM wallet_ledger_entries", 1)
}

func TestVerifyRejectsProviderRefMismatch(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	adapter := &fakeAdapter{}
	svc := newOrchestrator(t, db, adapter)

	tx := initiatePayment(t, svc, 100000)

	if _, err := svc.Verify(ctx, tx.ID, "A-forged"); !errors.Is(err, paymentdomain.ErrProviderRefMismatch) {
		t.Fatalf("expected ErrProviderRefMismatch, got %v", err)
	}
	if adapter.verifyCalls != 0 {
		t.Fatalf("expected no provider verify call, got %d", adapter.verifyCalls)
	}

	var state string
	if err := db.Raw("SELECT state FROM payment_transactions WHERE id = ?", tx.ID).Scan(&state).Error; err != nil {
		t.Fatalf("scan state: %v", err)
	}
	if state != string(paymentdomain.StatePendingCallback) {
		t.Fatalf("expected state unchanged, got %s", state)
	}
	assertCount(t, db, "SELECT COUNT(1) FROM wallet_ledger_entries", 0)
}

func TestVerifyRejectedMarksFailed(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	adapter := &fakeAdapter{}
	svc := newOrchestrator(t, db, adapter)

	tx := initiatePayment(t, svc, 100000)
	adapter.verifyErr = paymentdomain.ErrGatewayRejected

	failed, err := svc.Verify(ctx, tx.ID, tx.ProviderRef)
	if !errors.Is(err, paymentdomain.ErrGatewayRejected) {
		t.Fatalf("expected ErrGatewayRejected, got %v", err)
	}
	if failed.State != paymentdomain.StateFailed {
		t.Fatalf("expected state %s, got %s", paymentdomain.StateFailed, failed.State)
	}
	assertCount(t, db, "SELECT COUNT(1) FROM wallet_ledger_entries", 0)
}

func TestVerifyUnavailableLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	adapter := &fakeAdapter{}
	svc := newOrchestrator(t, db, adapter)

	tx := initiatePayment(t, svc, 100000)
	adapter.verifyErr = paymentdomain.ErrGatewayUnavailable

	if _, err := svc.Verify(ctx, tx.ID, tx.ProviderRef); !errors.Is(err, paymentdomain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}

	var state string
	if err := db.Raw("SELECT state FROM payment_transactions WHERE id = ?", tx.ID).Scan(&state).Error; err != nil {
		t.Fatalf("scan state: %v", err)
	}
	if state != string(paymentdomain.StatePendingCallback) {
		t.Fatalf("expected state unchanged for retry, got %s", state)
	}
}

func TestRefundLifecycle(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	adapter := &fakeAdapter{}
	svc := newOrchestrator(t, db, adapter)

	tx := initiatePayment(t, svc, 100000)
	if _, err := svc.Verify(ctx, tx.ID, tx.ProviderRef); err != nil {
		t.Fatalf("verify: %v", err)
	}

	first, err := svc.Refund(ctx, tx.ID, 40000, "damaged item")
	if err != nil {
		t.Fatalf("first refund: %v", err)
	}
	if first.Status != paymentdomain.RefundStatusSucceeded {
		t.Fatalf("expected succeeded attempt, got %s", first.Status)
	}
	assertState(t, db, tx.ID, paymentdomain.StatePartiallyRefunded)

	if _, err := svc.Refund(ctx, tx.ID, 60000, "order cancelled"); err != nil {
		t.Fatalf("second refund: %v", err)
	}
	assertState(t, db, tx.ID, paymentdomain.StateRefunded)

	if _, err := svc.Refund(ctx, tx.ID, 1, "again"); !errors.Is(err, paymentdomain.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict after full refund, got %v", err)
	}

	// one credit from verify plus one debit per succeeded refund
	assertCount(t, db, "SELECT COUNT(1) FROM wallet_ledger_entries", 3)
	assertCount(t, db, "SELECT COUNT(1) FROM wallet_ledger_entries WHERE direction = 'debit'", 2)
	assertCount(t, db, "SELECT COUNT(1) FROM payment_refunds WHERE status = 'succeeded'", 2)
}

func TestRefundCannotExceedOriginalAmount(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	adapter := &fakeAdapter{}
	svc := newOrchestrator(t, db, adapter)

	tx := initiatePayment(t, svc, 100000)
	if _, err := svc.Verify(ctx, tx.ID, tx.ProviderRef); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := svc.Refund(ctx, tx.ID, 40000, "partial"); err != nil {
		t.Fatalf("refund: %v", err)
	}

	if _, err := svc.Refund(ctx, tx.ID, 70000, "too much"); !errors.Is(err, paymentdomain.ErrRefundExceedsAmount) {
		t.Fatalf("expected ErrRefundExceedsAmount, got %v", err)
	}
	assertState(t, db, tx.ID, paymentdomain.StatePartiallyRefunded)
	assertCount(t, db, "SELECT COUNT(1) FROM payment_refunds", 1)
}

func TestRefundProviderFailureReleasesClaim(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	adapter := &fakeAdapter{}
	svc := newOrchestrator(t, db, adapter)

	tx := initiatePayment(t, svc, 100000)
	if _, err := svc.Verify(ctx, tx.ID, tx.ProviderRef); err != nil {
		t.Fatalf("verify: %v", err)
	}
	adapter.refundErr = paymentdomain.ErrGatewayUnavailable

	attempt, err := svc.Refund(ctx, tx.ID, 40000, "flaky provider")
	if !errors.Is(err, paymentdomain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
	if attempt == nil || attempt.Status != paymentdomain.RefundStatusFailed {
		t.Fatalf("expected a recorded failed attempt, got %+v", attempt)
	}
	assertState(t, db, tx.ID, paymentdomain.StateVerified)

	// Failed attempts do not count against the cap.
	adapter.refundErr = nil
	if _, err := svc.Refund(ctx, tx.ID, 100000, "retry"); err != nil {
		t.Fatalf("retry refund: %v", err)
	}
	assertState(t, db, tx.ID, paymentdomain.StateRefunded)
}

func TestRefundRecordFailureReleasesClaim(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	adapter := &fakeAdapter{}
	repo := &recordFailRepo{Repository: paymentrepo.Provide(), failSucceededInsert: true}
	svc := newOrchestratorWithRepo(t, db, adapter, repo)

	tx := initiatePayment(t, svc, 100000)
	if _, err := svc.Verify(ctx, tx.ID, tx.ProviderRef); err != nil {
		t.Fatalf("verify: %v", err)
	}

	if _, err := svc.Refund(ctx, tx.ID, 40000, "damaged item"); err == nil {
		t.Fatal("expected refund to surface the record failure")
	}
	// The claim is released so the transaction is not stranded.
	assertState(t, db, tx.ID, paymentdomain.StateVerified)

	repo.failSucceededInsert = false
	if _, err := svc.Refund(ctx, tx.ID, 40000, "retry"); err != nil {
		t.Fatalf("refund after release: %v", err)
	}
	assertState(t, db, tx.ID, paymentdomain.StatePartiallyRefunded)
}

func TestVerifyForgedRefRejectedAfterVerified(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	adapter := &fakeAdapter{}
	svc := newOrchestrator(t, db, adapter)

	tx := initiatePayment(t, svc, 100000)
	if _, err := svc.Verify(ctx, tx.ID, tx.ProviderRef); err != nil {
		t.Fatalf("verify: %v", err)
	}

	if _, err := svc.Verify(ctx, tx.ID, "A-forged"); !errors.Is(err, paymentdomain.ErrProviderRefMismatch) {
		t.Fatalf("expected ErrProviderRefMismatch, got %v", err)
	}
	assertState(t, db, tx.ID, paymentdomain.StateVerified)
	assertCount(t, db, "SELECT COUNT(1) FROM wallet_ledger_entries", 1)
}

func TestInitiateRejectedMarksFailed(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	adapter := &fakeAdapter{initiateErr: paymentdomain.ErrGatewayRejected}
	svc := newOrchestrator(t, db, adapter)

	tx, _, err := svc.Initiate(ctx, paymentdomain.InitiateOrder{
		OrderID: "order-1",
		UserID:  "user-1",
		Amount:  100000,
		Gateway: paymentdomain.GatewayZarinpal,
	})
	if !errors.Is(err, paymentdomain.ErrGatewayRejected) {
		t.Fatalf("expected ErrGatewayRejected, got %v", err)
	}
	if tx == nil || tx.State != paymentdomain.StateFailed {
		t.Fatalf("expected a failed transaction, got %+v", tx)
	}
}

func TestInitiateUnavailableStaysInitiated(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	adapter := &fakeAdapter{initiateErr: paymentdomain.ErrGatewayUnavailable}
	svc := newOrchestrator(t, db, adapter)

	if _, _, err := svc.Initiate(ctx, paymentdomain.InitiateOrder{
		OrderID: "order-1",
		UserID:  "user-1",
		Amount:  100000,
		Gateway: paymentdomain.GatewayZarinpal,
	}); !errors.Is(err, paymentdomain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}

	var state string
	if err := db.Raw("SELECT state FROM payment_transactions LIMIT 1").Scan(&state).Error; err != nil {
		t.Fatalf("scan state: %v", err)
	}
	if state != string(paymentdomain.StateInitiated) {
		t.Fatalf("expected state initiated, got %s", state)
	}
}

func TestMultiPartyOrderSettlesIntoEscrow(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	adapter := &fakeAdapter{}
	svc := newOrchestrator(t, db, adapter)

	tx, _, err := svc.Initiate(ctx, paymentdomain.InitiateOrder{
		OrderID:    "order-1",
		UserID:     "user-1",
		Amount:     100000,
		Gateway:    paymentdomain.GatewayZarinpal,
		Roles:      []string{"company"},
		CompanyID:  "co-9",
		MultiParty: true,
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if tx.OwnerType != "intermediary" {
		t.Fatalf("expected intermediary owner, got %s", tx.OwnerType)
	}
	if tx.OwnerID != wallet.FallbackEscrowWalletID {
		t.Fatalf("expected fallback escrow wallet, got %s", tx.OwnerID)
	}
}

func TestCompanyRoleWithoutCompanyIDHoldsInEscrow(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	adapter := &fakeAdapter{}
	svc := newOrchestrator(t, db, adapter)

	tx, _, err := svc.Initiate(ctx, paymentdomain.InitiateOrder{
		OrderID: "order-1",
		UserID:  "user-1",
		Amount:  100000,
		Gateway: paymentdomain.GatewayZarinpal,
		Roles:   []string{"user", "company"},
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if tx.OwnerType != "intermediary" || tx.OwnerID != wallet.FallbackEscrowWalletID {
		t.Fatalf("expected escrow hold, got %s/%s", tx.OwnerType, tx.OwnerID)
	}
}

func initiatePayment(t *testing.T, svc paymentdomain.Orchestrator, amount int64) *paymentdomain.Transaction {
	t.Helper()

	tx, _, err := svc.Initiate(context.Background(), paymentdomain.InitiateOrder{
		OrderID: "order-1",
		UserID:  "user-1",
		Amount:  amount,
		Gateway: paymentdomain.GatewayZarinpal,
		Roles:   []string{"user"},
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	return tx
}

func assertState(t *testing.T, db *gorm.DB, id snowflake.ID, want paymentdomain.State) {
	t.Helper()

	var state string
	if err := db.Raw("SELECT state FROM payment_transactions WHERE id = ?", id).Scan(&state).Error; err != nil {
		t.Fatalf("scan state: %v", err)
	}
	if state != string(want) {
		t.Fatalf("expected state %s, got %s", want, state)
	}
}

func assertCount(t *testing.T, db *gorm.DB, query string, want int64) {
	t.Helper()

	var got int64
	if err := db.Raw(query).Scan(&got).Error; err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if got != want {
		t.Fatalf("expected %d rows, got %d (%s)", want, got, query)
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE payment_transactions (
			id BIGINT PRIMARY KEY,
			order_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			gateway TEXT NOT NULL,
			provider_ref TEXT NOT NULL DEFAULT '',
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			state TEXT NOT NULL,
			owner_type TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE payment_refunds (
			id BIGINT PRIMARY KEY,
			transaction_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			reason TEXT,
			provider_refund_id TEXT,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE callback_events (
			id BIGINT PRIMARY KEY,
			source TEXT NOT NULL,
			provider_event_id TEXT NOT NULL,
			payload TEXT,
			outcome TEXT,
			received_at TIMESTAMP NOT NULL,
			processed_at TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX ux_callback_events_source_event ON callback_events(source, provider_event_id)`,
		`CREATE TABLE wallet_ledger_entries (
			id BIGINT PRIMARY KEY,
			owner_type TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			direction TEXT NOT NULL,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			reference TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_wallet_ledger_reference ON wallet_ledger_entries(reference)`,
	}

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}

	return db
}
