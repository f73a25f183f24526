package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	paymentdomain "github.com/bazaarhq/paygate/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Repo         paymentdomain.Repository
	Orchestrator paymentdomain.Orchestrator
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         paymentdomain.Repository
	orchestrator paymentdomain.Orchestrator
}

func NewService(p Params) paymentdomain.Ingestor {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("payment.webhook"),
		genID:        p.GenID,
		repo:         p.Repo,
		orchestrator: p.Orchestrator,
	}
}

// gatewayCallback is the normalized shape the callback endpoint extracts
// from a provider redirect: which transaction, which authority, and the
// provider's claimed status.
type gatewayCallback struct {
	TransactionID string `json:"transaction_id"`
	ProviderRef   string `json:"provider_ref"`
	Status        string `json:"status"`
}

func (s *Service) Ingest(ctx context.Context, source string, eventID string, payload []byte) (paymentdomain.CallbackOutcome, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	eventID = strings.TrimSpace(eventID)
	if source == "" || eventID == "" {
		return "", paymentdomain.ErrInvalidEvent
	}
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if !json.Valid(payload) {
		return "", paymentdomain.ErrInvalidEvent
	}

	event := &paymentdomain.CallbackEvent{
		ID:              s.genID.Generate(),
		Source:          source,
		ProviderEventID: eventID,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      time.Now().UTC(),
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, event)
	if err != nil {
		return "", err
	}
	if !inserted {
		stored, err := s.repo.FindEvent(ctx, s.db, source, eventID)
		if err != nil {
			return "", err
		}
		if stored == nil {
			return "", paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt == nil {
			return "", paymentdomain.ErrEventInFlight
		}
		return stored.Outcome, nil
	}

	outcome, procErr := s.process(ctx, source, payload)
	if procErr != nil {
		// Transient downstream trouble. Drop the dedupe row so the provider's
		// redelivery runs the verify again instead of hitting a cached outcome.
		if delErr := s.repo.DeleteEvent(ctx, s.db, event.ID); delErr != nil {
			s.log.Error("failed to release callback event for retry",
				zap.String("source", source),
				zap.String("event_id", eventID),
				zap.Error(delErr),
			)
		}
		return "", procErr
	}
	if err := s.repo.MarkEventProcessed(ctx, s.db, event.ID, outcome, time.Now().UTC()); err != nil {
		return "", err
	}
	return outcome, nil
}

// process runs the first delivery of an event. Definitive provider-side
// verify failures are recorded as a failed outcome, never surfaced to the
// sender: the delivery itself succeeded and must not be retried. A transient
// gateway outage is returned as an error instead so the event is released
// and the next delivery retries.
func (s *Service) process(ctx context.Context, source string, payload []byte) (paymentdomain.CallbackOutcome, error) {
	gateway, err := paymentdomain.ParseGateway(source)
	if err != nil {
		// Unrecognized sources (chat events and other third-party webhooks)
		// are accepted and discarded to stay forward-compatible.
		return paymentdomain.OutcomeIgnored, nil
	}

	var callback gatewayCallback
	if err := json.Unmarshal(payload, &callback); err != nil {
		return paymentdomain.OutcomeFailed, nil
	}
	txID, err := snowflake.ParseString(strings.TrimSpace(callback.TransactionID))
	if err != nil {
		// Some providers drop the tx query param on redirect; fall back to
		// the provider reference, which is unique per gateway.
		tx, lookupErr := s.repo.FindByProviderRef(ctx, s.db, gateway, strings.TrimSpace(callback.ProviderRef))
		if lookupErr != nil {
			return "", lookupErr
		}
		if tx == nil {
			s.log.Warn("gateway callback without a resolvable transaction",
				zap.String("source", string(gateway)),
			)
			return paymentdomain.OutcomeFailed, nil
		}
		txID = tx.ID
	}

	if _, err := s.orchestrator.Verify(ctx, txID, callback.ProviderRef); err != nil {
		if errors.Is(err, paymentdomain.ErrGatewayUnavailable) {
			return "", err
		}
		if !errors.Is(err, paymentdomain.ErrGatewayRejected) &&
			!errors.Is(err, paymentdomain.ErrAmountMismatch) {
			s.log.Warn("callback verify failed",
				zap.String("source", string(gateway)),
				zap.String("transaction_id", txID.String()),
				zap.Error(err),
			)
		}
		return paymentdomain.OutcomeFailed, nil
	}
	return paymentdomain.OutcomeVerified, nil
}
