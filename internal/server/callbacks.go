package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	paymentdomain "github.com/bazaarhq/paygate/internal/payment/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandleGatewayCallback receives the provider redirect after payment. The
// response is always an ack once the event is recorded: a failed verify is
// the transaction's problem, not the delivery's, and providers keep retrying
// anything that does not look like success.
func (s *Server) HandleGatewayCallback(c *gin.Context) {
	source := strings.TrimSpace(c.Param("gateway"))

	providerRef, status := extractCallbackParams(c)
	if providerRef == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	payload, err := json.Marshal(map[string]string{
		"transaction_id": strings.TrimSpace(c.Query("tx")),
		"provider_ref":   providerRef,
		"status":         status,
	})
	if err != nil {
		AbortWithError(c, ErrInternal)
		return
	}

	outcome, err := s.ingestor.Ingest(c.Request.Context(), source, providerRef, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventInFlight) {
			c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": string(outcome)})
}

// HandleWebhook accepts third-party event webhooks (chat widget and the
// like). Events carry an id; everything else about the payload is opaque.
func (s *Server) HandleWebhook(c *gin.Context) {
	source := strings.TrimSpace(c.Param("source"))

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	eventID := strings.TrimSpace(c.GetHeader("X-Event-Id"))
	if eventID == "" {
		eventID = extractEventID(payload)
	}
	if eventID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	outcome, err := s.ingestor.Ingest(c.Request.Context(), source, eventID, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventInFlight) {
			c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
			return
		}
		s.log.Warn("webhook ingestion failed", zap.String("source", source), zap.Error(err))
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": string(outcome)})
}

// extractCallbackParams reads the provider reference and claimed status from
// the redirect query string. Zarinpal sends Authority/Status, Zibal sends
// trackId/success.
func extractCallbackParams(c *gin.Context) (string, string) {
	if authority := strings.TrimSpace(c.Query("Authority")); authority != "" {
		return authority, strings.TrimSpace(c.Query("Status"))
	}
	if trackID := strings.TrimSpace(c.Query("trackId")); trackID != "" {
		return trackID, strings.TrimSpace(c.Query("success"))
	}
	return "", ""
}

func extractEventID(payload []byte) string {
	var probe struct {
		ID      string `json:"id"`
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return ""
	}
	if id := strings.TrimSpace(probe.ID); id != "" {
		return id
	}
	return strings.TrimSpace(probe.EventID)
}
