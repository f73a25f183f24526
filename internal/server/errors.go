package server

import (
	"errors"
	"net/http"

	paymentdomain "github.com/bazaarhq/paygate/internal/payment/domain"
	walletdomain "github.com/bazaarhq/paygate/internal/wallet/domain"
	"github.com/gin-gonic/gin"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, paymentdomain.ErrTransactionNotFound),
		errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, paymentdomain.ErrStateConflict),
		errors.Is(err, paymentdomain.ErrRefundExceedsAmount):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, paymentdomain.ErrGatewayRejected),
		errors.Is(err, paymentdomain.ErrAmountMismatch):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "gateway_rejected",
			Message: err.Error(),
		}
	case errors.Is(err, paymentdomain.ErrGatewayUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_unavailable",
			Message: "payment gateway unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, paymentdomain.ErrInvalidAmount) ||
		errors.Is(err, paymentdomain.ErrInvalidOrder) ||
		errors.Is(err, paymentdomain.ErrInvalidGateway) ||
		errors.Is(err, paymentdomain.ErrInvalidEvent) ||
		errors.Is(err, paymentdomain.ErrProviderRefMismatch) ||
		errors.Is(err, walletdomain.ErrInvalidOwner) ||
		errors.Is(err, walletdomain.ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidRequest)
}
