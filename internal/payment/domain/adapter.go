package domain

import "context"

// InitiateRequest carries everything a gateway needs to open a payment.
type InitiateRequest struct {
	Amount       int64
	Currency     string
	CallbackURL  string
	Description  string
	PayerContact string
	UserID       string
	OrderID      string
}

// InitiateResult is the provider's acceptance of a payment attempt.
type InitiateResult struct {
	ProviderRef string
	RedirectURL string
}

// VerifyResult is the provider's confirmation of a collected payment.
type VerifyResult struct {
	ProviderTxRef string
	Status        string
}

// RefundResult is the provider's acknowledgement of a refund request.
type RefundResult struct {
	RefundID string
	Status   string
}

// GatewayAdapter is the uniform lifecycle contract every provider implements.
// Failures are reported through the gateway error taxonomy: ErrGatewayRejected
// when the provider declined, ErrGatewayUnavailable on network trouble or
// timeout, ErrAmountMismatch when Verify disagrees on the collected amount.
type GatewayAdapter interface {
	Gateway() Gateway
	Initiate(ctx context.Context, req InitiateRequest) (InitiateResult, error)
	// Verify passes the original amount back to the provider even though the
	// provider already recorded it; this defends against providerRef reuse.
	Verify(ctx context.Context, providerRef string, amount int64) (VerifyResult, error)
	Refund(ctx context.Context, providerRef string, amount int64, reason string) (RefundResult, error)
}

// AdapterConfig carries merchant credentials for adapter construction.
// BaseURL overrides the provider endpoint; empty selects the production or
// sandbox endpoint per the Sandbox flag.
type AdapterConfig struct {
	Gateway     Gateway
	MerchantID  string
	AccessToken string
	Sandbox     bool
	BaseURL     string
}

// AdapterFactory builds adapters for one gateway.
type AdapterFactory interface {
	Gateway() Gateway
	NewAdapter(cfg AdapterConfig) (GatewayAdapter, error)
}
