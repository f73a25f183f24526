package zarinpal

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bazaarhq/paygate/internal/payment/domain"
)

const (
	productionBaseURL = "https://payment.zarinpal.com"
	sandboxBaseURL    = "https://sandbox.zarinpal.com"

	codeSuccess         = 100
	codeAlreadyVerified = 101
	codeAmountMismatch  = -50
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Gateway() domain.Gateway {
	return domain.GatewayZarinpal
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.GatewayAdapter, error) {
	merchantID := strings.TrimSpace(cfg.MerchantID)
	if merchantID == "" {
		return nil, domain.ErrInvalidConfig
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = productionBaseURL
		if cfg.Sandbox {
			baseURL = sandboxBaseURL
		}
	}

	return &Adapter{
		merchantID:  merchantID,
		accessToken: strings.TrimSpace(cfg.AccessToken),
		baseURL:     baseURL,
		client:      &http.Client{Timeout: 12 * time.Second},
	}, nil
}

type Adapter struct {
	merchantID  string
	accessToken string
	baseURL     string
	client      *http.Client
}

func (a *Adapter) Gateway() domain.Gateway {
	return domain.GatewayZarinpal
}

type requestPayload struct {
	MerchantID  string         `json:"merchant_id"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency,omitempty"`
	CallbackURL string         `json:"callback_url"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type requestData struct {
	Code      int    `json:"code"`
	Authority string `json:"authority"`
	Fee       int64  `json:"fee"`
}

type verifyPayload struct {
	MerchantID string `json:"merchant_id"`
	Amount     int64  `json:"amount"`
	Authority  string `json:"authority"`
}

type verifyData struct {
	Code     int    `json:"code"`
	RefID    int64  `json:"ref_id"`
	CardPan  string `json:"card_pan"`
	FeeType  string `json:"fee_type"`
	CardHash string `json:"card_hash"`
}

type refundPayload struct {
	MerchantID  string `json:"merchant_id"`
	SessionID   string `json:"session_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Method      string `json:"method"`
	Reason      string `json:"reason"`
}

type refundData struct {
	Code     int    `json:"code"`
	RefundID string `json:"refund_id"`
	Status   string `json:"status"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

func (a *Adapter) Initiate(ctx context.Context, req domain.InitiateRequest) (domain.InitiateResult, error) {
	metadata := map[string]any{"order_id": req.OrderID}
	if contact := strings.TrimSpace(req.PayerContact); contact != "" {
		metadata["mobile"] = contact
	}

	var data requestData
	if err := a.call(ctx, "/pg/v4/payment/request.json", requestPayload{
		MerchantID:  a.merchantID,
		Amount:      req.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(req.Currency)),
		CallbackURL: req.CallbackURL,
		Description: req.Description,
		Metadata:    metadata,
	}, &data); err != nil {
		return domain.InitiateResult{}, err
	}
	if data.Code != codeSuccess || strings.TrimSpace(data.Authority) == "" {
		return domain.InitiateResult{}, domain.ErrGatewayRejected
	}

	return domain.InitiateResult{
		ProviderRef: data.Authority,
		RedirectURL: a.baseURL + "/pg/StartPay/" + data.Authority,
	}, nil
}

func (a *Adapter) Verify(ctx context.Context, providerRef string, amount int64) (domain.VerifyResult, error) {
	var data verifyData
	if err := a.call(ctx, "/pg/v4/payment/verify.json", verifyPayload{
		MerchantID: a.merchantID,
		Amount:     amount,
		Authority:  providerRef,
	}, &data); err != nil {
		return domain.VerifyResult{}, err
	}

	switch data.Code {
	case codeSuccess, codeAlreadyVerified:
		return domain.VerifyResult{
			ProviderTxRef: strconv.FormatInt(data.RefID, 10),
			Status:        "verified",
		}, nil
	case codeAmountMismatch:
		return domain.VerifyResult{}, domain.ErrAmountMismatch
	default:
		return domain.VerifyResult{}, domain.ErrGatewayRejected
	}
}

func (a *Adapter) Refund(ctx context.Context, providerRef string, amount int64, reason string) (domain.RefundResult, error) {
	var data refundData
	if err := a.call(ctx, "/pg/v4/payment/refund.json", refundPayload{
		MerchantID:  a.merchantID,
		SessionID:   providerRef,
		Amount:      amount,
		Description: reason,
		Method:      "CARD",
		Reason:      "CUSTOMER_REQUEST",
	}, &data); err != nil {
		return domain.RefundResult{}, err
	}
	if data.Code != codeSuccess {
		return domain.RefundResult{}, domain.ErrGatewayRejected
	}

	status := strings.TrimSpace(data.Status)
	if status == "" {
		status = "PENDING"
	}
	return domain.RefundResult{RefundID: data.RefundID, Status: status}, nil
}

// call posts a JSON payload and decodes the data envelope. Transport
// failures and 5xx responses map to ErrGatewayUnavailable, 4xx and error
// envelopes to ErrGatewayRejected.
func (a *Adapter) call(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if a.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.accessToken)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return domain.ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return domain.ErrGatewayUnavailable
	}

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return domain.ErrGatewayUnavailable
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return domain.ErrGatewayRejected
	}

	if len(envelope.Data) > 0 && string(envelope.Data) != "[]" {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return domain.ErrGatewayUnavailable
		}
		return nil
	}

	var apiErr apiError
	if len(envelope.Errors) > 0 && string(envelope.Errors) != "[]" {
		if err := json.Unmarshal(envelope.Errors, &apiErr); err == nil && apiErr.Code == codeAmountMismatch {
			return domain.ErrAmountMismatch
		}
	}
	return domain.ErrGatewayRejected
}
