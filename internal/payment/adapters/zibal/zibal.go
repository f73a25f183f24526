package zibal

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
	productionBaseURL = "https://gateway.zibal.ir"

	// sandboxMerchant routes requests to Zibal's test environment; there is
	// no separate sandbox host.
	sandboxMerchant = "zibal"

	resultSuccess         = 100
	resultAlreadyVerified = 201
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Gateway() domain.Gateway {
	return domain.GatewayZibal
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.GatewayAdapter, error) {
	merchant := strings.TrimSpace(cfg.MerchantID)
	if cfg.Sandbox {
		merchant = sandboxMerchant
	}
	if merchant == "" {
		return nil, domain.ErrInvalidConfig
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = productionBaseURL
	}

	return &Adapter{
		merchant:    merchant,
		accessToken: strings.TrimSpace(cfg.AccessToken),
		baseURL:     baseURL,
		client:      &http.Client{Timeout: 12 * time.Second},
	}, nil
}

type Adapter struct {
	merchant    string
	accessToken string
	baseURL     string
	client      *http.Client
}

func (a *Adapter) Gateway() domain.Gateway {
	return domain.GatewayZibal
}

type requestPayload struct {
	Merchant    string `json:"merchant"`
	Amount      int64  `json:"amount"`
	CallbackURL string `json:"callbackUrl"`
	Description string `json:"description,omitempty"`
	OrderID     string `json:"orderId,omitempty"`
	Mobile      string `json:"mobile,omitempty"`
}

type requestResponse struct {
	TrackID int64  `json:"trackId"`
	Result  int    `json:"result"`
	Message string `json:"message"`
}

type verifyPayload struct {
	Merchant string `json:"merchant"`
	TrackID  int64  `json:"trackId"`
}

type verifyResponse struct {
	Result      int    `json:"result"`
	Amount      int64  `json:"amount"`
	RefNumber   int64  `json:"refNumber"`
	Status      int    `json:"status"`
	PaidAt      string `json:"paidAt"`
	Message     string `json:"message"`
	Description string `json:"description"`
}

type refundPayload struct {
	TrackID     int64  `json:"trackId"`
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty"`
}

type refundResponse struct {
	Result   int    `json:"result"`
	RefundID int64  `json:"refundId"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

func (a *Adapter) Initiate(ctx context.Context, req domain.InitiateRequest) (domain.InitiateResult, error) {
	var resp requestResponse
	if err := a.call(ctx, "/v1/request", requestPayload{
		Merchant:    a.merchant,
		Amount:      req.Amount,
		CallbackURL: req.CallbackURL,
		Description: req.Description,
		OrderID:     req.OrderID,
		Mobile:      strings.TrimSpace(req.PayerContact),
	}, &resp); err != nil {
		return domain.InitiateResult{}, err
	}
	if resp.Result != resultSuccess || resp.TrackID == 0 {
		return domain.InitiateResult{}, domain.ErrGatewayRejected
	}

	trackID := strconv.FormatInt(resp.TrackID, 10)
	return domain.InitiateResult{
		ProviderRef: trackID,
		RedirectURL: a.baseURL + "/start/" + trackID,
	}, nil
}

func (a *Adapter) Verify(ctx context.Context, providerRef string, amount int64) (domain.VerifyResult, error) {
	trackID, err := strconv.ParseInt(strings.TrimSpace(providerRef), 10, 64)
	if err != nil {
		return domain.VerifyResult{}, domain.ErrGatewayRejected
	}

	var resp verifyResponse
	if err := a.call(ctx, "/v1/verify", verifyPayload{
		Merchant: a.merchant,
		TrackID:  trackID,
	}, &resp); err != nil {
		return domain.VerifyResult{}, err
	}

	switch resp.Result {
	case resultSuccess, resultAlreadyVerified:
	default:
		return domain.VerifyResult{}, domain.ErrGatewayRejected
	}

	// Zibal's verify does not echo the requested amount back for matching,
	// so the collected amount is compared here.
	if resp.Amount != amount {
		return domain.VerifyResult{}, domain.ErrAmountMismatch
	}

	return domain.VerifyResult{
		ProviderTxRef: strconv.FormatInt(resp.RefNumber, 10),
		Status:        "verified",
	}, nil
}

func (a *Adapter) Refund(ctx context.Context, providerRef string, amount int64, reason string) (domain.RefundResult, error) {
	trackID, err := strconv.ParseInt(strings.TrimSpace(providerRef), 10, 64)
	if err != nil {
		return domain.RefundResult{}, domain.ErrGatewayRejected
	}

	var resp refundResponse
	if err := a.call(ctx, "/v1/refund", refundPayload{
		TrackID:     trackID,
		Amount:      amount,
		Description: reason,
	}, &resp); err != nil {
		return domain.RefundResult{}, err
	}
	if resp.Result != resultSuccess {
		return domain.RefundResult{}, domain.ErrGatewayRejected
	}

	status := strings.TrimSpace(resp.Status)
	if status == "" {
		status = "PENDING"
	}
	return domain.RefundResult{
		RefundID: strconv.FormatInt(resp.RefundID, 10),
		Status:   status,
	}, nil
}

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
	if resp.StatusCode >= http.StatusBadRequest {
		return domain.ErrGatewayRejected
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.ErrGatewayUnavailable
	}
	return nil
}
