package zarinpal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bazaarhq/paygate/internal/payment/domain"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (domain.GatewayAdapter, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	adapter, err := NewFactory().NewAdapter(domain.AdapterConfig{
		Gateway:    domain.GatewayZarinpal,
		MerchantID: "merchant-1",
		BaseURL:    server.URL,
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter, server
}

func TestInitiateReturnsAuthority(t *testing.T) {
	adapter, server := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pg/v4/payment/request.json" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload["merchant_id"] != "merchant-1" {
			t.Fatalf("unexpected merchant_id %v", payload["merchant_id"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data":   map[string]any{"code": 100, "authority": "A0000001"},
			"errors": []any{},
		})
	})

	result, err := adapter.Initiate(context.Background(), domain.InitiateRequest{
		Amount:      100000,
		CallbackURL: "https://pay.test/callbacks/zarinpal?tx=1",
		Description: "order-1",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if result.ProviderRef != "A0000001" {
		t.Fatalf("unexpected provider ref %s", result.ProviderRef)
	}
	want := server.URL + "/pg/StartPay/A0000001"
	if result.RedirectURL != want {
		t.Fatalf("expected redirect %s, got %s", want, result.RedirectURL)
	}
}

func TestInitiateRejectedOnNonSuccessCode(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data":   map[string]any{"code": -9, "authority": ""},
			"errors": []any{},
		})
	})

	_, err := adapter.Initiate(context.Background(), domain.InitiateRequest{Amount: 100000})
	if !errors.Is(err, domain.ErrGatewayRejected) {
		t.Fatalf("expected ErrGatewayRejected, got %v", err)
	}
}

func TestVerifySuccess(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pg/v4/payment/verify.json" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload["amount"] != float64(100000) {
			t.Fatalf("expected original amount to be forwarded, got %v", payload["amount"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data":   map[string]any{"code": 100, "ref_id": 987654},
			"errors": []any{},
		})
	})

	result, err := adapter.Verify(context.Background(), "A0000001", 100000)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.ProviderTxRef != "987654" {
		t.Fatalf("unexpected provider tx ref %s", result.ProviderTxRef)
	}
}

func TestVerifyAmountMismatch(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data":   []any{},
			"errors": map[string]any{"code": -50, "message": "amount does not match"},
		})
	})

	_, err := adapter.Verify(context.Background(), "A0000001", 100000)
	if !errors.Is(err, domain.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
}

func TestServerErrorsAreUnavailable(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := adapter.Verify(context.Background(), "A0000001", 100000)
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestRefundSuccess(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pg/v4/payment/refund.json" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data":   map[string]any{"code": 100, "refund_id": "rfnd_1", "status": "DONE"},
			"errors": []any{},
		})
	})

	result, err := adapter.Refund(context.Background(), "A0000001", 40000, "damaged item")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if result.RefundID != "rfnd_1" || result.Status != "DONE" {
		t.Fatalf("unexpected refund result %+v", result)
	}
}

func TestFactoryRequiresMerchantID(t *testing.T) {
	_, err := NewFactory().NewAdapter(domain.AdapterConfig{Gateway: domain.GatewayZarinpal})
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
