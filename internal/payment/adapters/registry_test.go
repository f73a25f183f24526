package adapters_test

import (
	"errors"
	"testing"

	"github.com/bazaarhq/paygate/internal/payment/adapters"
	"github.com/bazaarhq/paygate/internal/payment/adapters/zarinpal"
	"github.com/bazaarhq/paygate/internal/payment/adapters/zibal"
	"github.com/bazaarhq/paygate/internal/payment/domain"
)

func TestRegistryResolvesRegisteredGateways(t *testing.T) {
	registry := adapters.NewRegistry(zarinpal.NewFactory(), zibal.NewFactory(), nil)

	if !registry.GatewayExists(domain.GatewayZarinpal) {
		t.Fatal("expected zarinpal to be registered")
	}
	if !registry.GatewayExists(domain.GatewayZibal) {
		t.Fatal("expected zibal to be registered")
	}
	if registry.GatewayExists("paypal") {
		t.Fatal("expected unknown gateway to be absent")
	}

	adapter, err := registry.NewAdapter(domain.GatewayZarinpal, domain.AdapterConfig{
		Gateway:    domain.GatewayZarinpal,
		MerchantID: "merchant-1",
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if adapter.Gateway() != domain.GatewayZarinpal {
		t.Fatalf("unexpected gateway %s", adapter.Gateway())
	}

	if _, err := registry.NewAdapter("paypal", domain.AdapterConfig{}); !errors.Is(err, domain.ErrInvalidGateway) {
		t.Fatalf("expected ErrInvalidGateway, got %v", err)
	}
}
