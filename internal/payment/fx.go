package payment

import (
	"github.com/bazaarhq/paygate/internal/payment/adapters"
	"github.com/bazaarhq/paygate/internal/payment/adapters/zarinpal"
	"github.com/bazaarhq/paygate/internal/payment/adapters/zibal"
	"github.com/bazaarhq/paygate/internal/payment/repository"
	paymentservice "github.com/bazaarhq/paygate/internal/payment/service"
	"github.com/bazaarhq/paygate/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			zarinpal.NewFactory(),
			zibal.NewFactory(),
		)
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
