package wallet

import (
	"github.com/bazaarhq/paygate/internal/wallet/service"
	"go.uber.org/fx"
)

var Module = fx.Module("wallet.service",
	fx.Provide(NewEscrowWallet),
	fx.Provide(service.NewService),
)
