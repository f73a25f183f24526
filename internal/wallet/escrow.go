package wallet

import (
	"strings"

	"github.com/bazaarhq/paygate/internal/config"
)

// FallbackEscrowWalletID is returned when no intermediary wallet is
// configured. It is distinct from any real identifier so held funds are
// visible as misconfigured instead of silently lost, and payment initiation
// is never blocked on configuration.
const FallbackEscrowWalletID = "escrow:unconfigured"

// EscrowWallet resolves the system-wide intermediary holding wallet.
type EscrowWallet struct {
	id string
}

// NewEscrowWallet builds the provider from explicit configuration.
func NewEscrowWallet(cfg config.Config) *EscrowWallet {
	return &EscrowWallet{id: strings.TrimSpace(cfg.EscrowWalletID)}
}

// WalletID returns the configured intermediary wallet id, or the fallback
// sentinel when unset. It never fails.
func (e *EscrowWallet) WalletID() string {
	if e == nil || e.id == "" {
		return FallbackEscrowWalletID
	}
	return e.id
}
