package domain

import "errors"

var (
	ErrInvalidOwner     = errors.New("invalid_wallet_owner")
	ErrInvalidAmount    = errors.New("invalid_ledger_amount")
	ErrInvalidCurrency  = errors.New("invalid_ledger_currency")
	ErrInvalidReference = errors.New("invalid_ledger_reference")
)
