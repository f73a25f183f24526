package domain

import "context"

// Service posts wallet ledger movements. Postings are idempotent per
// reference: a reference already written is not written again.
type Service interface {
	Credit(ctx context.Context, owner WalletOwnerIdentity, amount int64, currency string, reference string) error
	Debit(ctx context.Context, owner WalletOwnerIdentity, amount int64, currency string, reference string) error
}
