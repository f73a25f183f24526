package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// WalletOwnerType is the closed set of entities a wallet can belong to.
type WalletOwnerType string

const (
	OwnerTypeCompany      WalletOwnerType = "company"
	OwnerTypeIntermediary WalletOwnerType = "intermediary"
	OwnerTypeUser         WalletOwnerType = "user"
)

// ownerPriority gives the total order used when a principal holds several
// roles at once. Funds always attach to the most specific business entity.
func ownerPriority(t WalletOwnerType) int {
	switch t {
	case OwnerTypeCompany:
		return 3
	case OwnerTypeIntermediary:
		return 2
	case OwnerTypeUser:
		return 1
	default:
		return 0
	}
}

// ResolveOwnerType maps a role set to the wallet owner type with the highest
// priority. Unrecognized or empty sets resolve to the user wallet so ledger
// writes are never routed to a business wallet by accident.
func ResolveOwnerType(roles []string) WalletOwnerType {
	resolved := OwnerTypeUser
	best := 0
	for _, role := range roles {
		var candidate WalletOwnerType
		switch strings.ToLower(strings.TrimSpace(role)) {
		case string(OwnerTypeCompany):
			candidate = OwnerTypeCompany
		case string(OwnerTypeIntermediary):
			candidate = OwnerTypeIntermediary
		case string(OwnerTypeUser):
			candidate = OwnerTypeUser
		default:
			continue
		}
		if p := ownerPriority(candidate); p > best {
			best = p
			resolved = candidate
		}
	}
	return resolved
}

// WalletOwnerIdentity is a resolved destination for ledger postings. It is
// computed on demand and never cached; role membership can change between calls.
type WalletOwnerIdentity struct {
	OwnerType WalletOwnerType
	OwnerID   string
}

// LedgerDirection represents debit or credit postings.
type LedgerDirection string

const (
	LedgerDirectionDebit  LedgerDirection = "debit"
	LedgerDirectionCredit LedgerDirection = "credit"
)

// LedgerEntry is one posting against an owner wallet. Reference is unique so
// a retried posting for the same transition is a no-op.
type LedgerEntry struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	OwnerType WalletOwnerType `gorm:"type:text;not null;index"`
	OwnerID   string          `gorm:"type:text;not null;index"`
	Direction LedgerDirection `gorm:"type:text;not null"`
	Amount    int64           `gorm:"not null"`
	Currency  string          `gorm:"type:text;not null"`
	Reference string          `gorm:"type:text;not null;uniqueIndex:ux_wallet_ledger_reference"`
	CreatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "wallet_ledger_entries" }
