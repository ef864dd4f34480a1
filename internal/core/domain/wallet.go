package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet is a versioned, single-asset balance record owned by one user.
// The version column is the sole arbiter of concurrent writes: every
// successful mutation increments it by exactly one, and a write conditioned
// on a stale version must fail rather than overwrite.
type Wallet struct {
	ID        uuid.UUID       `json:"id"`
	OwnerID   uuid.UUID       `json:"owner_id"`
	Asset     string          `json:"asset"`
	Balance   decimal.Decimal `json:"balance"`
	Active    bool            `json:"active"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt *time.Time      `json:"-"`
}

// CanApply reports whether applying delta would keep the balance non-negative.
func (w *Wallet) CanApply(delta decimal.Decimal) bool {
	return w.Balance.Add(delta).GreaterThanOrEqual(decimal.Zero)
}

// WalletCacheKey builds the cache key for a wallet record.
func WalletCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("wallet:%s", id)
}

// PriceCacheKey builds the cache key for an asset's latest price sample.
func PriceCacheKey(asset string) string {
	return fmt.Sprintf("price:%s", asset)
}

// QuoteCacheKey builds the cache key for a quote request. Amount is part of
// the key so identical requests inside the TTL return bit-identical quotes.
func QuoteCacheKey(from, to string, amount decimal.Decimal) string {
	return fmt.Sprintf("quote:%s:%s:%s", from, to, amount.String())
}
