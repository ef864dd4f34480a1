package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a time-boxed, pre-computed exchange offer. Expiry is fixed at
// creation and never extended.
type Quote struct {
	FromAsset   string          `json:"from_asset"`
	ToAsset     string          `json:"to_asset"`
	AmountIn    decimal.Decimal `json:"amount_in"`
	Rate        decimal.Decimal `json:"rate"`
	FeeAmount   decimal.Decimal `json:"fee_amount"`
	SlippagePct decimal.Decimal `json:"slippage_pct"`
	AmountOut   decimal.Decimal `json:"amount_out"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// Expired reports whether the quote is no longer usable for execution.
func (q *Quote) Expired(now time.Time) bool {
	return !now.Before(q.ExpiresAt)
}
