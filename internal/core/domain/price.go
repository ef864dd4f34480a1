package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSource tags where a price sample came from.
type PriceSource string

const (
	PriceSourceStream PriceSource = "stream"
	PriceSourcePoll   PriceSource = "poll"
)

// PriceSample is one asset price in the reference currency (USD). Samples are
// continuously replaced; the last-known-good sample survives feed outages but
// is considered stale past the oracle's freshness threshold.
type PriceSample struct {
	Asset     string          `json:"asset"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	Source    PriceSource     `json:"source"`
}

// Fresh reports whether the sample is within the given freshness window.
func (s PriceSample) Fresh(now time.Time, window time.Duration) bool {
	return now.Sub(s.Timestamp) <= window
}

// DepthLevel is one synthetic order-book level.
type DepthLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"` // base-asset units available at this price
}

// OrderBook holds synthetic bid/ask depth for an asset pair, best price first.
type OrderBook struct {
	BaseAsset  string       `json:"base_asset"`
	QuoteAsset string       `json:"quote_asset"`
	Bids       []DepthLevel `json:"bids"`
	Asks       []DepthLevel `json:"asks"`
}
