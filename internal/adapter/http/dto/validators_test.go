package dto

import (
	"testing"
	"time"

	"exchange-ledger/internal/core/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAssetCode(t *testing.T) {
	valid := []string{"BTC", "ETH", "USDT", "EU"}
	invalid := []string{"btc", "B", "TOOLONGASSETX", "US D", ""}

	for _, s := range valid {
		assert.True(t, assetCodeRe.MatchString(s), s)
	}
	for _, s := range invalid {
		assert.False(t, assetCodeRe.MatchString(s), s)
	}
}

func TestQuoteRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	q := domain.Quote{
		FromAsset:   "BTC",
		ToAsset:     "ETH",
		AmountIn:    decimal.RequireFromString("1.5"),
		Rate:        decimal.RequireFromString("15"),
		FeeAmount:   decimal.RequireFromString("0.0225"),
		SlippagePct: decimal.RequireFromString("0.025"),
		AmountOut:   decimal.RequireFromString("22.4775"),
		CreatedAt:   now,
		ExpiresAt:   now.Add(30 * time.Second),
	}

	got, err := FromQuote(&q).ToQuote()
	require.NoError(t, err)
	assert.True(t, got.AmountOut.Equal(q.AmountOut))
	assert.True(t, got.ExpiresAt.Equal(q.ExpiresAt))
	assert.Equal(t, q.FromAsset, got.FromAsset)
}

func TestToQuote_MalformedAmount(t *testing.T) {
	r := QuoteResponse{
		FromAsset: "BTC", ToAsset: "ETH",
		AmountIn: "one point five", Rate: "15", FeeAmount: "0", SlippagePct: "0",
		AmountOut: "22.5", CreatedAt: time.Now().Format(time.RFC3339Nano),
		ExpiresAt: time.Now().Format(time.RFC3339Nano),
	}
	_, err := r.ToQuote()
	assert.Error(t, err)
}
