package dto

import (
	"time"

	"exchange-ledger/internal/core/domain"
	"exchange-ledger/internal/core/ports"

	"github.com/shopspring/decimal"
)

// CreateWalletRequest is the request body for wallet creation.
type CreateWalletRequest struct {
	OwnerID string `json:"owner_id" binding:"required,uuid"`
	Asset   string `json:"asset" binding:"required,asset_code"`
}

// AmountRequest is the request body for deposits and withdrawals.
type AmountRequest struct {
	Amount   string            `json:"amount" binding:"required,decimal_amount"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// TransferRequest is the request body for wallet-to-wallet transfers.
type TransferRequest struct {
	ToWalletID string            `json:"to_wallet_id" binding:"required,uuid"`
	Amount     string            `json:"amount" binding:"required,decimal_amount"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// QuoteRequest is the request body for quote generation.
type QuoteRequest struct {
	FromAsset string `json:"from_asset" binding:"required,asset_code"`
	ToAsset   string `json:"to_asset" binding:"required,asset_code"`
	Amount    string `json:"amount" binding:"required,decimal_amount"`
}

// ExchangeRequest is the request body for executing a previously issued
// quote. The client sends the quote back exactly as received.
type ExchangeRequest struct {
	OwnerID string        `json:"owner_id" binding:"required,uuid"`
	Quote   QuoteResponse `json:"quote" binding:"required"`
}

// WalletResponse is the response body for wallet reads.
type WalletResponse struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Asset     string `json:"asset"`
	Balance   string `json:"balance"`
	Version   int64  `json:"version"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// TransactionResponse is the response body for transaction records.
type TransactionResponse struct {
	ID        string            `json:"id"`
	WalletID  string            `json:"wallet_id"`
	Type      string            `json:"type"`
	Amount    string            `json:"amount"`
	Asset     string            `json:"asset"`
	Status    string            `json:"status"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt string            `json:"created_at"`
}

// TransactionListResponse wraps one page of transaction history.
type TransactionListResponse struct {
	Items      []TransactionResponse `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

// QuoteResponse is the wire form of a quote, both as our response and as the
// payload the client echoes back on execution.
type QuoteResponse struct {
	FromAsset   string `json:"from_asset" binding:"required,asset_code"`
	ToAsset     string `json:"to_asset" binding:"required,asset_code"`
	AmountIn    string `json:"amount_in" binding:"required,decimal_amount"`
	Rate        string `json:"rate" binding:"required,decimal_amount"`
	FeeAmount   string `json:"fee_amount" binding:"required"`
	SlippagePct string `json:"slippage_pct" binding:"required"`
	AmountOut   string `json:"amount_out" binding:"required,decimal_amount"`
	CreatedAt   string `json:"created_at" binding:"required"`
	ExpiresAt   string `json:"expires_at" binding:"required"`
}

// FromWallet converts a domain wallet to its wire form.
func FromWallet(w *domain.Wallet) WalletResponse {
	return WalletResponse{
		ID:        w.ID.String(),
		OwnerID:   w.OwnerID.String(),
		Asset:     w.Asset,
		Balance:   w.Balance.String(),
		Version:   w.Version,
		CreatedAt: w.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: w.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// FromTransaction converts a domain transaction to its wire form.
func FromTransaction(t *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:        t.ID.String(),
		WalletID:  t.WalletID.String(),
		Type:      string(t.Type),
		Amount:    t.Amount.String(),
		Asset:     t.Asset,
		Status:    string(t.Status),
		Metadata:  t.Metadata,
		CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// FromTransactionPage converts a history page to its wire form.
func FromTransactionPage(page *ports.TransactionPage) TransactionListResponse {
	items := make([]TransactionResponse, 0, len(page.Transactions))
	for i := range page.Transactions {
		items = append(items, FromTransaction(&page.Transactions[i]))
	}
	return TransactionListResponse{Items: items, NextCursor: page.NextCursor}
}

// FromQuote converts a domain quote to its wire form.
func FromQuote(q *domain.Quote) QuoteResponse {
	return QuoteResponse{
		FromAsset:   q.FromAsset,
		ToAsset:     q.ToAsset,
		AmountIn:    q.AmountIn.String(),
		Rate:        q.Rate.String(),
		FeeAmount:   q.FeeAmount.String(),
		SlippagePct: q.SlippagePct.String(),
		AmountOut:   q.AmountOut.String(),
		CreatedAt:   q.CreatedAt.UTC().Format(time.RFC3339Nano),
		ExpiresAt:   q.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}
}

// ToQuote parses the echoed quote payload back into its domain form.
func (r QuoteResponse) ToQuote() (domain.Quote, error) {
	var q domain.Quote
	var err error
	if q.AmountIn, err = decimal.NewFromString(r.AmountIn); err != nil {
		return q, err
	}
	if q.Rate, err = decimal.NewFromString(r.Rate); err != nil {
		return q, err
	}
	if q.FeeAmount, err = decimal.NewFromString(r.FeeAmount); err != nil {
		return q, err
	}
	if q.SlippagePct, err = decimal.NewFromString(r.SlippagePct); err != nil {
		return q, err
	}
	if q.AmountOut, err = decimal.NewFromString(r.AmountOut); err != nil {
		return q, err
	}
	if q.CreatedAt, err = time.Parse(time.RFC3339Nano, r.CreatedAt); err != nil {
		return q, err
	}
	if q.ExpiresAt, err = time.Parse(time.RFC3339Nano, r.ExpiresAt); err != nil {
		return q, err
	}
	q.FromAsset = r.FromAsset
	q.ToAsset = r.ToAsset
	return q, nil
}
