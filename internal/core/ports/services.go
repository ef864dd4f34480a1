package ports

import (
	"context"
	"time"

	"exchange-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Cache is the best-effort read-through cache layer. Remote failures never
// propagate: Get degrades to a miss, Set/Delete/Clear are fire-and-log.
// The datastore remains the source of truth for every cached value.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set rejects values above the configured size cap with an error; remote
	// failures are absorbed and reported as nil.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string)
	Clear(ctx context.Context, prefix string)
}

// PriceFetcher is the request/response polling endpoint of the price vendor,
// used as fallback while the stream is down and for direct one-shot reads.
type PriceFetcher interface {
	Fetch(ctx context.Context, assets []string) ([]domain.PriceSample, error)
}

// PriceOracle provides near-real-time prices with bounded staleness and
// synthetic order-book depth.
type PriceOracle interface {
	// CurrentPrice never substitutes a default or zero price: if no source
	// can produce one it fails with the price-unavailable error.
	CurrentPrice(ctx context.Context, asset string) (domain.PriceSample, error)
	Depth(ctx context.Context, baseAsset, quoteAsset string) (*domain.OrderBook, error)
	Healthy() bool
}

// TransactionInput describes the transaction record accompanying a balance
// mutation.
type TransactionInput struct {
	Type     domain.TransactionType
	Amount   decimal.Decimal
	Asset    string
	Metadata map[string]string
}

// BalanceChange is one leg of a paired mutation (transfer or exchange).
type BalanceChange struct {
	WalletID uuid.UUID
	Delta    decimal.Decimal
	Record   TransactionInput
}

// BalanceLedger owns wallet creation, balance reads, and balance mutation
// under optimistic concurrency control with bounded retry.
type BalanceLedger interface {
	CreateWallet(ctx context.Context, ownerID uuid.UUID, asset string) (*domain.Wallet, error)
	GetWallet(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetWalletByOwnerAsset(ctx context.Context, ownerID uuid.UUID, asset string) (*domain.Wallet, error)
	ListWallets(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error)

	// ApplyDelta mutates one balance and writes its transaction record in the
	// same database transaction. A negative result fails with
	// insufficient-funds before any write happens.
	ApplyDelta(ctx context.Context, walletID uuid.UUID, delta decimal.Decimal, rec TransactionInput) (*domain.Wallet, *domain.Transaction, error)
	// ApplyPair atomically applies a debit and a credit: both commit or both
	// roll back, never a partial result.
	ApplyPair(ctx context.Context, debit, credit BalanceChange) (*domain.Transaction, *domain.Transaction, error)

	Deposit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, metadata map[string]string) (*domain.Transaction, error)
	Withdraw(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, metadata map[string]string) (*domain.Transaction, error)
	Transfer(ctx context.Context, fromWalletID, toWalletID uuid.UUID, amount decimal.Decimal, metadata map[string]string) (*domain.Transaction, error)
}

// QuoteRequest holds validated input for quote generation.
type QuoteRequest struct {
	FromAsset string
	ToAsset   string
	Amount    decimal.Decimal
}

// ExchangeRequest holds input for exchange execution against a prior quote.
type ExchangeRequest struct {
	OwnerID uuid.UUID
	Quote   domain.Quote
}

// QuoteEngine computes exchange quotes and executes them with rate-staleness
// protection.
type QuoteEngine interface {
	GetQuote(ctx context.Context, req QuoteRequest) (*domain.Quote, error)
	ExecuteExchange(ctx context.Context, req ExchangeRequest) (*domain.Transaction, error)
}

// TransactionRecorder appends immutable transaction records coupled with
// balance mutations and lists transaction history.
type TransactionRecorder interface {
	// Record inserts a PENDING row inside the caller's database transaction.
	Record(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, in TransactionInput) (*domain.Transaction, error)
	// Complete settles a just-recorded row within the same database
	// transaction as the balance write it accompanies.
	Complete(ctx context.Context, tx pgx.Tx, txn *domain.Transaction) error

	MarkCompleted(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (*domain.Transaction, error)
	MarkCancelled(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)

	List(ctx context.Context, params TransactionListParams) (*TransactionPage, error)
}

// TransactionPage is one page of transaction history.
type TransactionPage struct {
	Transactions []domain.Transaction `json:"transactions"`
	NextCursor   string               `json:"next_cursor,omitempty"`
}

// AuditEvent is a structured audit record.
type AuditEvent struct {
	ID           uuid.UUID
	OwnerID      *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   string
	IPAddress    string
	Details      string
	CreatedAt    time.Time
}

// AuditSink emits audit events fire-and-forget; it never blocks or fails the
// caller.
type AuditSink interface {
	Emit(ctx context.Context, event *AuditEvent)
}
