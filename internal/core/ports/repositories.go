package ports

import (
	"context"
	"time"

	"exchange-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx run inside a transaction block so a balance write
// and its transaction record commit or roll back together.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	// GetByID reads the authoritative row from the datastore. Mutation paths
	// call this directly and never trust cached state.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByOwnerAndAsset(ctx context.Context, ownerID uuid.UUID, asset string) (*domain.Wallet, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error)
	// UpdateBalance performs the version-conditioned write
	// ("SET balance, version = version+1 WHERE id = $ AND version = $").
	// It returns false with a nil error when the condition did not match,
	// meaning a concurrent writer won and the caller must re-read and retry.
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, newBalance decimal.Decimal, expectedVersion int64) (bool, error)
}

// TransactionRepository defines persistence operations for transactions.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	// UpdateStatus is version-conditioned like wallet writes; false means the
	// row moved concurrently and the caller must re-read.
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, expectedVersion int64) (bool, error)
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, string, error)
}

// TransactionListParams holds filters + keyset cursor for listing
// transactions, newest first.
type TransactionListParams struct {
	WalletID  uuid.UUID
	Type      *domain.TransactionType
	From      *time.Time
	To        *time.Time
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Cursor    string // opaque, from a previous page's next-cursor
	PageSize  int
}

// AuditRepository persists fire-and-forget audit events.
type AuditRepository interface {
	Create(ctx context.Context, event *AuditEvent) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
