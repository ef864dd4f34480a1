package postgres

import (
	"context"
	"errors"
	"fmt"

	"exchange-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletColumns = `id, owner_id, asset, balance::text, active, version, created_at, updated_at, deleted_at`

// Create inserts a new wallet into the database. The partial unique index on
// (owner_id, asset) WHERE active AND deleted_at IS NULL enforces the
// one-active-wallet-per-asset rule at the datastore level.
func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	query := `INSERT INTO wallets (id, owner_id, asset, balance, active, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		w.ID, w.OwnerID, w.Asset, w.Balance.String(),
		w.Active, w.Version, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByID fetches a wallet by its UUID. This is the authoritative read used
// by mutation paths; it never touches the cache.
func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1 AND deleted_at IS NULL`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet by id: %w", err)
	}
	return w, nil
}

// GetByOwnerAndAsset fetches the owner's active wallet for an asset code.
func (r *WalletRepo) GetByOwnerAndAsset(ctx context.Context, ownerID uuid.UUID, asset string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets
		WHERE owner_id = $1 AND asset = $2 AND active AND deleted_at IS NULL`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, ownerID, asset))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet by owner and asset: %w", err)
	}
	return w, nil
}

// ListByOwner fetches the owner's active wallets, newest first.
func (r *WalletRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets
		WHERE owner_id = $1 AND active AND deleted_at IS NULL
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		wallets = append(wallets, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list wallets rows: %w", err)
	}
	return wallets, nil
}

// UpdateBalance writes the new balance conditioned on the observed version,
// incrementing version by exactly one. A false result means the condition did
// not match: a concurrent writer won this version and the caller must re-read
// and retry.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, newBalance decimal.Decimal, expectedVersion int64) (bool, error) {
	query := `UPDATE wallets
		SET balance = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3 AND deleted_at IS NULL`

	tag, err := tx.Exec(ctx, query, newBalance.String(), walletID, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("update wallet balance: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	var balance string
	if err := row.Scan(
		&w.ID, &w.OwnerID, &w.Asset, &balance, &w.Active,
		&w.Version, &w.CreatedAt, &w.UpdatedAt, &w.DeletedAt,
	); err != nil {
		return nil, err
	}

	var err error
	w.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	return w, nil
}
