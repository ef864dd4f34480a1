package postgres

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"exchange-ledger/internal/core/domain"
	"exchange-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

const transactionColumns = `id, wallet_id, type, amount::text, asset, status, metadata, version, created_at, updated_at`

// Create inserts a new transaction within a database transaction.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `INSERT INTO transactions (id, wallet_id, type, amount, asset, status, metadata, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = tx.Exec(ctx, query,
		t.ID, t.WalletID, t.Type, t.Amount.String(), t.Asset,
		t.Status, metadata, t.Version, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID fetches a transaction by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}
	return t, nil
}

// UpdateStatus moves a transaction to a new status, conditioned on the
// observed version. False means a concurrent writer got there first.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, expectedVersion int64) (bool, error) {
	query := `UPDATE transactions
		SET status = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3`

	tag, err := tx.Exec(ctx, query, status, id, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("update transaction status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// List fetches a page of transactions ordered by (created_at DESC, id DESC)
// using keyset pagination. The returned cursor is empty on the last page.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, string, error) {
	var conditions []string
	var args []any
	argIdx := 1

	add := func(cond string, vals ...any) {
		placeholders := make([]any, len(vals))
		for i := range vals {
			placeholders[i] = argIdx
			args = append(args, vals[i])
			argIdx++
		}
		conditions = append(conditions, fmt.Sprintf(cond, placeholders...))
	}

	add("wallet_id = $%d", params.WalletID)
	if params.Type != nil {
		add("type = $%d", *params.Type)
	}
	if params.From != nil {
		add("created_at >= $%d", *params.From)
	}
	if params.To != nil {
		add("created_at <= $%d", *params.To)
	}
	if params.MinAmount != nil {
		add("amount >= $%d", params.MinAmount.String())
	}
	if params.MaxAmount != nil {
		add("amount <= $%d", params.MaxAmount.String())
	}

	if params.Cursor != "" {
		cursorAt, cursorID, err := decodeCursor(params.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("decode cursor: %w", err)
		}
		add("(created_at, id) < ($%d, $%d)", cursorAt, cursorID)
	}

	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	query := fmt.Sprintf(`SELECT `+transactionColumns+` FROM transactions
		WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
		strings.Join(conditions, " AND "), argIdx)
	args = append(args, pageSize+1) // one extra row to detect the next page

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, "", fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("list transactions rows: %w", err)
	}

	var nextCursor string
	if len(txns) > pageSize {
		txns = txns[:pageSize]
		last := txns[len(txns)-1]
		nextCursor = encodeCursor(last.CreatedAt, last.ID)
	}
	return txns, nextCursor, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	var amount string
	var metadata []byte
	if err := row.Scan(
		&t.ID, &t.WalletID, &t.Type, &amount, &t.Asset,
		&t.Status, &metadata, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return t, nil
}

// encodeCursor packs the keyset position into an opaque URL-safe token.
func encodeCursor(createdAt time.Time, id uuid.UUID) string {
	raw := fmt.Sprintf("%d|%s", createdAt.UnixNano(), id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, uuid.UUID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, uuid.Nil, err
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed cursor")
	}
	var nanos int64
	if _, err := fmt.Sscanf(parts[0], "%d", &nanos); err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed cursor timestamp")
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed cursor id: %w", err)
	}
	return time.Unix(0, nanos), id, nil
}
