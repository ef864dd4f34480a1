package postgres

import (
	"context"
	"testing"
	"time"

	"exchange-ledger/internal/core/domain"
	"exchange-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransaction(walletID uuid.UUID) *domain.Transaction {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Transaction{
		ID:        uuid.New(),
		WalletID:  walletID,
		Type:      domain.TransactionTypeDeposit,
		Amount:    decimal.RequireFromString("250.00"),
		Asset:     "USD",
		Status:    domain.TransactionStatusPending,
		Metadata:  map[string]string{"channel": "bank"},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func transactionRows(txns ...*domain.Transaction) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"id", "wallet_id", "type", "amount", "asset", "status", "metadata", "version", "created_at", "updated_at"})
	for _, t := range txns {
		rows.AddRow(t.ID, t.WalletID, t.Type, t.Amount.String(), t.Asset, t.Status,
			[]byte(`{"channel":"bank"}`), t.Version, t.CreatedAt, t.UpdatedAt)
	}
	return rows
}

func TestTransactionRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(txn.ID, txn.WalletID, txn.Type, "250", txn.Asset, txn.Status,
			pgxmock.AnyArg(), txn.Version, txn.CreatedAt, txn.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, txn)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE id").
		WithArgs(txn.ID).
		WillReturnRows(transactionRows(txn))

	result, err := repo.GetByID(context.Background(), txn.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, txn.ID, result.ID)
	assert.True(t, result.Amount.Equal(txn.Amount))
	assert.Equal(t, "bank", result.Metadata["channel"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	result, err := repo.GetByID(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestTransactionRepo_UpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transactions").
		WithArgs(domain.TransactionStatusCompleted, id, int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	applied, err := repo.UpdateStatus(context.Background(), tx, id, domain.TransactionStatusCompleted, 1)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_UpdateStatus_StaleVersion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transactions").
		WithArgs(domain.TransactionStatusFailed, id, int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	applied, err := repo.UpdateStatus(context.Background(), tx, id, domain.TransactionStatusFailed, 1)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestTransactionRepo_List_FirstPage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	walletID := uuid.New()
	t1 := newTestTransaction(walletID)
	t2 := newTestTransaction(walletID)
	t3 := newTestTransaction(walletID)

	// PageSize 2: repo asks for 3 rows, gets 3, so a next cursor is produced.
	mock.ExpectQuery("SELECT .+ FROM transactions").
		WithArgs(walletID, 3).
		WillReturnRows(transactionRows(t1, t2, t3))

	txns, cursor, err := repo.List(context.Background(), ports.TransactionListParams{
		WalletID: walletID,
		PageSize: 2,
	})
	require.NoError(t, err)
	assert.Len(t, txns, 2)
	assert.NotEmpty(t, cursor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_List_LastPage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	walletID := uuid.New()
	t1 := newTestTransaction(walletID)

	mock.ExpectQuery("SELECT .+ FROM transactions").
		WithArgs(walletID, 21).
		WillReturnRows(transactionRows(t1))

	txns, cursor, err := repo.List(context.Background(), ports.TransactionListParams{
		WalletID: walletID,
	})
	require.NoError(t, err)
	assert.Len(t, txns, 1)
	assert.Empty(t, cursor, "no next cursor on the last page")
}

func TestTransactionRepo_List_WithFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	walletID := uuid.New()
	txType := domain.TransactionTypeExchange
	from := time.Now().Add(-24 * time.Hour)
	minAmount := decimal.RequireFromString("10")

	mock.ExpectQuery("SELECT .+ FROM transactions").
		WithArgs(walletID, txType, from, "10", 21).
		WillReturnRows(transactionRows())

	txns, cursor, err := repo.List(context.Background(), ports.TransactionListParams{
		WalletID:  walletID,
		Type:      &txType,
		From:      &from,
		MinAmount: &minAmount,
	})
	require.NoError(t, err)
	assert.Empty(t, txns)
	assert.Empty(t, cursor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCursor_RoundTrip(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 30, 0, 12345, time.UTC)
	id := uuid.New()

	cursor := encodeCursor(at, id)
	gotAt, gotID, err := decodeCursor(cursor)
	require.NoError(t, err)
	assert.True(t, at.Equal(gotAt))
	assert.Equal(t, id, gotID)
}

func TestCursor_Malformed(t *testing.T) {
	_, _, err := decodeCursor("not-base64!!")
	assert.Error(t, err)

	_, _, err = decodeCursor("bm9zZXBhcmF0b3I") // valid base64, no separator
	assert.Error(t, err)
}
