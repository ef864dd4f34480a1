package service

import (
	"context"
	"fmt"
	"time"

	"exchange-ledger/internal/core/domain"
	"exchange-ledger/internal/core/ports"
	"exchange-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const defaultPageSize = 50
const maxPageSize = 200

// RecorderServiceImpl implements ports.TransactionRecorder.
type RecorderServiceImpl struct {
	txRepo     ports.TransactionRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewRecorderService creates a new RecorderServiceImpl.
func NewRecorderService(txRepo ports.TransactionRepository, transactor ports.DBTransactor, log zerolog.Logger) *RecorderServiceImpl {
	return &RecorderServiceImpl{
		txRepo:     txRepo,
		transactor: transactor,
		log:        log,
	}
}

// Record inserts a PENDING transaction row inside the caller's database
// transaction. The row is immutable except for its status.
func (s *RecorderServiceImpl) Record(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, in ports.TransactionInput) (*domain.Transaction, error) {
	if !domain.ValidTransactionType(string(in.Type)) {
		return nil, apperror.Validation(fmt.Sprintf("unknown transaction type %q", in.Type))
	}
	if in.Amount.IsZero() {
		return nil, apperror.ErrInvalidAmount()
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:        uuid.New(),
		WalletID:  walletID,
		Type:      in.Type,
		Amount:    in.Amount,
		Asset:     in.Asset,
		Status:    domain.TransactionStatusPending,
		Metadata:  in.Metadata,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.txRepo.Create(ctx, tx, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("insert transaction: %w", err))
	}
	return txn, nil
}

// Complete settles a just-recorded transaction within the same database
// transaction as the balance write it accompanies.
func (s *RecorderServiceImpl) Complete(ctx context.Context, tx pgx.Tx, txn *domain.Transaction) error {
	if !txn.CanTransitionTo(domain.TransactionStatusCompleted) {
		return apperror.ErrInvalidTransition(string(txn.Status), string(domain.TransactionStatusCompleted))
	}

	applied, err := s.txRepo.UpdateStatus(ctx, tx, txn.ID, domain.TransactionStatusCompleted, txn.Version)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("complete transaction: %w", err))
	}
	if !applied {
		return apperror.ErrConcurrencyConflict()
	}

	txn.Status = domain.TransactionStatusCompleted
	txn.Version++
	txn.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkCompleted settles a pending transaction outside any caller transaction.
func (s *RecorderServiceImpl) MarkCompleted(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return s.mark(ctx, id, domain.TransactionStatusCompleted, "")
}

// MarkFailed moves a pending transaction to FAILED. The reason is logged, not
// stored: the record itself stays immutable.
func (s *RecorderServiceImpl) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (*domain.Transaction, error) {
	return s.mark(ctx, id, domain.TransactionStatusFailed, reason)
}

// MarkCancelled moves a pending transaction to CANCELLED.
func (s *RecorderServiceImpl) MarkCancelled(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return s.mark(ctx, id, domain.TransactionStatusCancelled, "")
}

func (s *RecorderServiceImpl) mark(ctx context.Context, id uuid.UUID, next domain.TransactionStatus, reason string) (*domain.Transaction, error) {
	txn, err := s.txRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrNotFound("transaction")
	}
	if !txn.CanTransitionTo(next) {
		return nil, apperror.ErrInvalidTransition(string(txn.Status), string(next))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	applied, err := s.txRepo.UpdateStatus(ctx, dbTx, txn.ID, next, txn.Version)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update status: %w", err))
	}
	if !applied {
		return nil, apperror.ErrConcurrencyConflict()
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit: %w", err))
	}

	txn.Status = next
	txn.Version++
	txn.UpdatedAt = time.Now().UTC()

	evt := s.log.Info().
		Str("transaction_id", txn.ID.String()).
		Str("status", string(next))
	if reason != "" {
		evt = evt.Str("reason", reason)
	}
	evt.Msg("transaction status updated")

	return txn, nil
}

// List returns one page of transaction history, newest first, with an opaque
// cursor for the next page.
func (s *RecorderServiceImpl) List(ctx context.Context, params ports.TransactionListParams) (*ports.TransactionPage, error) {
	if params.PageSize <= 0 {
		params.PageSize = defaultPageSize
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}

	txns, next, err := s.txRepo.List(ctx, params)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list transactions: %w", err))
	}

	return &ports.TransactionPage{Transactions: txns, NextCursor: next}, nil
}
