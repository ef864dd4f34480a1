package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"exchange-ledger/internal/core/domain"
	"exchange-ledger/internal/core/ports"
	"exchange-ledger/pkg/apperror"
	"exchange-ledger/pkg/retry"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// LedgerOptions tunes wallet caching and write-conflict retry.
type LedgerOptions struct {
	SupportedAssets []string
	WalletCacheTTL  time.Duration
	WriteRetry      retry.Policy
}

// LedgerServiceImpl implements ports.BalanceLedger. Balance writes use
// optimistic concurrency: read the versioned row, compute, then write
// conditioned on that version, retrying a bounded number of times when a
// concurrent writer wins.
type LedgerServiceImpl struct {
	walletRepo ports.WalletRepository
	recorder   ports.TransactionRecorder
	transactor ports.DBTransactor
	cache      ports.Cache
	opts       LedgerOptions
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	recorder ports.TransactionRecorder,
	transactor ports.DBTransactor,
	cache ports.Cache,
	opts LedgerOptions,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		walletRepo: walletRepo,
		recorder:   recorder,
		transactor: transactor,
		cache:      cache,
		opts:       opts,
		log:        log,
	}
}

// CreateWallet provisions a zero-balance wallet at version 1. At most one
// active wallet may exist per (owner, asset); the partial unique index backs
// this up against racing creates.
func (s *LedgerServiceImpl) CreateWallet(ctx context.Context, ownerID uuid.UUID, asset string) (*domain.Wallet, error) {
	if !slices.Contains(s.opts.SupportedAssets, asset) {
		return nil, apperror.ErrInvalidAsset(asset)
	}

	existing, err := s.walletRepo.GetByOwnerAndAsset(ctx, ownerID, asset)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check existing wallet: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrDuplicateAsset(asset)
	}

	now := time.Now().UTC()
	wallet := &domain.Wallet{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Asset:     asset,
		Balance:   decimal.Zero,
		Active:    true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.walletRepo.Create(ctx, wallet); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, apperror.ErrDuplicateAsset(asset)
		}
		return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
	}

	s.cacheWallet(ctx, wallet)
	s.log.Info().
		Str("wallet_id", wallet.ID.String()).
		Str("owner_id", ownerID.String()).
		Str("asset", asset).
		Msg("wallet created")
	return wallet, nil
}

// GetWallet reads a wallet, cache first. Read paths may serve cached state;
// mutation paths never do.
func (s *LedgerServiceImpl) GetWallet(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	if cached, hit := s.cache.Get(ctx, domain.WalletCacheKey(id)); hit {
		var w domain.Wallet
		if err := json.Unmarshal(cached, &w); err == nil {
			return &w, nil
		}
		s.cache.Delete(ctx, domain.WalletCacheKey(id))
	}

	wallet, err := s.walletRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	s.cacheWallet(ctx, wallet)
	return wallet, nil
}

func (s *LedgerServiceImpl) GetWalletByOwnerAsset(ctx context.Context, ownerID uuid.UUID, asset string) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByOwnerAndAsset(ctx, ownerID, asset)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet by owner and asset: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	return wallet, nil
}

func (s *LedgerServiceImpl) ListWallets(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error) {
	wallets, err := s.walletRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list wallets: %w", err))
	}
	return wallets, nil
}

// ApplyDelta mutates one balance and writes its transaction record in the
// same database transaction. Conflicting writers retry with backoff; after
// the retry attempts are spent the conflict surfaces to the caller.
func (s *LedgerServiceImpl) ApplyDelta(ctx context.Context, walletID uuid.UUID, delta decimal.Decimal, rec ports.TransactionInput) (*domain.Wallet, *domain.Transaction, error) {
	var (
		wallet *domain.Wallet
		txn    *domain.Transaction
	)

	err := s.opts.WriteRetry.Do(ctx, isConflict, func(ctx context.Context) error {
		var err error
		wallet, txn, err = s.applyDeltaOnce(ctx, walletID, delta, rec)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return wallet, txn, nil
}

// applyDeltaOnce is one optimistic attempt: authoritative read, invariant
// check, version-conditioned write plus transaction record in one database
// transaction.
func (s *LedgerServiceImpl) applyDeltaOnce(ctx context.Context, walletID uuid.UUID, delta decimal.Decimal, rec ports.TransactionInput) (*domain.Wallet, *domain.Transaction, error) {
	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("read wallet: %w", err))
	}
	if wallet == nil {
		return nil, nil, apperror.ErrNotFound("wallet")
	}
	if !wallet.CanApply(delta) {
		return nil, nil, apperror.ErrInsufficientFunds()
	}
	if rec.Asset == "" {
		rec.Asset = wallet.Asset
	}

	newBalance := wallet.Balance.Add(delta)

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	applied, err := s.walletRepo.UpdateBalance(ctx, dbTx, walletID, newBalance, wallet.Version)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}
	if !applied {
		return nil, nil, apperror.ErrConcurrencyConflict()
	}

	txn, err := s.recorder.Record(ctx, dbTx, walletID, rec)
	if err != nil {
		return nil, nil, err
	}
	if err := s.recorder.Complete(ctx, dbTx, txn); err != nil {
		return nil, nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("commit: %w", err))
	}

	s.cache.Delete(ctx, domain.WalletCacheKey(walletID))

	wallet.Balance = newBalance
	wallet.Version++
	wallet.UpdatedAt = time.Now().UTC()
	return wallet, txn, nil
}

// ApplyPair atomically applies a debit and a credit: both version-conditioned
// writes and both transaction records commit together or not at all.
func (s *LedgerServiceImpl) ApplyPair(ctx context.Context, debit, credit ports.BalanceChange) (*domain.Transaction, *domain.Transaction, error) {
	var debitTxn, creditTxn *domain.Transaction

	err := s.opts.WriteRetry.Do(ctx, isConflict, func(ctx context.Context) error {
		var err error
		debitTxn, creditTxn, err = s.applyPairOnce(ctx, debit, credit)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return debitTxn, creditTxn, nil
}

func (s *LedgerServiceImpl) applyPairOnce(ctx context.Context, debit, credit ports.BalanceChange) (*domain.Transaction, *domain.Transaction, error) {
	debitWallet, err := s.walletRepo.GetByID(ctx, debit.WalletID)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("read debit wallet: %w", err))
	}
	if debitWallet == nil {
		return nil, nil, apperror.ErrNotFound("wallet")
	}
	creditWallet, err := s.walletRepo.GetByID(ctx, credit.WalletID)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("read credit wallet: %w", err))
	}
	if creditWallet == nil {
		return nil, nil, apperror.ErrNotFound("wallet")
	}

	if !debitWallet.CanApply(debit.Delta) {
		return nil, nil, apperror.ErrInsufficientFunds()
	}
	if !creditWallet.CanApply(credit.Delta) {
		return nil, nil, apperror.ErrInsufficientFunds()
	}
	if debit.Record.Asset == "" {
		debit.Record.Asset = debitWallet.Asset
	}
	if credit.Record.Asset == "" {
		credit.Record.Asset = creditWallet.Asset
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	applied, err := s.walletRepo.UpdateBalance(ctx, dbTx, debit.WalletID, debitWallet.Balance.Add(debit.Delta), debitWallet.Version)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("update debit balance: %w", err))
	}
	if !applied {
		return nil, nil, apperror.ErrConcurrencyConflict()
	}
	applied, err = s.walletRepo.UpdateBalance(ctx, dbTx, credit.WalletID, creditWallet.Balance.Add(credit.Delta), creditWallet.Version)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("update credit balance: %w", err))
	}
	if !applied {
		return nil, nil, apperror.ErrConcurrencyConflict()
	}

	debitTxn, err := s.recorder.Record(ctx, dbTx, debit.WalletID, debit.Record)
	if err != nil {
		return nil, nil, err
	}
	if err := s.recorder.Complete(ctx, dbTx, debitTxn); err != nil {
		return nil, nil, err
	}
	creditTxn, err := s.recorder.Record(ctx, dbTx, credit.WalletID, credit.Record)
	if err != nil {
		return nil, nil, err
	}
	if err := s.recorder.Complete(ctx, dbTx, creditTxn); err != nil {
		return nil, nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("commit: %w", err))
	}

	s.cache.Delete(ctx, domain.WalletCacheKey(debit.WalletID))
	s.cache.Delete(ctx, domain.WalletCacheKey(credit.WalletID))
	return debitTxn, creditTxn, nil
}

// Deposit credits a wallet.
func (s *LedgerServiceImpl) Deposit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, metadata map[string]string) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	_, txn, err := s.ApplyDelta(ctx, walletID, amount, ports.TransactionInput{
		Type:     domain.TransactionTypeDeposit,
		Amount:   amount,
		Metadata: metadata,
	})
	return txn, err
}

// Withdraw debits a wallet, failing before any write if funds are short.
func (s *LedgerServiceImpl) Withdraw(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, metadata map[string]string) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	_, txn, err := s.ApplyDelta(ctx, walletID, amount.Neg(), ports.TransactionInput{
		Type:     domain.TransactionTypeWithdrawal,
		Amount:   amount,
		Metadata: metadata,
	})
	return txn, err
}

// Transfer moves amount between two same-asset wallets atomically. The debit
// leg's transaction is returned.
func (s *LedgerServiceImpl) Transfer(ctx context.Context, fromWalletID, toWalletID uuid.UUID, amount decimal.Decimal, metadata map[string]string) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	if fromWalletID == toWalletID {
		return nil, apperror.Validation("cannot transfer a wallet to itself")
	}

	from, err := s.GetWallet(ctx, fromWalletID)
	if err != nil {
		return nil, err
	}
	to, err := s.GetWallet(ctx, toWalletID)
	if err != nil {
		return nil, err
	}
	if from.Asset != to.Asset {
		return nil, apperror.ErrAssetMismatch()
	}

	meta := func(direction string, counterparty uuid.UUID) map[string]string {
		m := map[string]string{
			"direction":           direction,
			"counterparty_wallet": counterparty.String(),
		}
		for k, v := range metadata {
			m[k] = v
		}
		return m
	}

	debitTxn, _, err := s.ApplyPair(ctx,
		ports.BalanceChange{
			WalletID: fromWalletID,
			Delta:    amount.Neg(),
			Record: ports.TransactionInput{
				Type:     domain.TransactionTypeTransfer,
				Amount:   amount,
				Metadata: meta("out", toWalletID),
			},
		},
		ports.BalanceChange{
			WalletID: toWalletID,
			Delta:    amount,
			Record: ports.TransactionInput{
				Type:     domain.TransactionTypeTransfer,
				Amount:   amount,
				Metadata: meta("in", fromWalletID),
			},
		},
	)
	return debitTxn, err
}

func (s *LedgerServiceImpl) cacheWallet(ctx context.Context, w *domain.Wallet) {
	if payload, err := json.Marshal(w); err == nil {
		s.cache.Set(ctx, domain.WalletCacheKey(w.ID), payload, s.opts.WalletCacheTTL) //nolint:errcheck
	}
}

// isConflict is the retry predicate for optimistic write attempts: only a
// version conflict is worth another try.
func isConflict(err error) bool {
	return apperror.IsCode(err, "LGR_006")
}
