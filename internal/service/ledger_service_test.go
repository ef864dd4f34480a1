package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"exchange-ledger/internal/core/domain"
	"exchange-ledger/internal/core/ports"
	"exchange-ledger/internal/core/ports/mocks"
	"exchange-ledger/pkg/apperror"
	"exchange-ledger/pkg/retry"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type ledgerTestDeps struct {
	svc        *LedgerServiceImpl
	walletRepo *mocks.MockWalletRepository
	recorder   *mocks.MockTransactionRecorder
	transactor *mocks.MockDBTransactor
	cache      *mocks.MockCache
	ctrl       *gomock.Controller
}

func setupLedgerService(t *testing.T) *ledgerTestDeps {
	ctrl := gomock.NewController(t)
	d := &ledgerTestDeps{
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		recorder:   mocks.NewMockTransactionRecorder(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		cache:      mocks.NewMockCache(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewLedgerService(d.walletRepo, d.recorder, d.transactor, d.cache, LedgerOptions{
		SupportedAssets: []string{"BTC", "ETH", "USD"},
		WalletCacheTTL:  time.Minute,
		WriteRetry:      retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}, zerolog.Nop())
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

// decEq matches a decimal by value, not representation.
type decEq struct{ want decimal.Decimal }

func (m decEq) Matches(x any) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(m.want)
}
func (m decEq) String() string { return "decimal " + m.want.String() }

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testWallet(balance string) *domain.Wallet {
	return &domain.Wallet{
		ID:      uuid.New(),
		OwnerID: uuid.New(),
		Asset:   "USD",
		Balance: dec(balance),
		Active:  true,
		Version: 3,
	}
}

// ==================== CreateWallet Tests ====================

func TestLedgerService_CreateWallet_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	ownerID := uuid.New()

	d.walletRepo.EXPECT().GetByOwnerAndAsset(ctx, ownerID, "BTC").Return(nil, nil)
	d.walletRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	d.cache.EXPECT().Set(ctx, gomock.Any(), gomock.Any(), time.Minute).Return(nil)

	wallet, err := d.svc.CreateWallet(ctx, ownerID, "BTC")
	require.NoError(t, err)
	assert.Equal(t, ownerID, wallet.OwnerID)
	assert.Equal(t, "BTC", wallet.Asset)
	assert.True(t, wallet.Balance.IsZero())
	assert.Equal(t, int64(1), wallet.Version)
	assert.True(t, wallet.Active)
}

func TestLedgerService_CreateWallet_UnsupportedAsset(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.CreateWallet(context.Background(), uuid.New(), "DOGE")
	assert.True(t, apperror.IsCode(err, "LGR_003"))
}

func TestLedgerService_CreateWallet_Duplicate(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	ownerID := uuid.New()

	d.walletRepo.EXPECT().GetByOwnerAndAsset(ctx, ownerID, "BTC").Return(testWallet("1"), nil)

	_, err := d.svc.CreateWallet(ctx, ownerID, "BTC")
	assert.True(t, apperror.IsCode(err, "LGR_002"))
}

// ==================== GetWallet Tests ====================

func TestLedgerService_GetWallet_CacheHit(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	wallet := testWallet("42.5")
	payload, _ := json.Marshal(wallet)

	d.cache.EXPECT().Get(ctx, domain.WalletCacheKey(wallet.ID)).Return(payload, true)

	got, err := d.svc.GetWallet(ctx, wallet.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("42.5")))
}

func TestLedgerService_GetWallet_CacheMissRepopulates(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	wallet := testWallet("10")

	d.cache.EXPECT().Get(ctx, domain.WalletCacheKey(wallet.ID)).Return(nil, false)
	d.walletRepo.EXPECT().GetByID(ctx, wallet.ID).Return(wallet, nil)
	d.cache.EXPECT().Set(ctx, domain.WalletCacheKey(wallet.ID), gomock.Any(), time.Minute).Return(nil)

	got, err := d.svc.GetWallet(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, wallet.ID, got.ID)
}

func TestLedgerService_GetWallet_NotFound(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	id := uuid.New()

	d.cache.EXPECT().Get(ctx, domain.WalletCacheKey(id)).Return(nil, false)
	d.walletRepo.EXPECT().GetByID(ctx, id).Return(nil, nil)

	_, err := d.svc.GetWallet(ctx, id)
	assert.True(t, apperror.IsCode(err, "LGR_001"))
}

// ==================== ApplyDelta Tests ====================

func TestLedgerService_ApplyDelta_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	wallet := testWallet("100.00")
	tx := &mockTx{}
	rec := ports.TransactionInput{Type: domain.TransactionTypeWithdrawal, Amount: dec("30")}
	txn := &domain.Transaction{ID: uuid.New(), WalletID: wallet.ID, Status: domain.TransactionStatusPending, Version: 1}

	d.walletRepo.EXPECT().GetByID(gomock.Any(), wallet.ID).Return(wallet, nil)
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.walletRepo.EXPECT().UpdateBalance(gomock.Any(), tx, wallet.ID, decEq{dec("70")}, int64(3)).Return(true, nil)
	d.recorder.EXPECT().Record(gomock.Any(), tx, wallet.ID, gomock.Any()).Return(txn, nil)
	d.recorder.EXPECT().Complete(gomock.Any(), tx, txn).Return(nil)
	d.cache.EXPECT().Delete(gomock.Any(), domain.WalletCacheKey(wallet.ID))

	updated, gotTxn, err := d.svc.ApplyDelta(ctx, wallet.ID, dec("-30"), rec)
	require.NoError(t, err)
	assert.True(t, updated.Balance.Equal(dec("70")))
	assert.Equal(t, int64(4), updated.Version)
	assert.Equal(t, txn.ID, gotTxn.ID)
}

func TestLedgerService_ApplyDelta_InsufficientFunds(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	wallet := testWallet("50")

	d.walletRepo.EXPECT().GetByID(gomock.Any(), wallet.ID).Return(wallet, nil)

	_, _, err := d.svc.ApplyDelta(context.Background(), wallet.ID, dec("-80"), ports.TransactionInput{
		Type: domain.TransactionTypeWithdrawal, Amount: dec("80"),
	})
	assert.True(t, apperror.IsCode(err, "LGR_005"), "no write may happen when funds are short")
}

func TestLedgerService_ApplyDelta_ConflictThenSuccess(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	wallet := testWallet("100")
	tx := &mockTx{}
	txn := &domain.Transaction{ID: uuid.New(), Status: domain.TransactionStatusPending, Version: 1}

	// First attempt loses the version race.
	first := testWallet("100")
	first.ID = wallet.ID
	d.walletRepo.EXPECT().GetByID(gomock.Any(), wallet.ID).Return(first, nil)
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.walletRepo.EXPECT().UpdateBalance(gomock.Any(), tx, wallet.ID, decEq{dec("70")}, int64(3)).Return(false, nil)

	// Second attempt re-reads the moved row and wins.
	second := testWallet("90")
	second.ID = wallet.ID
	second.Version = 4
	d.walletRepo.EXPECT().GetByID(gomock.Any(), wallet.ID).Return(second, nil)
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.walletRepo.EXPECT().UpdateBalance(gomock.Any(), tx, wallet.ID, decEq{dec("60")}, int64(4)).Return(true, nil)
	d.recorder.EXPECT().Record(gomock.Any(), tx, wallet.ID, gomock.Any()).Return(txn, nil)
	d.recorder.EXPECT().Complete(gomock.Any(), tx, txn).Return(nil)
	d.cache.EXPECT().Delete(gomock.Any(), domain.WalletCacheKey(wallet.ID))

	updated, _, err := d.svc.ApplyDelta(context.Background(), wallet.ID, dec("-30"), ports.TransactionInput{
		Type: domain.TransactionTypeWithdrawal, Amount: dec("30"),
	})
	require.NoError(t, err)
	assert.True(t, updated.Balance.Equal(dec("60")))
}

func TestLedgerService_ApplyDelta_ConflictExhaustion(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	wallet := testWallet("100")
	tx := &mockTx{}

	d.walletRepo.EXPECT().GetByID(gomock.Any(), wallet.ID).Return(testWallet("100"), nil).Times(3)
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil).Times(3)
	d.walletRepo.EXPECT().UpdateBalance(gomock.Any(), tx, gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil).Times(3)

	_, _, err := d.svc.ApplyDelta(context.Background(), wallet.ID, dec("-30"), ports.TransactionInput{
		Type: domain.TransactionTypeWithdrawal, Amount: dec("30"),
	})
	assert.True(t, apperror.IsCode(err, "LGR_006"))
}

// ==================== ApplyPair Tests ====================

func TestLedgerService_ApplyPair_BothLegsOneTransaction(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	from := testWallet("100")
	to := testWallet("5")
	tx := &mockTx{}
	debitTxn := &domain.Transaction{ID: uuid.New(), Status: domain.TransactionStatusPending, Version: 1}
	creditTxn := &domain.Transaction{ID: uuid.New(), Status: domain.TransactionStatusPending, Version: 1}

	d.walletRepo.EXPECT().GetByID(gomock.Any(), from.ID).Return(from, nil)
	d.walletRepo.EXPECT().GetByID(gomock.Any(), to.ID).Return(to, nil)
	d.transactor.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	d.walletRepo.EXPECT().UpdateBalance(gomock.Any(), tx, from.ID, decEq{dec("75")}, int64(3)).Return(true, nil)
	d.walletRepo.EXPECT().UpdateBalance(gomock.Any(), tx, to.ID, decEq{dec("30")}, int64(3)).Return(true, nil)
	d.recorder.EXPECT().Record(gomock.Any(), tx, from.ID, gomock.Any()).Return(debitTxn, nil)
	d.recorder.EXPECT().Complete(gomock.Any(), tx, debitTxn).Return(nil)
	d.recorder.EXPECT().Record(gomock.Any(), tx, to.ID, gomock.Any()).Return(creditTxn, nil)
	d.recorder.EXPECT().Complete(gomock.Any(), tx, creditTxn).Return(nil)
	d.cache.EXPECT().Delete(gomock.Any(), domain.WalletCacheKey(from.ID))
	d.cache.EXPECT().Delete(gomock.Any(), domain.WalletCacheKey(to.ID))

	gotDebit, gotCredit, err := d.svc.ApplyPair(context.Background(),
		ports.BalanceChange{WalletID: from.ID, Delta: dec("-25"), Record: ports.TransactionInput{Type: domain.TransactionTypeTransfer, Amount: dec("25")}},
		ports.BalanceChange{WalletID: to.ID, Delta: dec("25"), Record: ports.TransactionInput{Type: domain.TransactionTypeTransfer, Amount: dec("25")}},
	)
	require.NoError(t, err)
	assert.Equal(t, debitTxn.ID, gotDebit.ID)
	assert.Equal(t, creditTxn.ID, gotCredit.ID)
}

func TestLedgerService_ApplyPair_DebitShortCircuitsBeforeAnyWrite(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	from := testWallet("10")
	to := testWallet("5")

	d.walletRepo.EXPECT().GetByID(gomock.Any(), from.ID).Return(from, nil)
	d.walletRepo.EXPECT().GetByID(gomock.Any(), to.ID).Return(to, nil)

	_, _, err := d.svc.ApplyPair(context.Background(),
		ports.BalanceChange{WalletID: from.ID, Delta: dec("-25"), Record: ports.TransactionInput{Type: domain.TransactionTypeTransfer, Amount: dec("25")}},
		ports.BalanceChange{WalletID: to.ID, Delta: dec("25"), Record: ports.TransactionInput{Type: domain.TransactionTypeTransfer, Amount: dec("25")}},
	)
	assert.True(t, apperror.IsCode(err, "LGR_005"))
}

// ==================== Deposit / Withdraw / Transfer Tests ====================

func TestLedgerService_Deposit_RejectsNonPositive(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.Deposit(context.Background(), uuid.New(), dec("0"), nil)
	assert.True(t, apperror.IsCode(err, "LGR_004"))

	_, err = d.svc.Withdraw(context.Background(), uuid.New(), dec("-5"), nil)
	assert.True(t, apperror.IsCode(err, "LGR_004"))
}

func TestLedgerService_Transfer_AssetMismatch(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	from := testWallet("100")
	to := testWallet("5")
	to.Asset = "BTC"
	fromPayload, _ := json.Marshal(from)
	toPayload, _ := json.Marshal(to)

	d.cache.EXPECT().Get(gomock.Any(), domain.WalletCacheKey(from.ID)).Return(fromPayload, true)
	d.cache.EXPECT().Get(gomock.Any(), domain.WalletCacheKey(to.ID)).Return(toPayload, true)

	_, err := d.svc.Transfer(context.Background(), from.ID, to.ID, dec("10"), nil)
	assert.True(t, apperror.IsCode(err, "LGR_007"))
}

func TestLedgerService_Transfer_SelfTransfer(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	id := uuid.New()
	_, err := d.svc.Transfer(context.Background(), id, id, dec("10"), nil)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, "LGR_004"))
}
