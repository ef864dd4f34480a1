package service

import (
	"context"
	"testing"

	"exchange-ledger/internal/core/domain"
	"exchange-ledger/internal/core/ports"
	"exchange-ledger/internal/core/ports/mocks"
	"exchange-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type recorderTestDeps struct {
	svc        *RecorderServiceImpl
	txRepo     *mocks.MockTransactionRepository
	transactor *mocks.MockDBTransactor
	ctrl       *gomock.Controller
}

func setupRecorderService(t *testing.T) *recorderTestDeps {
	ctrl := gomock.NewController(t)
	d := &recorderTestDeps{
		txRepo:     mocks.NewMockTransactionRepository(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewRecorderService(d.txRepo, d.transactor, zerolog.Nop())
	return d
}

func TestRecorderService_Record_InsertsPendingRow(t *testing.T) {
	d := setupRecorderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	walletID := uuid.New()
	tx := &mockTx{}

	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ any, txn *domain.Transaction) error {
			assert.Equal(t, walletID, txn.WalletID)
			assert.Equal(t, domain.TransactionStatusPending, txn.Status)
			assert.Equal(t, int64(1), txn.Version)
			assert.True(t, txn.Amount.Equal(dec("25")))
			return nil
		})

	txn, err := d.svc.Record(ctx, tx, walletID, ports.TransactionInput{
		Type:   domain.TransactionTypeDeposit,
		Amount: dec("25"),
		Asset:  "USD",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, txn.ID)
}

func TestRecorderService_Record_RejectsUnknownType(t *testing.T) {
	d := setupRecorderService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.Record(context.Background(), &mockTx{}, uuid.New(), ports.TransactionInput{
		Type:   "GIFT",
		Amount: dec("1"),
	})
	assert.True(t, apperror.IsCode(err, "LGR_004"))
}

func TestRecorderService_Complete_TransitionsAndBumpsVersion(t *testing.T) {
	d := setupRecorderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	txn := &domain.Transaction{ID: uuid.New(), Status: domain.TransactionStatusPending, Version: 1}

	d.txRepo.EXPECT().UpdateStatus(ctx, tx, txn.ID, domain.TransactionStatusCompleted, int64(1)).Return(true, nil)

	require.NoError(t, d.svc.Complete(ctx, tx, txn))
	assert.Equal(t, domain.TransactionStatusCompleted, txn.Status)
	assert.Equal(t, int64(2), txn.Version)
}

func TestRecorderService_Complete_TerminalRowIsImmutable(t *testing.T) {
	d := setupRecorderService(t)
	defer d.ctrl.Finish()

	txn := &domain.Transaction{ID: uuid.New(), Status: domain.TransactionStatusCompleted, Version: 2}

	err := d.svc.Complete(context.Background(), &mockTx{}, txn)
	assert.True(t, apperror.IsCode(err, "LGR_008"))
}

func TestRecorderService_MarkFailed_Success(t *testing.T) {
	d := setupRecorderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	pending := &domain.Transaction{ID: uuid.New(), Status: domain.TransactionStatusPending, Version: 1}

	d.txRepo.EXPECT().GetByID(ctx, pending.ID).Return(pending, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txRepo.EXPECT().UpdateStatus(ctx, tx, pending.ID, domain.TransactionStatusFailed, int64(1)).Return(true, nil)

	txn, err := d.svc.MarkFailed(ctx, pending.ID, "settlement timed out")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusFailed, txn.Status)
	assert.Equal(t, int64(2), txn.Version)
}

func TestRecorderService_MarkCancelled_NotFound(t *testing.T) {
	d := setupRecorderService(t)
	defer d.ctrl.Finish()

	id := uuid.New()
	d.txRepo.EXPECT().GetByID(gomock.Any(), id).Return(nil, nil)

	_, err := d.svc.MarkCancelled(context.Background(), id)
	assert.True(t, apperror.IsCode(err, "LGR_001"))
}

func TestRecorderService_MarkCompleted_InvalidTransition(t *testing.T) {
	d := setupRecorderService(t)
	defer d.ctrl.Finish()

	cancelled := &domain.Transaction{ID: uuid.New(), Status: domain.TransactionStatusCancelled, Version: 2}
	d.txRepo.EXPECT().GetByID(gomock.Any(), cancelled.ID).Return(cancelled, nil)

	_, err := d.svc.MarkCompleted(context.Background(), cancelled.ID)
	assert.True(t, apperror.IsCode(err, "LGR_008"))
}

func TestRecorderService_MarkCompleted_ConcurrentStatusChange(t *testing.T) {
	d := setupRecorderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	pending := &domain.Transaction{ID: uuid.New(), Status: domain.TransactionStatusPending, Version: 1}

	d.txRepo.EXPECT().GetByID(ctx, pending.ID).Return(pending, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txRepo.EXPECT().UpdateStatus(ctx, tx, pending.ID, domain.TransactionStatusCompleted, int64(1)).Return(false, nil)

	_, err := d.svc.MarkCompleted(ctx, pending.ID)
	assert.True(t, apperror.IsCode(err, "LGR_006"))
}

func TestRecorderService_List_DefaultsPageSize(t *testing.T) {
	d := setupRecorderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	walletID := uuid.New()

	d.txRepo.EXPECT().List(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, params ports.TransactionListParams) ([]domain.Transaction, string, error) {
			assert.Equal(t, defaultPageSize, params.PageSize)
			return []domain.Transaction{{ID: uuid.New()}}, "next-token", nil
		})

	page, err := d.svc.List(ctx, ports.TransactionListParams{WalletID: walletID})
	require.NoError(t, err)
	assert.Len(t, page.Transactions, 1)
	assert.Equal(t, "next-token", page.NextCursor)
}
