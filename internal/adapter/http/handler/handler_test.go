package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"exchange-ledger/internal/adapter/http/dto"
	"exchange-ledger/internal/core/domain"
	"exchange-ledger/internal/core/ports"
	"exchange-ledger/internal/core/ports/mocks"
	"exchange-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func postJSON(t *testing.T, w *httptest.ResponseRecorder, path string, body any) *gin.Context {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	c.Request.Header.Set("Content-Type", "application/json")
	return c
}

// --- Wallet Handler Tests ---

func TestWalletCreate_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ledger := mocks.NewMockBalanceLedger(ctrl)
	h := NewWalletHandler(ledger, nil)

	ownerID := uuid.New()
	wallet := &domain.Wallet{
		ID: uuid.New(), OwnerID: ownerID, Asset: "BTC",
		Balance: decimal.Zero, Active: true, Version: 1,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	ledger.EXPECT().CreateWallet(gomock.Any(), ownerID, "BTC").Return(wallet, nil)

	w := httptest.NewRecorder()
	c := postJSON(t, w, "/api/v1/wallets", dto.CreateWalletRequest{OwnerID: ownerID.String(), Asset: "BTC"})
	h.Create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]any)
	assert.Equal(t, wallet.ID.String(), data["id"])
	assert.Equal(t, "0", data["balance"])
	assert.Equal(t, float64(1), data["version"])
}

func TestWalletCreate_DuplicateAsset(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ledger := mocks.NewMockBalanceLedger(ctrl)
	h := NewWalletHandler(ledger, nil)

	ownerID := uuid.New()
	ledger.EXPECT().CreateWallet(gomock.Any(), ownerID, "BTC").Return(nil, apperror.ErrDuplicateAsset("BTC"))

	w := httptest.NewRecorder()
	c := postJSON(t, w, "/api/v1/wallets", dto.CreateWalletRequest{OwnerID: ownerID.String(), Asset: "BTC"})
	h.Create(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "LGR_002")
}

func TestWalletCreate_RejectsLowercaseAsset(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewWalletHandler(mocks.NewMockBalanceLedger(ctrl), nil)

	w := httptest.NewRecorder()
	c := postJSON(t, w, "/api/v1/wallets", dto.CreateWalletRequest{OwnerID: uuid.NewString(), Asset: "btc"})
	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWalletGet_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ledger := mocks.NewMockBalanceLedger(ctrl)
	h := NewWalletHandler(ledger, nil)

	id := uuid.New()
	ledger.EXPECT().GetWallet(gomock.Any(), id).Return(nil, apperror.ErrNotFound("wallet"))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/wallets/"+id.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}
	h.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "LGR_001")
}

func TestWalletDeposit_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ledger := mocks.NewMockBalanceLedger(ctrl)
	h := NewWalletHandler(ledger, nil)

	walletID := uuid.New()
	txn := &domain.Transaction{
		ID: uuid.New(), WalletID: walletID,
		Type: domain.TransactionTypeDeposit, Amount: dec("25.5"), Asset: "USD",
		Status: domain.TransactionStatusCompleted,
	}
	ledger.EXPECT().Deposit(gomock.Any(), walletID, gomock.Any(), gomock.Any()).Return(txn, nil)

	w := httptest.NewRecorder()
	c := postJSON(t, w, "/api/v1/wallets/"+walletID.String()+"/deposit", dto.AmountRequest{Amount: "25.5"})
	c.Params = gin.Params{{Key: "id", Value: walletID.String()}}
	h.Deposit(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "25.5")
	assert.Contains(t, w.Body.String(), "COMPLETED")
}

func TestWalletWithdraw_InsufficientFunds(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ledger := mocks.NewMockBalanceLedger(ctrl)
	h := NewWalletHandler(ledger, nil)

	walletID := uuid.New()
	ledger.EXPECT().Withdraw(gomock.Any(), walletID, gomock.Any(), gomock.Any()).Return(nil, apperror.ErrInsufficientFunds())

	w := httptest.NewRecorder()
	c := postJSON(t, w, "/api/v1/wallets/"+walletID.String()+"/withdraw", dto.AmountRequest{Amount: "9999"})
	c.Params = gin.Params{{Key: "id", Value: walletID.String()}}
	h.Withdraw(c)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), "LGR_005")
}

func TestWalletDeposit_RejectsNegativeAmount(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewWalletHandler(mocks.NewMockBalanceLedger(ctrl), nil)

	walletID := uuid.New()
	w := httptest.NewRecorder()
	c := postJSON(t, w, "/api/v1/wallets/"+walletID.String()+"/deposit", dto.AmountRequest{Amount: "-5"})
	c.Params = gin.Params{{Key: "id", Value: walletID.String()}}
	h.Deposit(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWalletTransactions_ForwardsFiltersAndCursor(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	recorder := mocks.NewMockTransactionRecorder(ctrl)
	h := NewWalletHandler(mocks.NewMockBalanceLedger(ctrl), recorder)

	walletID := uuid.New()
	recorder.EXPECT().List(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ any, params ports.TransactionListParams) (*ports.TransactionPage, error) {
			assert.Equal(t, walletID, params.WalletID)
			require.NotNil(t, params.Type)
			assert.Equal(t, domain.TransactionTypeDeposit, *params.Type)
			assert.Equal(t, "tok123", params.Cursor)
			assert.Equal(t, 10, params.PageSize)
			return &ports.TransactionPage{
				Transactions: []domain.Transaction{{ID: uuid.New(), WalletID: walletID, Amount: dec("1")}},
				NextCursor:   "tok456",
			}, nil
		})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet,
		"/api/v1/wallets/"+walletID.String()+"/transactions?type=DEPOSIT&cursor=tok123&page_size=10", nil)
	c.Params = gin.Params{{Key: "id", Value: walletID.String()}}
	h.Transactions(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tok456")
}

// --- Exchange Handler Tests ---

func TestQuote_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	quotes := mocks.NewMockQuoteEngine(ctrl)
	h := NewExchangeHandler(quotes, nil)

	now := time.Now().UTC()
	quote := &domain.Quote{
		FromAsset: "BTC", ToAsset: "ETH",
		AmountIn: dec("1"), Rate: dec("15"),
		FeeAmount: dec("0.015"), SlippagePct: decimal.Zero, AmountOut: dec("14.985"),
		CreatedAt: now, ExpiresAt: now.Add(30 * time.Second),
	}
	quotes.EXPECT().GetQuote(gomock.Any(), gomock.Any()).Return(quote, nil)

	w := httptest.NewRecorder()
	c := postJSON(t, w, "/api/v1/quotes", dto.QuoteRequest{FromAsset: "BTC", ToAsset: "ETH", Amount: "1"})
	h.Quote(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "14.985")
}

func TestQuote_PriceUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	quotes := mocks.NewMockQuoteEngine(ctrl)
	h := NewExchangeHandler(quotes, nil)

	quotes.EXPECT().GetQuote(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrPriceUnavailable("BTC"))

	w := httptest.NewRecorder()
	c := postJSON(t, w, "/api/v1/quotes", dto.QuoteRequest{FromAsset: "BTC", ToAsset: "ETH", Amount: "1"})
	h.Quote(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "FX_002")
}

func TestExecute_QuoteExpired(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	quotes := mocks.NewMockQuoteEngine(ctrl)
	h := NewExchangeHandler(quotes, nil)

	quotes.EXPECT().ExecuteExchange(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrQuoteExpired())

	now := time.Now().UTC()
	payload := dto.FromQuote(&domain.Quote{
		FromAsset: "BTC", ToAsset: "ETH",
		AmountIn: dec("1"), Rate: dec("15"),
		FeeAmount: dec("0.015"), SlippagePct: decimal.Zero, AmountOut: dec("14.985"),
		CreatedAt: now.Add(-time.Minute), ExpiresAt: now.Add(-30 * time.Second),
	})

	w := httptest.NewRecorder()
	c := postJSON(t, w, "/api/v1/exchanges", dto.ExchangeRequest{OwnerID: uuid.NewString(), Quote: payload})
	h.Execute(c)

	assert.Equal(t, http.StatusGone, w.Code)
	assert.Contains(t, w.Body.String(), "FX_003")
}

func TestHealthCheck_ReportsDependencies(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	oracle := mocks.NewMockPriceOracle(ctrl)
	oracle.EXPECT().Healthy().Return(true)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)
	HealthCheck(oracle)(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pricefeed")
}
