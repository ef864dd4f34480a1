package handler

import (
	"strconv"
	"time"

	"exchange-ledger/internal/adapter/http/dto"
	"exchange-ledger/internal/core/domain"
	"exchange-ledger/internal/core/ports"
	"exchange-ledger/pkg/apperror"
	"exchange-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletHandler handles wallet and balance endpoints.
type WalletHandler struct {
	ledger   ports.BalanceLedger
	recorder ports.TransactionRecorder
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledger ports.BalanceLedger, recorder ports.TransactionRecorder) *WalletHandler {
	return &WalletHandler{ledger: ledger, recorder: recorder}
}

// Create handles POST /api/v1/wallets.
func (h *WalletHandler) Create(c *gin.Context) {
	var req dto.CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		response.Error(c, apperror.Validation("owner_id must be a UUID"))
		return
	}

	wallet, err := h.ledger.CreateWallet(c.Request.Context(), ownerID, req.Asset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.FromWallet(wallet))
}

// Get handles GET /api/v1/wallets/:id.
func (h *WalletHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("wallet id must be a UUID"))
		return
	}

	wallet, err := h.ledger.GetWallet(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.FromWallet(wallet))
}

// List handles GET /api/v1/owners/:owner_id/wallets.
func (h *WalletHandler) List(c *gin.Context) {
	ownerID, err := uuid.Parse(c.Param("owner_id"))
	if err != nil {
		response.Error(c, apperror.Validation("owner_id must be a UUID"))
		return
	}

	wallets, err := h.ledger.ListWallets(c.Request.Context(), ownerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.WalletResponse, 0, len(wallets))
	for i := range wallets {
		out = append(out, dto.FromWallet(&wallets[i]))
	}
	response.OK(c, out)
}

// Deposit handles POST /api/v1/wallets/:id/deposit.
func (h *WalletHandler) Deposit(c *gin.Context) {
	h.mutate(c, func(walletID uuid.UUID, amount decimal.Decimal, meta map[string]string) (*domain.Transaction, error) {
		return h.ledger.Deposit(c.Request.Context(), walletID, amount, meta)
	})
}

// Withdraw handles POST /api/v1/wallets/:id/withdraw.
func (h *WalletHandler) Withdraw(c *gin.Context) {
	h.mutate(c, func(walletID uuid.UUID, amount decimal.Decimal, meta map[string]string) (*domain.Transaction, error) {
		return h.ledger.Withdraw(c.Request.Context(), walletID, amount, meta)
	})
}

func (h *WalletHandler) mutate(c *gin.Context, apply func(uuid.UUID, decimal.Decimal, map[string]string) (*domain.Transaction, error)) {
	walletID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("wallet id must be a UUID"))
		return
	}

	var req dto.AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	txn, err := apply(walletID, amount, req.Metadata)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.FromTransaction(txn))
}

// Transfer handles POST /api/v1/wallets/:id/transfer.
func (h *WalletHandler) Transfer(c *gin.Context) {
	fromID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("wallet id must be a UUID"))
		return
	}

	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	toID, err := uuid.Parse(req.ToWalletID)
	if err != nil {
		response.Error(c, apperror.Validation("to_wallet_id must be a UUID"))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	txn, err := h.ledger.Transfer(c.Request.Context(), fromID, toID, amount, req.Metadata)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.FromTransaction(txn))
}

// Transactions handles GET /api/v1/wallets/:id/transactions with optional
// type, time-range, amount-range filters and cursor pagination.
func (h *WalletHandler) Transactions(c *gin.Context) {
	walletID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("wallet id must be a UUID"))
		return
	}

	params := ports.TransactionListParams{
		WalletID: walletID,
		Cursor:   c.Query("cursor"),
	}

	if t := c.Query("type"); t != "" {
		if !domain.ValidTransactionType(t) {
			response.Error(c, apperror.Validation("unknown transaction type"))
			return
		}
		tt := domain.TransactionType(t)
		params.Type = &tt
	}
	if from := c.Query("from"); from != "" {
		ts, err := time.Parse(time.RFC3339, from)
		if err != nil {
			response.Error(c, apperror.Validation("from must be RFC3339"))
			return
		}
		params.From = &ts
	}
	if to := c.Query("to"); to != "" {
		ts, err := time.Parse(time.RFC3339, to)
		if err != nil {
			response.Error(c, apperror.Validation("to must be RFC3339"))
			return
		}
		params.To = &ts
	}
	if raw := c.Query("min_amount"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			response.Error(c, apperror.Validation("min_amount must be a decimal"))
			return
		}
		params.MinAmount = &d
	}
	if raw := c.Query("max_amount"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			response.Error(c, apperror.Validation("max_amount must be a decimal"))
			return
		}
		params.MaxAmount = &d
	}
	if raw := c.Query("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.Error(c, apperror.Validation("page_size must be a positive integer"))
			return
		}
		params.PageSize = n
	}

	page, err := h.recorder.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.FromTransactionPage(page))
}
