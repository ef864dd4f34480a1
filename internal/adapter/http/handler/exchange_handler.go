package handler

import (
	"net/http"

	"exchange-ledger/internal/adapter/http/dto"
	"exchange-ledger/internal/core/ports"
	"exchange-ledger/pkg/apperror"
	"exchange-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExchangeHandler handles quote and exchange endpoints.
type ExchangeHandler struct {
	quotes ports.QuoteEngine
	oracle ports.PriceOracle
}

// NewExchangeHandler creates a new ExchangeHandler.
func NewExchangeHandler(quotes ports.QuoteEngine, oracle ports.PriceOracle) *ExchangeHandler {
	return &ExchangeHandler{quotes: quotes, oracle: oracle}
}

// Quote handles POST /api/v1/quotes.
func (h *ExchangeHandler) Quote(c *gin.Context) {
	var req dto.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	quote, err := h.quotes.GetQuote(c.Request.Context(), ports.QuoteRequest{
		FromAsset: req.FromAsset,
		ToAsset:   req.ToAsset,
		Amount:    amount,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.FromQuote(quote))
}

// Execute handles POST /api/v1/exchanges. The client echoes the quote back
// exactly as issued.
func (h *ExchangeHandler) Execute(c *gin.Context) {
	var req dto.ExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		response.Error(c, apperror.Validation("owner_id must be a UUID"))
		return
	}
	quote, err := req.Quote.ToQuote()
	if err != nil {
		response.Error(c, apperror.Validation("malformed quote payload"))
		return
	}

	txn, err := h.quotes.ExecuteExchange(c.Request.Context(), ports.ExchangeRequest{
		OwnerID: ownerID,
		Quote:   quote,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.FromTransaction(txn))
}

// Price handles GET /api/v1/prices/:asset.
func (h *ExchangeHandler) Price(c *gin.Context) {
	sample, err := h.oracle.CurrentPrice(c.Request.Context(), c.Param("asset"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{
		"asset":     sample.Asset,
		"price":     sample.Price.String(),
		"timestamp": sample.Timestamp.UTC(),
		"source":    sample.Source,
	})
}

// HealthCheck returns a deep health handler verifying each dependency plus
// price feed freshness.
func HealthCheck(oracle ports.PriceOracle, checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		deps := make(map[string]depStatus)
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(c.Request.Context()); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		if oracle != nil {
			if oracle.Healthy() {
				deps["pricefeed"] = depStatus{Status: "healthy"}
			} else {
				// Stale prices degrade quoting but not the ledger.
				deps["pricefeed"] = depStatus{Status: "stale"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
