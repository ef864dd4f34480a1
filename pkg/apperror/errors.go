package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Ledger (LGR) ----

func ErrNotFound(entity string) *AppError {
	return New("LGR_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrDuplicateAsset(asset string) *AppError {
	return New("LGR_002", fmt.Sprintf("active wallet already exists for asset %s", asset), http.StatusConflict)
}

func ErrInvalidAsset(asset string) *AppError {
	return New("LGR_003", fmt.Sprintf("unsupported asset %s", asset), http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New("LGR_004", "Invalid amount", http.StatusBadRequest)
}

func ErrInsufficientFunds() *AppError {
	return New("LGR_005", "Insufficient balance in wallet", http.StatusPaymentRequired)
}

func ErrConcurrencyConflict() *AppError {
	return New("LGR_006", "Wallet was modified concurrently, retry the operation", http.StatusConflict)
}

func ErrAssetMismatch() *AppError {
	return New("LGR_007", "Wallet asset codes do not match", http.StatusBadRequest)
}

func ErrInvalidTransition(from, to string) *AppError {
	return New("LGR_008", fmt.Sprintf("illegal transaction status transition %s -> %s", from, to), http.StatusConflict)
}

// ---- Exchange & Pricing (FX) ----

func ErrInsufficientLiquidity() *AppError {
	return New("FX_001", "Insufficient order book depth to fill the requested amount", http.StatusUnprocessableEntity)
}

func ErrPriceUnavailable(asset string) *AppError {
	return New("FX_002", fmt.Sprintf("no current price available for %s", asset), http.StatusServiceUnavailable)
}

func ErrQuoteExpired() *AppError {
	return New("FX_003", "Quote has expired, request a new one", http.StatusGone)
}

func ErrRateDrifted() *AppError {
	return New("FX_004", "Exchange rate moved beyond tolerance since the quote was issued", http.StatusConflict)
}

func ErrSettlementFailed(err error) *AppError {
	return Wrap("FX_005", "Exchange settlement failed after retries", http.StatusConflict, err)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrServiceUnavailable() *AppError {
	return New("SYS_002", "Service temporarily unavailable, retry later", http.StatusServiceUnavailable)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a LGR_004-style validation error.
func Validation(message string) *AppError {
	return New("LGR_004", message, http.StatusBadRequest)
}

// IsCode reports whether err is an AppError carrying the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
