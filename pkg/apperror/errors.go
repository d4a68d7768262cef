package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string            `json:"error_code"`
	Message    string            `json:"message"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
	Err        error             `json:"-"` // Wrapped internal error (not exposed to client)
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

// With attaches a detail value (e.g. the amounts that made a check fail).
func (e *AppError) With(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
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

// HasCode reports whether err (or anything it wraps) is an AppError with code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// ---- Validation (VAL) ----

func ErrInvalidValue() *AppError {
	return New("VAL_001", "Amount must be greater than zero", http.StatusBadRequest)
}

// Validation returns a VAL_002 request validation error.
func Validation(message string) *AppError {
	return New("VAL_002", message, http.StatusBadRequest)
}

func ErrPayloadTooLarge() *AppError {
	return New("VAL_003", "Request body too large", http.StatusRequestEntityTooLarge)
}

// ---- Vault invariants (VLT) ----

func ErrReentrancy() *AppError {
	return New("VLT_001", "Reentrant call rejected", http.StatusConflict)
}

// ErrBankCapExceeded carries the current total, the attempted credit and the cap.
func ErrBankCapExceeded(total, attempted, limit string) *AppError {
	return New("VLT_002", "Deposit would exceed the bank cap", http.StatusUnprocessableEntity).
		With("total_usd", total).
		With("attempted_usd", attempted).
		With("cap_usd", limit)
}

func ErrAssetDisabled(asset string) *AppError {
	return New("VLT_003", "Asset is not enabled", http.StatusUnprocessableEntity).
		With("asset", asset)
}

func ErrMissingPriceFeed(asset string) *AppError {
	return New("VLT_004", "Asset has no price feed", http.StatusUnprocessableEntity).
		With("asset", asset)
}

// ErrInsufficientBalance carries the available and requested USD amounts.
func ErrInsufficientBalance(available, requested string) *AppError {
	return New("VLT_005", "Insufficient balance", http.StatusUnprocessableEntity).
		With("available_usd", available).
		With("requested_usd", requested)
}

func ErrWithdrawLimitExceeded(limit, requested string) *AppError {
	return New("VLT_006", "Withdrawal exceeds the per-transaction limit", http.StatusUnprocessableEntity).
		With("limit", limit).
		With("requested", requested)
}

// ErrDustWithdrawal rejects a withdrawal whose amount is worth 0 USD units.
func ErrDustWithdrawal(asset, amount string) *AppError {
	return New("VLT_008", "Withdrawal amount is worth less than one USD unit", http.StatusUnprocessableEntity).
		With("asset", asset).
		With("amount", amount)
}

func ErrTransferFailed(err error) *AppError {
	return Wrap("VLT_007", "External transfer failed", http.StatusBadGateway, err)
}

// ---- Price oracle (ORC) ----

func ErrOracleUnavailable(err error) *AppError {
	return Wrap("ORC_001", "Price feed unavailable", http.StatusServiceUnavailable, err)
}

func ErrInvalidPrice(price string) *AppError {
	return New("ORC_002", "Price feed returned a non-positive price", http.StatusBadGateway).
		With("price", price)
}

func ErrStalePrice(updatedAt string) *AppError {
	return New("ORC_003", "Price feed answer is stale", http.StatusServiceUnavailable).
		With("updated_at", updatedAt)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New("AUTH_002", "Caller is not an administrator", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- Idempotency (IDEM) ----

// ErrIdempotencyInFlight is returned while the first request carrying the
// same Idempotency-Key is still being processed.
func ErrIdempotencyInFlight() *AppError {
	return New("IDEM_001", "A request with this Idempotency-Key is in progress", http.StatusConflict)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrArithmeticOverflow(op string) *AppError {
	return New("SYS_004", "Arithmetic overflow", http.StatusInternalServerError).
		With("op", op)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
