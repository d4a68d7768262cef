package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("VLT_005", "Insufficient balance", http.StatusUnprocessableEntity),
			expected: "[VLT_005] Insufficient balance",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("SYS_001", "DB error", http.StatusInternalServerError, fmt.Errorf("connection refused")),
			expected: "[SYS_001] DB error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap("SYS_001", "wrapped", http.StatusInternalServerError, inner)

	assert.True(t, errors.Is(appErr, inner))
}

func TestAppError_IsNilUnwrap(t *testing.T) {
	appErr := New("VAL_001", "test", http.StatusBadRequest)
	assert.Nil(t, appErr.Unwrap())
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("deposit: %w", ErrReentrancy())

	assert.True(t, HasCode(err, "VLT_001"))
	assert.False(t, HasCode(err, "VLT_002"))
	assert.False(t, HasCode(errors.New("plain"), "VLT_001"))
	assert.False(t, HasCode(nil, "VLT_001"))
}

func TestVaultErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"InvalidValue", ErrInvalidValue(), "VAL_001", 400},
		{"Reentrancy", ErrReentrancy(), "VLT_001", 409},
		{"BankCapExceeded", ErrBankCapExceeded("1", "2", "3"), "VLT_002", 422},
		{"AssetDisabled", ErrAssetDisabled("0xabc"), "VLT_003", 422},
		{"MissingPriceFeed", ErrMissingPriceFeed("0xabc"), "VLT_004", 422},
		{"InsufficientBalance", ErrInsufficientBalance("1", "2"), "VLT_005", 422},
		{"WithdrawLimitExceeded", ErrWithdrawLimitExceeded("1", "2"), "VLT_006", 422},
		{"TransferFailed", ErrTransferFailed(errors.New("reverted")), "VLT_007", 502},
		{"DustWithdrawal", ErrDustWithdrawal("0xabc", "1"), "VLT_008", 422},
		{"PayloadTooLarge", ErrPayloadTooLarge(), "VAL_003", 413},
		{"IdempotencyInFlight", ErrIdempotencyInFlight(), "IDEM_001", 409},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestBankCapExceeded_Details(t *testing.T) {
	err := ErrBankCapExceeded("1000000000", "1", "1000000000")

	assert.Equal(t, "1000000000", err.Details["total_usd"])
	assert.Equal(t, "1", err.Details["attempted_usd"])
	assert.Equal(t, "1000000000", err.Details["cap_usd"])
}

func TestInsufficientBalance_Details(t *testing.T) {
	err := ErrInsufficientBalance("5", "7")

	assert.Equal(t, "5", err.Details["available_usd"])
	assert.Equal(t, "7", err.Details["requested_usd"])
}

func TestOracleErrors(t *testing.T) {
	inner := errors.New("feed reverted")
	unavailable := ErrOracleUnavailable(inner)
	assert.Equal(t, "ORC_001", unavailable.Code)
	assert.Equal(t, 503, unavailable.HTTPStatus)
	assert.True(t, errors.Is(unavailable, inner))

	assert.Equal(t, "ORC_002", ErrInvalidPrice("0").Code)
	assert.Equal(t, "ORC_003", ErrStalePrice("2024-01-01T00:00:00Z").Code)
}

func TestAuthErrors(t *testing.T) {
	assert.Equal(t, "AUTH_001", ErrInvalidToken().Code)
	assert.Equal(t, 401, ErrInvalidToken().HTTPStatus)
	assert.Equal(t, "AUTH_002", ErrForbidden().Code)
	assert.Equal(t, 403, ErrForbidden().HTTPStatus)
}

func TestSystemErrors(t *testing.T) {
	inner := fmt.Errorf("pg: connection closed")
	dbErr := ErrDatabaseError(inner)
	assert.Equal(t, "SYS_001", dbErr.Code)
	assert.Equal(t, 500, dbErr.HTTPStatus)
	assert.True(t, errors.Is(dbErr, inner))

	overflow := ErrArithmeticOverflow("mul")
	assert.Equal(t, "SYS_004", overflow.Code)
	assert.Equal(t, "mul", overflow.Details["op"])
}

func TestRateLimitError(t *testing.T) {
	err := ErrRateLimitExceeded()
	assert.Equal(t, "RATE_001", err.Code)
	assert.Equal(t, 429, err.HTTPStatus)
}
