package dto

import (
	"time"

	"custody-vault/internal/core/domain"
	"custody-vault/internal/core/ports"
	"custody-vault/pkg/fixedpoint"

	"github.com/holiman/uint256"
)

// AmountRequest is the request body for native deposits and withdrawals.
// Amount is a base-10 integer in wei.
type AmountRequest struct {
	Amount string `json:"amount" binding:"required,uint256"`
}

// TokenAmountRequest is the request body for token deposits and withdrawals.
// Amount is a base-10 integer in the token's raw units.
type TokenAmountRequest struct {
	Asset  string `json:"asset" binding:"required,evm_address"`
	Amount string `json:"amount" binding:"required,uint256"`
}

// AssetConfigRequest is the request body for PUT /api/v1/admin/assets/:asset.
type AssetConfigRequest struct {
	Oracle  string `json:"oracle" binding:"required,evm_address"`
	Enabled *bool  `json:"enabled" binding:"required"`
}

// USDValue is a 6-decimal USD amount as a raw integer and as a decimal.
type USDValue struct {
	Raw       string `json:"raw"`
	Formatted string `json:"formatted"`
}

// NewUSDValue renders a raw USD amount.
func NewUSDValue(x *uint256.Int) USDValue {
	return USDValue{
		Raw:       fixedpoint.String(x),
		Formatted: fixedpoint.FormatUnits(x, fixedpoint.USDDecimals),
	}
}

// ReceiptResponse is the response body of a committed deposit or withdrawal.
type ReceiptResponse struct {
	Event      domain.EventPayload `json:"event"`
	USD        USDValue            `json:"usd"`
	BalanceUSD USDValue            `json:"balance_usd"`
	TotalUSD   USDValue            `json:"total_usd"`
}

// NewReceiptResponse converts a service receipt.
func NewReceiptResponse(r *ports.Receipt) ReceiptResponse {
	return ReceiptResponse{
		Event:      r.Event.Payload(),
		USD:        NewUSDValue(r.Event.USDValue),
		BalanceUSD: NewUSDValue(r.BalanceUSD),
		TotalUSD:   NewUSDValue(r.TotalUSD),
	}
}

type BalanceResponse struct {
	Asset string   `json:"asset"`
	User  string   `json:"user"`
	USD   USDValue `json:"usd"`
}

type PreviewResponse struct {
	Asset  string   `json:"asset"`
	Amount string   `json:"amount"`
	USD    USDValue `json:"usd"`
}

type AssetResponse struct {
	Asset     string  `json:"asset"`
	Oracle    string  `json:"oracle"`
	Enabled   bool    `json:"enabled"`
	HasFeed   bool    `json:"has_feed"`
	UpdatedAt *string `json:"updated_at,omitempty"`
}

// NewAssetResponse converts a registry entry. UpdatedAt is omitted for an
// asset that was never configured.
func NewAssetResponse(cfg *domain.AssetConfig) AssetResponse {
	resp := AssetResponse{
		Asset:   cfg.Asset.Hex(),
		Oracle:  cfg.Oracle.Hex(),
		Enabled: cfg.Enabled,
		HasFeed: cfg.HasFeed(),
	}
	if !cfg.UpdatedAt.IsZero() {
		s := cfg.UpdatedAt.UTC().Format(time.RFC3339)
		resp.UpdatedAt = &s
	}
	return resp
}

// TotalsResponse reports the vault-wide aggregates and remaining headroom
// under the bank cap.
type TotalsResponse struct {
	TotalUSD      USDValue `json:"total_usd"`
	BankCapUSD    USDValue `json:"bank_cap_usd"`
	HeadroomUSD   USDValue `json:"headroom_usd"`
	DepositCount  uint64   `json:"deposit_count"`
	WithdrawCount uint64   `json:"withdraw_count"`
}

// EventListQuery holds query parameters for GET /api/v1/events.
type EventListQuery struct {
	Asset    string `form:"asset" binding:"omitempty,evm_address"`
	Type     string `form:"type" binding:"omitempty,oneof=DepositedNative DepositedToken WithdrawnNative WithdrawnToken AssetConfigured"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// EventListResponse is a paginated list of events.
type EventListResponse struct {
	Items      []domain.EventPayload `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}
