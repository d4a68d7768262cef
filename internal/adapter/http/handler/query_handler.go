package handler

import (
	"custody-vault/internal/adapter/http/dto"
	"custody-vault/internal/core/domain"
	"custody-vault/internal/core/ports"
	"custody-vault/pkg/apperror"
	"custody-vault/pkg/fixedpoint"
	"custody-vault/pkg/response"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
)

// QueryHandler serves read-only views of the vault.
type QueryHandler struct {
	vaultSvc ports.VaultService
}

func NewQueryHandler(vaultSvc ports.VaultService) *QueryHandler {
	return &QueryHandler{vaultSvc: vaultSvc}
}

// GetBalance handles GET /api/v1/balances/:asset for the caller.
func (h *QueryHandler) GetBalance(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	asset, ok := assetParam(c)
	if !ok {
		return
	}

	usd, err := h.vaultSvc.GetBalance(c.Request.Context(), asset, caller)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.BalanceResponse{
		Asset: asset.Hex(),
		User:  caller.Hex(),
		USD:   dto.NewUSDValue(usd),
	})
}

// PreviewNative handles GET /api/v1/preview/native?amount=.
func (h *QueryHandler) PreviewNative(c *gin.Context) {
	amount, ok := amountQuery(c)
	if !ok {
		return
	}

	usd, err := h.vaultSvc.PreviewNativeToUSD(c.Request.Context(), amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.PreviewResponse{
		Asset:  domain.NativeAsset.Hex(),
		Amount: fixedpoint.String(amount),
		USD:    dto.NewUSDValue(usd),
	})
}

// PreviewToken handles GET /api/v1/preview/token/:asset?amount=.
func (h *QueryHandler) PreviewToken(c *gin.Context) {
	asset, ok := assetParam(c)
	if !ok {
		return
	}
	amount, ok := amountQuery(c)
	if !ok {
		return
	}

	usd, err := h.vaultSvc.PreviewTokenToUSD(c.Request.Context(), asset, amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.PreviewResponse{
		Asset:  asset.Hex(),
		Amount: fixedpoint.String(amount),
		USD:    dto.NewUSDValue(usd),
	})
}

// GetAsset handles GET /api/v1/assets/:asset.
func (h *QueryHandler) GetAsset(c *gin.Context) {
	asset, ok := assetParam(c)
	if !ok {
		return
	}

	cfg, err := h.vaultSvc.GetAsset(c.Request.Context(), asset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewAssetResponse(cfg))
}

// GetTotals handles GET /api/v1/totals.
func (h *QueryHandler) GetTotals(c *gin.Context) {
	totals, err := h.vaultSvc.GetTotals(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	bankCap := h.vaultSvc.BankCap()
	headroom := new(uint256.Int)
	if bankCap.Gt(totals.TotalUSD) {
		headroom.Sub(bankCap, totals.TotalUSD)
	}

	response.OK(c, dto.TotalsResponse{
		TotalUSD:      dto.NewUSDValue(totals.TotalUSD),
		BankCapUSD:    dto.NewUSDValue(bankCap),
		HeadroomUSD:   dto.NewUSDValue(headroom),
		DepositCount:  totals.DepositCount,
		WithdrawCount: totals.WithdrawCount,
	})
}

// ListEvents handles GET /api/v1/events. Only the caller's own events are
// returned.
func (h *QueryHandler) ListEvents(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var q dto.EventListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if q.Page == 0 {
		q.Page = defaultPage
	}
	if q.PageSize == 0 {
		q.PageSize = defaultPageSize
	}

	params := ports.EventListParams{
		Actor:    &caller,
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	if q.Asset != "" {
		asset := common.HexToAddress(q.Asset)
		params.Asset = &asset
	}
	if q.Type != "" {
		t := domain.EventType(q.Type)
		params.Type = &t
	}

	events, total, err := h.vaultSvc.ListEvents(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]domain.EventPayload, 0, len(events))
	for i := range events {
		items = append(items, events[i].Payload())
	}

	totalPages := int(total) / q.PageSize
	if int(total)%q.PageSize != 0 {
		totalPages++
	}

	response.OK(c, dto.EventListResponse{
		Items:      items,
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: totalPages,
	})
}

func amountQuery(c *gin.Context) (*uint256.Int, bool) {
	raw := c.Query("amount")
	if raw == "" {
		response.Error(c, apperror.Validation("amount is required"))
		return nil, false
	}
	amount, err := fixedpoint.Parse(raw)
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return nil, false
	}
	return amount, true
}
