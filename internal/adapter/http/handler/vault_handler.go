package handler

import (
	"custody-vault/internal/adapter/http/dto"
	"custody-vault/internal/adapter/http/middleware"
	"custody-vault/internal/core/ports"
	"custody-vault/pkg/apperror"
	"custody-vault/pkg/fixedpoint"
	"custody-vault/pkg/response"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
)

// VaultHandler handles deposit and withdrawal endpoints.
type VaultHandler struct {
	vaultSvc ports.VaultService
}

// NewVaultHandler creates a new VaultHandler.
func NewVaultHandler(vaultSvc ports.VaultService) *VaultHandler {
	return &VaultHandler{vaultSvc: vaultSvc}
}

// DepositNative handles POST /api/v1/deposits/native.
func (h *VaultHandler) DepositNative(c *gin.Context) {
	caller, amount, ok := bindNative(c)
	if !ok {
		return
	}

	receipt, err := h.vaultSvc.DepositNative(c.Request.Context(), caller, amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewReceiptResponse(receipt))
}

// DepositToken handles POST /api/v1/deposits/token.
func (h *VaultHandler) DepositToken(c *gin.Context) {
	caller, asset, amount, ok := bindToken(c)
	if !ok {
		return
	}

	receipt, err := h.vaultSvc.DepositToken(c.Request.Context(), caller, asset, amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewReceiptResponse(receipt))
}

// WithdrawNative handles POST /api/v1/withdrawals/native.
func (h *VaultHandler) WithdrawNative(c *gin.Context) {
	caller, amount, ok := bindNative(c)
	if !ok {
		return
	}

	receipt, err := h.vaultSvc.WithdrawNative(c.Request.Context(), caller, amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewReceiptResponse(receipt))
}

// WithdrawToken handles POST /api/v1/withdrawals/token.
func (h *VaultHandler) WithdrawToken(c *gin.Context) {
	caller, asset, amount, ok := bindToken(c)
	if !ok {
		return
	}

	receipt, err := h.vaultSvc.WithdrawToken(c.Request.Context(), caller, asset, amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewReceiptResponse(receipt))
}

// requireCaller writes AUTH_001 when the route was reached without JWTAuth.
func requireCaller(c *gin.Context) (common.Address, bool) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
	}
	return caller, ok
}

func bindNative(c *gin.Context) (common.Address, *uint256.Int, bool) {
	caller, ok := requireCaller(c)
	if !ok {
		return common.Address{}, nil, false
	}

	var req dto.AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return common.Address{}, nil, false
	}
	amount, err := fixedpoint.Parse(req.Amount)
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return common.Address{}, nil, false
	}
	return caller, amount, true
}

func bindToken(c *gin.Context) (common.Address, common.Address, *uint256.Int, bool) {
	caller, ok := requireCaller(c)
	if !ok {
		return common.Address{}, common.Address{}, nil, false
	}

	var req dto.TokenAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return common.Address{}, common.Address{}, nil, false
	}
	amount, err := fixedpoint.Parse(req.Amount)
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return common.Address{}, common.Address{}, nil, false
	}

	asset := common.HexToAddress(req.Asset)
	c.Set(middleware.CtxAsset, asset)
	return caller, asset, amount, true
}
