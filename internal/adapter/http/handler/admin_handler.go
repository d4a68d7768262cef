package handler

import (
	"custody-vault/internal/adapter/http/dto"
	"custody-vault/internal/core/ports"
	"custody-vault/pkg/apperror"
	"custody-vault/pkg/response"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// AdminHandler handles asset configuration.
type AdminHandler struct {
	vaultSvc ports.VaultService
}

func NewAdminHandler(vaultSvc ports.VaultService) *AdminHandler {
	return &AdminHandler{vaultSvc: vaultSvc}
}

// ConfigureAsset handles PUT /api/v1/admin/assets/:asset. Admin rights are
// checked by the vault, not by the token role.
func (h *AdminHandler) ConfigureAsset(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	asset, ok := assetParam(c)
	if !ok {
		return
	}

	var req dto.AssetConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	cfg, err := h.vaultSvc.SetAssetConfig(c.Request.Context(), caller, asset, common.HexToAddress(req.Oracle), *req.Enabled)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewAssetResponse(cfg))
}

// assetParam parses the :asset path segment.
func assetParam(c *gin.Context) (common.Address, bool) {
	raw := c.Param("asset")
	if len(raw) != 42 || !common.IsHexAddress(raw) {
		response.Error(c, apperror.Validation("asset must be a 0x-prefixed 20-byte hex address"))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}
