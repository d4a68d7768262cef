package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"custody-vault/internal/core/domain"
	"custody-vault/internal/core/ports"
	"custody-vault/pkg/response"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog creates an audit middleware that records successful write
// operations. Routes are matched on their registered pattern.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful write operations (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			return
		}

		action, resourceType := mapPathToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		var actor *common.Address
		if caller, ok := CallerFrom(c); ok {
			actor = &caller
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"request_id": c.GetString(response.CtxRequestID),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			Actor:        actor,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   resourceID(c, resourceType),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now(),
		})
	}
}

func mapPathToAction(route, method string) (domain.AuditAction, string) {
	switch {
	case route == "/api/v1/deposits/native" && method == http.MethodPost:
		return domain.AuditActionDeposit, "balance"
	case route == "/api/v1/deposits/token" && method == http.MethodPost:
		return domain.AuditActionDeposit, "balance"
	case route == "/api/v1/withdrawals/native" && method == http.MethodPost:
		return domain.AuditActionWithdraw, "balance"
	case route == "/api/v1/withdrawals/token" && method == http.MethodPost:
		return domain.AuditActionWithdraw, "balance"
	case route == "/api/v1/admin/assets/:asset" && method == http.MethodPut:
		return domain.AuditActionConfigureAsset, "asset"
	}
	return "", ""
}

// resourceID names the asset touched by the request: the path parameter for
// admin routes, the native asset for native routes, else the bound body.
func resourceID(c *gin.Context, resourceType string) string {
	if asset := c.Param("asset"); asset != "" {
		return asset
	}
	if v, ok := c.Get(CtxAsset); ok {
		if addr, ok := v.(common.Address); ok {
			return addr.Hex()
		}
	}
	if resourceType == "balance" {
		return domain.NativeAsset.Hex()
	}
	return ""
}
