package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opsgrid/opsgrid/internal/types"
)

// TenantMiddleware resolves the acting tenant from the X-Tenant-ID header
// and puts it in the request context. The gateway in front of this service
// authenticates the caller and forwards the tenant and user identifiers as
// trusted headers.
func TenantMiddleware(c *gin.Context) {
	tenantID := c.GetHeader(types.HeaderTenantID)
	if tenantID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing tenant header"})
		c.Abort()
		return
	}

	ctx := c.Request.Context()
	ctx = context.WithValue(ctx, types.CtxTenantID, tenantID)

	if userID := c.GetHeader(types.HeaderUserID); userID != "" {
		ctx = context.WithValue(ctx, types.CtxUserID, userID)
	}

	c.Request = c.Request.WithContext(ctx)
	c.Next()
}

// CronAuthMiddleware marks cron-triggered requests as system actions.
// Cron routes are not exposed through the public gateway, so there is no
// tenant header to resolve.
func CronAuthMiddleware(c *gin.Context) {
	ctx := c.Request.Context()
	ctx = context.WithValue(ctx, types.CtxUserID, "system")
	c.Request = c.Request.WithContext(ctx)
	c.Next()
}
