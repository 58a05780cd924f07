package testutil

import (
	"context"

	"github.com/opsgrid/opsgrid/internal/types"
)

// SetupContext creates a context carrying tenant, user and request IDs the
// way the request middleware would.
func SetupContext(tenantID, userID string) context.Context {
	ctx := context.Background()
	ctx = context.WithValue(ctx, types.CtxTenantID, tenantID)
	ctx = context.WithValue(ctx, types.CtxUserID, userID)
	ctx = context.WithValue(ctx, types.CtxRequestID, types.GenerateUUID())
	return ctx
}
