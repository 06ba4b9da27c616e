// Package auth authenticates management requests with tenant API keys and
// carries the resolved tenant through the request context.
package auth

import (
	"context"

	"github.com/Mindburn-Labs/relay/pkg/model"
)

type contextKey string

const tenantKey contextKey = "relay.tenant"

// WithTenant returns a context carrying the authenticated tenant.
func WithTenant(ctx context.Context, t *model.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// TenantFrom extracts the authenticated tenant from the context.
func TenantFrom(ctx context.Context) (*model.Tenant, bool) {
	t, ok := ctx.Value(tenantKey).(*model.Tenant)
	return t, ok && t != nil
}
