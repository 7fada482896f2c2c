// Package auth provides identity context helpers.
//
// This package is designed to be imported by both middleware and handler
// packages without causing import cycles.
package auth

import (
	"context"
	"net/http"

	"github.com/vozfeed/vozfeed/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// tenantContextKey is the key used to store the resolved tenant in context.
	tenantContextKey contextKey = "tenant"
)

// GetTenant retrieves the resolved tenant from the context.
//
// Returns nil if no tenant has been resolved.
//
// Usage:
//
//	tenant := auth.GetTenant(r.Context())
//	if tenant == nil {
//	    // Handle unauthenticated request
//	}
func GetTenant(ctx context.Context) *domain.Tenant {
	tenant, ok := ctx.Value(tenantContextKey).(*domain.Tenant)
	if !ok {
		return nil
	}
	return tenant
}

// GetTenantFromRequest retrieves the resolved tenant from the request context.
//
// This is a convenience wrapper around GetTenant that takes the request directly.
func GetTenantFromRequest(r *http.Request) *domain.Tenant {
	return GetTenant(r.Context())
}

// SetTenant stores a tenant in the context.
//
// This is typically called by the tenant resolution middleware after loading
// the tenant named by the identity header.
func SetTenant(ctx context.Context, tenant *domain.Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey, tenant)
}
