// Package middleware contains HTTP middleware for the vozfeed guardrail API.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/vozfeed/vozfeed/internal/auth"
	"github.com/vozfeed/vozfeed/internal/domain"
	"github.com/vozfeed/vozfeed/internal/handler"
	"github.com/vozfeed/vozfeed/internal/service"
	"github.com/google/uuid"
)

// =============================================================================
// Configuration Constants
// =============================================================================

// TenantIDHeader carries the authenticated tenant identity. The upstream
// identity provider terminates end-user authentication and forwards the
// tenant UUID in this header; this service trusts it.
const TenantIDHeader = "X-Tenant-ID"

// =============================================================================
// Tenant Resolution Middleware
// =============================================================================

// RequireTenant resolves the tenant named by the identity header and rejects
// requests without a valid one. Handlers behind this middleware can assume
// auth.GetTenant(ctx) is non-nil.
//
// Note this only establishes WHO is calling; whether the account is active
// or entitled to an operation is the enforcer's decision, made per request.
func RequireTenant(tenants service.TenantService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(TenantIDHeader)
			if raw == "" {
				handler.UnauthorizedResponse(w, r, logger)
				return
			}

			id, err := uuid.Parse(raw)
			if err != nil {
				logger.Info("malformed tenant id header", "value", raw, "path", r.URL.Path)
				handler.UnauthorizedResponse(w, r, logger)
				return
			}

			tenant, err := tenants.GetByID(r.Context(), id)
			if err != nil {
				if domain.ErrorCode(err) == domain.ENOTFOUND {
					handler.UnauthorizedResponse(w, r, logger)
					return
				}
				handler.ErrorResponse(w, r, logger, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.SetTenant(r.Context(), tenant)))
		})
	}
}

// =============================================================================
// Middleware Composition
// =============================================================================

// Middleware is a function that wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Stack composes middlewares so the first listed is the outermost.
func Stack(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
