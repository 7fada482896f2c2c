// Package handler contains HTTP handlers for the vozfeed guardrail API.
//
// This file implements the pre-flight authorization check.
//
// Route:
//   - POST /v1/authorize -> Authorize
//
// The response status mirrors the decision: 200 allowed, 402 quota
// exceeded, 403 feature not in plan or trial expired, 401 inactive account.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/vozfeed/vozfeed/internal/auth"
	"github.com/vozfeed/vozfeed/internal/domain"
	"github.com/vozfeed/vozfeed/internal/service"
)

// AuthorizeHandler answers "may this tenant do X right now".
type AuthorizeHandler struct {
	enforcer service.Enforcer
	logger   *slog.Logger
}

// NewAuthorizeHandler creates a new AuthorizeHandler.
func NewAuthorizeHandler(enforcer service.Enforcer, logger *slog.Logger) *AuthorizeHandler {
	return &AuthorizeHandler{
		enforcer: enforcer,
		logger:   logger,
	}
}

// RegisterRoutes registers authorization routes on the provided mux.
func (h *AuthorizeHandler) RegisterRoutes(mux *http.ServeMux, requireTenant func(http.Handler) http.Handler) {
	mux.Handle("POST /v1/authorize", requireTenant(http.HandlerFunc(h.Authorize)))
}

// authorizeRequest is the body of POST /v1/authorize.
type authorizeRequest struct {
	Resource string `json:"resource"`
}

// Authorize runs the guardrail check without consuming anything.
// Callers that proceed with the operation report completion separately;
// the check itself never charges quota.
func (h *AuthorizeHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	tenant := auth.GetTenant(r.Context())

	var req authorizeRequest
	if err := decodeJSON(r, &req, 4096); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("handler.authorize", "invalid request body"))
		return
	}

	kind, err := domain.ParseResourceKind(req.Resource)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	decision, err := h.enforcer.Authorize(r.Context(), tenant, kind)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	respondJSON(w, h.logger, decision.HTTPStatus(), decision)
}
