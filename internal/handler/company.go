// Package handler contains HTTP handlers for the vozfeed guardrail API.
//
// This file implements the company identifier endpoints.
//
// Routes:
//   - POST /v1/company/validate    -> Validate (public)
//   - GET  /v1/company/eligibility -> Eligibility (public)
//   - POST /v1/company/free-tier   -> GrantFreeTier
//
// Validate and Eligibility are PUBLIC because they run during onboarding,
// before a tenant exists. GrantFreeTier binds the CNPJ to the calling
// tenant and requires one.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/vozfeed/vozfeed/internal/auth"
	"github.com/vozfeed/vozfeed/internal/domain"
	"github.com/vozfeed/vozfeed/internal/metrics"
	"github.com/vozfeed/vozfeed/internal/service"
)

// CompanyHandler validates company identifiers and manages the lifetime
// free-tier grant.
type CompanyHandler struct {
	enforcer service.Enforcer
	ledger   service.UsageLedger
	logger   *slog.Logger
}

// NewCompanyHandler creates a new CompanyHandler.
func NewCompanyHandler(enforcer service.Enforcer, ledger service.UsageLedger, logger *slog.Logger) *CompanyHandler {
	return &CompanyHandler{
		enforcer: enforcer,
		ledger:   ledger,
		logger:   logger,
	}
}

// RegisterRoutes registers company routes on the provided mux.
func (h *CompanyHandler) RegisterRoutes(mux *http.ServeMux, requireTenant func(http.Handler) http.Handler) {
	mux.HandleFunc("POST /v1/company/validate", h.Validate)
	mux.HandleFunc("GET /v1/company/eligibility", h.Eligibility)
	mux.Handle("POST /v1/company/free-tier", requireTenant(http.HandlerFunc(h.GrantFreeTier)))
}

// =============================================================================
// Validation
// =============================================================================

type validateRequest struct {
	CNPJ string `json:"cnpj"`
}

type validateResponse struct {
	Valid bool `json:"valid"`

	// CNPJ is the canonical DD.DDD.DDD/DDDD-DD form, set when valid.
	CNPJ    string `json:"cnpj,omitempty"`
	Digits  string `json:"digits,omitempty"`
	Message string `json:"message,omitempty"`
}

// Validate checks a CNPJ's length, repeated-digit pattern, and check digits.
// A failing identifier is a normal answer here, not an error response.
func (h *CompanyHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(r, &req, 4096); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("handler.company_validate", "invalid request body"))
		return
	}

	cnpj, err := domain.ParseCNPJ(req.CNPJ)
	if err != nil {
		respondJSON(w, h.logger, http.StatusOK, validateResponse{
			Valid:   false,
			Message: domain.ErrorMessage(err),
		})
		return
	}

	respondJSON(w, h.logger, http.StatusOK, validateResponse{
		Valid:  true,
		CNPJ:   cnpj.String(),
		Digits: cnpj.Digits(),
	})
}

// =============================================================================
// Free Tier Eligibility
// =============================================================================

// Eligibility answers whether the CNPJ in the query string may still start
// a free tier. The restriction is lifetime: one free tier per company, ever.
func (h *CompanyHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("cnpj")
	if raw == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid("handler.company_eligibility", "cnpj query parameter is required"))
		return
	}

	eligibility, err := h.enforcer.FreeTierEligibility(r.Context(), raw)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, eligibility)
}

// =============================================================================
// Free Tier Grant
// =============================================================================

type grantFreeTierRequest struct {
	CNPJ        string `json:"cnpj"`
	CompanyName string `json:"company_name"`
}

type grantFreeTierResponse struct {
	Granted           bool       `json:"granted"`
	CNPJ              string     `json:"cnpj"`
	FreeTierStartedAt *time.Time `json:"free_tier_started_at,omitempty"`
}

// GrantFreeTier performs the one-way free-tier transition for the calling
// tenant. Two concurrent grants for the same CNPJ race on a storage
// uniqueness constraint; the loser gets a 409 and that answer is final.
func (h *CompanyHandler) GrantFreeTier(w http.ResponseWriter, r *http.Request) {
	tenant := auth.GetTenant(r.Context())

	var req grantFreeTierRequest
	if err := decodeJSON(r, &req, 4096); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("handler.company_free_tier", "invalid request body"))
		return
	}

	cnpj, err := domain.ParseCNPJ(req.CNPJ)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.ledger.MarkLifetimeFreeTierUsed(r.Context(), tenant, cnpj, req.CompanyName); err != nil {
		if domain.ErrorCode(err) == domain.ECONFLICT {
			metrics.FreeTierGrants.WithLabelValues("conflict").Inc()
		}
		ErrorResponse(w, r, h.logger, err)
		return
	}

	metrics.FreeTierGrants.WithLabelValues("granted").Inc()
	respondJSON(w, h.logger, http.StatusCreated, grantFreeTierResponse{
		Granted:           true,
		CNPJ:              cnpj.String(),
		FreeTierStartedAt: tenant.FreeTierStartedAt,
	})
}
