// Package handler contains HTTP handlers for the vozfeed guardrail API.
//
// This file implements the usage endpoints.
//
// Routes:
//   - GET /v1/usage         -> Summary
//   - GET /v1/usage/history -> History
package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/vozfeed/vozfeed/internal/auth"
	"github.com/vozfeed/vozfeed/internal/domain"
	"github.com/vozfeed/vozfeed/internal/service"
)

// UsageHandler reports current-period consumption and past-month history.
type UsageHandler struct {
	enforcer service.Enforcer
	ledger   service.UsageLedger
	logger   *slog.Logger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(enforcer service.Enforcer, ledger service.UsageLedger, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{
		enforcer: enforcer,
		ledger:   ledger,
		logger:   logger,
	}
}

// RegisterRoutes registers usage routes on the provided mux.
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux, requireTenant func(http.Handler) http.Handler) {
	mux.Handle("GET /v1/usage", requireTenant(http.HandlerFunc(h.Summary)))
	mux.Handle("GET /v1/usage/history", requireTenant(http.HandlerFunc(h.History)))
}

// Summary returns per-resource usage with limits, percentages, the next
// reset date, and upgrade recommendations once a capped resource runs hot.
func (h *UsageHandler) Summary(w http.ResponseWriter, r *http.Request) {
	tenant := auth.GetTenant(r.Context())

	summary, err := h.enforcer.UsageSummary(r.Context(), tenant)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, summary)
}

// maxHistoryMonths caps how far back one history request may reach.
const maxHistoryMonths = 24

type historyPeriod struct {
	Year  int              `json:"year"`
	Month time.Month       `json:"month"`
	Usage map[string]int64 `json:"usage"`
}

type usageHistoryResponse struct {
	Periods []historyPeriod `json:"periods"`
}

// History returns the tenant's per-month usage records, newest first. Past
// months are immutable, so the response doubles as a consumption audit trail.
func (h *UsageHandler) History(w http.ResponseWriter, r *http.Request) {
	const op = "handler.usage_history"

	tenant := auth.GetTenant(r.Context())

	months := int32(0)
	if raw := r.URL.Query().Get("months"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || parsed < 1 {
			ErrorResponse(w, r, h.logger, domain.Invalid(op, "months must be a positive integer"))
			return
		}
		months = int32(parsed)
	}
	if months > maxHistoryMonths {
		months = maxHistoryMonths
	}

	periods, err := h.ledger.History(r.Context(), tenant, months)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := usageHistoryResponse{Periods: make([]historyPeriod, 0, len(periods))}
	for _, p := range periods {
		entry := historyPeriod{
			Year:  p.Year,
			Month: p.Month,
			Usage: make(map[string]int64, len(domain.ResourceKinds)),
		}
		for _, kind := range domain.ResourceKinds {
			entry.Usage[string(kind)] = p.Count(kind)
		}
		resp.Periods = append(resp.Periods, entry)
	}

	respondJSON(w, h.logger, http.StatusOK, resp)
}
