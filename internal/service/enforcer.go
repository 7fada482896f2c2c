// Package service contains the business logic layer.
//
// This file implements the guardrail enforcer, the request-path component
// that decides whether a tenant may consume a metered resource right now and
// records consumption after the guarded operation succeeded.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vozfeed/vozfeed/internal/domain"
	"github.com/vozfeed/vozfeed/internal/metrics"
	"github.com/vozfeed/vozfeed/internal/repository"
)

// =============================================================================
// Interface Definitions
// =============================================================================

// EnforcerStore is the storage surface the enforcer depends on beyond the
// ledger: the lifetime free-tier lookup by company identifier.
type EnforcerStore interface {
	ListTenantsByCNPJ(ctx context.Context, cnpjDigits string) ([]repository.Tenant, error)
}

// Enforcer authorizes metered operations and records successful consumption.
type Enforcer interface {
	// Authorize decides whether the tenant may perform the metered
	// operation right now. A denial is a Decision value, never an error;
	// the error return covers storage faults only.
	//
	// An allowed decision is a non-binding reservation: under concurrency
	// the quota may be overshot by up to (concurrency - 1) units, which is
	// accepted as a soft bound for monthly quotas.
	Authorize(ctx context.Context, tenant *domain.Tenant, kind domain.ResourceKind) (domain.Decision, error)

	// RecordSuccess charges one unit of the resource. Call it only after
	// the guarded operation actually completed, never before and never
	// when Authorize denied. Aborted operations must not be charged.
	RecordSuccess(ctx context.Context, tenant *domain.Tenant, kind domain.ResourceKind) error

	// FreeTierEligibility answers whether the company identifier may
	// still start a free tier. The restriction is lifetime: it survives
	// rollovers, plan changes, and tenant churn.
	FreeTierEligibility(ctx context.Context, rawCNPJ string) (*domain.FreeTierEligibility, error)

	// UsageSummary reports the tenant's current-period consumption per
	// resource, with limits, percentages, and the next reset date.
	UsageSummary(ctx context.Context, tenant *domain.Tenant) (*domain.UsageSummary, error)
}

// =============================================================================
// Implementation
// =============================================================================

type enforcer struct {
	catalog *domain.Catalog
	ledger  UsageLedger
	store   EnforcerStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewEnforcer creates a new Enforcer.
func NewEnforcer(catalog *domain.Catalog, ledger UsageLedger, store EnforcerStore, logger *slog.Logger) Enforcer {
	return &enforcer{
		catalog: catalog,
		ledger:  ledger,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

func (e *enforcer) Authorize(ctx context.Context, tenant *domain.Tenant, kind domain.ResourceKind) (domain.Decision, error) {
	decision, err := e.decide(ctx, tenant, kind)
	if err != nil {
		return domain.Decision{}, err
	}

	metrics.AuthorizeDecisions.WithLabelValues(string(kind), string(decision.Code)).Inc()
	if !decision.Allowed() {
		// Policy denials are the normal vocabulary of this call, not errors.
		e.logger.Info("operation denied",
			"tenant_id", tenant.ID,
			"resource", kind,
			"decision", decision.Code,
		)
	}
	return decision, nil
}

func (e *enforcer) decide(ctx context.Context, tenant *domain.Tenant, kind domain.ResourceKind) (domain.Decision, error) {
	if !tenant.IsActive {
		return domain.DenyInactiveAccount(), nil
	}

	if tenant.PlanTier == domain.PlanTierFree && tenant.TrialExpired(e.now()) {
		return domain.DenyTrialExpired(), nil
	}

	entitlement := e.catalog.Entitlement(tenant.PlanTier)

	if feature, gated := domain.RequiredFeature(kind); gated && !entitlement.HasFeature(feature) {
		return domain.DenyFeatureNotInPlan(tenant.PlanTier, feature), nil
	}

	quota := entitlement.Quota(kind)
	if quota == domain.QuotaUnlimited {
		return domain.Allow(), nil
	}

	usage, err := e.ledger.CurrentUsage(ctx, tenant)
	if err != nil {
		return domain.Decision{}, err
	}
	if current := usage.Count(kind); current >= quota {
		return domain.DenyQuotaExceeded(kind, quota, current), nil
	}

	return domain.Allow(), nil
}

func (e *enforcer) RecordSuccess(ctx context.Context, tenant *domain.Tenant, kind domain.ResourceKind) error {
	return e.ledger.Increment(ctx, tenant, kind, 1)
}

func (e *enforcer) FreeTierEligibility(ctx context.Context, rawCNPJ string) (*domain.FreeTierEligibility, error) {
	const op = "enforcer.free_tier_eligibility"

	cnpj, err := domain.ParseCNPJ(rawCNPJ)
	if err != nil {
		return nil, err
	}

	tenants, err := e.store.ListTenantsByCNPJ(ctx, cnpj.Digits())
	if err != nil {
		return nil, domain.Internal(err, op, "failed to look up tenants by CNPJ")
	}

	for _, row := range tenants {
		if !row.LifetimeFreeTierUsed {
			continue
		}
		tier, err := domain.ParsePlanTier(row.PlanTier)
		if err != nil {
			return nil, err
		}
		blocking := &domain.BlockingTenant{
			Email:       row.Email,
			Name:        row.Name,
			CompanyName: row.CompanyName.String,
			PlanTier:    tier,
		}
		if row.FreeTierStartedAt.Valid {
			started := row.FreeTierStartedAt.Time
			blocking.FreeTierStartedAt = &started
		}
		return &domain.FreeTierEligibility{
			Eligible:       false,
			CNPJ:           cnpj.String(),
			Reason:         "cnpj_permanently_blocked",
			Message:        fmt.Sprintf("CNPJ %s has already used the free tier. This restriction is lifetime: each company may use the free tier exactly once.", cnpj),
			ExistingTenant: blocking,
		}, nil
	}

	return &domain.FreeTierEligibility{
		Eligible: true,
		CNPJ:     cnpj.String(),
		Reason:   "eligible_first_time",
		Message:  fmt.Sprintf("CNPJ %s is eligible for the free tier (first and only time).", cnpj),
	}, nil
}

func (e *enforcer) UsageSummary(ctx context.Context, tenant *domain.Tenant) (*domain.UsageSummary, error) {
	usage, err := e.ledger.CurrentUsage(ctx, tenant)
	if err != nil {
		return nil, err
	}

	entitlement := e.catalog.Entitlement(tenant.PlanTier)
	now := e.now().UTC()

	summary := &domain.UsageSummary{
		PlanTier:             tenant.PlanTier,
		SupportResponseHours: entitlement.SupportResponseHours,
		MonthStart:           domain.MonthStart(now),
		NextResetDate:        domain.NextMonthStart(now),
	}
	for feature := range entitlement.Features {
		summary.Features = append(summary.Features, feature)
	}

	for _, kind := range domain.ResourceKinds {
		current := usage.Count(kind)
		quota := entitlement.Quota(kind)

		entry := domain.ResourceUsage{Resource: kind, Current: current}
		if quota == domain.QuotaUnlimited {
			entry.Limit = "unlimited"
		} else {
			entry.Limit = quota
			if quota > 0 {
				entry.Percentage = float64(current) / float64(quota) * 100
			}
		}
		summary.Resources = append(summary.Resources, entry)

		if hint, ok := upgradeHint(tenant.PlanTier, kind, entry.Percentage, quota); ok {
			summary.Recommendations = append(summary.Recommendations, hint)
		}
	}

	return summary, nil
}

// upgradeHint suggests the next tier when a capped resource runs at 80% or
// more of its monthly quota.
func upgradeHint(tier domain.PlanTier, kind domain.ResourceKind, percentage float64, quota int64) (domain.UpgradeHint, bool) {
	if quota == domain.QuotaUnlimited || percentage < 80 {
		return domain.UpgradeHint{}, false
	}

	var next domain.PlanTier
	switch tier {
	case domain.PlanTierFree:
		next = domain.PlanTierPro
	case domain.PlanTierPro:
		next = domain.PlanTierEnterprise
	default:
		return domain.UpgradeHint{}, false
	}

	msg := fmt.Sprintf("You have used %.0f%% of your monthly %s quota. Consider upgrading to %s.", percentage, kind, next)
	if percentage >= 100 {
		msg = fmt.Sprintf("Monthly %s quota reached. Upgrade to %s to continue.", kind, next)
	}
	return domain.UpgradeHint{Resource: kind, Message: msg, Tier: next}, true
}
