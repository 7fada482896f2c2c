// Package service contains the business logic layer.
//
// This file implements the usage ledger: per-tenant, per-calendar-month
// counters for every metered resource. The ledger owns the monthly rollover
// rule and the increment protocol; it records consumption but never enforces
// quotas, which is the enforcer's job.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/vozfeed/vozfeed/internal/domain"
	"github.com/vozfeed/vozfeed/internal/metrics"
	"github.com/vozfeed/vozfeed/internal/repository"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definitions
// =============================================================================

// LedgerStore is the storage surface the ledger depends on.
type LedgerStore interface {
	RolloverPeriod(ctx context.Context, tenantID uuid.UUID, monthStart time.Time) (int64, error)
	GetUsagePeriod(ctx context.Context, tenantID uuid.UUID, year, month int32) (repository.UsagePeriod, error)
	RolloverAndIncrement(ctx context.Context, monthStart time.Time, arg repository.IncrementUsageParams) error
	ListUsagePeriods(ctx context.Context, tenantID uuid.UUID, limit int32) ([]repository.UsagePeriod, error)
	GrantFreeTier(ctx context.Context, tenantID uuid.UUID, cnpjDigits, companyName string) error
}

// UsageLedger tracks metered consumption with monthly rollover.
type UsageLedger interface {
	// CurrentUsage returns the usage record for the tenant's current
	// calendar month, rolling the tenant's period forward first if it has
	// fallen behind. The passed tenant is updated to the converged period
	// state. Months with no recorded usage read as zero.
	CurrentUsage(ctx context.Context, tenant *domain.Tenant) (*domain.UsagePeriod, error)

	// Increment adds amount to the named counter for the current month,
	// creating the period record if absent. It records only; quota
	// enforcement happens before the guarded operation runs.
	Increment(ctx context.Context, tenant *domain.Tenant, kind domain.ResourceKind, amount int64) error

	// History returns the tenant's most recent usage periods, newest
	// first, up to months entries. Past months are never rewritten, so
	// the result is a stable audit trail of consumption.
	History(ctx context.Context, tenant *domain.Tenant, months int32) ([]*domain.UsagePeriod, error)

	// MarkLifetimeFreeTierUsed performs the one-way free-tier transition
	// for the tenant's company identifier. Returns an ECONFLICT error if
	// the identifier already consumed its free tier; callers treat that
	// as an idempotence signal, not a system failure.
	MarkLifetimeFreeTierUsed(ctx context.Context, tenant *domain.Tenant, cnpj domain.CNPJ, companyName string) error
}

// =============================================================================
// Implementation
// =============================================================================

type usageLedger struct {
	store  LedgerStore
	logger *slog.Logger
	now    func() time.Time
}

// NewUsageLedger creates a new UsageLedger.
func NewUsageLedger(store LedgerStore, logger *slog.Logger) UsageLedger {
	return &usageLedger{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// resourceColumns maps each metered resource to its counter column.
var resourceColumns = map[domain.ResourceKind]string{
	domain.ResourceAudioTranscription: "audio_transcriptions",
	domain.ResourceBasicAIAnalysis:    "basic_ai_calls",
	domain.ResourceAdvancedAIAnalysis: "advanced_ai_calls",
	domain.ResourceCustomAIAnalysis:   "custom_ai_calls",
	domain.ResourceAPICall:            "api_calls",
	domain.ResourceReportGeneration:   "reports_generated",
	domain.ResourceClientLinkCreation: "client_links_created",
}

func (l *usageLedger) CurrentUsage(ctx context.Context, tenant *domain.Tenant) (*domain.UsagePeriod, error) {
	const op = "ledger.current_usage"

	now := l.now().UTC()
	monthStart := domain.MonthStart(now)

	// Lazy rollover: no scheduler, so the month boundary is applied on
	// first read after the period has advanced. The storage-level CAS
	// makes concurrent rollovers converge without double-resetting.
	if tenant.CurrentPeriodStart.Before(monthStart) {
		rolled, err := l.store.RolloverPeriod(ctx, tenant.ID, monthStart)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to roll over usage period")
		}
		if rolled > 0 {
			l.logger.Info("monthly usage counters reset",
				"tenant_id", tenant.ID,
				"period_start", monthStart,
			)
			metrics.PeriodRollovers.Inc()
		}
		// Either this caller or a concurrent one advanced the period;
		// the converged state is the same. Lifetime fields are untouched.
		tenant.CurrentPeriodStart = monthStart
		tenant.CurrentPeriodAudioCount = 0
	}

	row, err := l.store.GetUsagePeriod(ctx, tenant.ID, int32(now.Year()), int32(now.Month()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Created lazily on first increment; read as zero until then.
			return emptyPeriod(tenant.ID, now), nil
		}
		return nil, domain.Internal(err, op, "failed to load usage period")
	}

	return periodFromRow(row), nil
}

func (l *usageLedger) Increment(ctx context.Context, tenant *domain.Tenant, kind domain.ResourceKind, amount int64) error {
	const op = "ledger.increment"

	column, ok := resourceColumns[kind]
	if !ok {
		return domain.Errorf(domain.EINTERNAL, op, "no counter column for resource %q", kind)
	}
	if amount <= 0 {
		return domain.Errorf(domain.EINTERNAL, op, "increment amount must be positive, got %d", amount)
	}

	now := l.now().UTC()
	err := l.store.RolloverAndIncrement(ctx, domain.MonthStart(now), repository.IncrementUsageParams{
		TenantID:       tenant.ID,
		Year:           int32(now.Year()),
		Month:          int32(now.Month()),
		Column:         column,
		Amount:         amount,
		BumpAudioCount: kind == domain.ResourceAudioTranscription,
	})
	if err != nil {
		return domain.Internal(err, op, "failed to increment usage counter")
	}

	if kind == domain.ResourceAudioTranscription {
		tenant.CurrentPeriodAudioCount += amount
	}
	metrics.UsageIncrements.WithLabelValues(string(kind)).Add(float64(amount))

	l.logger.Debug("usage incremented",
		"tenant_id", tenant.ID,
		"resource", kind,
		"amount", amount,
	)
	return nil
}

// historyDefaultMonths bounds a history read when the caller does not say
// how far back to go.
const historyDefaultMonths = 12

func (l *usageLedger) History(ctx context.Context, tenant *domain.Tenant, months int32) ([]*domain.UsagePeriod, error) {
	const op = "ledger.history"

	if months <= 0 {
		months = historyDefaultMonths
	}

	rows, err := l.store.ListUsagePeriods(ctx, tenant.ID, months)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load usage history")
	}

	periods := make([]*domain.UsagePeriod, 0, len(rows))
	for _, row := range rows {
		periods = append(periods, periodFromRow(row))
	}
	return periods, nil
}

func (l *usageLedger) MarkLifetimeFreeTierUsed(ctx context.Context, tenant *domain.Tenant, cnpj domain.CNPJ, companyName string) error {
	const op = "ledger.mark_free_tier_used"

	if tenant.LifetimeFreeTierUsed {
		return domain.Conflict(op, "free tier already used by this account")
	}

	err := l.store.GrantFreeTier(ctx, tenant.ID, cnpj.Digits(), companyName)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			// Another grant for this CNPJ won the race. The restriction
			// is lifetime, so this is a final answer, not a retryable one.
			return domain.Conflict(op, "free tier already used for CNPJ "+cnpj.String())
		}
		return domain.Internal(err, op, "failed to record free tier grant")
	}

	now := l.now().UTC()
	tenant.CNPJ = cnpj.Digits()
	tenant.CompanyName = companyName
	tenant.LifetimeFreeTierUsed = true
	tenant.FreeTierStartedAt = &now

	l.logger.Info("lifetime free tier granted",
		"tenant_id", tenant.ID,
		"cnpj", cnpj.String(),
	)
	return nil
}

// =============================================================================
// Conversions
// =============================================================================

func periodFromRow(row repository.UsagePeriod) *domain.UsagePeriod {
	return &domain.UsagePeriod{
		TenantID: row.TenantID,
		Year:     int(row.Year),
		Month:    time.Month(row.Month),
		Counts: map[domain.ResourceKind]int64{
			domain.ResourceAudioTranscription: row.AudioTranscriptions,
			domain.ResourceBasicAIAnalysis:    row.BasicAICalls,
			domain.ResourceAdvancedAIAnalysis: row.AdvancedAICalls,
			domain.ResourceCustomAIAnalysis:   row.CustomAICalls,
			domain.ResourceAPICall:            row.APICalls,
			domain.ResourceReportGeneration:   row.ReportsGenerated,
			domain.ResourceClientLinkCreation: row.ClientLinksCreated,
		},
	}
}

func emptyPeriod(tenantID uuid.UUID, now time.Time) *domain.UsagePeriod {
	return &domain.UsagePeriod{
		TenantID: tenantID,
		Year:     now.Year(),
		Month:    now.Month(),
		Counts:   map[domain.ResourceKind]int64{},
	}
}
