// Package service contains the business logic layer.
//
// This file implements the tenant service: account lookup, signup, and the
// plan-tier transitions driven by billing provider events.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/vozfeed/vozfeed/internal/domain"
	"github.com/vozfeed/vozfeed/internal/repository"
	"github.com/google/uuid"
)

// TrialDuration is the free trial window granted at signup.
const TrialDuration = 7 * 24 * time.Hour

// =============================================================================
// Interface Definitions
// =============================================================================

// TenantStore is the storage surface the tenant service depends on.
type TenantStore interface {
	CreateTenant(ctx context.Context, arg repository.CreateTenantParams) (repository.Tenant, error)
	GetTenant(ctx context.Context, id uuid.UUID) (repository.Tenant, error)
	GetTenantByStripeCustomerID(ctx context.Context, customerID string) (repository.Tenant, error)
	ApplyPlanChange(ctx context.Context, tenantID uuid.UUID, planTier string, periodEnd time.Time) (int64, error)
	SetTenantActive(ctx context.Context, tenantID uuid.UUID, active bool) error
}

// SignupParams contains the validated parameters for tenant signup.
type SignupParams struct {
	Email            string
	Name             string
	CompanyName      string // Optional
	StripeCustomerID string // Optional, set once billing is established
}

// TenantService manages billing accounts.
type TenantService interface {
	// Signup creates a tenant on the free tier with a fresh trial window
	// and period counters initialized to the current month.
	Signup(ctx context.Context, params SignupParams) (*domain.Tenant, error)

	// GetByID fetches a tenant.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)

	// GetByStripeCustomerID fetches a tenant by its billing reference.
	GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.Tenant, error)

	// ApplyPlanChange applies a billing-provider plan transition with
	// apply-if-newer semantics keyed on periodEnd. Stale or duplicate
	// events are no-ops, which makes redelivery idempotent. The returned
	// flag reports whether the change landed; callers must not apply any
	// follow-on state from an event that did not.
	ApplyPlanChange(ctx context.Context, tenantID uuid.UUID, tier domain.PlanTier, periodEnd time.Time) (bool, error)

	// SetActive flips the tenant's active flag.
	SetActive(ctx context.Context, tenantID uuid.UUID, active bool) error
}

// =============================================================================
// Implementation
// =============================================================================

type tenantService struct {
	store  TenantStore
	logger *slog.Logger
	now    func() time.Time
}

// NewTenantService creates a new TenantService.
func NewTenantService(store TenantStore, logger *slog.Logger) TenantService {
	return &tenantService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

func (s *tenantService) Signup(ctx context.Context, params SignupParams) (*domain.Tenant, error) {
	const op = "tenant.signup"

	if params.Email == "" {
		return nil, domain.Invalid(op, "email is required")
	}
	if params.Name == "" {
		return nil, domain.Invalid(op, "name is required")
	}

	now := s.now().UTC()
	row, err := s.store.CreateTenant(ctx, repository.CreateTenantParams{
		ID:               uuid.New(),
		Email:            params.Email,
		Name:             params.Name,
		CompanyName:      toNullString(params.CompanyName),
		PlanTier:         string(domain.PlanTierFree),
		TrialExpiresAt:   sql.NullTime{Time: now.Add(TrialDuration), Valid: true},
		StripeCustomerID: toNullString(params.StripeCustomerID),
		PeriodStart:      domain.MonthStart(now),
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, domain.Conflict(op, "an account with this email already exists")
		}
		return nil, domain.Internal(err, op, "failed to create tenant")
	}

	s.logger.Info("tenant created", "tenant_id", row.ID, "email", row.Email)
	return tenantFromRow(row)
}

func (s *tenantService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	const op = "tenant.get"

	row, err := s.store.GetTenant(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "tenant", id.String())
		}
		return nil, domain.Internal(err, op, "failed to load tenant")
	}
	return tenantFromRow(row)
}

func (s *tenantService) GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.Tenant, error) {
	const op = "tenant.get_by_stripe_customer"

	row, err := s.store.GetTenantByStripeCustomerID(ctx, customerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "tenant", customerID)
		}
		return nil, domain.Internal(err, op, "failed to load tenant")
	}
	return tenantFromRow(row)
}

func (s *tenantService) ApplyPlanChange(ctx context.Context, tenantID uuid.UUID, tier domain.PlanTier, periodEnd time.Time) (bool, error) {
	const op = "tenant.apply_plan_change"

	applied, err := s.store.ApplyPlanChange(ctx, tenantID, string(tier), periodEnd)
	if err != nil {
		return false, domain.Internal(err, op, "failed to apply plan change")
	}
	if applied == 0 {
		// Out-of-order or duplicate delivery; final state already newer.
		s.logger.Info("plan change skipped as stale",
			"tenant_id", tenantID,
			"tier", tier,
			"period_end", periodEnd,
		)
		return false, nil
	}

	s.logger.Info("plan changed",
		"tenant_id", tenantID,
		"tier", tier,
		"period_end", periodEnd,
	)
	return true, nil
}

func (s *tenantService) SetActive(ctx context.Context, tenantID uuid.UUID, active bool) error {
	const op = "tenant.set_active"

	if err := s.store.SetTenantActive(ctx, tenantID, active); err != nil {
		return domain.Internal(err, op, "failed to update tenant active flag")
	}
	return nil
}

// =============================================================================
// Conversions
// =============================================================================

// tenantFromRow converts a repository row to the domain type. An unknown
// plan tier in storage is an invariant violation, never coerced to free.
func tenantFromRow(row repository.Tenant) (*domain.Tenant, error) {
	tier, err := domain.ParsePlanTier(row.PlanTier)
	if err != nil {
		return nil, err
	}

	t := &domain.Tenant{
		ID:                      row.ID,
		Email:                   row.Email,
		Name:                    row.Name,
		CompanyName:             row.CompanyName.String,
		CNPJ:                    row.CNPJ.String,
		PlanTier:                tier,
		IsActive:                row.IsActive,
		StripeCustomerID:        row.StripeCustomerID.String,
		LifetimeFreeTierUsed:    row.LifetimeFreeTierUsed,
		CurrentPeriodStart:      row.CurrentPeriodStart,
		CurrentPeriodAudioCount: row.CurrentPeriodAudioCount,
		CreatedAt:               row.CreatedAt,
		UpdatedAt:               row.UpdatedAt,
	}
	if row.TrialExpiresAt.Valid {
		v := row.TrialExpiresAt.Time
		t.TrialExpiresAt = &v
	}
	if row.FreeTierStartedAt.Valid {
		v := row.FreeTierStartedAt.Time
		t.FreeTierStartedAt = &v
	}
	if row.PlanPeriodEnd.Valid {
		v := row.PlanPeriodEnd.Time
		t.PlanPeriodEnd = &v
	}
	return t, nil
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
