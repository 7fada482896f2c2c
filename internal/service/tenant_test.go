package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/vozfeed/vozfeed/internal/domain"
	"github.com/vozfeed/vozfeed/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTenantStore is an in-memory TenantStore for tenant service tests.
type fakeTenantStore struct {
	tenants map[uuid.UUID]repository.Tenant
	byEmail map[string]uuid.UUID

	appliedRows int64
	planChanges []string

	createErr error
	getErr    error
	applyErr  error
}

func newFakeTenantStore() *fakeTenantStore {
	return &fakeTenantStore{
		tenants:     make(map[uuid.UUID]repository.Tenant),
		byEmail:     make(map[string]uuid.UUID),
		appliedRows: 1,
	}
}

func (f *fakeTenantStore) CreateTenant(ctx context.Context, arg repository.CreateTenantParams) (repository.Tenant, error) {
	if f.createErr != nil {
		return repository.Tenant{}, f.createErr
	}
	if _, exists := f.byEmail[arg.Email]; exists {
		return repository.Tenant{}, &pgconn.PgError{Code: "23505", ConstraintName: "tenants_email_key"}
	}
	row := repository.Tenant{
		ID:                 arg.ID,
		Email:              arg.Email,
		Name:               arg.Name,
		CompanyName:        arg.CompanyName,
		PlanTier:           arg.PlanTier,
		TrialExpiresAt:     arg.TrialExpiresAt,
		IsActive:           true,
		StripeCustomerID:   arg.StripeCustomerID,
		CurrentPeriodStart: arg.PeriodStart,
	}
	f.tenants[arg.ID] = row
	f.byEmail[arg.Email] = arg.ID
	return row, nil
}

func (f *fakeTenantStore) GetTenant(ctx context.Context, id uuid.UUID) (repository.Tenant, error) {
	if f.getErr != nil {
		return repository.Tenant{}, f.getErr
	}
	row, ok := f.tenants[id]
	if !ok {
		return repository.Tenant{}, sql.ErrNoRows
	}
	return row, nil
}

func (f *fakeTenantStore) GetTenantByStripeCustomerID(ctx context.Context, customerID string) (repository.Tenant, error) {
	for _, row := range f.tenants {
		if row.StripeCustomerID.String == customerID {
			return row, nil
		}
	}
	return repository.Tenant{}, sql.ErrNoRows
}

func (f *fakeTenantStore) ApplyPlanChange(ctx context.Context, tenantID uuid.UUID, planTier string, periodEnd time.Time) (int64, error) {
	if f.applyErr != nil {
		return 0, f.applyErr
	}
	f.planChanges = append(f.planChanges, planTier)
	return f.appliedRows, nil
}

func (f *fakeTenantStore) SetTenantActive(ctx context.Context, tenantID uuid.UUID, active bool) error {
	row, ok := f.tenants[tenantID]
	if ok {
		row.IsActive = active
		f.tenants[tenantID] = row
	}
	return nil
}

func newTestTenantService(t *testing.T, store TenantStore, now time.Time) *tenantService {
	t.Helper()
	svc := NewTenantService(store, testLogger()).(*tenantService)
	svc.now = func() time.Time { return now }
	return svc
}

func TestSignup(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	t.Run("creates a free tier tenant with a trial window", func(t *testing.T) {
		store := newFakeTenantStore()
		svc := newTestTenantService(t, store, now)

		tenant, err := svc.Signup(context.Background(), SignupParams{
			Email: "dona@padaria.com.br",
			Name:  "Dona Maria",
		})
		require.NoError(t, err)

		assert.Equal(t, domain.PlanTierFree, tenant.PlanTier)
		assert.True(t, tenant.IsActive)
		require.NotNil(t, tenant.TrialExpiresAt)
		assert.Equal(t, now.Add(TrialDuration), *tenant.TrialExpiresAt)
		assert.Equal(t, domain.MonthStart(now), tenant.CurrentPeriodStart)
		assert.Equal(t, int64(0), tenant.CurrentPeriodAudioCount)
		assert.False(t, tenant.LifetimeFreeTierUsed)
	})

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		store := newFakeTenantStore()
		svc := newTestTenantService(t, store, now)

		_, err := svc.Signup(context.Background(), SignupParams{Email: "a@b.com", Name: "A"})
		require.NoError(t, err)

		_, err = svc.Signup(context.Background(), SignupParams{Email: "a@b.com", Name: "B"})
		require.Error(t, err)
		assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
	})

	t.Run("missing fields are invalid", func(t *testing.T) {
		store := newFakeTenantStore()
		svc := newTestTenantService(t, store, now)

		_, err := svc.Signup(context.Background(), SignupParams{Name: "A"})
		require.Error(t, err)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

		_, err = svc.Signup(context.Background(), SignupParams{Email: "a@b.com"})
		require.Error(t, err)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})
}

func TestGetByID(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	t.Run("unknown id is not found", func(t *testing.T) {
		svc := newTestTenantService(t, newFakeTenantStore(), now)

		_, err := svc.GetByID(context.Background(), uuid.New())
		require.Error(t, err)
		assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
	})

	t.Run("unknown tier in storage is surfaced, not coerced", func(t *testing.T) {
		store := newFakeTenantStore()
		id := uuid.New()
		store.tenants[id] = repository.Tenant{ID: id, PlanTier: "premium"}
		svc := newTestTenantService(t, store, now)

		_, err := svc.GetByID(context.Background(), id)
		require.Error(t, err)
		assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
	})
}

func TestApplyPlanChange(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)

	t.Run("applies the new tier", func(t *testing.T) {
		store := newFakeTenantStore()
		svc := newTestTenantService(t, store, now)

		applied, err := svc.ApplyPlanChange(context.Background(), uuid.New(), domain.PlanTierPro, periodEnd)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, []string{"pro"}, store.planChanges)
	})

	t.Run("stale delivery is a no-op and says so", func(t *testing.T) {
		store := newFakeTenantStore()
		store.appliedRows = 0
		svc := newTestTenantService(t, store, now)

		// Redelivered or out-of-order webhook events must not fail; the
		// stored state already reflects a newer period. Callers rely on
		// the flag to skip follow-on state from the stale event.
		applied, err := svc.ApplyPlanChange(context.Background(), uuid.New(), domain.PlanTierPro, periodEnd)
		require.NoError(t, err)
		assert.False(t, applied)
	})
}
