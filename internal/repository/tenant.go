package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Tenant is the database row for a billing account.
type Tenant struct {
	ID                      uuid.UUID
	Email                   string
	Name                    string
	CompanyName             sql.NullString
	CNPJ                    sql.NullString
	PlanTier                string
	TrialExpiresAt          sql.NullTime
	IsActive                bool
	StripeCustomerID        sql.NullString
	LifetimeFreeTierUsed    bool
	FreeTierStartedAt       sql.NullTime
	PlanPeriodEnd           sql.NullTime
	CurrentPeriodStart      time.Time
	CurrentPeriodAudioCount int64
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

const tenantColumns = `id, email, name, company_name, cnpj, plan_tier, trial_expires_at,
	is_active, stripe_customer_id, lifetime_free_tier_used, free_tier_started_at,
	plan_period_end, current_period_start, current_period_audio_count, created_at, updated_at`

func scanTenant(row interface{ Scan(...any) error }) (Tenant, error) {
	var t Tenant
	err := row.Scan(
		&t.ID, &t.Email, &t.Name, &t.CompanyName, &t.CNPJ, &t.PlanTier,
		&t.TrialExpiresAt, &t.IsActive, &t.StripeCustomerID,
		&t.LifetimeFreeTierUsed, &t.FreeTierStartedAt, &t.PlanPeriodEnd,
		&t.CurrentPeriodStart, &t.CurrentPeriodAudioCount,
		&t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

// CreateTenantParams holds the fields set at signup. Period fields are
// initialized to the current month with counters at zero.
type CreateTenantParams struct {
	ID               uuid.UUID
	Email            string
	Name             string
	CompanyName      sql.NullString
	PlanTier         string
	TrialExpiresAt   sql.NullTime
	StripeCustomerID sql.NullString
	PeriodStart      time.Time
}

// CreateTenant inserts a new tenant row.
func (q *Queries) CreateTenant(ctx context.Context, arg CreateTenantParams) (Tenant, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO tenants (id, email, name, company_name, plan_tier, trial_expires_at,
			stripe_customer_id, current_period_start)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+tenantColumns,
		arg.ID, arg.Email, arg.Name, arg.CompanyName, arg.PlanTier,
		arg.TrialExpiresAt, arg.StripeCustomerID, arg.PeriodStart,
	)
	return scanTenant(row)
}

// GetTenant fetches a tenant by ID.
func (q *Queries) GetTenant(ctx context.Context, id uuid.UUID) (Tenant, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	return scanTenant(row)
}

// GetTenantByStripeCustomerID fetches a tenant by its billing provider reference.
func (q *Queries) GetTenantByStripeCustomerID(ctx context.Context, customerID string) (Tenant, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE stripe_customer_id = $1`, customerID)
	return scanTenant(row)
}

// ListTenantsByCNPJ returns every tenant historically associated with the
// given company identifier (bare digits).
func (q *Queries) ListTenantsByCNPJ(ctx context.Context, cnpjDigits string) ([]Tenant, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE cnpj = $1 ORDER BY created_at`, cnpjDigits)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// RolloverPeriod advances a tenant's accounting period to monthStart and
// zeroes the denormalized audio counter. The conditional WHERE makes the
// operation an idempotent compare-and-swap: concurrent callers observing an
// out-of-date period converge on the same state, and a caller that lost the
// race simply updates zero rows. Lifetime fields are never touched.
func (q *Queries) RolloverPeriod(ctx context.Context, tenantID uuid.UUID, monthStart time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE tenants
		SET current_period_start = $2,
			current_period_audio_count = 0,
			updated_at = now()
		WHERE id = $1 AND current_period_start < $2`,
		tenantID, monthStart)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AddToAudioCount bumps the denormalized current-period audio counter.
// Must run in the same transaction as the usage period upsert.
func (q *Queries) AddToAudioCount(ctx context.Context, tenantID uuid.UUID, amount int64) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE tenants
		SET current_period_audio_count = current_period_audio_count + $2,
			updated_at = now()
		WHERE id = $1`,
		tenantID, amount)
	return err
}

// ApplyPlanChange updates the tenant's plan tier with apply-if-newer
// semantics keyed on the billing period end, so out-of-order or duplicate
// webhook deliveries are idempotent against final state. Returns the number
// of rows updated (zero when the event is stale).
func (q *Queries) ApplyPlanChange(ctx context.Context, tenantID uuid.UUID, planTier string, periodEnd time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE tenants
		SET plan_tier = $2,
			plan_period_end = $3,
			updated_at = now()
		WHERE id = $1
			AND (plan_period_end IS NULL OR plan_period_end <= $3)`,
		tenantID, planTier, periodEnd)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetTenantActive flips the account's active flag.
func (q *Queries) SetTenantActive(ctx context.Context, tenantID uuid.UUID, active bool) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE tenants SET is_active = $2, updated_at = now() WHERE id = $1`,
		tenantID, active)
	return err
}

// InsertFreeTierGrant records the lifetime free-tier grant for a company
// identifier. The primary key on cnpj makes concurrent grants for the same
// identifier strictly serializable: exactly one insert wins, the others fail
// with a unique violation.
func (q *Queries) InsertFreeTierGrant(ctx context.Context, cnpjDigits string, tenantID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO free_tier_grants (cnpj, tenant_id) VALUES ($1, $2)`,
		cnpjDigits, tenantID)
	return err
}

// MarkTenantFreeTierUsed sets the one-way lifetime flag and the company
// fields on the tenant row. Must run in the same transaction as
// InsertFreeTierGrant.
func (q *Queries) MarkTenantFreeTierUsed(ctx context.Context, tenantID uuid.UUID, cnpjDigits, companyName string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE tenants
		SET cnpj = $2,
			company_name = $3,
			lifetime_free_tier_used = TRUE,
			free_tier_started_at = now(),
			updated_at = now()
		WHERE id = $1`,
		tenantID, cnpjDigits, companyName)
	return err
}
