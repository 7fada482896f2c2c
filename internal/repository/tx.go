package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// IncrementUsageParams describes one usage counter increment.
type IncrementUsageParams struct {
	TenantID uuid.UUID
	Year     int32
	Month    int32

	// Column is the counter column to bump, validated against the
	// usage column whitelist.
	Column string
	Amount int64

	// BumpAudioCount also adds Amount to the tenant row's denormalized
	// current-period audio counter, in the same transaction.
	BumpAudioCount bool
}

// GrantFreeTier records the lifetime free-tier grant for a company
// identifier and flags the tenant, atomically. The grant insert hits the
// primary key on cnpj, so two concurrent grants for the same identifier
// cannot both commit; the loser surfaces a unique violation.
func (s *Store) GrantFreeTier(ctx context.Context, tenantID uuid.UUID, cnpjDigits, companyName string) error {
	return s.execTx(ctx, func(q *Queries) error {
		if err := q.InsertFreeTierGrant(ctx, cnpjDigits, tenantID); err != nil {
			return err
		}
		return q.MarkTenantFreeTierUsed(ctx, tenantID, cnpjDigits, companyName)
	})
}

// RolloverAndIncrement performs the ledger's write path for a current-month
// increment: it first advances the tenant's period if the stored period
// start is older than monthStart (idempotent CAS), then applies the counter
// increment. Running both in one transaction means an increment arriving
// concurrently with a rollover lands in the new period, never the old one.
func (s *Store) RolloverAndIncrement(ctx context.Context, monthStart time.Time, arg IncrementUsageParams) error {
	return s.execTx(ctx, func(q *Queries) error {
		if _, err := q.RolloverPeriod(ctx, arg.TenantID, monthStart); err != nil {
			return err
		}
		if err := q.UpsertUsageCounter(ctx, arg.TenantID, arg.Year, arg.Month, arg.Column, arg.Amount); err != nil {
			return err
		}
		if arg.BumpAudioCount {
			return q.AddToAudioCount(ctx, arg.TenantID, arg.Amount)
		}
		return nil
	})
}
