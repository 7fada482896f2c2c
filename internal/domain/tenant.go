// Package domain contains core business types and interfaces.
//
// This file defines the Tenant domain type. A tenant is a billing account
// (a business using the product), not an individual end-user. The type is
// separate from the repository model so business logic never depends on
// database null types.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents a billing account.
//
// Period fields (CurrentPeriodStart, CurrentPeriodAudioCount) are owned by
// the usage ledger for mutation and only read elsewhere. The denormalized
// audio count always equals the AudioTranscription counter of the current
// usage period; the ledger keeps both consistent in the same transaction.
type Tenant struct {
	ID          uuid.UUID
	Email       string
	Name        string
	CompanyName string

	// CNPJ holds the bare 14 digits, empty until the company registers one.
	CNPJ string

	PlanTier         PlanTier
	TrialExpiresAt   *time.Time
	IsActive         bool
	StripeCustomerID string

	// LifetimeFreeTierUsed transitions false to true exactly once and is
	// never reset by rollover, plan changes, or retries.
	LifetimeFreeTierUsed bool
	FreeTierStartedAt    *time.Time

	// PlanPeriodEnd is the end of the billing period last applied from the
	// billing provider, used for apply-if-newer webhook idempotency.
	PlanPeriodEnd *time.Time

	CurrentPeriodStart      time.Time
	CurrentPeriodAudioCount int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TrialExpired reports whether the tenant's free trial has lapsed.
// Tenants without a trial deadline never expire.
func (t *Tenant) TrialExpired(now time.Time) bool {
	return t.TrialExpiresAt != nil && t.TrialExpiresAt.Before(now)
}

// MonthStart truncates a time to the first instant of its calendar month
// in UTC. Accounting periods are always addressed by month start.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextMonthStart returns the first instant of the month after t.
func NextMonthStart(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, 0)
}
