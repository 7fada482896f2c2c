// Package domain contains core business types and interfaces.
//
// This file defines usage accounting types: the per-month counter record and
// the summary surfaced to tenants.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// UsagePeriod holds the counters for one tenant and one calendar month.
// Records are created lazily on first increment and never deleted; past
// months form an immutable audit trail.
type UsagePeriod struct {
	TenantID uuid.UUID
	Year     int
	Month    time.Month

	// Counts maps each metered resource to its counter. Resources without
	// a row-backed counter read as zero.
	Counts map[ResourceKind]int64
}

// Count returns the counter for a resource, zero if never incremented.
func (p *UsagePeriod) Count(kind ResourceKind) int64 {
	return p.Counts[kind]
}

// ResourceUsage is the per-resource entry of a usage summary.
type ResourceUsage struct {
	Resource ResourceKind `json:"resource"`
	Current  int64        `json:"current"`

	// Limit is the numeric monthly cap, or the string "unlimited".
	Limit any `json:"limit"`

	// Percentage is current/limit in percent; zero for unlimited resources.
	Percentage float64 `json:"percentage"`
}

// UpgradeHint nudges a tenant toward a higher tier when usage runs hot.
type UpgradeHint struct {
	Resource ResourceKind `json:"resource"`
	Message  string       `json:"message"`
	Tier     PlanTier     `json:"upgrade_to"`
}

// UsageSummary is the full usage report for a tenant's current period.
type UsageSummary struct {
	PlanTier             PlanTier        `json:"plan_type"`
	Resources            []ResourceUsage `json:"usage"`
	Features             []FeatureKind   `json:"features"`
	SupportResponseHours int             `json:"support_hours,omitempty"`
	MonthStart           time.Time       `json:"month_start"`
	NextResetDate        time.Time       `json:"next_reset_date"`
	Recommendations      []UpgradeHint   `json:"recommendations,omitempty"`
}

// FreeTierEligibility is the answer to "may this company start a free tier".
// The restriction is lifetime: once any tenant of a CNPJ has consumed the
// free tier, the identifier is permanently blocked.
type FreeTierEligibility struct {
	Eligible bool   `json:"eligible"`
	CNPJ     string `json:"cnpj"`
	Reason   string `json:"reason"`
	Message  string `json:"message"`

	// ExistingTenant describes the account that consumed the free tier,
	// set only when blocked.
	ExistingTenant *BlockingTenant `json:"existing_tenant,omitempty"`
}

// BlockingTenant identifies the account holding a CNPJ's lifetime free tier.
type BlockingTenant struct {
	Email             string     `json:"email"`
	Name              string     `json:"name"`
	CompanyName       string     `json:"company_name"`
	PlanTier          PlanTier   `json:"plan_type"`
	FreeTierStartedAt *time.Time `json:"free_tier_started_at,omitempty"`
}
