// Package domain contains core business types and interfaces.
//
// This file defines the plan catalog: the static mapping from plan tier to
// entitlements (monthly quotas, feature set, support tier). The catalog is
// pure data plus lookup and carries no mutable state.
package domain

import "fmt"

// PlanTier represents the pricing tier of a tenant account.
type PlanTier string

const (
	PlanTierFree       PlanTier = "free"
	PlanTierPro        PlanTier = "pro"
	PlanTierEnterprise PlanTier = "enterprise"
)

// planTiers lists every tier the catalog must cover.
var planTiers = []PlanTier{PlanTierFree, PlanTierPro, PlanTierEnterprise}

// ParsePlanTier validates a tier string read from storage or a webhook.
// An unknown tier is never coerced to a default.
func ParsePlanTier(s string) (PlanTier, error) {
	switch PlanTier(s) {
	case PlanTierFree, PlanTierPro, PlanTierEnterprise:
		return PlanTier(s), nil
	}
	return "", Errorf(EINTERNAL, "plan.parse_tier", "unknown plan tier %q", s)
}

// ResourceKind identifies a metered resource capped by plan quota.
type ResourceKind string

const (
	ResourceAudioTranscription ResourceKind = "audio_transcription"
	ResourceBasicAIAnalysis    ResourceKind = "basic_ai_analysis"
	ResourceAdvancedAIAnalysis ResourceKind = "advanced_ai_analysis"
	ResourceCustomAIAnalysis   ResourceKind = "custom_ai_analysis"
	ResourceAPICall            ResourceKind = "api_call"
	ResourceReportGeneration   ResourceKind = "report_generation"
	ResourceClientLinkCreation ResourceKind = "client_link_creation"
)

// ResourceKinds lists every metered resource, in a stable order used by
// usage summaries.
var ResourceKinds = []ResourceKind{
	ResourceAudioTranscription,
	ResourceBasicAIAnalysis,
	ResourceAdvancedAIAnalysis,
	ResourceCustomAIAnalysis,
	ResourceAPICall,
	ResourceReportGeneration,
	ResourceClientLinkCreation,
}

// ParseResourceKind validates a resource string from an API request.
func ParseResourceKind(s string) (ResourceKind, error) {
	for _, k := range ResourceKinds {
		if ResourceKind(s) == k {
			return k, nil
		}
	}
	return "", Errorf(EINVALID, "plan.parse_resource", "unknown resource kind %q", s)
}

// FeatureKind identifies a plan-scoped feature.
type FeatureKind string

const (
	FeatureBasicAI            FeatureKind = "basic_ai"
	FeatureAdvancedAI         FeatureKind = "advanced_ai"
	FeatureCustomAI           FeatureKind = "custom_ai"
	FeatureSimpleDashboard    FeatureKind = "simple_dashboard"
	FeatureCompleteDashboard  FeatureKind = "complete_dashboard"
	FeatureDetailedReports    FeatureKind = "detailed_reports"
	FeatureAPIAccess          FeatureKind = "api_access"
	FeatureCustomIntegrations FeatureKind = "custom_integrations"
)

// QuotaUnlimited is the sentinel for resources without a numeric monthly cap.
// It is never compared numerically against usage.
const QuotaUnlimited int64 = -1

// Entitlement is the bundle of quotas and features granted by a plan tier.
type Entitlement struct {
	// MonthlyQuota maps each metered resource to its monthly cap.
	// Resources absent from the map are treated as QuotaUnlimited.
	MonthlyQuota map[ResourceKind]int64

	// Features is the set of features accessible on this tier.
	Features map[FeatureKind]bool

	// SupportResponseHours is the guaranteed support response time.
	// Zero means no support SLA.
	SupportResponseHours int
}

// Quota returns the monthly cap for a resource, or QuotaUnlimited if the
// resource is not numerically capped on this tier.
func (e Entitlement) Quota(kind ResourceKind) int64 {
	if q, ok := e.MonthlyQuota[kind]; ok {
		return q
	}
	return QuotaUnlimited
}

// HasFeature reports whether the tier grants access to a feature.
func (e Entitlement) HasFeature(f FeatureKind) bool {
	return e.Features[f]
}

// requiredFeature maps metered resources to the feature that gates them.
// AudioTranscription and ClientLinkCreation are quota-gated only.
var requiredFeature = map[ResourceKind]FeatureKind{
	ResourceBasicAIAnalysis:    FeatureBasicAI,
	ResourceAdvancedAIAnalysis: FeatureAdvancedAI,
	ResourceCustomAIAnalysis:   FeatureCustomAI,
	ResourceAPICall:            FeatureAPIAccess,
	ResourceReportGeneration:   FeatureDetailedReports,
}

// RequiredFeature returns the feature gating a resource, if any.
func RequiredFeature(kind ResourceKind) (FeatureKind, bool) {
	f, ok := requiredFeature[kind]
	return f, ok
}

// Catalog is the total mapping from plan tier to entitlement.
// Lookup has no error path; totality is validated at construction and a
// missing tier is a startup-time invariant violation.
type Catalog struct {
	plans map[PlanTier]Entitlement
}

// NewCatalog builds a catalog from an explicit plan table and verifies it
// covers every tier.
func NewCatalog(plans map[PlanTier]Entitlement) (*Catalog, error) {
	for _, tier := range planTiers {
		if _, ok := plans[tier]; !ok {
			return nil, fmt.Errorf("plan catalog is missing entitlement for tier %q", tier)
		}
	}
	return &Catalog{plans: plans}, nil
}

// DefaultCatalog returns the production plan table.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(map[PlanTier]Entitlement{
		PlanTierFree: {
			MonthlyQuota: map[ResourceKind]int64{
				ResourceAudioTranscription: 5,
			},
			Features: map[FeatureKind]bool{
				FeatureBasicAI:         true,
				FeatureSimpleDashboard: true,
			},
		},
		PlanTierPro: {
			MonthlyQuota: map[ResourceKind]int64{
				ResourceAudioTranscription: 15,
			},
			Features: map[FeatureKind]bool{
				FeatureAdvancedAI:        true,
				FeatureCompleteDashboard: true,
				FeatureDetailedReports:   true,
			},
			SupportResponseHours: 48,
		},
		PlanTierEnterprise: {
			MonthlyQuota: map[ResourceKind]int64{
				ResourceAudioTranscription: QuotaUnlimited,
			},
			Features: map[FeatureKind]bool{
				FeatureCustomAI:           true,
				FeatureCompleteDashboard:  true,
				FeatureDetailedReports:    true,
				FeatureAPIAccess:          true,
				FeatureCustomIntegrations: true,
			},
			SupportResponseHours: 24,
		},
	})
	if err != nil {
		// The default table is compile-time data; a hole in it can only be
		// a programming error.
		panic(err)
	}
	return c
}

// Entitlement returns the entitlement for a tier.
// Tiers come from ParsePlanTier, so the lookup is total.
func (c *Catalog) Entitlement(tier PlanTier) Entitlement {
	return c.plans[tier]
}
