package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlanTier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    PlanTier
		wantErr bool
	}{
		{"free", "free", PlanTierFree, false},
		{"pro", "pro", PlanTierPro, false},
		{"enterprise", "enterprise", PlanTierEnterprise, false},
		{"unknown tier is never coerced", "premium", "", true},
		{"empty", "", "", true},
		{"case sensitive", "Free", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePlanTier(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				// A tier string outside the catalog means corrupted storage
				// or a bad webhook mapping, not caller input.
				assert.Equal(t, EINTERNAL, ErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseResourceKind(t *testing.T) {
	for _, kind := range ResourceKinds {
		got, err := ParseResourceKind(string(kind))
		require.NoError(t, err)
		assert.Equal(t, kind, got)
	}

	_, err := ParseResourceKind("video_transcription")
	require.Error(t, err)
	assert.Equal(t, EINVALID, ErrorCode(err))
}

func TestDefaultCatalog_Quotas(t *testing.T) {
	catalog := DefaultCatalog()

	tests := []struct {
		name string
		tier PlanTier
		kind ResourceKind
		want int64
	}{
		{"free audio quota", PlanTierFree, ResourceAudioTranscription, 5},
		{"pro audio quota", PlanTierPro, ResourceAudioTranscription, 15},
		{"enterprise audio unlimited", PlanTierEnterprise, ResourceAudioTranscription, QuotaUnlimited},
		{"uncapped resource reads as unlimited", PlanTierFree, ResourceClientLinkCreation, QuotaUnlimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, catalog.Entitlement(tt.tier).Quota(tt.kind))
		})
	}
}

func TestDefaultCatalog_Features(t *testing.T) {
	catalog := DefaultCatalog()

	free := catalog.Entitlement(PlanTierFree)
	assert.True(t, free.HasFeature(FeatureBasicAI))
	assert.True(t, free.HasFeature(FeatureSimpleDashboard))
	assert.False(t, free.HasFeature(FeatureDetailedReports))
	assert.False(t, free.HasFeature(FeatureAPIAccess))

	pro := catalog.Entitlement(PlanTierPro)
	assert.True(t, pro.HasFeature(FeatureAdvancedAI))
	assert.True(t, pro.HasFeature(FeatureDetailedReports))
	assert.False(t, pro.HasFeature(FeatureCustomAI))
	assert.False(t, pro.HasFeature(FeatureAPIAccess))
	assert.Equal(t, 48, pro.SupportResponseHours)

	enterprise := catalog.Entitlement(PlanTierEnterprise)
	assert.True(t, enterprise.HasFeature(FeatureCustomAI))
	assert.True(t, enterprise.HasFeature(FeatureAPIAccess))
	assert.True(t, enterprise.HasFeature(FeatureCustomIntegrations))
	assert.Equal(t, 24, enterprise.SupportResponseHours)
}

func TestRequiredFeature(t *testing.T) {
	tests := []struct {
		kind  ResourceKind
		want  FeatureKind
		gated bool
	}{
		{ResourceBasicAIAnalysis, FeatureBasicAI, true},
		{ResourceAdvancedAIAnalysis, FeatureAdvancedAI, true},
		{ResourceCustomAIAnalysis, FeatureCustomAI, true},
		{ResourceAPICall, FeatureAPIAccess, true},
		{ResourceReportGeneration, FeatureDetailedReports, true},
		{ResourceAudioTranscription, "", false},
		{ResourceClientLinkCreation, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			feature, gated := RequiredFeature(tt.kind)
			assert.Equal(t, tt.gated, gated)
			assert.Equal(t, tt.want, feature)
		})
	}
}

func TestNewCatalog_RejectsMissingTier(t *testing.T) {
	_, err := NewCatalog(map[PlanTier]Entitlement{
		PlanTierFree: {},
		PlanTierPro:  {},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enterprise")
}
