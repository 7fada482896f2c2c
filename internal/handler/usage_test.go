package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vozfeed/vozfeed/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageSummary(t *testing.T) {
	monthStart := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	enforcer := &stubEnforcer{
		summary: &domain.UsageSummary{
			PlanTier: domain.PlanTierPro,
			Resources: []domain.ResourceUsage{
				{Resource: domain.ResourceAudioTranscription, Current: 12, Limit: int64(15), Percentage: 80},
			},
			Features:             []domain.FeatureKind{domain.FeatureAdvancedAI},
			SupportResponseHours: 48,
			MonthStart:           monthStart,
			NextResetDate:        monthStart.AddDate(0, 1, 0),
		},
	}
	h := NewUsageHandler(enforcer, &stubLedger{}, errorTestLogger())

	req := withTenant(httptest.NewRequest("GET", "/v1/usage", nil), testTenant())
	rec := httptest.NewRecorder()

	h.Summary(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pro", body["plan_type"])
	usage, ok := body["usage"].([]any)
	require.True(t, ok)
	require.Len(t, usage, 1)
}

func TestUsageSummary_StorageFaultIs500(t *testing.T) {
	enforcer := &stubEnforcer{
		summaryErr: domain.Internal(errors.New("connection refused"), "ledger.current_usage", "usage lookup failed"),
	}
	h := NewUsageHandler(enforcer, &stubLedger{}, errorTestLogger())

	req := withTenant(httptest.NewRequest("GET", "/v1/usage", nil), testTenant())
	rec := httptest.NewRecorder()

	h.Summary(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestUsageHistory(t *testing.T) {
	tenant := testTenant()

	t.Run("returns past months newest first", func(t *testing.T) {
		ledger := &stubLedger{history: []*domain.UsagePeriod{
			{TenantID: tenant.ID, Year: 2025, Month: time.June, Counts: map[domain.ResourceKind]int64{
				domain.ResourceAudioTranscription: 4,
			}},
			{TenantID: tenant.ID, Year: 2025, Month: time.May, Counts: map[domain.ResourceKind]int64{
				domain.ResourceAudioTranscription: 15,
				domain.ResourceAPICall:            120,
			}},
		}}
		h := NewUsageHandler(&stubEnforcer{}, ledger, errorTestLogger())

		req := withTenant(httptest.NewRequest("GET", "/v1/usage/history", nil), tenant)
		rec := httptest.NewRecorder()

		h.History(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var body usageHistoryResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Periods, 2)
		assert.Equal(t, 2025, body.Periods[0].Year)
		assert.Equal(t, time.June, body.Periods[0].Month)
		assert.Equal(t, int64(4), body.Periods[0].Usage["audio_transcription"])
		assert.Equal(t, int64(15), body.Periods[1].Usage["audio_transcription"])
		assert.Equal(t, int64(120), body.Periods[1].Usage["api_call"])
		// Resources without a counter read as zero, never missing
		assert.Equal(t, int64(0), body.Periods[0].Usage["report_generation"])
	})

	t.Run("months must be a positive integer", func(t *testing.T) {
		ledger := &stubLedger{}
		h := NewUsageHandler(&stubEnforcer{}, ledger, errorTestLogger())

		for _, raw := range []string{"abc", "0", "-3"} {
			req := withTenant(httptest.NewRequest("GET", "/v1/usage/history?months="+raw, nil), tenant)
			rec := httptest.NewRecorder()

			h.History(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code, "months=%s", raw)
		}
		assert.Empty(t, ledger.monthsAsked)
	})

	t.Run("months is capped", func(t *testing.T) {
		ledger := &stubLedger{}
		h := NewUsageHandler(&stubEnforcer{}, ledger, errorTestLogger())

		req := withTenant(httptest.NewRequest("GET", "/v1/usage/history?months=999", nil), tenant)
		rec := httptest.NewRecorder()

		h.History(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []int32{maxHistoryMonths}, ledger.monthsAsked)
	})

	t.Run("no history is an empty array, not null", func(t *testing.T) {
		h := NewUsageHandler(&stubEnforcer{}, &stubLedger{}, errorTestLogger())

		req := withTenant(httptest.NewRequest("GET", "/v1/usage/history", nil), tenant)
		rec := httptest.NewRecorder()

		h.History(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"periods":[]`)
	})

	t.Run("storage fault is a server error", func(t *testing.T) {
		ledger := &stubLedger{historyErr: domain.Internal(errors.New("connection refused"), "ledger.history", "history lookup failed")}
		h := NewUsageHandler(&stubEnforcer{}, ledger, errorTestLogger())

		req := withTenant(httptest.NewRequest("GET", "/v1/usage/history", nil), tenant)
		rec := httptest.NewRecorder()

		h.History(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})
}
