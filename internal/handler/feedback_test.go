package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vozfeed/vozfeed/internal/domain"
	"github.com/vozfeed/vozfeed/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFeedbackService returns canned feedback answers.
type stubFeedbackService struct {
	feedback *domain.Feedback
	decision domain.Decision
	items    []*domain.Feedback

	submitErr error
	getErr    error

	submitted []service.SubmitFeedbackParams
}

func (s *stubFeedbackService) Submit(ctx context.Context, tenant *domain.Tenant, params service.SubmitFeedbackParams) (*domain.Feedback, domain.Decision, error) {
	if s.submitErr != nil {
		return nil, domain.Decision{}, s.submitErr
	}
	s.submitted = append(s.submitted, params)
	if !s.decision.Allowed() {
		return nil, s.decision, nil
	}
	return s.feedback, s.decision, nil
}

func (s *stubFeedbackService) GetByID(ctx context.Context, tenant *domain.Tenant, id uuid.UUID) (*domain.Feedback, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.feedback, nil
}

func (s *stubFeedbackService) List(ctx context.Context, tenant *domain.Tenant, limit int32) ([]*domain.Feedback, error) {
	return s.items, nil
}

func pendingFeedback(tenant *domain.Tenant) *domain.Feedback {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	return &domain.Feedback{
		ID:          uuid.New(),
		TenantID:    tenant.ID,
		ClientName:  "Dona Maria",
		ContentType: "audio/mpeg",
		Status:      domain.FeedbackStatusPending,
		Rating:      4,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func submitBody(t *testing.T) string {
	t.Helper()
	audio := base64.StdEncoding.EncodeToString([]byte("fake mp3 bytes"))
	return fmt.Sprintf(`{"client_name": "Dona Maria", "content_type": "audio/mpeg", "rating": 4, "audio": %q}`, audio)
}

func TestSubmitFeedback(t *testing.T) {
	tenant := testTenant()

	t.Run("accepted for background processing", func(t *testing.T) {
		svc := &stubFeedbackService{decision: domain.Allow(), feedback: pendingFeedback(tenant)}
		h := NewFeedbackHandler(svc, errorTestLogger())

		req := withTenant(httptest.NewRequest("POST", "/v1/feedback/audio", strings.NewReader(submitBody(t))), tenant)
		rec := httptest.NewRecorder()

		h.Submit(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "pending", body["status"])
		assert.Equal(t, "Dona Maria", body["client_name"])

		// The handler decoded the base64 before handing off
		require.Len(t, svc.submitted, 1)
		assert.Equal(t, []byte("fake mp3 bytes"), svc.submitted[0].Audio)
	})

	t.Run("denial is answered with the decision", func(t *testing.T) {
		svc := &stubFeedbackService{decision: domain.DenyQuotaExceeded(domain.ResourceAudioTranscription, 5, 5)}
		h := NewFeedbackHandler(svc, errorTestLogger())

		req := withTenant(httptest.NewRequest("POST", "/v1/feedback/audio", strings.NewReader(submitBody(t))), tenant)
		rec := httptest.NewRecorder()

		h.Submit(rec, req)

		assert.Equal(t, http.StatusPaymentRequired, rec.Code)

		var decision domain.Decision
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
		assert.Equal(t, domain.DecisionQuotaExceeded, decision.Code)
		assert.Equal(t, int64(5), decision.Limit)
	})

	t.Run("audio must be base64", func(t *testing.T) {
		svc := &stubFeedbackService{decision: domain.Allow()}
		h := NewFeedbackHandler(svc, errorTestLogger())

		req := withTenant(httptest.NewRequest("POST", "/v1/feedback/audio", strings.NewReader(`{"audio": "not base64!!!", "content_type": "audio/mpeg"}`)), tenant)
		rec := httptest.NewRecorder()

		h.Submit(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, svc.submitted)
	})

	t.Run("validation failures surface as bad requests", func(t *testing.T) {
		svc := &stubFeedbackService{submitErr: domain.Invalid("feedback.submit", "rating must be between 1 and 5")}
		h := NewFeedbackHandler(svc, errorTestLogger())

		req := withTenant(httptest.NewRequest("POST", "/v1/feedback/audio", strings.NewReader(submitBody(t))), tenant)
		rec := httptest.NewRecorder()

		h.Submit(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetFeedback(t *testing.T) {
	tenant := testTenant()

	t.Run("returns the processed result", func(t *testing.T) {
		feedback := pendingFeedback(tenant)
		feedback.Status = domain.FeedbackStatusCompleted
		feedback.Transcript = "O atendimento foi otimo"
		feedback.Sentiment = domain.SentimentPositive

		h := NewFeedbackHandler(&stubFeedbackService{feedback: feedback}, errorTestLogger())

		req := withTenant(httptest.NewRequest("GET", "/v1/feedback/"+feedback.ID.String(), nil), tenant)
		req.SetPathValue("id", feedback.ID.String())
		rec := httptest.NewRecorder()

		h.Get(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "completed", body["status"])
		assert.Equal(t, "O atendimento foi otimo", body["transcript"])
		assert.Equal(t, "positive", body["sentiment"])
	})

	t.Run("malformed id", func(t *testing.T) {
		h := NewFeedbackHandler(&stubFeedbackService{}, errorTestLogger())

		req := withTenant(httptest.NewRequest("GET", "/v1/feedback/not-a-uuid", nil), tenant)
		req.SetPathValue("id", "not-a-uuid")
		rec := httptest.NewRecorder()

		h.Get(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("cross-tenant feedback reads as not found", func(t *testing.T) {
		id := uuid.New()
		h := NewFeedbackHandler(&stubFeedbackService{getErr: domain.NotFound("feedback.get", "feedback", id.String())}, errorTestLogger())

		req := withTenant(httptest.NewRequest("GET", "/v1/feedback/"+id.String(), nil), tenant)
		req.SetPathValue("id", id.String())
		rec := httptest.NewRecorder()

		h.Get(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListFeedback(t *testing.T) {
	tenant := testTenant()

	t.Run("returns the tenant's feedback", func(t *testing.T) {
		h := NewFeedbackHandler(&stubFeedbackService{
			items: []*domain.Feedback{pendingFeedback(tenant), pendingFeedback(tenant)},
		}, errorTestLogger())

		req := withTenant(httptest.NewRequest("GET", "/v1/feedback", nil), tenant)
		rec := httptest.NewRecorder()

		h.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var body listFeedbackResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Len(t, body.Feedback, 2)
	})

	t.Run("limit must be numeric", func(t *testing.T) {
		h := NewFeedbackHandler(&stubFeedbackService{}, errorTestLogger())

		req := withTenant(httptest.NewRequest("GET", "/v1/feedback?limit=abc", nil), tenant)
		rec := httptest.NewRecorder()

		h.List(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty list is an empty array, not null", func(t *testing.T) {
		h := NewFeedbackHandler(&stubFeedbackService{}, errorTestLogger())

		req := withTenant(httptest.NewRequest("GET", "/v1/feedback", nil), tenant)
		rec := httptest.NewRecorder()

		h.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"feedback":[]`)
	})
}
