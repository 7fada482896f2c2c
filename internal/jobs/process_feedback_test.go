package jobs

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/vozfeed/vozfeed/internal/ai"
	aimock "github.com/vozfeed/vozfeed/internal/ai/mock"
	"github.com/vozfeed/vozfeed/internal/domain"
	"github.com/vozfeed/vozfeed/internal/repository"
	"github.com/vozfeed/vozfeed/internal/service"
	"github.com/vozfeed/vozfeed/internal/storage"
	"github.com/vozfeed/vozfeed/internal/transcribe"
	transcribemock "github.com/vozfeed/vozfeed/internal/transcribe/mock"
	"github.com/vozfeed/vozfeed/internal/worker"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeStore is an in-memory ProcessFeedbackStore.
type fakeStore struct {
	feedback    map[uuid.UUID]repository.Feedback
	statuses    []string
	completed   bool
	transcript  string
	sentiment   string
	completeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{feedback: make(map[uuid.UUID]repository.Feedback)}
}

func (f *fakeStore) GetFeedback(ctx context.Context, id uuid.UUID) (repository.Feedback, error) {
	row, ok := f.feedback[id]
	if !ok {
		return repository.Feedback{}, sql.ErrNoRows
	}
	return row, nil
}

func (f *fakeStore) SetFeedbackStatus(ctx context.Context, id uuid.UUID, status string) error {
	f.statuses = append(f.statuses, status)
	row := f.feedback[id]
	row.Status = status
	f.feedback[id] = row
	return nil
}

func (f *fakeStore) CompleteFeedback(ctx context.Context, id uuid.UUID, transcript, sentiment string) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completed = true
	f.transcript = transcript
	f.sentiment = sentiment
	row := f.feedback[id]
	row.Status = string(domain.FeedbackStatusCompleted)
	f.feedback[id] = row
	return nil
}

// stubTenantService serves a single tenant.
type stubTenantService struct {
	tenant *domain.Tenant
}

func (s *stubTenantService) Signup(ctx context.Context, params service.SignupParams) (*domain.Tenant, error) {
	return s.tenant, nil
}

func (s *stubTenantService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	if s.tenant == nil || s.tenant.ID != id {
		return nil, domain.NotFound("tenant.get", "tenant", id.String())
	}
	return s.tenant, nil
}

func (s *stubTenantService) GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.Tenant, error) {
	return s.tenant, nil
}

func (s *stubTenantService) ApplyPlanChange(ctx context.Context, tenantID uuid.UUID, tier domain.PlanTier, periodEnd time.Time) (bool, error) {
	return true, nil
}

func (s *stubTenantService) SetActive(ctx context.Context, tenantID uuid.UUID, active bool) error {
	return nil
}

// fakeEnforcer records usage charges.
type fakeEnforcer struct {
	recorded  []domain.ResourceKind
	recordErr error
}

func (f *fakeEnforcer) Authorize(ctx context.Context, tenant *domain.Tenant, kind domain.ResourceKind) (domain.Decision, error) {
	return domain.Allow(), nil
}

func (f *fakeEnforcer) RecordSuccess(ctx context.Context, tenant *domain.Tenant, kind domain.ResourceKind) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded = append(f.recorded, kind)
	return nil
}

func (f *fakeEnforcer) FreeTierEligibility(ctx context.Context, rawCNPJ string) (*domain.FreeTierEligibility, error) {
	return &domain.FreeTierEligibility{Eligible: true}, nil
}

func (f *fakeEnforcer) UsageSummary(ctx context.Context, tenant *domain.Tenant) (*domain.UsageSummary, error) {
	return &domain.UsageSummary{}, nil
}

// fakeStorage keeps blobs in a map.
type fakeStorage struct {
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) Put(ctx context.Context, key string, data io.Reader, opts storage.PutOptions) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[key] = b
	return nil
}

func (f *fakeStorage) Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	b, ok := f.objects[key]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), storage.ObjectInfo{Key: key, Size: int64(len(b))}, nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeStorage) URL(ctx context.Context, key string, expires time.Duration) (string, error) {
	return "http://files.test/" + key, nil
}

func (f *fakeStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := f.objects[key]
	return ok, nil
}

type pipelineFixture struct {
	handler     *ProcessFeedbackHandler
	store       *fakeStore
	enforcer    *fakeEnforcer
	files       *fakeStorage
	transcriber *transcribemock.Provider
	aiProvider  *aimock.Provider
	tenant      *domain.Tenant
	feedbackID  uuid.UUID
}

func newPipelineFixture(t *testing.T, tier domain.PlanTier) *pipelineFixture {
	t.Helper()

	logger := testLogger()
	store := newFakeStore()
	enforcer := &fakeEnforcer{}
	files := newFakeStorage()
	transcriber := transcribemock.New(logger)
	aiProvider := aimock.New(logger)

	tenant := &domain.Tenant{ID: uuid.New(), PlanTier: tier, IsActive: true}
	tenants := &stubTenantService{tenant: tenant}

	feedbackID := uuid.New()
	audioKey := "feedback/" + tenant.ID.String() + "/" + feedbackID.String() + ".mp3"
	store.feedback[feedbackID] = repository.Feedback{
		ID:          feedbackID,
		TenantID:    tenant.ID,
		AudioKey:    audioKey,
		ContentType: "audio/mpeg",
		Status:      string(domain.FeedbackStatusPending),
	}
	files.objects[audioKey] = []byte("fake mp3 bytes")

	return &pipelineFixture{
		handler:     NewProcessFeedbackHandler(store, tenants, enforcer, files, transcriber, aiProvider, logger),
		store:       store,
		enforcer:    enforcer,
		files:       files,
		transcriber: transcriber,
		aiProvider:  aiProvider,
		tenant:      tenant,
		feedbackID:  feedbackID,
	}
}

func (f *pipelineFixture) payload(t *testing.T) []byte {
	t.Helper()
	b, err := json.Marshal(worker.ProcessFeedbackPayload{FeedbackID: f.feedbackID, TenantID: f.tenant.ID})
	require.NoError(t, err)
	return b
}

func TestHandle_CompletesPipelineAndChargesUsage(t *testing.T) {
	f := newPipelineFixture(t, domain.PlanTierFree)

	err := f.handler.Handle(context.Background(), f.payload(t))
	require.NoError(t, err)

	assert.True(t, f.store.completed)
	assert.NotEmpty(t, f.store.transcript)
	assert.NotEmpty(t, f.store.sentiment)
	assert.Equal(t, 1, f.transcriber.TranscribeCalls)
	assert.Equal(t, 1, f.aiProvider.AnalyzeCalls)

	// Charged once for transcription, once for the tier's analysis resource
	assert.Equal(t, []domain.ResourceKind{
		domain.ResourceAudioTranscription,
		domain.ResourceBasicAIAnalysis,
	}, f.enforcer.recorded)
}

func TestHandle_AnalysisResourceFollowsTier(t *testing.T) {
	tests := []struct {
		tier domain.PlanTier
		want domain.ResourceKind
	}{
		{domain.PlanTierFree, domain.ResourceBasicAIAnalysis},
		{domain.PlanTierPro, domain.ResourceAdvancedAIAnalysis},
		{domain.PlanTierEnterprise, domain.ResourceCustomAIAnalysis},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			f := newPipelineFixture(t, tt.tier)

			require.NoError(t, f.handler.Handle(context.Background(), f.payload(t)))
			require.Len(t, f.enforcer.recorded, 2)
			assert.Equal(t, tt.want, f.enforcer.recorded[1])
		})
	}
}

func TestHandle_BadPayloadIsPermanent(t *testing.T) {
	f := newPipelineFixture(t, domain.PlanTierFree)

	err := f.handler.Handle(context.Background(), []byte("{not json"))
	require.Error(t, err)
	assert.True(t, worker.IsPermanent(err))
}

func TestHandle_MissingFeedbackIsPermanent(t *testing.T) {
	f := newPipelineFixture(t, domain.PlanTierFree)

	b, err := json.Marshal(worker.ProcessFeedbackPayload{FeedbackID: uuid.New(), TenantID: f.tenant.ID})
	require.NoError(t, err)

	err = f.handler.Handle(context.Background(), b)
	require.Error(t, err)
	assert.True(t, worker.IsPermanent(err))
}

func TestHandle_TenantMismatchIsPermanent(t *testing.T) {
	f := newPipelineFixture(t, domain.PlanTierFree)

	b, err := json.Marshal(worker.ProcessFeedbackPayload{FeedbackID: f.feedbackID, TenantID: uuid.New()})
	require.NoError(t, err)

	err = f.handler.Handle(context.Background(), b)
	require.Error(t, err)
	assert.True(t, worker.IsPermanent(err))
}

func TestHandle_CompletedFeedbackIsSkipped(t *testing.T) {
	f := newPipelineFixture(t, domain.PlanTierFree)
	row := f.store.feedback[f.feedbackID]
	row.Status = string(domain.FeedbackStatusCompleted)
	f.store.feedback[f.feedbackID] = row

	require.NoError(t, f.handler.Handle(context.Background(), f.payload(t)))

	// Nothing ran and nothing was charged twice
	assert.Equal(t, 0, f.transcriber.TranscribeCalls)
	assert.Equal(t, 0, f.aiProvider.AnalyzeCalls)
	assert.Empty(t, f.enforcer.recorded)
}

func TestHandle_MissingBlobFailsPermanently(t *testing.T) {
	f := newPipelineFixture(t, domain.PlanTierFree)
	f.files.objects = map[string][]byte{}

	err := f.handler.Handle(context.Background(), f.payload(t))
	require.Error(t, err)
	assert.True(t, worker.IsPermanent(err))
	assert.Equal(t, string(domain.FeedbackStatusFailed), f.store.feedback[f.feedbackID].Status)
}

func TestHandle_RetryableTranscriptionErrorPropagates(t *testing.T) {
	f := newPipelineFixture(t, domain.PlanTierFree)
	f.transcriber.TranscribeError = transcribe.ErrRateLimit

	err := f.handler.Handle(context.Background(), f.payload(t))
	require.Error(t, err)
	assert.False(t, worker.IsPermanent(err))

	// The feedback stays processing so the retry picks it back up
	assert.NotEqual(t, string(domain.FeedbackStatusFailed), f.store.feedback[f.feedbackID].Status)
	assert.Empty(t, f.enforcer.recorded)
}

func TestHandle_InvalidAudioFailsPermanently(t *testing.T) {
	f := newPipelineFixture(t, domain.PlanTierFree)
	f.transcriber.TranscribeError = transcribe.ErrInvalidAudio

	err := f.handler.Handle(context.Background(), f.payload(t))
	require.Error(t, err)
	assert.True(t, worker.IsPermanent(err))
	assert.Equal(t, string(domain.FeedbackStatusFailed), f.store.feedback[f.feedbackID].Status)
}

func TestHandle_RetryableAIErrorPropagates(t *testing.T) {
	f := newPipelineFixture(t, domain.PlanTierFree)
	f.aiProvider.AnalyzeError = ai.EAIUnavailable

	err := f.handler.Handle(context.Background(), f.payload(t))
	require.Error(t, err)
	assert.False(t, worker.IsPermanent(err))
	assert.False(t, f.store.completed)
	assert.Empty(t, f.enforcer.recorded)
}

func TestHandle_ChargeFailureDoesNotFailTheJob(t *testing.T) {
	f := newPipelineFixture(t, domain.PlanTierFree)
	f.enforcer.recordErr = context.DeadlineExceeded

	// The pipeline result is kept even when the usage charge fails; the
	// job must not rerun the paid provider calls over a lost counter.
	require.NoError(t, f.handler.Handle(context.Background(), f.payload(t)))
	assert.True(t, f.store.completed)
}
