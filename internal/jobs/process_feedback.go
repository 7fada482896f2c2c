// Package jobs contains the background job handlers run by the worker pool.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/vozfeed/vozfeed/internal/ai"
	"github.com/vozfeed/vozfeed/internal/domain"
	"github.com/vozfeed/vozfeed/internal/metrics"
	"github.com/vozfeed/vozfeed/internal/repository"
	"github.com/vozfeed/vozfeed/internal/service"
	"github.com/vozfeed/vozfeed/internal/storage"
	"github.com/vozfeed/vozfeed/internal/transcribe"
	"github.com/vozfeed/vozfeed/internal/worker"
	"github.com/google/uuid"
)

// ProcessFeedbackStore is the storage surface the handler needs.
type ProcessFeedbackStore interface {
	GetFeedback(ctx context.Context, id uuid.UUID) (repository.Feedback, error)
	SetFeedbackStatus(ctx context.Context, id uuid.UUID, status string) error
	CompleteFeedback(ctx context.Context, id uuid.UUID, transcript, sentiment string) error
}

// ProcessFeedbackHandler runs the feedback pipeline: download the audio,
// transcribe it, classify the sentiment, and charge the tenant's usage
// counters once everything succeeded.
type ProcessFeedbackHandler struct {
	store       ProcessFeedbackStore
	tenants     service.TenantService
	enforcer    service.Enforcer
	files       storage.Storage
	transcriber transcribe.Transcriber
	aiProvider  ai.Provider
	logger      *slog.Logger
}

// NewProcessFeedbackHandler creates a new handler for feedback processing jobs.
func NewProcessFeedbackHandler(
	store ProcessFeedbackStore,
	tenants service.TenantService,
	enforcer service.Enforcer,
	files storage.Storage,
	transcriber transcribe.Transcriber,
	aiProvider ai.Provider,
	logger *slog.Logger,
) *ProcessFeedbackHandler {
	return &ProcessFeedbackHandler{
		store:       store,
		tenants:     tenants,
		enforcer:    enforcer,
		files:       files,
		transcriber: transcriber,
		aiProvider:  aiProvider,
		logger:      logger,
	}
}

// Type returns the job type identifier.
func (h *ProcessFeedbackHandler) Type() string {
	return worker.JobTypeProcessFeedback
}

// Handle executes the feedback processing job.
func (h *ProcessFeedbackHandler) Handle(ctx context.Context, payload []byte) error {
	var p worker.ProcessFeedbackPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}

	logger := h.logger.With("feedback_id", p.FeedbackID, "tenant_id", p.TenantID)
	logger.Info("processing feedback")

	feedback, err := h.store.GetFeedback(ctx, p.FeedbackID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return worker.NewPermanentError(fmt.Errorf("feedback not found: %w", err))
		}
		return fmt.Errorf("fetch feedback: %w", err)
	}
	if feedback.TenantID != p.TenantID {
		return worker.NewPermanentError(fmt.Errorf("feedback does not belong to tenant"))
	}
	if domain.FeedbackStatus(feedback.Status) == domain.FeedbackStatusCompleted {
		// Redelivered after a crash between completion and job ack.
		logger.Info("feedback already completed, skipping")
		return nil
	}

	if err := h.store.SetFeedbackStatus(ctx, feedback.ID, string(domain.FeedbackStatusProcessing)); err != nil {
		return fmt.Errorf("mark feedback processing: %w", err)
	}

	tenant, err := h.tenants.GetByID(ctx, p.TenantID)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			return h.fail(ctx, feedback.ID, worker.NewPermanentError(err))
		}
		return fmt.Errorf("fetch tenant: %w", err)
	}

	transcript, err := h.transcribeAudio(ctx, feedback, logger)
	if err != nil {
		if worker.IsPermanent(err) {
			return h.fail(ctx, feedback.ID, err)
		}
		return err
	}

	depth, aiResource := analysisForTier(tenant.PlanTier)
	analysis, err := h.aiProvider.AnalyzeTranscript(ctx, ai.AnalyzeParams{
		Transcript: transcript,
		Depth:      depth,
		FeedbackID: feedback.ID,
		TenantID:   tenant.ID,
	})
	if err != nil {
		if ai.IsRetryable(err) {
			return fmt.Errorf("ai analysis (retryable): %w", err)
		}
		if errors.Is(err, ai.EAIInvalidInput) {
			return h.fail(ctx, feedback.ID, worker.NewPermanentError(fmt.Errorf("ai analysis: %w", err)))
		}
		return fmt.Errorf("ai analysis: %w", err)
	}

	if err := h.store.CompleteFeedback(ctx, feedback.ID, transcript, string(analysis.Sentiment)); err != nil {
		return fmt.Errorf("complete feedback: %w", err)
	}

	// Consumption is charged only now that the whole pipeline succeeded.
	// A failed charge is logged rather than retried: re-running the job
	// would redo the paid provider calls for a counter the tenant benefits
	// from missing.
	if err := h.enforcer.RecordSuccess(ctx, tenant, domain.ResourceAudioTranscription); err != nil {
		logger.Error("failed to record transcription usage", "error", err)
	}
	if err := h.enforcer.RecordSuccess(ctx, tenant, aiResource); err != nil {
		logger.Error("failed to record ai analysis usage", "error", err)
	}

	metrics.FeedbackProcessed.WithLabelValues("completed").Inc()
	logger.Info("feedback processed",
		"sentiment", analysis.Sentiment,
		"transcript_chars", len(transcript),
		"cost_cents", analysis.Usage.CostCents,
	)

	return nil
}

// transcribeAudio downloads the audio blob and runs speech-to-text.
func (h *ProcessFeedbackHandler) transcribeAudio(ctx context.Context, feedback repository.Feedback, logger *slog.Logger) (string, error) {
	reader, objInfo, err := h.files.Get(ctx, feedback.AudioKey)
	if err != nil {
		if storage.IsNotFound(err) {
			return "", worker.NewPermanentError(fmt.Errorf("audio blob missing: %w", err))
		}
		return "", fmt.Errorf("download audio: %w", err)
	}
	defer reader.Close()

	audio, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}

	logger.Debug("downloaded audio", "size_bytes", len(audio), "content_type", objInfo.ContentType)

	result, err := h.transcriber.Transcribe(ctx, transcribe.TranscribeParams{
		Audio:       audio,
		ContentType: feedback.ContentType,
		FeedbackID:  feedback.ID,
		TenantID:    feedback.TenantID,
	})
	if err != nil {
		if transcribe.IsRetryable(err) {
			return "", fmt.Errorf("transcription (retryable): %w", err)
		}
		if errors.Is(err, transcribe.ErrInvalidAudio) {
			return "", worker.NewPermanentError(fmt.Errorf("transcription: %w", err))
		}
		return "", fmt.Errorf("transcription: %w", err)
	}

	return result.Text, nil
}

// fail marks the feedback failed before surfacing the permanent error.
func (h *ProcessFeedbackHandler) fail(ctx context.Context, feedbackID uuid.UUID, cause error) error {
	if err := h.store.SetFeedbackStatus(ctx, feedbackID, string(domain.FeedbackStatusFailed)); err != nil {
		h.logger.Error("failed to mark feedback failed", "feedback_id", feedbackID, "error", err)
	}
	metrics.FeedbackProcessed.WithLabelValues("failed").Inc()
	return cause
}

// analysisForTier maps a plan tier to the analysis depth it is entitled to
// and the metered resource that charge lands on.
func analysisForTier(tier domain.PlanTier) (ai.AnalysisDepth, domain.ResourceKind) {
	switch tier {
	case domain.PlanTierPro:
		return ai.DepthAdvanced, domain.ResourceAdvancedAIAnalysis
	case domain.PlanTierEnterprise:
		return ai.DepthCustom, domain.ResourceCustomAIAnalysis
	default:
		return ai.DepthBasic, domain.ResourceBasicAIAnalysis
	}
}
