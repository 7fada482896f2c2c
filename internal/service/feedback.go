// Package service contains the business logic layer.
//
// This file implements feedback intake: authorize the transcription against
// the tenant's plan, persist the audio blob, create the feedback record, and
// hand processing off to the background worker.
package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/vozfeed/vozfeed/internal/domain"
	"github.com/vozfeed/vozfeed/internal/metrics"
	"github.com/vozfeed/vozfeed/internal/repository"
	"github.com/vozfeed/vozfeed/internal/storage"
	"github.com/vozfeed/vozfeed/internal/worker"
	"github.com/google/uuid"
)

// MaxAudioSize is the upload cap for a single feedback audio.
const MaxAudioSize = 25 * 1024 * 1024 // 25MB

// =============================================================================
// Interface Definitions
// =============================================================================

// FeedbackStore is the storage surface the feedback service depends on.
type FeedbackStore interface {
	CreateFeedback(ctx context.Context, arg repository.CreateFeedbackParams) (repository.Feedback, error)
	GetFeedback(ctx context.Context, id uuid.UUID) (repository.Feedback, error)
	ListFeedbackByTenant(ctx context.Context, tenantID uuid.UUID, limit int32) ([]repository.Feedback, error)
	EnqueueJob(ctx context.Context, arg repository.EnqueueJobParams) (repository.Job, error)
}

// SubmitFeedbackParams describes one incoming audio feedback.
type SubmitFeedbackParams struct {
	ClientName  string
	ClientEmail string
	ClientPhone string
	ContentType string
	Audio       []byte
	Rating      int32 // 0 means unrated
}

// FeedbackService receives audio feedback and exposes processed results.
type FeedbackService interface {
	// Submit checks the tenant's transcription allowance, stores the audio,
	// and queues processing. A policy denial comes back as the Decision with
	// a nil feedback; the error return is for faults only. Consumption is
	// charged when processing succeeds, not at intake.
	Submit(ctx context.Context, tenant *domain.Tenant, params SubmitFeedbackParams) (*domain.Feedback, domain.Decision, error)

	// GetByID fetches one feedback belonging to the tenant.
	GetByID(ctx context.Context, tenant *domain.Tenant, id uuid.UUID) (*domain.Feedback, error)

	// List returns the tenant's feedback, newest first.
	List(ctx context.Context, tenant *domain.Tenant, limit int32) ([]*domain.Feedback, error)
}

// =============================================================================
// Implementation
// =============================================================================

type feedbackService struct {
	store    FeedbackStore
	enforcer Enforcer
	files    storage.Storage
	logger   *slog.Logger
}

// NewFeedbackService creates a new FeedbackService.
func NewFeedbackService(store FeedbackStore, enforcer Enforcer, files storage.Storage, logger *slog.Logger) FeedbackService {
	return &feedbackService{
		store:    store,
		enforcer: enforcer,
		files:    files,
		logger:   logger,
	}
}

func (s *feedbackService) Submit(ctx context.Context, tenant *domain.Tenant, params SubmitFeedbackParams) (*domain.Feedback, domain.Decision, error) {
	const op = "feedback.submit"

	if len(params.Audio) == 0 {
		return nil, domain.Decision{}, domain.Invalid(op, "audio data is required")
	}
	if len(params.Audio) > MaxAudioSize {
		return nil, domain.Decision{}, domain.Invalid(op, "audio exceeds the 25MB limit")
	}
	if !storage.IsAllowedAudioType(params.ContentType) {
		return nil, domain.Decision{}, domain.Invalid(op, "unsupported audio content type: "+params.ContentType)
	}
	if params.Rating < 0 || params.Rating > 5 {
		return nil, domain.Decision{}, domain.Invalid(op, "rating must be 0 (unrated) or between 1 and 5")
	}

	decision, err := s.enforcer.Authorize(ctx, tenant, domain.ResourceAudioTranscription)
	if err != nil {
		return nil, domain.Decision{}, err
	}
	if !decision.Allowed() {
		return nil, decision, nil
	}

	feedbackID := uuid.New()
	key := storage.AudioKey(tenant.ID, feedbackID, params.ContentType)

	err = s.files.Put(ctx, key, bytes.NewReader(params.Audio), storage.PutOptions{
		ContentType: params.ContentType,
		MaxSize:     MaxAudioSize,
	})
	if err != nil {
		return nil, domain.Decision{}, domain.Internal(err, op, "failed to store audio")
	}

	row, err := s.store.CreateFeedback(ctx, repository.CreateFeedbackParams{
		ID:          feedbackID,
		TenantID:    tenant.ID,
		ClientName:  toNullString(params.ClientName),
		ClientEmail: toNullString(params.ClientEmail),
		ClientPhone: toNullString(params.ClientPhone),
		AudioKey:    key,
		ContentType: params.ContentType,
		Rating:      toNullInt32(params.Rating),
	})
	if err != nil {
		// Best effort; the blob is orphaned otherwise.
		if delErr := s.files.Delete(ctx, key); delErr != nil {
			s.logger.Error("failed to delete orphaned audio", "key", key, "error", delErr)
		}
		return nil, domain.Decision{}, domain.Internal(err, op, "failed to create feedback record")
	}

	if _, err := worker.EnqueueProcessFeedback(ctx, s.store, row.ID, tenant.ID); err != nil {
		return nil, domain.Decision{}, domain.Internal(err, op, "failed to queue feedback processing")
	}

	metrics.FeedbackReceived.Inc()
	s.logger.Info("feedback received",
		"feedback_id", row.ID,
		"tenant_id", tenant.ID,
		"content_type", params.ContentType,
	)

	return feedbackFromRow(row), decision, nil
}

func (s *feedbackService) GetByID(ctx context.Context, tenant *domain.Tenant, id uuid.UUID) (*domain.Feedback, error) {
	const op = "feedback.get"

	row, err := s.store.GetFeedback(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "feedback", id.String())
		}
		return nil, domain.Internal(err, op, "failed to load feedback")
	}
	if row.TenantID != tenant.ID {
		// Cross-tenant probes read as not found.
		return nil, domain.NotFound(op, "feedback", id.String())
	}
	return feedbackFromRow(row), nil
}

func (s *feedbackService) List(ctx context.Context, tenant *domain.Tenant, limit int32) ([]*domain.Feedback, error) {
	const op = "feedback.list"

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.store.ListFeedbackByTenant(ctx, tenant.ID, limit)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list feedback")
	}

	items := make([]*domain.Feedback, 0, len(rows))
	for _, row := range rows {
		items = append(items, feedbackFromRow(row))
	}
	return items, nil
}

// =============================================================================
// Conversions
// =============================================================================

func feedbackFromRow(row repository.Feedback) *domain.Feedback {
	f := &domain.Feedback{
		ID:          row.ID,
		TenantID:    row.TenantID,
		ClientName:  row.ClientName.String,
		ClientEmail: row.ClientEmail.String,
		ClientPhone: row.ClientPhone.String,
		AudioKey:    row.AudioKey,
		ContentType: row.ContentType,
		Status:      domain.FeedbackStatus(row.Status),
		Transcript:  row.Transcript.String,
		Sentiment:   domain.Sentiment(row.Sentiment.String),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if row.Rating.Valid {
		f.Rating = int(row.Rating.Int32)
	}
	return f
}

func toNullInt32(v int32) sql.NullInt32 {
	if v == 0 {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: v, Valid: true}
}
