// Package handler contains HTTP handlers for the vozfeed guardrail API.
//
// This file implements audio feedback intake and retrieval.
//
// Routes:
//   - POST /v1/feedback/audio -> Submit
//   - GET  /v1/feedback       -> List
//   - GET  /v1/feedback/{id}  -> Get
//
// Intake returns 202: transcription and sentiment analysis run in the
// background worker, and quota is charged there after they succeed.
package handler

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/vozfeed/vozfeed/internal/auth"
	"github.com/vozfeed/vozfeed/internal/domain"
	"github.com/vozfeed/vozfeed/internal/service"
	"github.com/google/uuid"
)

// maxSubmitBodySize caps the intake request body. Base64 inflates the 25MB
// audio limit by a third, plus headroom for the JSON envelope.
const maxSubmitBodySize = 36 * 1024 * 1024

// FeedbackHandler receives audio feedback and serves processed results.
type FeedbackHandler struct {
	feedback service.FeedbackService
	logger   *slog.Logger
}

// NewFeedbackHandler creates a new FeedbackHandler.
func NewFeedbackHandler(feedback service.FeedbackService, logger *slog.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		feedback: feedback,
		logger:   logger,
	}
}

// RegisterRoutes registers feedback routes on the provided mux.
func (h *FeedbackHandler) RegisterRoutes(mux *http.ServeMux, requireTenant func(http.Handler) http.Handler) {
	mux.Handle("POST /v1/feedback/audio", requireTenant(http.HandlerFunc(h.Submit)))
	mux.Handle("GET /v1/feedback", requireTenant(http.HandlerFunc(h.List)))
	mux.Handle("GET /v1/feedback/{id}", requireTenant(http.HandlerFunc(h.Get)))
}

// =============================================================================
// Request / Response Types
// =============================================================================

type submitFeedbackRequest struct {
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
	ClientPhone string `json:"client_phone"`
	ContentType string `json:"content_type"`
	Rating      int32  `json:"rating"`

	// Audio is the base64-encoded audio payload.
	Audio string `json:"audio"`
}

type feedbackResponse struct {
	ID          uuid.UUID             `json:"id"`
	Status      domain.FeedbackStatus `json:"status"`
	ClientName  string                `json:"client_name,omitempty"`
	ClientEmail string                `json:"client_email,omitempty"`
	ClientPhone string                `json:"client_phone,omitempty"`
	ContentType string                `json:"content_type"`
	Rating      int                   `json:"rating,omitempty"`
	Transcript  string                `json:"transcript,omitempty"`
	Sentiment   domain.Sentiment      `json:"sentiment,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

func toFeedbackResponse(f *domain.Feedback) feedbackResponse {
	return feedbackResponse{
		ID:          f.ID,
		Status:      f.Status,
		ClientName:  f.ClientName,
		ClientEmail: f.ClientEmail,
		ClientPhone: f.ClientPhone,
		ContentType: f.ContentType,
		Rating:      f.Rating,
		Transcript:  f.Transcript,
		Sentiment:   f.Sentiment,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// =============================================================================
// Handlers
// =============================================================================

// Submit accepts one audio feedback. A guardrail denial is answered with the
// decision itself and its status code, so callers can render upgrade prompts.
func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	const op = "handler.feedback_submit"

	tenant := auth.GetTenant(r.Context())

	var req submitFeedbackRequest
	if err := decodeJSON(r, &req, maxSubmitBodySize); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "invalid request body"))
		return
	}

	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "audio must be base64 encoded"))
		return
	}

	feedback, decision, err := h.feedback.Submit(r.Context(), tenant, service.SubmitFeedbackParams{
		ClientName:  req.ClientName,
		ClientEmail: req.ClientEmail,
		ClientPhone: req.ClientPhone,
		ContentType: req.ContentType,
		Audio:       audio,
		Rating:      req.Rating,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if !decision.Allowed() {
		respondJSON(w, h.logger, decision.HTTPStatus(), decision)
		return
	}

	respondJSON(w, h.logger, http.StatusAccepted, toFeedbackResponse(feedback))
}

// Get returns one feedback. Feedback belonging to another tenant reads as
// not found.
func (h *FeedbackHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenant := auth.GetTenant(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("handler.feedback_get", "invalid feedback id"))
		return
	}

	feedback, err := h.feedback.GetByID(r.Context(), tenant, id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	respondJSON(w, h.logger, http.StatusOK, toFeedbackResponse(feedback))
}

type listFeedbackResponse struct {
	Feedback []feedbackResponse `json:"feedback"`
}

// List returns the tenant's feedback, newest first. The optional limit
// query parameter caps the page size.
func (h *FeedbackHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := auth.GetTenant(r.Context())

	var limit int32
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			ErrorResponse(w, r, h.logger, domain.Invalid("handler.feedback_list", "limit must be an integer"))
			return
		}
		limit = int32(n)
	}

	items, err := h.feedback.List(r.Context(), tenant, limit)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := listFeedbackResponse{Feedback: make([]feedbackResponse, 0, len(items))}
	for _, f := range items {
		resp.Feedback = append(resp.Feedback, toFeedbackResponse(f))
	}

	respondJSON(w, h.logger, http.StatusOK, resp)
}
