// Package openai implements the transcribe.Transcriber interface against
// OpenAI's Whisper audio transcription API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/vozfeed/vozfeed/internal/metrics"
	"github.com/vozfeed/vozfeed/internal/transcribe"
)

const (
	// APIBaseURL is the transcriptions endpoint
	APIBaseURL = "https://api.openai.com/v1/audio/transcriptions"

	// DefaultModel is the default Whisper model to use
	DefaultModel = "whisper-1"

	// MaxAudioSize is the API's upload limit (25MB)
	MaxAudioSize = 25 * 1024 * 1024
)

// Config contains configuration for the OpenAI transcription provider
type Config struct {
	APIKey         string
	Model          string
	ProviderConfig transcribe.ProviderConfig
}

// Provider implements transcribe.Transcriber using the Whisper API
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new OpenAI transcription provider
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.ProviderConfig.MaxRetries == 0 {
		config.ProviderConfig.MaxRetries = 3
	}
	if config.ProviderConfig.RetryBaseDelay == 0 {
		config.ProviderConfig.RetryBaseDelay = 1 * time.Second
	}
	if config.ProviderConfig.RequestTimeout == 0 {
		// Transcription is slow for long recordings
		config.ProviderConfig.RequestTimeout = 120 * time.Second
	}

	return &Provider{
		config: config,
		client: &http.Client{
			Timeout: config.ProviderConfig.RequestTimeout,
		},
		logger: logger,
	}, nil
}

// Transcribe converts feedback audio to text
func (p *Provider) Transcribe(ctx context.Context, params transcribe.TranscribeParams) (*transcribe.Result, error) {
	startTime := time.Now()

	if err := p.validateParams(params); err != nil {
		return nil, transcribe.WrapError("transcribe", err)
	}

	// Each attempt rebuilds the multipart body; it cannot be replayed.
	resp, err := p.executeWithRetry(ctx, params)
	if err != nil {
		metrics.TranscriptionCalls.WithLabelValues("error").Inc()
		return nil, transcribe.WrapError("execute request", err)
	}
	metrics.TranscriptionCalls.WithLabelValues("ok").Inc()

	result := &transcribe.Result{
		Text:     resp.Text,
		Language: resp.Language,
		Model:    p.config.Model,
		Duration: time.Since(startTime),
	}

	p.logger.Debug("audio transcribed",
		"feedback_id", params.FeedbackID,
		"language", result.Language,
		"chars", len(result.Text),
	)

	return result, nil
}

// validateParams validates the transcription parameters
func (p *Provider) validateParams(params transcribe.TranscribeParams) error {
	if len(params.Audio) == 0 {
		return transcribe.ErrInvalidAudio
	}
	if len(params.Audio) > MaxAudioSize {
		return fmt.Errorf("%w: audio size %d exceeds maximum %d", transcribe.ErrInvalidAudio, len(params.Audio), MaxAudioSize)
	}
	if params.ContentType == "" {
		return fmt.Errorf("%w: content type is required", transcribe.ErrInvalidAudio)
	}
	return nil
}

// executeWithRetry runs the request with exponential backoff on transient errors
func (p *Provider) executeWithRetry(ctx context.Context, params transcribe.TranscribeParams) (*apiResponse, error) {
	var lastErr error

	for attempt := 1; attempt <= p.config.ProviderConfig.MaxRetries; attempt++ {
		req, err := p.buildRequest(ctx, params)
		if err != nil {
			return nil, err
		}

		resp, err := p.executeRequest(req)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !transcribe.IsRetryable(err) {
			return nil, err
		}

		if attempt >= p.config.ProviderConfig.MaxRetries {
			break
		}

		// Exponential backoff: base * 2^(attempt-1)
		delay := p.config.ProviderConfig.RetryBaseDelay * time.Duration(1<<(attempt-1))
		p.logger.Info("retrying transcription request", "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// buildRequest builds the multipart upload request
func (p *Provider) buildRequest(ctx context.Context, params transcribe.TranscribeParams) (*http.Request, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	filePart, err := writer.CreateFormFile("file", "audio"+extensionFor(params.ContentType))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := filePart.Write(params.Audio); err != nil {
		return nil, fmt.Errorf("write audio: %w", err)
	}

	if err := writer.WriteField("model", p.config.Model); err != nil {
		return nil, fmt.Errorf("write model field: %w", err)
	}
	if params.Language != "" {
		if err := writer.WriteField("language", params.Language); err != nil {
			return nil, fmt.Errorf("write language field: %w", err)
		}
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, fmt.Errorf("write format field: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", APIBaseURL, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	return req, nil
}

// executeRequest executes a single HTTP request
func (p *Provider) executeRequest(req *http.Request) (*apiResponse, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		// Network errors are typically retryable
		return nil, transcribe.ErrUnavailable
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.mapHTTPError(resp.StatusCode, bodyBytes)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &apiResp, nil
}

// mapHTTPError maps HTTP status codes to domain errors
func (p *Provider) mapHTTPError(statusCode int, body []byte) error {
	var errResp apiErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch statusCode {
	case http.StatusUnauthorized:
		return transcribe.ErrUnauthorized
	case http.StatusTooManyRequests:
		return transcribe.ErrRateLimit
	case http.StatusRequestTimeout:
		return transcribe.ErrTimeout
	case http.StatusBadRequest, http.StatusUnsupportedMediaType:
		return fmt.Errorf("%w: %s", transcribe.ErrInvalidAudio, errResp.Error.Message)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return transcribe.ErrUnavailable
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, errResp.Error.Message)
	}
}

// extensionFor maps a content type to the filename extension Whisper expects
func extensionFor(contentType string) string {
	switch contentType {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/webm":
		return ".webm"
	case "audio/ogg":
		return ".ogg"
	case "audio/flac":
		return ".flac"
	default:
		return ".mp3"
	}
}

// API response types

type apiResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
