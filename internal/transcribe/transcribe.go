// Package transcribe defines the speech-to-text provider interface used by
// the feedback processing pipeline.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Transcriber converts feedback audio into text
type Transcriber interface {
	// Transcribe converts the audio to text. The audio bytes are already
	// validated against the allowed content types at intake.
	Transcribe(ctx context.Context, params TranscribeParams) (*Result, error)
}

// TranscribeParams contains parameters for a transcription request
type TranscribeParams struct {
	Audio       []byte    // Raw audio bytes
	ContentType string    // MIME type (e.g., "audio/mpeg")
	Language    string    // Optional BCP-47 hint (e.g., "pt"); empty lets the model detect
	FeedbackID  uuid.UUID // Feedback ID for tracking
	TenantID    uuid.UUID // Tenant ID for usage tracking
}

// Result contains the transcription output
type Result struct {
	Text     string        // Transcribed text
	Language string        // Detected or confirmed language
	Model    string        // Model used
	Duration time.Duration // Request duration
}

// ProviderConfig contains common configuration for transcription providers
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for transcription operations
var (
	// ErrRateLimit indicates the API rate limit has been exceeded
	ErrRateLimit = errors.New("transcription rate limit exceeded")

	// ErrInvalidAudio indicates the audio format or content is invalid
	ErrInvalidAudio = errors.New("invalid audio format or content")

	// ErrTimeout indicates the request timed out
	ErrTimeout = errors.New("transcription request timed out")

	// ErrUnavailable indicates the service is temporarily unavailable
	ErrUnavailable = errors.New("transcription service temporarily unavailable")

	// ErrUnauthorized indicates invalid API credentials
	ErrUnauthorized = errors.New("transcription provider authentication failed")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrUnavailable)
}

// WrapError wraps an error with context about the transcription operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("transcribe %s: %w", operation, err)
}
