package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Provider defines the interface for AI-powered feedback transcript analysis
type Provider interface {
	// AnalyzeTranscript classifies the sentiment of a feedback transcript
	// and extracts a summary and topics
	AnalyzeTranscript(ctx context.Context, params AnalyzeParams) (*AnalysisResult, error)
}

// AnalysisDepth selects how much the model is asked to do. The depth a
// tenant gets is decided by its plan before this package is called.
type AnalysisDepth string

const (
	// DepthBasic returns sentiment only
	DepthBasic AnalysisDepth = "basic"

	// DepthAdvanced adds a summary and topic extraction
	DepthAdvanced AnalysisDepth = "advanced"

	// DepthCustom additionally applies tenant-supplied instructions
	DepthCustom AnalysisDepth = "custom"
)

// Valid checks if the analysis depth is valid
func (d AnalysisDepth) Valid() bool {
	switch d {
	case DepthBasic, DepthAdvanced, DepthCustom:
		return true
	default:
		return false
	}
}

// AnalyzeParams contains parameters for transcript analysis
type AnalyzeParams struct {
	Transcript   string        // Transcribed feedback text
	Depth        AnalysisDepth // How deep the analysis should go
	Instructions string        // Tenant-supplied instructions (DepthCustom only)
	FeedbackID   uuid.UUID     // Feedback ID for tracking
	TenantID     uuid.UUID     // Tenant ID for usage tracking
}

// AnalysisResult contains the complete analysis of a feedback transcript
type AnalysisResult struct {
	Sentiment Sentiment // Overall sentiment classification
	Summary   string    // One-paragraph summary (advanced and custom only)
	Topics    []string  // Extracted topics (advanced and custom only)
	Usage     UsageInfo // Token usage and cost information
}

// UsageInfo tracks API usage for billing and monitoring
type UsageInfo struct {
	Model        string        // AI model used
	InputTokens  int           // Tokens in the request
	OutputTokens int           // Tokens in the response
	CostCents    int           // Estimated cost in cents
	Duration     time.Duration // Request duration
}

// Sentiment is the coarse classification of a transcript
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Valid checks if the sentiment value is valid
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	default:
		return false
	}
}

// ProviderConfig contains common configuration for AI providers
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for AI provider operations
var (
	// EAIRateLimit indicates the API rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIInvalidInput indicates the transcript is empty or malformed
	EAIInvalidInput = errors.New("invalid transcript input")

	// EAITimeout indicates the request timed out
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the AI service is temporarily unavailable
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}
