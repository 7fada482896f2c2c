package mock

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/vozfeed/vozfeed/internal/ai"
)

// Provider is a mock AI provider for testing and development
type Provider struct {
	logger *slog.Logger

	// Configurable responses for testing
	AnalyzeResponse *ai.AnalysisResult
	AnalyzeError    error

	// Call tracking for testing
	AnalyzeCalls int
}

// New creates a new mock AI provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// AnalyzeTranscript returns a canned analysis. Without a configured response
// it applies a trivial keyword heuristic so local development shows varied
// sentiments.
func (p *Provider) AnalyzeTranscript(ctx context.Context, params ai.AnalyzeParams) (*ai.AnalysisResult, error) {
	p.AnalyzeCalls++

	if p.AnalyzeError != nil {
		return nil, p.AnalyzeError
	}
	if p.AnalyzeResponse != nil {
		return p.AnalyzeResponse, nil
	}

	sentiment := ai.SentimentNeutral
	lower := strings.ToLower(params.Transcript)
	switch {
	case strings.Contains(lower, "ótimo") || strings.Contains(lower, "excelente") || strings.Contains(lower, "great"):
		sentiment = ai.SentimentPositive
	case strings.Contains(lower, "péssimo") || strings.Contains(lower, "ruim") || strings.Contains(lower, "terrible"):
		sentiment = ai.SentimentNegative
	}

	result := &ai.AnalysisResult{
		Sentiment: sentiment,
		Usage: ai.UsageInfo{
			Model:        "mock-ai-v1",
			InputTokens:  320,
			OutputTokens: 45,
			CostCents:    1,
			Duration:     250 * time.Millisecond,
		},
	}

	if params.Depth == ai.DepthAdvanced || params.Depth == ai.DepthCustom {
		result.Summary = "Customer left feedback about their recent experience."
		result.Topics = []string{"service", "experience"}
	}

	return result, nil
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.AnalyzeCalls = 0
	p.AnalyzeResponse = nil
	p.AnalyzeError = nil
}
