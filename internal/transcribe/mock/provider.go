package mock

import (
	"context"
	"log/slog"
	"time"

	"github.com/vozfeed/vozfeed/internal/transcribe"
)

// Provider is a mock transcriber for testing and development
type Provider struct {
	logger *slog.Logger

	// Configurable responses for testing
	TranscribeResponse *transcribe.Result
	TranscribeError    error

	// Call tracking for testing
	TranscribeCalls int
}

// New creates a new mock transcriber
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// Transcribe returns a canned transcript
func (p *Provider) Transcribe(ctx context.Context, params transcribe.TranscribeParams) (*transcribe.Result, error) {
	p.TranscribeCalls++

	if p.TranscribeError != nil {
		return nil, p.TranscribeError
	}
	if p.TranscribeResponse != nil {
		return p.TranscribeResponse, nil
	}

	return &transcribe.Result{
		Text:     "O atendimento foi ótimo, mas a entrega atrasou dois dias.",
		Language: "pt",
		Model:    "mock-whisper-v1",
		Duration: 150 * time.Millisecond,
	}, nil
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.TranscribeCalls = 0
	p.TranscribeResponse = nil
	p.TranscribeError = nil
}
