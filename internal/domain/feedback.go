// Package domain contains core business types and interfaces.
//
// This file defines the audio feedback types processed by the background
// pipeline (transcription, then sentiment analysis).
package domain

import (
	"time"

	"github.com/google/uuid"
)

// FeedbackStatus tracks an audio feedback through the processing pipeline.
type FeedbackStatus string

const (
	FeedbackStatusPending    FeedbackStatus = "pending"
	FeedbackStatusProcessing FeedbackStatus = "processing"
	FeedbackStatusCompleted  FeedbackStatus = "completed"
	FeedbackStatusFailed     FeedbackStatus = "failed"
)

// Sentiment is the coarse classification produced by analysis.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Feedback is one audio message left by a tenant's client.
type Feedback struct {
	ID       uuid.UUID
	TenantID uuid.UUID

	ClientName  string
	ClientEmail string
	ClientPhone string

	// AudioKey is the storage key of the uploaded audio blob.
	AudioKey    string
	ContentType string

	Status     FeedbackStatus
	Transcript string
	Sentiment  Sentiment
	Rating     int

	CreatedAt time.Time
	UpdatedAt time.Time
}
