package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/vozfeed/vozfeed/internal/domain"
)

// =============================================================================
// Error Response Tests - Security Focus
// =============================================================================

func errorTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{domain.EINVALID, http.StatusBadRequest},
		{domain.EUNAUTHORIZED, http.StatusUnauthorized},
		{domain.EPAYMENT, http.StatusPaymentRequired},
		{domain.EFORBIDDEN, http.StatusForbidden},
		{domain.ENOTFOUND, http.StatusNotFound},
		{domain.ECONFLICT, http.StatusConflict},
		{domain.ERATELIMIT, http.StatusTooManyRequests},
		{domain.EINTERNAL, http.StatusInternalServerError},
		{"something_else", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := ErrorCodeToHTTPStatus(tt.code); got != tt.want {
			t.Errorf("ErrorCodeToHTTPStatus(%q) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestErrorResponse_WritesStructuredJSON(t *testing.T) {
	logger := errorTestLogger()

	err := domain.Conflict("ledger.free_tier", "This company has already used its free tier")

	req := httptest.NewRequest("POST", "/v1/company/free-tier", nil)
	rec := httptest.NewRecorder()

	ErrorResponse(rec, req, logger, err)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body JSONError
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if body.Error.Code != domain.ECONFLICT {
		t.Errorf("error code = %q, want %q", body.Error.Code, domain.ECONFLICT)
	}
	if body.Error.Message != "This company has already used its free tier" {
		t.Errorf("unexpected message: %q", body.Error.Message)
	}
}

func TestErrorResponse_InternalErrorHidesDetails(t *testing.T) {
	logger := errorTestLogger()

	// An internal error wrapping a sensitive storage error
	dbErr := &mockDatabaseError{message: "connection to 192.168.1.100:5432 refused"}
	internalErr := domain.Internal(dbErr, "ledger.increment", "Database query failed")

	req := httptest.NewRequest("POST", "/v1/authorize", nil)
	rec := httptest.NewRecorder()

	ErrorResponse(rec, req, logger, internalErr)

	body := rec.Body.String()

	// Should NOT contain sensitive details
	if strings.Contains(body, "192.168") {
		t.Errorf("response exposes IP address: %s", body)
	}
	if strings.Contains(body, "5432") {
		t.Errorf("response exposes port number: %s", body)
	}
	if strings.Contains(body, "ledger.increment") {
		t.Errorf("response exposes internal operation: %s", body)
	}

	// Should return the generic message
	if !strings.Contains(body, "internal error") {
		t.Errorf("response should contain generic internal error message, got: %s", body)
	}
}

func TestErrorResponse_OperationNameStaysOutOfTheBody(t *testing.T) {
	logger := errorTestLogger()

	notFoundErr := domain.NotFound("feedback.get", "feedback", "550e8400-e29b-41d4-a716-446655440000")

	req := httptest.NewRequest("GET", "/v1/feedback/550e8400-e29b-41d4-a716-446655440000", nil)
	rec := httptest.NewRecorder()

	ErrorResponse(rec, req, logger, notFoundErr)

	body := rec.Body.String()

	if strings.Contains(body, "feedback.get") {
		t.Errorf("response exposes operation name: %s", body)
	}
	if !strings.Contains(body, "not found") {
		t.Errorf("response should indicate resource not found: %s", body)
	}
}

func TestErrorResponse_UnwrappedErrorReturnsGeneric(t *testing.T) {
	logger := errorTestLogger()

	// A raw error (not a domain.Error)
	rawErr := &mockDatabaseError{message: "FATAL: password authentication failed for user \"postgres\""}

	req := httptest.NewRequest("GET", "/v1/usage", nil)
	rec := httptest.NewRecorder()

	ErrorResponse(rec, req, logger, rawErr)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}

	body := rec.Body.String()

	if strings.Contains(body, "FATAL") {
		t.Errorf("response exposes raw error: %s", body)
	}
	if strings.Contains(body, "password") {
		t.Errorf("response exposes password-related error: %s", body)
	}
	if strings.Contains(body, "postgres") {
		t.Errorf("response exposes database user: %s", body)
	}
	if !strings.Contains(body, "internal error") {
		t.Errorf("response should contain generic message, got: %s", body)
	}
}

// mockDatabaseError simulates a database error for testing
type mockDatabaseError struct {
	message string
}

func (e *mockDatabaseError) Error() string {
	return e.message
}
