package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestServiceError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ServiceError
		contains []string
	}{
		{
			name: "without wrapped error",
			err: &ServiceError{
				StatusCode: 400,
				ErrorClass: ErrorClassClient,
				Message:    "The 'ids' value has invalid format",
			},
			contains: []string{"client", "400", "invalid format"},
		},
		{
			name: "with wrapped error",
			err: &ServiceError{
				ErrorClass: ErrorClassNetwork,
				Message:    "request failed",
				Err:        errors.New("connection refused"),
			},
			contains: []string{"network", "request failed", "connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("Error() = %q, want to contain %q", got, want)
				}
			}
		})
	}
}

func TestServiceError_IsTransient(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected bool
	}{
		{ErrorClassClient, false},
		{ErrorClassServer, true},
		{ErrorClassRateLimit, true},
		{ErrorClassNetwork, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", &ServiceError{ErrorClass: tt.class})
			if got := errors.Is(err, ErrTransient); got != tt.expected {
				t.Errorf("errors.Is(ErrTransient) = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestErrorCategories(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"validation", &ValidationError{Field: "from", Value: "Nope"}, ErrValidation},
		{"job", &JobError{JobID: "abc", Status: "ERROR"}, ErrJob},
		{"protocol", &ProtocolError{Op: "poll", Detail: "no status"}, ErrProtocol},
		{"cancelled", &CancelledError{JobID: "abc", Err: context.Canceled}, ErrCancelled},
	}

	categories := []error{ErrValidation, ErrTransient, ErrJob, ErrProtocol, ErrCancelled}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, c := range categories {
				got := errors.Is(tt.err, c)
				want := c == tt.target
				if got != want {
					t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, c, got, want)
				}
			}
		})
	}
}

func TestValidationError_TruncatesAllowed(t *testing.T) {
	allowed := make([]string, 15)
	for i := range allowed {
		allowed[i] = fmt.Sprintf("NS%d", i)
	}
	err := &ValidationError{Field: "to", Value: "Bogus", Allowed: allowed}

	msg := err.Error()
	if !strings.Contains(msg, "NS9") {
		t.Errorf("Error() = %q, want to list the first ten names", msg)
	}
	if strings.Contains(msg, "NS10") {
		t.Errorf("Error() = %q, should not list more than ten names", msg)
	}
	if !strings.HasSuffix(msg, ", ...)") {
		t.Errorf("Error() = %q, want truncation marker", msg)
	}
}

func TestCancelledError_UnwrapsContextError(t *testing.T) {
	err := &CancelledError{JobID: "job-1", Err: context.DeadlineExceeded}

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("CancelledError should unwrap to context.DeadlineExceeded")
	}
	if !strings.Contains(err.Error(), "job-1") {
		t.Errorf("Error() = %q, want job id", err.Error())
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected bool
	}{
		{ErrorClassClient, false},
		{ErrorClassServer, true},
		{ErrorClassRateLimit, true},
		{ErrorClassNetwork, true},
		{ErrorClass("unknown"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			if got := shouldRetry(tt.class); got != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.class, got, tt.expected)
			}
		})
	}
}
