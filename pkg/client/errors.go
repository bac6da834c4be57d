package client

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories. Every error returned by the mapping pipeline matches
// exactly one of these with errors.Is.
var (
	// ErrValidation marks caller input rejected before any network call.
	ErrValidation = errors.New("validation error")

	// ErrTransient marks 429/5xx/network failures that survived all retries.
	ErrTransient = errors.New("transient service error")

	// ErrJob marks a job the service reported in a terminal non-success state.
	ErrJob = errors.New("job error")

	// ErrProtocol marks a response that violates the service contract.
	ErrProtocol = errors.New("protocol error")

	// ErrCancelled marks a pipeline stopped by its context.
	ErrCancelled = errors.New("cancelled")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// ServiceError is a non-2xx response from the mapping service.
type ServiceError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("service %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("service %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is reports retriable classes as ErrTransient.
func (e *ServiceError) Is(target error) bool {
	return target == ErrTransient && shouldRetry(e.ErrorClass)
}

// ValidationError rejects a namespace, field or format name.
type ValidationError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e *ValidationError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
	}
	allowed := e.Allowed
	suffix := ""
	if len(allowed) > 10 {
		allowed = allowed[:10]
		suffix = ", ..."
	}
	return fmt.Sprintf("invalid %s %q (supported: %s%s)",
		e.Field, e.Value, strings.Join(allowed, ", "), suffix)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// JobError carries the raw status string of a failed job.
type JobError struct {
	JobID  string
	Status string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s failed with status %q", e.JobID, e.Status)
}

func (e *JobError) Is(target error) bool { return target == ErrJob }

// ProtocolError reports an unexpected response shape or an undecodable body.
type ProtocolError struct {
	Op     string
	Detail string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("%s: unexpected response: %s", e.Op, e.Detail)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// CancelledError is returned when a context ends while a job is still pending.
type CancelledError struct {
	JobID string
	Err   error
}

func (e *CancelledError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("cancelled: %v", e.Err)
	}
	return fmt.Sprintf("job %s cancelled while pending: %v", e.JobID, e.Err)
}

func (e *CancelledError) Unwrap() error { return e.Err }

func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx are caller bugs, retrying cannot help
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
