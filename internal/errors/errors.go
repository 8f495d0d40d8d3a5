// Package errors defines the typed error taxonomy shared by every
// activity, workflow, and BFF handler in the control plane. Errors are
// values with a stable Code, never used to implement normal control
// flow; the workflow engine inspects Code/IsRetryable to decide
// whether to retry, compensate, or surface the failure verbatim.
package errors

import (
	"errors"
	"fmt"
)

// Code identifies the stable error category carried by every error in
// this taxonomy, independent of the human-readable message.
type Code string

const (
	CodeValidation       Code = "VALIDATION"
	CodeAuthentication   Code = "AUTHENTICATION"
	CodeAuthorization    Code = "AUTHORIZATION"
	CodeTenantValidation Code = "TENANT_VALIDATION"
	CodeNotFound         Code = "NOT_FOUND"
	CodeConflict         Code = "CONFLICT"
	CodeRateLimit        Code = "RATE_LIMIT_EXCEEDED"
	CodeQuotaExceeded    Code = "QUOTA_EXCEEDED"
	CodeDatabase         Code = "DATABASE_ERROR"
	CodeExternalService  Code = "EXTERNAL_SERVICE_ERROR"
	CodeTimeout          Code = "TIMEOUT"
	CodeCanceled         Code = "CANCELED"
	CodeTerminated       Code = "TERMINATED"
	CodeInternal         Code = "INTERNAL_ERROR"
)

// controlPlaneError is the common shape behind every exported error
// type. It mirrors the teacher SDK's temporalError embedding: a
// private base carrying fields common to the taxonomy, with each
// concrete type adding its own structured fields and Error() string.
type controlPlaneError struct {
	code    Code
	message string
	cause   error
}

func (e *controlPlaneError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *controlPlaneError) Unwrap() error { return e.cause }

// Code returns the stable error code, used by HTTP mapping (spec §6)
// and by the engine's retry classification.
func (e *controlPlaneError) Code() Code { return e.code }

type (
	// ValidationError reports that validate_input rejected the request
	// before any side effect ran. Not retryable.
	ValidationError struct {
		controlPlaneError
		Field string
	}

	// AuthenticationError reports a missing or invalid caller identity.
	AuthenticationError struct{ controlPlaneError }

	// AuthorizationError reports that the caller lacks permission, or
	// that the tenant is inactive.
	AuthorizationError struct{ controlPlaneError }

	// TenantValidationError reports that no valid tenant context could
	// be resolved for the request.
	TenantValidationError struct{ controlPlaneError }

	// NotFoundError reports a missing business entity. Terminal.
	NotFoundError struct{ controlPlaneError }

	// ConflictError reports a terminal business conflict (e.g. duplicate
	// workflow id under a reject-duplicate policy).
	ConflictError struct{ controlPlaneError }

	// RateLimitExceededError reports that a sliding-window counter is at
	// or above its limit. RetryAfter must be honored by the scheduler.
	RateLimitExceededError struct {
		controlPlaneError
		Resource   string
		Current    int64
		Limit      int64
		RetryAfter float64 // seconds
	}

	// QuotaExceededError reports a tenant resource quota breach.
	// Retryable only after a plan change, never by the scheduler.
	QuotaExceededError struct {
		controlPlaneError
		ResourceType string
		Current      int64
		Limit        int64
		Requested    int64
	}

	// DatabaseError wraps a persistent-store failure. Retryable per
	// DatabaseRetryPolicy unless the cause is classified non-transient.
	DatabaseError struct{ controlPlaneError }

	// ExternalServiceError wraps an adapter (email/payment/DNS/vuln-db)
	// failure. Retryable per ExternalServiceRetryPolicy; RetryAfter, if
	// present, overrides the policy's computed delay.
	ExternalServiceError struct {
		controlPlaneError
		Service    string
		RetryAfter float64 // seconds, 0 if not provided by the collaborator
		StatusCode int     // 0 if not HTTP-backed
	}

	// TimeoutError is raised by the engine when an activity or workflow
	// timeout fires.
	TimeoutError struct {
		controlPlaneError
		TimeoutType string // start_to_close|schedule_to_start|schedule_to_close|heartbeat|execution|run|task
	}

	// CanceledError is raised at a suspension point after cancellation.
	CanceledError struct{ controlPlaneError }

	// TerminatedError is raised when a workflow was terminated (no
	// compensation runs).
	TerminatedError struct{ controlPlaneError }

	// InternalError covers programmer errors. Never exposed verbatim to
	// callers; the detailed cause lives in logs keyed by CorrelationID.
	InternalError struct {
		controlPlaneError
		CorrelationID string
	}
)

func newBase(code Code, message string, cause error) controlPlaneError {
	return controlPlaneError{code: code, message: message, cause: cause}
}

func NewValidation(field, message string) *ValidationError {
	return &ValidationError{controlPlaneError: newBase(CodeValidation, message, nil), Field: field}
}

func NewAuthentication(message string) *AuthenticationError {
	return &AuthenticationError{newBase(CodeAuthentication, message, nil)}
}

func NewAuthorization(message string) *AuthorizationError {
	return &AuthorizationError{newBase(CodeAuthorization, message, nil)}
}

func NewTenantValidation(message string) *TenantValidationError {
	return &TenantValidationError{newBase(CodeTenantValidation, message, nil)}
}

func NewNotFound(resource string) *NotFoundError {
	return &NotFoundError{newBase(CodeNotFound, resource+" not found", nil)}
}

func NewConflict(message string) *ConflictError {
	return &ConflictError{newBase(CodeConflict, message, nil)}
}

func NewRateLimitExceeded(resource string, current, limit int64, retryAfter float64) *RateLimitExceededError {
	return &RateLimitExceededError{
		controlPlaneError: newBase(CodeRateLimit, fmt.Sprintf("rate limit exceeded for %s", resource), nil),
		Resource:          resource,
		Current:           current,
		Limit:             limit,
		RetryAfter:        retryAfter,
	}
}

func NewQuotaExceeded(resourceType string, current, limit, requested int64) *QuotaExceededError {
	return &QuotaExceededError{
		controlPlaneError: newBase(CodeQuotaExceeded, fmt.Sprintf("quota exceeded for %s", resourceType), nil),
		ResourceType:       resourceType,
		Current:            current,
		Limit:              limit,
		Requested:          requested,
	}
}

func NewDatabase(message string, cause error) *DatabaseError {
	return &DatabaseError{newBase(CodeDatabase, message, cause)}
}

func NewExternalService(service, message string, cause error, retryAfter float64, statusCode int) *ExternalServiceError {
	return &ExternalServiceError{
		controlPlaneError: newBase(CodeExternalService, message, cause),
		Service:            service,
		RetryAfter:         retryAfter,
		StatusCode:         statusCode,
	}
}

func NewTimeout(timeoutType, message string) *TimeoutError {
	return &TimeoutError{controlPlaneError: newBase(CodeTimeout, message, nil), TimeoutType: timeoutType}
}

func NewCanceled(message string) *CanceledError {
	return &CanceledError{newBase(CodeCanceled, message, nil)}
}

func NewTerminated(reason string) *TerminatedError {
	return &TerminatedError{newBase(CodeTerminated, reason, nil)}
}

func NewInternal(correlationID string, cause error) *InternalError {
	return &InternalError{
		controlPlaneError: newBase(CodeInternal, "internal error", cause),
		CorrelationID:      correlationID,
	}
}

// IsRetryable classifies whether err should be retried by the engine.
// Only DatabaseError, ExternalServiceError, and RateLimitExceededError
// are retryable by default (spec §4.B); everything else is terminal
// for the current attempt. nonRetryableCodes lets a retry policy
// exclude specific codes even among the retryable set.
func IsRetryable(err error, nonRetryableCodes ...Code) bool {
	if err == nil {
		return false
	}

	var c interface{ Code() Code }
	if !errors.As(err, &c) {
		// Unrecognized error types default to retryable, matching the
		// teacher SDK's "unknown errors are retryable" stance.
		return true
	}

	code := c.Code()
	for _, excluded := range nonRetryableCodes {
		if code == excluded {
			return false
		}
	}

	switch code {
	case CodeDatabase, CodeExternalService, CodeRateLimit:
		return true
	default:
		return false
	}
}

// RetryAfter extracts the collaborator-provided retry delay, if any,
// from a RateLimitExceededError or ExternalServiceError. The scheduler
// MUST NOT schedule the next attempt earlier than this value.
func RetryAfter(err error) (float64, bool) {
	var rl *RateLimitExceededError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	var ext *ExternalServiceError
	if errors.As(err, &ext) && ext.RetryAfter > 0 {
		return ext.RetryAfter, true
	}
	return 0, false
}

// CodeOf returns the Code of err, or CodeInternal if err does not
// participate in this taxonomy.
func CodeOf(err error) Code {
	var c interface{ Code() Code }
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeInternal
}
