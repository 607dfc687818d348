// Package relay defines the error taxonomy shared by the webhook
// ingestion pipeline, the signal queue and the delivery API.
package relay

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the ingestion and dispatch pipeline.
var (
	ErrAuthentication          = errors.New("authentication failed")
	ErrValidation              = errors.New("validation failed")
	ErrRiskLimitExceeded       = errors.New("risk limit exceeded")
	ErrInsufficientAccountData = errors.New("insufficient account data")
	ErrConcurrencyConflict     = errors.New("concurrent state transition")
	ErrNotFound                = errors.New("not found")
	ErrTierLimitReached        = errors.New("tier limit reached")
)

// Error carries a machine-readable code alongside a human message.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Authentication returns a uniform authentication error. The message is
// identical for unknown credentials and known-but-mismatched ones so the
// response cannot be used to probe for valid secrets.
func Authentication() *Error {
	return &Error{Code: "AUTHENTICATION_ERROR", Message: "invalid credentials", Err: ErrAuthentication}
}

// Validation returns a validation error with a caller-facing message.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Code: "VALIDATION_ERROR", Message: fmt.Sprintf(format, args...), Err: ErrValidation}
}

// RiskLimit returns a risk guardrail rejection.
func RiskLimit(format string, args ...interface{}) *Error {
	return &Error{Code: "RISK_LIMIT_EXCEEDED", Message: fmt.Sprintf(format, args...), Err: ErrRiskLimitExceeded}
}

// InsufficientData returns a rejection for risk sizing without a usable
// balance report.
func InsufficientData(format string, args ...interface{}) *Error {
	return &Error{Code: "INSUFFICIENT_ACCOUNT_DATA", Message: fmt.Sprintf(format, args...), Err: ErrInsufficientAccountData}
}

// Conflict returns a state transition conflict.
func Conflict(format string, args ...interface{}) *Error {
	return &Error{Code: "CONCURRENCY_CONFLICT", Message: fmt.Sprintf(format, args...), Err: ErrConcurrencyConflict}
}

// NotFound returns a missing resource error.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Code: "NOT_FOUND", Message: fmt.Sprintf(format, args...), Err: ErrNotFound}
}

// TierLimit returns a tier quota rejection.
func TierLimit(format string, args ...interface{}) *Error {
	return &Error{Code: "TIER_LIMIT_REACHED", Message: fmt.Sprintf(format, args...), Err: ErrTierLimitReached}
}

// HTTPStatus maps pipeline errors to response codes. Unknown errors map
// to 500 so the alert source retries; the idempotency key absorbs the
// duplicate delivery.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrRiskLimitExceeded), errors.Is(err, ErrInsufficientAccountData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTierLimitReached):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Body builds the structured error body returned on failures.
func Body(err error) map[string]interface{} {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return map[string]interface{}{"error": relayErr.Message, "code": relayErr.Code}
	}
	return map[string]interface{}{"error": "internal server error", "code": "INTERNAL_ERROR"}
}
