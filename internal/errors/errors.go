// Package errors provides the structured application error type shared by the
// zapgate services. Errors carry a code that maps onto an HTTP status at the
// edge; everything else wraps with fmt.Errorf("...: %w", err).
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource was not found (unknown payment hash).
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeValidation indicates invalid input (unknown service id, amount
	// outside the provider's payable range).
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeOracleUnavailable indicates too few price sources answered.
	ErrCodeOracleUnavailable ErrorCode = "oracle_unavailable"
	// ErrCodePricingUnavailable indicates a price quote could not be computed.
	ErrCodePricingUnavailable ErrorCode = "pricing_unavailable"
	// ErrCodeSettlementCheck indicates a transient failure reaching the
	// settlement provider. Safe for the client to retry.
	ErrCodeSettlementCheck ErrorCode = "settlement_check_failed"
	// ErrCodeTimeout indicates a bounded wait exhausted its attempt budget.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
)

// AppError is a structured application error with a code, message, and
// optional cause. It supports errors.Is and errors.As through Unwrap.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error code to the status the HTTP layer should emit.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeOracleUnavailable, ErrCodePricingUnavailable, ErrCodeSettlementCheck:
		return http.StatusServiceUnavailable
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// NotFoundf creates a not_found error with a formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

// OracleUnavailable creates an oracle_unavailable error wrapping cause.
func OracleUnavailable(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeOracleUnavailable, Message: message, Cause: cause}
}

// PricingUnavailable creates a pricing_unavailable error wrapping cause.
func PricingUnavailable(message string, cause error) *AppError {
	return &AppError{Code: ErrCodePricingUnavailable, Message: message, Cause: cause}
}

// SettlementCheck creates a settlement_check_failed error wrapping cause.
func SettlementCheck(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeSettlementCheck, Message: message, Cause: cause}
}

// Timeout creates a timeout error.
func Timeout(message string) *AppError {
	return &AppError{Code: ErrCodeTimeout, Message: message}
}

// Internal creates an internal error wrapping cause.
func Internal(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message, Cause: cause}
}

// Wrap attaches a cause to an existing AppError, preserving its code.
func Wrap(e *AppError, cause error) *AppError {
	return &AppError{Code: e.Code, Message: e.Message, Cause: cause}
}

// CodeOf extracts the ErrorCode from err, or ErrCodeInternal if err is not an
// AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
