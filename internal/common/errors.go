package common

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		if e.Message != "" {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// Error taxonomy shared by the order and payment flows. Use Errorf or Wrap to
// attach a specific message; errors.Is matches on the code.
var (
	ErrInvalidOrder     = NewAppError("INVALID_ORDER", "invalid order", http.StatusBadRequest, nil)
	ErrMissingConfig    = NewAppError("MISSING_CONFIG", "missing configuration", http.StatusInternalServerError, nil)
	ErrProviderAPI      = NewAppError("PROVIDER_API_ERROR", "provider api error", http.StatusBadGateway, nil)
	ErrMalformedWebhook = NewAppError("MALFORMED_WEBHOOK", "no resource", http.StatusBadRequest, nil)
	ErrMissingOrderID   = NewAppError("MISSING_ORDER_ID", "missing orderId", http.StatusBadRequest, nil)
	ErrBadSignature     = NewAppError("BAD_SIGNATURE", "bad signature", http.StatusUnauthorized, nil)
	ErrValidationFailed = NewAppError("VALIDATION_FAILED", "validate failed", http.StatusBadRequest, nil)
	ErrAmountMismatch   = NewAppError("AMOUNT_MISMATCH", "amount mismatch", http.StatusConflict, nil)
	ErrMissingHeaders   = NewAppError("MISSING_HEADERS", "Missing expected headers", http.StatusInternalServerError, nil)
	ErrOrderNotFound    = NewAppError("ORDER_NOT_FOUND", "order not found", http.StatusNotFound, nil)
	ErrUnknownType      = NewAppError("UNKNOWN_TYPE", "unknown type", http.StatusBadRequest, nil)
	ErrMissingSheet     = NewAppError("MISSING_SHEET", "Missing sheet", http.StatusInternalServerError, nil)
	ErrInternal         = NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, nil)
)

// Errorf derives an error from a taxonomy entry with a formatted message.
func Errorf(base *AppError, format string, args ...any) *AppError {
	return &AppError{Code: base.Code, Message: fmt.Sprintf(format, args...), HTTPStatus: base.HTTPStatus}
}

// Wrap derives an error from a taxonomy entry that carries a cause.
func Wrap(base *AppError, err error) *AppError {
	return &AppError{Code: base.Code, Message: base.Message, HTTPStatus: base.HTTPStatus, Err: err}
}

// CodeOf returns the taxonomy code of err, or INTERNAL when err is not an AppError.
func CodeOf(err error) string {
	var target *AppError
	if errors.As(err, &target) && target.Code != "" {
		return target.Code
	}
	return ErrInternal.Code
}
