package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the reservation failure classes. Strategies and
// repositories return errors wrapping one of these so callers can classify
// with errors.Is without knowing which strategy produced the failure.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("concurrent modification")
	ErrValidation        = errors.New("validation failed")
	ErrInternal          = errors.New("internal error")
)

// Wire-level type names, stable across concurrency strategies.
const (
	TypeNotFound           = "NotFound"
	TypeInsufficientStock  = "InsufficientStock"
	TypeConcurrentConflict = "ConcurrentConflict"
	TypeValidation         = "ValidationError"
	TypeInternal           = "InternalError"
)

// AppError is a classified application error. Type is the stable wire name,
// Field names the offending input field when there is one.
type AppError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %s)", e.Type, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error for an unknown resource.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Type:    TypeNotFound,
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InsufficientStock creates a 409 error carrying the available/requested
// quantities at the moment the check failed. Terminal; never retried.
func InsufficientStock(productID string, available, requested int) *AppError {
	return &AppError{
		Type:    TypeInsufficientStock,
		Message: fmt.Sprintf("insufficient stock for product %s: available %d, requested %d", productID, available, requested),
		Status:  http.StatusConflict,
		Err:     ErrInsufficientStock,
	}
}

// ConcurrentConflict creates a 409 error for contention that survived the
// bounded retry loop. Transient conflicts inside a strategy use ErrConflict
// directly; this constructor is for the terminal, caller-visible form.
func ConcurrentConflict(message string) *AppError {
	return &AppError{
		Type:    TypeConcurrentConflict,
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// Validation creates a 422 error for bad input that never reached the ledger.
func Validation(field, message string) *AppError {
	return &AppError{
		Type:    TypeValidation,
		Message: message,
		Field:   field,
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrValidation,
	}
}

// Internal creates a 500 error wrapping an unexpected cause.
func Internal(err error) *AppError {
	return &AppError{
		Type:    TypeInternal,
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// Classify maps any error into an AppError with a stable type name. Errors
// that already carry a classification pass through unchanged; bare sentinel
// errors get a generic message for their class; everything else is internal.
func Classify(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return &AppError{Type: TypeNotFound, Message: "resource not found", Status: http.StatusNotFound, Err: err}
	case errors.Is(err, ErrInsufficientStock):
		return &AppError{Type: TypeInsufficientStock, Message: "insufficient stock", Status: http.StatusConflict, Err: err}
	case errors.Is(err, ErrConflict):
		return &AppError{Type: TypeConcurrentConflict, Message: "concurrent modification detected", Status: http.StatusConflict, Err: err}
	case errors.Is(err, ErrValidation):
		return &AppError{Type: TypeValidation, Message: err.Error(), Status: http.StatusUnprocessableEntity, Err: err}
	default:
		return &AppError{Type: TypeInternal, Message: "an internal error occurred", Status: http.StatusInternalServerError, Err: err}
	}
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	return Classify(err).Status
}

// Retryable reports whether the error is a transient conflict that a bounded
// retry loop may re-attempt. NotFound, InsufficientStock, and validation
// failures are terminal, as is a ConcurrentConflict that already exhausted
// its retries (AppError form).
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return false
	}
	return errors.Is(err, ErrConflict)
}
