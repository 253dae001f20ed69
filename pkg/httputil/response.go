package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/manojdandy/orders-inventory/pkg/errors"
	"github.com/manojdandy/orders-inventory/pkg/logger"
	"github.com/manojdandy/orders-inventory/pkg/validator"
)

// ErrorDetail is a single classified failure inside an error payload.
// Field is null (not omitted) when no input field is implicated.
type ErrorDetail struct {
	Type    string  `json:"type"`
	Message string  `json:"message"`
	Field   *string `json:"field"`
}

// ErrorPayload is the error envelope returned on every failure, identical
// regardless of which concurrency strategy produced the underlying cause.
type ErrorPayload struct {
	Error     string        `json:"error"`
	Details   []ErrorDetail `json:"details"`
	Timestamp time.Time     `json:"timestamp"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError classifies err and writes the structured error payload. It
// prefers the request-scoped logger from context (set by the RequestLogger
// middleware) over the fallback logger for internal errors.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	// Validation errors from the request DTO layer expand to one detail per field.
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		details := make([]ErrorDetail, 0, len(valErr.Errors))
		for _, fe := range valErr.Errors {
			field := fe.Field()
			details = append(details, ErrorDetail{
				Type:    apperrors.TypeValidation,
				Message: valErr.MessageFor(fe),
				Field:   &field,
			})
		}
		WriteJSON(w, http.StatusUnprocessableEntity, ErrorPayload{
			Error:     apperrors.TypeValidation,
			Details:   details,
			Timestamp: time.Now().UTC(),
		})
		return
	}

	appErr := apperrors.Classify(err)

	var field *string
	if appErr.Field != "" {
		f := appErr.Field
		field = &f
	}

	if appErr.Status == http.StatusInternalServerError {
		l := logger.FromContext(r.Context())
		if l == slog.Default() {
			l = fallback
		}
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, appErr.Status, ErrorPayload{
		Error: appErr.Type,
		Details: []ErrorDetail{
			{Type: appErr.Type, Message: appErr.Message, Field: field},
		},
		Timestamp: time.Now().UTC(),
	})
}
