package httputil

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/manojdandy/orders-inventory/pkg/errors"
)

// ParseUUID parses a path parameter as a UUID, writing a ValidationError
// payload and returning ok=false when it is malformed.
func ParseUUID(w http.ResponseWriter, raw, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		WriteJSON(w, http.StatusUnprocessableEntity, ErrorPayload{
			Error: apperrors.TypeValidation,
			Details: []ErrorDetail{
				{Type: apperrors.TypeValidation, Message: "must be a valid UUID", Field: &field},
			},
			Timestamp: time.Now().UTC(),
		})
		return uuid.Nil, false
	}
	return id, true
}
