package httpx

import (
	"errors"
	"net/http"

	"github.com/fixdesk/fixdesk/internal/shared"
)

// RespondError maps the shared error taxonomy to HTTP problem responses.
// Handlers map their package-level sentinels before falling back here;
// anything unrecognized is surfaced as an opaque internal error.
func RespondError(w http.ResponseWriter, err error) {
	var ve *shared.ValidationError
	switch {
	case errors.As(err, &ve):
		JSON(w, http.StatusBadRequest, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Detail: ve.Reason,
			Field:  ve.Field,
		})
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "resource not found")
	case errors.Is(err, shared.ErrUnauthorized):
		Problem(w, http.StatusForbidden, "Unauthorized", "operation not permitted")
	case errors.Is(err, shared.ErrConcurrentModification):
		Problem(w, http.StatusConflict, "Conflict", "concurrent modification, retry the request")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
