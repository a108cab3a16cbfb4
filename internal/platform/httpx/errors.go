// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/vaultgate-labs/vaultgate/internal/shared"
)

// RespondError maps the domain error taxonomy to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrIntent):
		Problem(w, http.StatusBadRequest, "Invalid Intent", err.Error())
	case errors.Is(err, shared.ErrAuthorization):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrState):
		Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrPolicy):
		Problem(w, http.StatusUnprocessableEntity, "Policy Violation", err.Error())
	case errors.Is(err, shared.ErrIntegrity):
		Problem(w, http.StatusInternalServerError, "Integrity Violation", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
