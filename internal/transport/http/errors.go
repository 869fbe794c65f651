// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/adiadia/approval-engine/internal/domain"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var errorStatuses = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{domain.ErrInvalidLine, http.StatusBadRequest, "INVALID_LINE"},
	{domain.ErrUnauthorized, http.StatusForbidden, "UNAUTHORIZED"},
	{domain.ErrNotCancellable, http.StatusConflict, "NOT_CANCELLABLE"},
	{domain.ErrInvalidState, http.StatusConflict, "INVALID_STATE"},
	{domain.ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
	{domain.ErrAlreadyInFlight, http.StatusConflict, "ALREADY_IN_FLIGHT"},
	{domain.ErrConcurrentUpdate, http.StatusConflict, "CONCURRENT_UPDATE"},
}

// writeError maps domain errors to their status and code. Anything else is
// logged and reported as an internal error without detail.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	for _, m := range errorStatuses {
		if errors.Is(err, m.err) {
			writeJSON(w, m.status, errorResponse{Error: m.code, Message: err.Error()})
			return
		}
	}

	logger.Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "INTERNAL", Message: "internal error"})
}
