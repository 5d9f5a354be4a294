package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/tooltool/internal/common"
	"github.com/dmitrijs2005/tooltool/internal/logging"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      int    `json:"status"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrorMalformed):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrorForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrorConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError reports err to the client. Internal errors are logged and
// described generically.
func writeError(ctx context.Context, log logging.Logger, w http.ResponseWriter, err error) {
	status := statusFor(err)
	description := err.Error()
	if status == http.StatusInternalServerError {
		log.Error(ctx, "request failed", "error", err)
		description = "internal error"
	}

	var conflict *common.ConflictError
	if errors.As(err, &conflict) {
		w.Header().Set("X-Retry-After", strconv.Itoa(int(conflict.RetryAfter.Seconds())))
	}

	writeJSON(w, status, errorBody{Error: errorDetail{
		Name:        http.StatusText(status),
		Description: description,
		Status:      status,
	}})
}
