// Writes JSON and error responses for handlers that bypass server.Wrap.

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	apierrors "github.com/maruel/conclave/internal/errors"
)

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error   ErrorDetails   `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorDetails describes a failure.
type ErrorDetails struct {
	Code    apierrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

// WriteError maps err to an HTTP status and writes it as JSON.
func WriteError(ctx context.Context, w http.ResponseWriter, err error) {
	ews := apierrors.FromError(err)
	status := ews.StatusCode()
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "Handler error", "err", err, "statusCode", status, "code", ews.Code())
	} else {
		slog.InfoContext(ctx, "Request rejected", "err", err, "statusCode", status, "code", ews.Code())
	}
	WriteJSON(ctx, w, status, &ErrorResponse{
		Error:   ErrorDetails{Code: ews.Code(), Message: ews.Error()},
		Details: ews.Details(),
	})
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "Failed to encode response", "err", err)
	}
}
