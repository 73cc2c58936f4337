// Package httputil centralizes JSON response writing so handlers never
// hand-roll status codes or error envelopes.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "facegate/pkg/domain-errors"
)

// errorResponse is the wire envelope for all error responses.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into an HTTP response. Internal
// errors omit the description so infrastructure details never leak to
// callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := statusFor(code)

	resp := errorResponse{Error: string(code)}
	if status < http.StatusInternalServerError {
		var de *dErrors.Error
		if errors.As(err, &de) {
			resp.Description = de.Message
		}
	}

	WriteJSON(w, status, resp)
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeInsufficientCapture:
		return http.StatusBadRequest
	case dErrors.CodeNoMatch, dErrors.CodeLowConfidence, dErrors.CodeIdentityMismatch:
		return http.StatusUnauthorized
	case dErrors.CodeLivenessFailed, dErrors.CodeReplayDetected:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeDuplicateIdentity, dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
