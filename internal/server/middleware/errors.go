package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/leadrelay/keygate/internal/model"
)

// Error codes returned by the gateway.
const (
	CodeMissingAPIKey           = "MISSING_API_KEY"
	CodeInvalidAPIKey           = "INVALID_API_KEY"
	CodeRateLimitExceeded       = "RATE_LIMIT_EXCEEDED"
	CodeAuthenticationError     = "AUTHENTICATION_ERROR"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeInvalidToken            = "INVALID_TOKEN"
	CodeTokenExpired            = "TOKEN_EXPIRED"
	CodeTooManyRequests         = "TOO_MANY_REQUESTS"
)

// WriteError writes the standard error envelope. Fields are merged into the
// error object next to code and message.
func WriteError(w http.ResponseWriter, status int, code, message string, fields map[string]any) {
	WriteJSON(w, status, model.ErrorResponse{
		Success: false,
		Error:   model.ErrorDetail{Code: code, Message: message, Fields: fields},
	})
}

// WriteJSON serializes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
