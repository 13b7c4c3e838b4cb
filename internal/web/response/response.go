// Package response renders JSON bodies for the operator API.
package response

import (
	"encoding/json"
	"net/http"
	"strings"
)

const contentTypeJSON = "application/json; charset=utf-8"

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error     string   `json:"error"`
	Message   string   `json:"message"`
	RequestID string   `json:"request_id,omitempty"`
	Details   []string `json:"details,omitempty"`
}

// JSON encodes v with the given status
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Raw writes an already encoded JSON body
func Raw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error renders a standard error response
func Error(w http.ResponseWriter, r *http.Request, status int, message string, details ...string) {
	JSON(w, status, &ErrorResponse{
		Error:     errorCodeFromStatus(status),
		Message:   message,
		RequestID: w.Header().Get("X-Request-ID"),
		Details:   details,
	})
}

// errorCodeFromStatus derives a snake_case error code from the status text
func errorCodeFromStatus(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}
