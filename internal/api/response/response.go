// Package response writes the JSON envelopes shared by every endpoint.
package response

import (
	"encoding/json"
	"net/http"
)

// Fields are the top-level members of a success body, next to "success".
type Fields map[string]any

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Pagination describes one page of a collection.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	Total   int  `json:"total"`
	HasMore bool `json:"hasMore"`
}

// OK writes {"success": true, ...fields} with status 200.
func OK(w http.ResponseWriter, fields Fields) {
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["success"] = true
	JSON(w, http.StatusOK, body)
}

// Error writes {"success": false, "error": {...}}.
func Error(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// JSON writes v as-is.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
