package introspect

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// Response is the JSON envelope of every route.
type Response struct {
	Status    string    `json:"status"`
	RequestID string    `json:"request_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeUnavailable = "UNAVAILABLE"
	ErrCodeInternal    = "INTERNAL"
)

func respondOK(w http.ResponseWriter, r *http.Request, data any) {
	respondJSON(w, r, http.StatusOK, data, nil)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, r, status, nil, &APIError{Code: code, Message: message})
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data any, apiErr *APIError) {
	resp := Response{
		Status:    "ok",
		RequestID: middleware.GetReqID(r.Context()),
		Data:      data,
		Error:     apiErr,
	}
	if apiErr != nil {
		resp.Status = "error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
