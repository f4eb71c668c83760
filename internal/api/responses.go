package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorCode is a stable machine-readable error identifier, distinct from the
// human-readable message so clients can branch on it without string matching.
type ErrorCode string

const (
	ErrBadRequest  ErrorCode = "bad_request"
	ErrForbidden   ErrorCode = "forbidden"
	ErrNotFound    ErrorCode = "not_found"
	ErrRateLimited ErrorCode = "rate_limited"
	ErrInternal    ErrorCode = "internal_error"
	ErrUnavailable ErrorCode = "unavailable"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response with a generic internal_error code.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteErrorWithCode(w, status, ErrInternal, msg)
}

// WriteErrorWithCode writes a JSON error response carrying a specific code.
func WriteErrorWithCode(w http.ResponseWriter, status int, code ErrorCode, msg string) {
	WriteJSON(w, status, ErrorResponse{Code: string(code), Error: msg})
}

// QueryString extracts a non-empty string query parameter.
func QueryString(r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", false
	}
	return v, true
}

// RequireUserID extracts the userId query parameter, writing a bad_request
// response and returning ok=false if it's missing.
func RequireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := QueryString(r, "userId")
	if !ok {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "missing userId query parameter")
		return "", false
	}
	return userID, true
}

// DecodeJSON reads and decodes a JSON request body into v.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}
