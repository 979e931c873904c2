package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"finassist/internal/core"
	"finassist/internal/log"
)

var (
	errMethodNotAllowed   = errors.New("method not allowed")
	errRouteNotFound      = errors.New("route not found")
	errRateLimited        = errors.New("rate limit exceeded, please try again later")
	errMissingCredentials = errors.New("username and password are required")
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// MessageResponse carries a plain confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

const msgTransactionDeleted = "Transaction deleted successfully."

// errorKinds is checked in order; the first match wins.
var errorKinds = []struct {
	err    error
	status int
	kind   string
}{
	{core.ErrMissingIdentifier, http.StatusUnauthorized, "MissingIdentifier"},
	{core.ErrUnknownIdentifier, http.StatusUnauthorized, "UnknownIdentifier"},
	{core.ErrInvalidCredentials, http.StatusUnauthorized, "InvalidCredentials"},
	{core.ErrDuplicateUsername, http.StatusConflict, "DuplicateUsername"},
	{core.ErrMissingField, http.StatusBadRequest, "MissingField"},
	{errMissingCredentials, http.StatusBadRequest, "MissingField"},
	{core.ErrInvalidAmount, http.StatusBadRequest, "InvalidAmount"},
	{ErrMalformedBody, http.StatusBadRequest, "BadRequest"},
	{core.ErrNotFound, http.StatusNotFound, "NotFound"},
	{errRouteNotFound, http.StatusNotFound, "NotFound"},
	{errMethodNotAllowed, http.StatusMethodNotAllowed, "MethodNotAllowed"},
	{errRateLimited, http.StatusTooManyRequests, "RateLimited"},
}

// classify maps err to a status code and error kind. Unknown errors are 500.
func classify(err error) (int, string, error) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.status, k.kind, k.err
		}
	}
	return http.StatusInternalServerError, "InternalError", nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind, sentinel := classify(err)
	logger := log.FromContext(r.Context())

	msg := err.Error()
	switch {
	case status >= 500:
		logger.LogError(r.Context(), "Request failed", err,
			log.NewFields().WithOperation(r.Method+" "+r.URL.Path).WithErrorType(log.ErrorTypeInternal))
		msg = "internal server error"
	case status == http.StatusBadRequest:
		// keep the field name carried by the wrapped error
	default:
		msg = sentinel.Error()
	}
	if status < 500 {
		logger.DebugContext(r.Context(), "Request rejected", log.FieldErrorType, kind, log.FieldError, err.Error())
	}
	writeJSON(w, status, ErrorResponse{Error: kind, Message: msg})
}
