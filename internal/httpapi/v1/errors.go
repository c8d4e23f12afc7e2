package v1

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tinoosan/bookkeeping/internal/errs"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Line  *int   `json:"line,omitempty"`
}

// toJSON writes a JSON response with status code.
func toJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) { writeErr(w, http.StatusBadRequest, msg, "bad_request") }
func notFound(w http.ResponseWriter)               { writeErr(w, http.StatusNotFound, "not_found", "not_found") }
func internalError(w http.ResponseWriter, msg string) {
	writeErr(w, http.StatusInternalServerError, msg, "internal")
}

// unprocessable answers a posting validation failure with 422, naming the
// offending line when the error carries one.
func unprocessable(w http.ResponseWriter, err error) {
	code, msg := mapValidationError(err)
	resp := errorResponse{Error: msg, Code: code}
	var le *errs.LineError
	if errors.As(err, &le) {
		line := le.Line
		resp.Line = &line
	}
	toJSON(w, http.StatusUnprocessableEntity, resp)
}

// mapValidationError normalizes domain validation errors into a code and message.
func mapValidationError(err error) (code, msg string) {
	if err == nil {
		return "", ""
	}
	msg = err.Error()
	switch {
	case errors.Is(err, errs.ErrUnknownAccount):
		return "unknown_account", msg
	case errors.Is(err, errs.ErrInvalidAmount):
		return "invalid_amount", msg
	case errors.Is(err, errs.ErrMalformedEntry):
		return "malformed_entry", msg
	case errors.Is(err, errs.ErrUnbalanced):
		return "unbalanced_entry", msg
	default:
		return "validation_error", msg
	}
}
