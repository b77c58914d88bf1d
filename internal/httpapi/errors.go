package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"imgclf/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// requestError rejects a request before it reaches the classifier.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string   { return e.msg }
func (e *requestError) StatusCode() int { return e.status }

func badRequest(msg string) error { return &requestError{status: http.StatusBadRequest, msg: msg} }

// statusOf maps err to a response code; errors without one are 500.
func statusOf(err error) int {
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
