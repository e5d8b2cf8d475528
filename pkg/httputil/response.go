package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/platinummonkey/portstats/pkg/observability"
)

// MessageResponse is the body of every non-2xx API response.
type MessageResponse struct {
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteMessage writes a {"message", "status_code"} body.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, MessageResponse{Message: message, StatusCode: status})
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteMessage(w, http.StatusBadRequest, message)
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteMessage(w, http.StatusNotFound, message)
}

// WriteMethodNotAllowed writes a method not allowed error (405)
func WriteMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteMessage(w, http.StatusMethodNotAllowed, "Method "+r.Method+" is not allowed.")
}

// WriteServiceUnavailable writes a service unavailable error (503)
func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteMessage(w, http.StatusServiceUnavailable, message)
}

// WriteInternalError logs err with the request's logger and writes a generic 500.
// Storage details never reach the client.
func WriteInternalError(w http.ResponseWriter, r *http.Request, err error) {
	observability.FromContext(r.Context()).WithError(err).
		WithField("path", r.URL.Path).Error("request failed")
	WriteMessage(w, http.StatusInternalServerError, "Internal server error.")
}
