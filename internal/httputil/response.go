package httputil

import (
	"encoding/json"
	"log"
	"net/http"
)

// ErrorBody is the JSON shape of every error answer: {"error": "..."}.
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteJSON encodes data with the given status. Encoding failures are only
// logged because the status line has already been sent.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode %d response: %v", status, err)
	}
}

func WriteJSONOK(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, data)
}

func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorBody{Error: msg})
}

func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadRequest, msg)
}

func NotFound(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusNotFound, msg)
}

func MethodNotAllowed(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// Conflict reports a request that clashes with the current state, such as
// deleting a session that is still being logged.
func Conflict(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusConflict, msg)
}

func InternalServerError(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusInternalServerError, msg)
}

// Unavailable reports that an optional component (database, CAN link, feed
// port) was not configured for this process.
func Unavailable(w http.ResponseWriter, component string) {
	WriteJSONError(w, http.StatusServiceUnavailable, component+" not available")
}
