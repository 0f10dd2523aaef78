package api

import (
	"encoding/json"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
)

// ErrorResponse represents a standard JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// WriteJSONError writes a JSON error response with the given status code and message
func WriteJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	json.NewEncoder(w).Encode(response)
}

// WriteText writes message as a plain text body, without the trailing newline http.Error adds
func WriteText(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	w.Write([]byte(message))
}

// WriteJSON writes v as a JSON body. The status is sent before encoding, so an
// encoding or write error can only be reported to the caller.
func WriteJSON(w http.ResponseWriter, statusCode int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return goerr.Wrap(err, "failed to encode response", goerr.V("status", statusCode))
	}
	return nil
}
