package middleware

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON body of every error answer
type ErrorResponse struct {
	Error            string `json:"error"`
	ForceRedirectURL string `json:"forceRedirectUrl,omitempty"`
}

// WriteJSON writes v as a JSON response with status
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes err as a JSON error response with status
func WriteError(w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		message = err.Error()
	}
	WriteJSON(w, status, ErrorResponse{Error: message})
}
