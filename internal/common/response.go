package common

import (
	"encoding/json"
	"errors"
	"net/http"
)

type ErrorResponse struct {
	Error  string `json:"error"`
	Status string `json:"status,omitempty"` // current state for state-conflict errors
}

func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{Error: message})
}

// RespondWithDomainError maps err to a status code and, for state conflicts,
// includes the current state. Internal errors are not echoed to the client.
func RespondWithDomainError(w http.ResponseWriter, err error) {
	code := HTTPStatusFromError(err)
	resp := ErrorResponse{Error: err.Error()}
	if code == http.StatusInternalServerError {
		resp.Error = ErrInternalServer.Error()
	}
	if errors.Is(err, ErrPairingLinkExpired) {
		resp.Error = ErrPairingLinkExpired.Error()
	}
	if current, ok := CurrentState(err); ok {
		resp.Status = current
	}
	RespondWithJSON(w, code, resp)
}

func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
