package server

import (
	"encoding/json"
	"net/http"
)

// Bodies are written bare, without an envelope: browser clients read
// {"jobId"} and {"status",...} at the top level.

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON[T any](w http.ResponseWriter, status int, data T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
