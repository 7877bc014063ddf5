package api

import (
	"encoding/json"
	"net/http"
)

// unknownErrorMessage is returned for every unclassified failure. The
// underlying error is logged, never sent.
const unknownErrorMessage = "Unknown server error"

// successResponse is the body of a successful POST /devices.
type successResponse struct {
	Success bool   `json:"success"`
	Result  string `json:"result"`
}

// failureResponse is the body of every error answer. Status is omitted for
// unclassified failures.
type failureResponse struct {
	Success bool   `json:"success"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeFailure writes {success:false,status,message}.
func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, failureResponse{Status: status, Message: message})
}

// writeUnknownError writes the generic 500 body without a status field.
func writeUnknownError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, failureResponse{Message: unknownErrorMessage})
}
