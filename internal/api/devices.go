package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/nerrad567/fiware-provisioner/internal/provisioning"
)

// handleProvisionDevice runs one registration.
//
//	200 {"success":true,"result":"A device was successfully created. ID: ..."}
//	422 {"success":false,"status":422,"message":"Missing properties: ..."}
//	4xx/5xx {"success":false,"status":N,"message":"Upstream ..."}
//	500 {"success":false,"message":"Unknown server error"}
func (s *Server) handleProvisionDevice(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeFailure(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeFailure(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	// Decoding happens in the provisioner's validation stage so malformed
	// bodies are recorded like any other rejected registration.
	req := provisioning.Request{
		RequestID: requestIDFrom(r.Context()),
		Body:      bytes.NewReader(body),
	}
	if claims := claimsFrom(r.Context()); claims != nil {
		s.logger.Debug("provisioning on behalf of token subject",
			"subject", claims.Subject, "request_id", req.RequestID)
	}

	result, err := s.provisioner.Provision(r.Context(), req)
	if err != nil {
		s.writeProvisionError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true, Result: result.Message()})
}

// writeProvisionError maps the provisioning error taxonomy onto responses.
func (s *Server) writeProvisionError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *provisioning.ValidationError
	var uerr *provisioning.UpstreamError

	switch {
	case errors.As(err, &verr):
		writeFailure(w, verr.HTTPStatus(), verr.Error())
	case errors.As(err, &uerr):
		writeFailure(w, uerr.HTTPStatus(), uerr.PublicMessage())
	default:
		s.logger.Error("unclassified provisioning error",
			"error", err, "request_id", requestIDFrom(r.Context()))
		writeUnknownError(w)
	}
}
