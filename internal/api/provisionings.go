package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/fiware-provisioner/internal/audit"
)

// handleListProvisionings returns one page of the audit log.
//
// Query parameters: limit, offset, outcome, entity_type, device_id,
// external_id.
func (s *Server) handleListProvisionings(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeFailure(w, http.StatusServiceUnavailable, "Provisioning history is not available")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Outcome:    q.Get("outcome"),
		EntityType: q.Get("entity_type"),
		DeviceID:   q.Get("device_id"),
		ExternalID: q.Get("external_id"),
	}

	var ok bool
	if filter.Limit, ok = intParam(q.Get("limit")); !ok {
		writeFailure(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, ok = intParam(q.Get("offset")); !ok {
		writeFailure(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing provisionings failed", "error", err,
			"request_id", requestIDFrom(r.Context()))
		writeUnknownError(w)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// intParam parses an optional non-negative integer; empty means zero.
func intParam(v string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
