package api

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds each dependency check.
const healthCheckTimeout = 2 * time.Second

// dependencyStatus is one entry of the health response.
type dependencyStatus struct {
	Status   string `json:"status"`
	Required bool   `json:"required"`
	Error    string `json:"error,omitempty"`
}

type healthResponse struct {
	Status       string                      `json:"status"`
	Version      string                      `json:"version"`
	Dependencies map[string]dependencyStatus `json:"dependencies,omitempty"`
}

// handleHealth reports liveness plus dependency checks. It answers 503 when
// a required dependency fails and "degraded" when only optional ones do.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Version: s.version}
	status := http.StatusOK

	if len(s.checks) > 0 {
		resp.Dependencies = make(map[string]dependencyStatus, len(s.checks))
	}
	for _, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := c.Check(ctx)
		cancel()

		dep := dependencyStatus{Status: "ok", Required: c.Required}
		if err != nil {
			dep.Status = "error"
			dep.Error = err.Error()
			if c.Required {
				resp.Status = "unhealthy"
				status = http.StatusServiceUnavailable
			} else if resp.Status == "ok" {
				resp.Status = "degraded"
			}
		}
		resp.Dependencies[c.Name] = dep
	}

	writeJSON(w, status, resp)
}
