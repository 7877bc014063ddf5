// Package fiwaretest provides an in-memory IoT Agent and Orion for tests.
//
// One httptest server answers the northbound, southbound and broker paths,
// keeps state across calls and records every request, so tests can assert
// exactly which calls a provisioning run issued.
package fiwaretest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/nerrad567/fiware-provisioner/internal/fiware"
)

// Call is one recorded request.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Server is a fake IoT Agent plus Orion. Its URL serves as the north, south
// and broker base URL at the same time.
type Server struct {
	*httptest.Server

	// APIKey, when set, must match the k parameter of measures.
	APIKey string

	mu            sync.Mutex
	services      []fiware.ServiceGroup
	devices       []fiware.Device
	subscriptions []fiware.Subscription
	measures      map[string][]fiware.Measure
	calls         []Call
	failures      map[string]int
	nextSub       int
}

// NewServer starts a fake. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		measures: make(map[string][]fiware.Measure),
		failures: make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Fail makes every request matching method and path answer with status.
func (s *Server) Fail(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = status
}

// AddService seeds a device group.
func (s *Server) AddService(g fiware.ServiceGroup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = append(s.services, g)
}

// AddDevice seeds a device.
func (s *Server) AddDevice(d fiware.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = append(s.devices, d)
}

// AddSubscription seeds a subscription.
func (s *Server) AddSubscription(sub fiware.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	if sub.ID == "" {
		sub.ID = fmt.Sprintf("sub-%d", s.nextSub)
	}
	s.subscriptions = append(s.subscriptions, sub)
}

// Services returns the current device groups.
func (s *Server) Services() []fiware.ServiceGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]fiware.ServiceGroup(nil), s.services...)
}

// Devices returns the current devices in creation order.
func (s *Server) Devices() []fiware.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]fiware.Device(nil), s.devices...)
}

// Subscriptions returns the current subscriptions.
func (s *Server) Subscriptions() []fiware.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]fiware.Subscription(nil), s.subscriptions...)
}

// Measures returns the measures received for deviceID.
func (s *Server) Measures(deviceID string) []fiware.Measure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]fiware.Measure(nil), s.measures[deviceID]...)
}

// Calls returns every recorded request.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Count returns how many requests matched method and path.
func (s *Server) Count(method, path string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
	})

	if status, ok := s.failures[r.Method+" "+r.URL.Path]; ok {
		writeJSON(w, status, map[string]string{"name": "INJECTED", "message": "injected failure"})
		return
	}

	switch {
	case r.URL.Path == "/iot/services" && r.Method == http.MethodGet:
		page, total := paginate(s.services, r.URL.Query())
		writeJSON(w, http.StatusOK, map[string]any{"count": total, "services": page})

	case r.URL.Path == "/iot/services" && r.Method == http.MethodPost:
		var req struct {
			Services []fiware.ServiceGroup `json:"services"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"name": "WRONG_SYNTAX"})
			return
		}
		s.services = append(s.services, req.Services...)
		w.WriteHeader(http.StatusCreated)

	case r.URL.Path == "/iot/devices" && r.Method == http.MethodGet:
		page, total := paginate(s.devices, r.URL.Query())
		writeJSON(w, http.StatusOK, map[string]any{"count": total, "devices": page})

	case r.URL.Path == "/iot/devices" && r.Method == http.MethodPost:
		s.createDevices(w, body)

	case strings.HasPrefix(r.URL.Path, "/iot/devices/") && r.Method == http.MethodDelete:
		id := strings.TrimPrefix(r.URL.Path, "/iot/devices/")
		for i, d := range s.devices {
			if d.DeviceID == id {
				s.devices = append(s.devices[:i], s.devices[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"name": "DEVICE_NOT_FOUND"})

	case r.URL.Path == "/iot/json" && r.Method == http.MethodPost:
		s.receiveMeasure(w, r.URL.Query(), body)

	case r.URL.Path == "/v2/subscriptions" && r.Method == http.MethodGet:
		page, total := paginate(s.subscriptions, r.URL.Query())
		if r.URL.Query().Get("options") == "count" {
			w.Header().Set("Fiware-Total-Count", strconv.Itoa(total))
		}
		writeJSON(w, http.StatusOK, page)

	case r.URL.Path == "/v2/subscriptions" && r.Method == http.MethodPost:
		var sub fiware.Subscription
		if err := json.Unmarshal(body, &sub); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ParseError"})
			return
		}
		s.nextSub++
		sub.ID = fmt.Sprintf("sub-%d", s.nextSub)
		s.subscriptions = append(s.subscriptions, sub)
		w.Header().Set("Location", "/v2/subscriptions/"+sub.ID)
		w.WriteHeader(http.StatusCreated)

	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"name": "NOT_FOUND", "path": r.URL.Path})
	}
}

func (s *Server) createDevices(w http.ResponseWriter, body []byte) {
	var req struct {
		Devices []fiware.Device `json:"devices"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"name": "WRONG_SYNTAX"})
		return
	}
	for _, d := range req.Devices {
		for _, existing := range s.devices {
			if existing.DeviceID == d.DeviceID {
				writeJSON(w, http.StatusConflict, map[string]string{"name": "DUPLICATE_DEVICE_ID"})
				return
			}
		}
	}
	s.devices = append(s.devices, req.Devices...)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) receiveMeasure(w http.ResponseWriter, q url.Values, body []byte) {
	if s.APIKey != "" && q.Get("k") != s.APIKey {
		writeJSON(w, http.StatusNotFound, map[string]string{"name": "DEVICE_GROUP_NOT_FOUND"})
		return
	}
	id := q.Get("i")
	known := false
	for _, d := range s.devices {
		if d.DeviceID == id {
			known = true
			break
		}
	}
	if !known {
		writeJSON(w, http.StatusNotFound, map[string]string{"name": "DEVICE_NOT_FOUND"})
		return
	}

	var m fiware.Measure
	if err := json.Unmarshal(body, &m); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"name": "WRONG_SYNTAX"})
		return
	}
	s.measures[id] = append(s.measures[id], m)
	w.WriteHeader(http.StatusOK)
}

func paginate[T any](items []T, q url.Values) (page []T, total int) {
	total = len(items)
	offset, _ := strconv.Atoi(q.Get("offset")) //nolint:errcheck // zero default
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	if offset >= total {
		return []T{}, total
	}
	end := min(offset+limit, total)
	return append([]T{}, items[offset:end]...), total
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test server
}
