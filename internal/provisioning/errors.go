package provisioning

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nerrad567/fiware-provisioner/internal/fiware"
)

// Sentinel errors. Use errors.Is() to check for these.
var (
	// ErrCorruptDeviceID means the registry returned a device id without a
	// numeric suffix, so the next id cannot be derived from it.
	ErrCorruptDeviceID = errors.New("provisioning: registry device id has no numeric suffix")

	// ErrUnknownEntityType is wrapped by ConfigError when a request or the
	// configuration names a type the schema registry does not hold.
	ErrUnknownEntityType = errors.New("provisioning: unknown entity type")

	// ErrSequenceExhausted means the numeric suffix cannot grow further.
	ErrSequenceExhausted = errors.New("provisioning: device id sequence exhausted")
)

// ValidationError rejects a request before any downstream call is made.
type ValidationError struct {
	Missing []string
	Invalid []string
	Reason  string
}

func (e *ValidationError) Error() string {
	switch {
	case len(e.Missing) > 0:
		return "Missing properties: " + strings.Join(e.Missing, ", ")
	case len(e.Invalid) > 0:
		return "Invalid properties: " + strings.Join(e.Invalid, ", ")
	case e.Reason != "":
		return e.Reason
	default:
		return "Invalid request"
	}
}

// HTTPStatus is always 422.
func (e *ValidationError) HTTPStatus() int {
	return http.StatusUnprocessableEntity
}

// Downstream systems named in UpstreamError.
const (
	SystemIoTAgent = "iot-agent"
	SystemOrion    = "orion"
)

// UpstreamError is a failed call to the IoT Agent or Orion. Status holds the
// HTTP status the component answered with, or 0 for network-level failures.
type UpstreamError struct {
	System    string
	Operation string
	Stage     State
	Status    int
	Err       error
}

func newUpstreamError(system, operation string, stage State, err error) *UpstreamError {
	return &UpstreamError{
		System:    system,
		Operation: operation,
		Stage:     stage,
		Status:    fiware.StatusCode(err),
		Err:       err,
	}
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", e.Stage, e.System, e.Operation, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// HTTPStatus passes the upstream status through when there is one.
func (e *UpstreamError) HTTPStatus() int {
	if e.Status >= 400 && e.Status <= 599 {
		return e.Status
	}
	return http.StatusInternalServerError
}

// PublicMessage is the text returned to API clients. It never includes the
// upstream response body.
func (e *UpstreamError) PublicMessage() string {
	if e.Status > 0 {
		return fmt.Sprintf("Upstream %s failed to %s (status %d)", e.System, e.Operation, e.Status)
	}
	return fmt.Sprintf("Upstream %s unreachable while trying to %s", e.System, e.Operation)
}

// ConfigError reports an entity schema or type that cannot be used.
type ConfigError struct {
	EntityType string
	Problem    string
	Err        error
}

func (e *ConfigError) Error() string {
	if e.EntityType == "" {
		return "provisioning config: " + e.Problem
	}
	return fmt.Sprintf("provisioning config: entity type %q: %s", e.EntityType, e.Problem)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
