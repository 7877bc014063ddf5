package fiware

import (
	"errors"
	"fmt"
)

// maxErrorBody bounds how much of an upstream error body is kept.
const maxErrorBody = 512

// ErrDecode is wrapped when a 2xx response body cannot be parsed.
var ErrDecode = errors.New("fiware: malformed response body")

// StatusError is returned when a component answers with a non-2xx status.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fiware: %s %s returned %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("fiware: %s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// StatusCode returns the HTTP status carried by err, or 0 when err did not
// come from a component response.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

func truncate(b []byte) string {
	if len(b) <= maxErrorBody {
		return string(b)
	}
	return string(b[:maxErrorBody]) + "..."
}
