package provisioning

import (
	"fmt"
	"math"
	"strconv"

	"github.com/nerrad567/fiware-provisioner/internal/fiware"
)

// DeviceID is a device identifier split into its textual prefix and its
// zero-padded numeric suffix.
type DeviceID struct {
	Prefix string
	Value  uint64
	Width  int
}

// String renders the id. A value wider than Width is never truncated, so
// Mobile99999999 is followed by Mobile100000000.
func (d DeviceID) String() string {
	return fmt.Sprintf("%s%0*d", d.Prefix, d.Width, d.Value)
}

// Next returns the following id with the same prefix and width.
func (d DeviceID) Next() (DeviceID, error) {
	if d.Value == math.MaxUint64 {
		return DeviceID{}, fmt.Errorf("%w: %s", ErrSequenceExhausted, d)
	}
	return DeviceID{Prefix: d.Prefix, Value: d.Value + 1, Width: d.Width}, nil
}

// ParseDeviceID splits id at its trailing run of decimal digits. It fails
// with ErrCorruptDeviceID when there are none or they overflow.
func ParseDeviceID(id string) (DeviceID, error) {
	i := len(id)
	for i > 0 && id[i-1] >= '0' && id[i-1] <= '9' {
		i--
	}
	digits := id[i:]
	if digits == "" {
		return DeviceID{}, fmt.Errorf("%w: %q", ErrCorruptDeviceID, id)
	}

	value, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return DeviceID{}, fmt.Errorf("%w: %q: %w", ErrCorruptDeviceID, id, err)
	}
	return DeviceID{Prefix: id[:i], Value: value, Width: len(digits)}, nil
}

// NextDeviceID derives the next identifier from the registry's device list.
//
// Devices of other entity types are ignored; records without an entity
// type are treated as belonging to every type. The last remaining device in
// the registry's own order is trusted as the most recent one and is not
// re-sorted. With no such device the schema's seed id is returned.
func NextDeviceID(schema EntitySchema, devices []fiware.Device) (DeviceID, error) {
	for i := len(devices) - 1; i >= 0; i-- {
		d := devices[i]
		if d.EntityType != "" && d.EntityType != schema.Type {
			continue
		}
		last, err := ParseDeviceID(d.DeviceID)
		if err != nil {
			return DeviceID{}, err
		}
		return last.Next()
	}
	return schema.SeedID(), nil
}
