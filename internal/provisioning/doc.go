// Package provisioning turns one registration request into a consistent set
// of FIWARE resources: a device group and a device record in the IoT Agent,
// the device's first measure, and an Orion subscription forwarding the
// entity type's changes to QuantumLeap.
//
// # Stages
//
// Provisioner.Provision runs five stages in order and stops at the first
// failure:
//
//  1. Validating: required attributes present and coercible; no network I/O.
//  2. EnsuringGroup: list device groups, create one for the type if absent.
//  3. AllocatingID: list devices and derive the next identifier.
//  4. RegisteringDevice: create the device record, push the first measure.
//  5. EnsuringSubscription: list subscriptions, create one if absent.
//
// Nothing is retried. Failures after the device record exists leave it in
// place unless compensation is enabled, in which case the record is deleted
// and the caller still receives the original error.
//
// # Identifiers
//
// Device ids are a textual prefix plus a zero-padded counter
// (Mobile00000001). The next id is derived from the last device of the type
// in the registry's own order; the suffix grows past its width rather than
// wrapping. SequenceAllocator additionally persists the counter so an id is
// never issued twice. Allocation and device creation for one type hold a
// per-type lock, and the group and subscription ensurers coalesce
// concurrent calls per type, so one process never races itself.
//
// # Errors
//
// ValidationError maps to 422, UpstreamError carries the downstream status
// through, and anything else is an unknown error whose details are logged
// but not exposed.
//
// # Observers
//
// Every attempt ends in an Outcome delivered to registered Observers:
// Prometheus metrics, InfluxDB points, MQTT events, the audit log and the
// WebSocket hub. Observer errors are logged only.
package provisioning
