// Package fiware holds typed REST clients for the two FIWARE components the
// provisioner drives: the IoT Agent (device groups, devices and the JSON
// southbound measure endpoint) and the Orion Context Broker (NGSI v2
// subscriptions).
//
// Every request carries Accept: application/json plus the Fiware-Service and
// Fiware-ServicePath tenant headers, and runs under its own timeout derived
// from the caller's context. Non-2xx answers surface as *StatusError so
// callers can pass the upstream status through.
//
// List operations follow the components' limit/offset pagination until the
// reported total is reached, so callers always see the complete list in the
// component's own order.
package fiware
