// Package api provides the HTTP and WebSocket front end of the provisioner.
//
// Routes:
//
//	POST /devices        provision one device
//	GET  /provisionings  audit log of provisioning attempts
//	GET  /health         liveness plus dependency checks
//	GET  /metrics        Prometheus exposition
//	GET  /ws             live stream of provisioning outcomes
//
// The server follows the same lifecycle pattern as the infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
