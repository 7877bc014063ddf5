// Package influxdb records provisioning outcomes as InfluxDB points.
//
// Each POST /devices request that passes validation becomes one point in
// the "provisioning" measurement, tagged by entity type, outcome and the
// stage that failed (if any). Writes are asynchronous and never delay the
// HTTP response.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteProvisioning(influxdb.ProvisioningPoint{
//	    EntityType: "Mobile",
//	    Outcome:    "success",
//	    DeviceID:   "Mobile00000008",
//	    Duration:   elapsed,
//	})
package influxdb
