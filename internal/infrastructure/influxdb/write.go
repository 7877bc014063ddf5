package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementProvisioning is the measurement holding one point per
// POST /devices request.
const MeasurementProvisioning = "provisioning"

// ProvisioningPoint is the time-series view of one provisioning outcome.
type ProvisioningPoint struct {
	EntityType  string
	Outcome     string
	FailedStage string
	DeviceID    string
	Duration    time.Duration
	Compensated bool
	Time        time.Time
}

// WriteProvisioning queues a provisioning point. Tags stay low-cardinality
// (entity type, outcome, failed stage); the device id is a field.
func (c *Client) WriteProvisioning(p ProvisioningPoint) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(provisioningPoint(p))
}

func provisioningPoint(p ProvisioningPoint) *write.Point {
	tags := map[string]string{
		"entity_type": p.EntityType,
		"outcome":     p.Outcome,
	}
	if p.FailedStage != "" {
		tags["failed_stage"] = p.FailedStage
	}

	fields := map[string]interface{}{
		"duration_ms": p.Duration.Milliseconds(),
		"compensated": p.Compensated,
	}
	if p.DeviceID != "" {
		fields["device_id"] = p.DeviceID
	}

	ts := p.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(MeasurementProvisioning, tags, fields, ts)
}

// WritePoint queues an arbitrary point.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
