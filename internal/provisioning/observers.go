package provisioning

import (
	"context"
	"time"

	"github.com/nerrad567/fiware-provisioner/internal/infrastructure/influxdb"
	"github.com/nerrad567/fiware-provisioner/internal/infrastructure/mqtt"
)

// PointWriter is the part of *influxdb.Client used for telemetry.
type PointWriter interface {
	WriteProvisioning(p influxdb.ProvisioningPoint)
}

// TimeSeriesObserver writes every outcome as an InfluxDB point.
type TimeSeriesObserver struct {
	writer PointWriter
}

// NewTimeSeriesObserver wraps w.
func NewTimeSeriesObserver(w PointWriter) *TimeSeriesObserver {
	return &TimeSeriesObserver{writer: w}
}

// ObserveProvisioning implements Observer.
func (t *TimeSeriesObserver) ObserveProvisioning(_ context.Context, o Outcome) error {
	t.writer.WriteProvisioning(influxdb.ProvisioningPoint{
		EntityType:  o.EntityType,
		Outcome:     o.Status,
		FailedStage: string(o.FailedStage),
		DeviceID:    o.DeviceID,
		Duration:    o.Duration,
		Compensated: o.Compensated,
		Time:        o.StartedAt,
	})
	return nil
}

// EventPublisher is the part of *mqtt.Client used for events.
type EventPublisher interface {
	PublishJSON(topic string, v any) error
	Topics() mqtt.Topics
}

// ProvisionedEvent is published for every successfully provisioned device.
type ProvisionedEvent struct {
	DeviceID      string    `json:"device_id"`
	EntityName    string    `json:"entity_name"`
	EntityType    string    `json:"entity_type"`
	ExternalID    string    `json:"external_id"`
	RequestID     string    `json:"request_id,omitempty"`
	ProvisionedAt time.Time `json:"provisioned_at"`
}

// EventObserver publishes a ProvisionedEvent over MQTT for each success.
// Failed and rejected outcomes are not published.
type EventObserver struct {
	publisher EventPublisher
	schemas   *Schemas
}

// NewEventObserver wraps p. schemas resolves entity names.
func NewEventObserver(p EventPublisher, schemas *Schemas) *EventObserver {
	return &EventObserver{publisher: p, schemas: schemas}
}

// ObserveProvisioning implements Observer.
func (e *EventObserver) ObserveProvisioning(_ context.Context, o Outcome) error {
	if o.Status != OutcomeSuccess {
		return nil
	}

	event := ProvisionedEvent{
		DeviceID:      o.DeviceID,
		EntityType:    o.EntityType,
		ExternalID:    o.ExternalID,
		RequestID:     o.RequestID,
		ProvisionedAt: o.StartedAt.Add(o.Duration).UTC(),
	}
	if schema, err := e.schemas.Lookup(o.EntityType); err == nil {
		event.EntityName = schema.EntityName(o.DeviceID)
	}

	return e.publisher.PublishJSON(e.publisher.Topics().DeviceProvisioned(o.EntityType, o.DeviceID), event)
}
