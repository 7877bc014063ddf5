package provisioning

import (
	"context"

	"github.com/nerrad567/fiware-provisioner/internal/fiware"
)

// DeviceSettings is the fixed part of every device record.
type DeviceSettings struct {
	Protocol  string
	Transport string
}

// DeviceRegistrar creates device records and pushes their first measure.
type DeviceRegistrar struct {
	registry Registry
	settings DeviceSettings
	logger   Logger
}

// NewDeviceRegistrar builds a registrar.
func NewDeviceRegistrar(registry Registry, settings DeviceSettings, logger Logger) *DeviceRegistrar {
	if logger == nil {
		logger = noopLogger{}
	}
	return &DeviceRegistrar{registry: registry, settings: settings, logger: logger}
}

// Create registers deviceID with schema's attributes and the caller's
// external id as its static attribute.
func (r *DeviceRegistrar) Create(ctx context.Context, schema EntitySchema, deviceID, externalID string) error {
	device := fiware.Device{
		DeviceID:   deviceID,
		EntityName: schema.EntityName(deviceID),
		EntityType: schema.Type,
		Protocol:   r.settings.Protocol,
		Transport:  r.settings.Transport,
		Attributes: schema.DeviceAttributes(),
		StaticAttributes: []fiware.StaticAttribute{{
			Name:  schema.StaticAttribute,
			Type:  TypeString,
			Value: externalID,
		}},
	}

	if err := r.registry.CreateDevice(ctx, device); err != nil {
		return newUpstreamError(SystemIoTAgent, "create device", StateRegisteringDevice, err)
	}

	r.logger.Info("device created", "device_id", deviceID, "entity_name", device.EntityName)
	return nil
}

// PushInitialMeasure sends the registration's attribute values, keyed by
// object id, as the device's first measure.
func (r *DeviceRegistrar) PushInitialMeasure(ctx context.Context, schema EntitySchema, deviceID string, reg Registration) error {
	measure := make(fiware.Measure, len(reg.Values))
	for _, attr := range schema.Attributes {
		if v, ok := reg.Values[attr.Name]; ok {
			measure[attr.ObjectID] = v
		}
	}

	if err := r.registry.SendMeasure(ctx, deviceID, measure); err != nil {
		return newUpstreamError(SystemIoTAgent, "send initial measure", StateRegisteringDevice, err)
	}

	r.logger.Debug("initial measure sent", "device_id", deviceID)
	return nil
}

// Delete removes a device record. Used to compensate a failed provisioning.
func (r *DeviceRegistrar) Delete(ctx context.Context, deviceID string) error {
	if err := r.registry.DeleteDevice(ctx, deviceID); err != nil {
		return newUpstreamError(SystemIoTAgent, "delete device", StateFailed, err)
	}
	return nil
}
