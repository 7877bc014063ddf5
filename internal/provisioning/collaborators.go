package provisioning

import (
	"context"

	"github.com/nerrad567/fiware-provisioner/internal/fiware"
)

// Registry is the device-management side: device groups, device records and
// the measure ingestion endpoint. *fiware.IoTAgent implements it.
type Registry interface {
	ListServices(ctx context.Context) ([]fiware.ServiceGroup, error)
	CreateService(ctx context.Context, group fiware.ServiceGroup) error
	ListDevices(ctx context.Context) ([]fiware.Device, error)
	CreateDevice(ctx context.Context, device fiware.Device) error
	DeleteDevice(ctx context.Context, deviceID string) error
	SendMeasure(ctx context.Context, deviceID string, measure fiware.Measure) error
}

// Broker is the context broker holding subscriptions. *fiware.Orion
// implements it.
type Broker interface {
	ListSubscriptions(ctx context.Context) ([]fiware.Subscription, error)
	CreateSubscription(ctx context.Context, sub fiware.Subscription) (string, error)
}

// Logger is the subset of logging.Logger this package uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
