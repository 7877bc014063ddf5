package provisioning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/fiware-provisioner/internal/infrastructure/influxdb"
	"github.com/nerrad567/fiware-provisioner/internal/infrastructure/mqtt"
)

type fakePointWriter struct {
	points []influxdb.ProvisioningPoint
}

func (f *fakePointWriter) WriteProvisioning(p influxdb.ProvisioningPoint) {
	f.points = append(f.points, p)
}

type published struct {
	topic string
	v     any
}

type fakePublisher struct {
	topics mqtt.Topics
	sent   []published
	err    error
}

func (f *fakePublisher) PublishJSON(topic string, v any) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{topic: topic, v: v})
	return nil
}

func (f *fakePublisher) Topics() mqtt.Topics { return f.topics }

func TestTimeSeriesObserver(t *testing.T) {
	w := &fakePointWriter{}
	started := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	err := NewTimeSeriesObserver(w).ObserveProvisioning(context.Background(), Outcome{
		EntityType:  "Mobile",
		DeviceID:    "Mobile00000001",
		Status:      OutcomeFailure,
		FailedStage: StateEnsuringSubscription,
		Compensated: true,
		StartedAt:   started,
		Duration:    120 * time.Millisecond,
	})
	require.NoError(t, err)

	require.Len(t, w.points, 1)
	assert.Equal(t, influxdb.ProvisioningPoint{
		EntityType:  "Mobile",
		Outcome:     OutcomeFailure,
		FailedStage: "ensuring_subscription",
		DeviceID:    "Mobile00000001",
		Duration:    120 * time.Millisecond,
		Compensated: true,
		Time:        started,
	}, w.points[0])
}

func TestEventObserver(t *testing.T) {
	schemas, err := NewSchemas(mobileSchema())
	require.NoError(t, err)
	pub := &fakePublisher{topics: mqtt.NewTopics("fleet")}
	obs := NewEventObserver(pub, schemas)
	started := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	require.NoError(t, obs.ObserveProvisioning(context.Background(), Outcome{
		Status:     OutcomeSuccess,
		EntityType: "Mobile",
		DeviceID:   "Mobile00000003",
		ExternalID: "phone-3",
		RequestID:  "req-3",
		StartedAt:  started,
		Duration:   time.Second,
	}))

	require.Len(t, pub.sent, 1)
	assert.Equal(t, "fleet/events/Mobile/Mobile00000003", pub.sent[0].topic)
	assert.Equal(t, ProvisionedEvent{
		DeviceID:      "Mobile00000003",
		EntityName:    "urn-ngsi:Mobile:Mobile00000003",
		EntityType:    "Mobile",
		ExternalID:    "phone-3",
		RequestID:     "req-3",
		ProvisionedAt: started.Add(time.Second),
	}, pub.sent[0].v)
}

func TestEventObserver_SkipsFailures(t *testing.T) {
	schemas, err := NewSchemas(mobileSchema())
	require.NoError(t, err)
	pub := &fakePublisher{topics: mqtt.NewTopics("")}
	obs := NewEventObserver(pub, schemas)

	for _, status := range []string{OutcomeFailure, OutcomeRejected} {
		require.NoError(t, obs.ObserveProvisioning(context.Background(), Outcome{Status: status, EntityType: "Mobile"}))
	}
	assert.Empty(t, pub.sent)
}

func TestEventObserver_PublishError(t *testing.T) {
	schemas, err := NewSchemas(mobileSchema())
	require.NoError(t, err)
	pub := &fakePublisher{topics: mqtt.NewTopics(""), err: errors.New("not connected")}

	err = NewEventObserver(pub, schemas).ObserveProvisioning(context.Background(), Outcome{
		Status: OutcomeSuccess, EntityType: "Mobile", DeviceID: "Mobile00000001",
	})
	assert.EqualError(t, err, "not connected")
}
