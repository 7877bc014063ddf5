package provisioning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/fiware-provisioner/internal/fiware"
)

// sampleValue returns the counter value or histogram sample count of the
// series matching labels, or -1 when there is none.
func sampleValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue series
				}
			}
			if h := m.GetHistogram(); h != nil {
				return float64(h.GetSampleCount())
			}
			return m.GetCounter().GetValue()
		}
	}
	return -1
}

func TestMetrics_ObserveProvisioning(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.ObserveProvisioning(ctx, Outcome{
		EntityType: "Mobile",
		Status:     OutcomeSuccess,
		Stages: []StageTiming{
			{Stage: StateValidating, Duration: time.Millisecond},
			{Stage: StateEnsuringGroup, Duration: 5 * time.Millisecond},
		},
	}))

	upstream := newUpstreamError(SystemIoTAgent, "send initial measure", StateRegisteringDevice,
		&fiware.StatusError{Method: "POST", Path: "/iot/json", Status: 500})
	require.NoError(t, m.ObserveProvisioning(ctx, Outcome{
		EntityType:    "Mobile",
		Status:        OutcomeFailure,
		Err:           upstream,
		DeviceCreated: true,
		Compensated:   true,
	}))
	require.NoError(t, m.ObserveProvisioning(ctx, Outcome{
		EntityType:    "Mobile",
		Status:        OutcomeFailure,
		Err:           errors.New("boom"),
		DeviceCreated: true,
	}))
	require.NoError(t, m.ObserveProvisioning(ctx, Outcome{
		EntityType: "Mobile",
		Status:     OutcomeRejected,
		Err:        &ValidationError{Missing: []string{"latitude"}},
	}))

	assert.Equal(t, 1.0, sampleValue(t, reg, "provisioner_requests_total", map[string]string{"outcome": OutcomeSuccess}))
	assert.Equal(t, 2.0, sampleValue(t, reg, "provisioner_requests_total", map[string]string{"outcome": OutcomeFailure}))
	assert.Equal(t, 1.0, sampleValue(t, reg, "provisioner_requests_total", map[string]string{"outcome": OutcomeRejected}))
	assert.Equal(t, 1.0, sampleValue(t, reg, "provisioner_stage_duration_seconds", map[string]string{"stage": "ensuring_group"}))
	assert.Equal(t, 1.0, sampleValue(t, reg, "provisioner_upstream_errors_total",
		map[string]string{"system": SystemIoTAgent, "operation": "send initial measure"}))
	assert.Equal(t, 1.0, sampleValue(t, reg, "provisioner_compensations_total", map[string]string{"result": "deleted"}))
	assert.Equal(t, 1.0, sampleValue(t, reg, "provisioner_compensations_total", map[string]string{"result": "skipped"}))
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
}
