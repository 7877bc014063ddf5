package provisioning

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports provisioning outcomes to Prometheus.
type Metrics struct {
	requests       *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	upstreamErrors *prometheus.CounterVec
	compensations  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "provisioner",
				Name:      "requests_total",
				Help:      "Provisioning requests by entity type and outcome",
			},
			[]string{"entity_type", "outcome"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "provisioner",
				Name:      "stage_duration_seconds",
				Help:      "Duration of each provisioning stage in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
			},
			[]string{"stage"},
		),
		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "provisioner",
				Subsystem: "upstream",
				Name:      "errors_total",
				Help:      "Failed downstream calls by system and operation",
			},
			[]string{"system", "operation"},
		),
		compensations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "provisioner",
				Name:      "compensations_total",
				Help:      "Device record deletions after a failed provisioning, by result",
			},
			[]string{"result"},
		),
	}

	for _, c := range []prometheus.Collector{m.requests, m.stageDuration, m.upstreamErrors, m.compensations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveProvisioning implements Observer.
func (m *Metrics) ObserveProvisioning(_ context.Context, o Outcome) error {
	m.requests.WithLabelValues(o.EntityType, o.Status).Inc()

	for _, st := range o.Stages {
		m.stageDuration.WithLabelValues(string(st.Stage)).Observe(st.Duration.Seconds())
	}

	var uerr *UpstreamError
	if errors.As(o.Err, &uerr) {
		m.upstreamErrors.WithLabelValues(uerr.System, uerr.Operation).Inc()
	}

	if o.Err != nil && o.DeviceCreated {
		result := "skipped"
		if o.Compensated {
			result = "deleted"
		}
		m.compensations.WithLabelValues(result).Inc()
	}
	return nil
}
