package diskkit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "diskkit"

// Result label values.
const (
	resultSuccess = "success"
	resultError   = "error"
)

// Metrics holds the Prometheus collectors updated by a Storage.
type Metrics struct {
	adapterBuilds     *prometheus.CounterVec
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered, which is what tests usually want.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		adapterBuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "adapter_builds_total",
				Help:      "Total number of adapter construction attempts",
			},
			[]string{"disk", "driver", "result"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "operations_total",
				Help:      "Total number of storage operations",
			},
			[]string{"disk", "op", "result"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of storage operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"disk", "op"},
		),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.adapterBuilds, m.operations, m.operationDuration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

func (m *Metrics) recordBuild(disk, driver string, err error) {
	if m == nil {
		return
	}
	m.adapterBuilds.WithLabelValues(disk, driver, result(err)).Inc()
}

func (m *Metrics) recordOperation(disk, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(disk, op, result(err)).Inc()
	m.operationDuration.WithLabelValues(disk, op).Observe(time.Since(start).Seconds())
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}
