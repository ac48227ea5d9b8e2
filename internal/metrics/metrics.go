// Package metrics exposes Prometheus collectors for inventory traffic.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Metrics groups the collectors the authority and server update.
type Metrics struct {
	Operations      *prometheus.CounterVec
	OperationTime   *prometheus.HistogramVec
	OpenOwners      prometheus.Gauge
	Connections     prometheus.Gauge
	SnapshotFlushes *prometheus.CounterVec
	SnapshotsSaved  prometheus.Counter
}

// New creates unregistered collectors under namespace.
func New(namespace string) *Metrics {
	return &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inventory_operations_total",
				Help:      "Inventory operations handled, by operation and result code.",
			},
			[]string{"op", "code"},
		),
		OperationTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "inventory_operation_duration_seconds",
				Help:      "Time spent validating and committing inventory operations.",
				Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
			},
			[]string{"op"},
		),
		OpenOwners: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "inventory_open_owners",
				Help:      "Owners whose containers are loaded.",
			},
		),
		Connections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_connections",
				Help:      "Open client connections.",
			},
		),
		SnapshotFlushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_flushes_total",
				Help:      "Snapshot flush rounds, by result.",
			},
			[]string{"result"},
		),
		SnapshotsSaved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_saved_total",
				Help:      "Container snapshots written to the store.",
			},
		),
	}
}

// Register adds every collector to registerer.
func (m *Metrics) Register(registerer prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.Operations,
		m.OperationTime,
		m.OpenOwners,
		m.Connections,
		m.SnapshotFlushes,
		m.SnapshotsSaved,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveOperation records one finished operation. code is the wire result
// code ("ok" on success).
func (m *Metrics) ObserveOperation(op, code string, started time.Time) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, code).Inc()
	m.OperationTime.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// ObserveFlush records one flush round that wrote saved snapshots.
func (m *Metrics) ObserveFlush(saved int, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.SnapshotFlushes.WithLabelValues(result).Inc()
	m.SnapshotsSaved.Add(float64(saved))
}
