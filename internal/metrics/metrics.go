package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus metrics of the discovery loop. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	Runs             prometheus.Counter
	DeviceFailures   *prometheus.CounterVec
	MalformedRecords prometheus.Counter
	Nodes            prometheus.Gauge
	Edges            prometheus.Gauge
	Duration         prometheus.Histogram
}

// New registers the metrics against reg, defaulting to the global registry
// when nil.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "topology_discovery_runs_total",
		Help: "Total number of completed discovery runs.",
	}), "topology_discovery_runs_total")
	if err != nil {
		return nil, err
	}
	failures, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "topology_device_failures_total",
		Help: "Devices whose neighbor report could not be retrieved, labeled by transport.",
	}, []string{"transport"}), "topology_device_failures_total")
	if err != nil {
		return nil, err
	}
	malformed, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "topology_malformed_records_total",
		Help: "Neighbor records and devices skipped by the topology builder.",
	}), "topology_malformed_records_total")
	if err != nil {
		return nil, err
	}
	nodes, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "topology_nodes",
		Help: "Number of devices in the latest topology graph.",
	}), "topology_nodes")
	if err != nil {
		return nil, err
	}
	edges, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "topology_edges",
		Help: "Number of edges in the latest topology graph.",
	}), "topology_edges")
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "topology_discovery_duration_seconds",
		Help:    "Wall time of a discovery run in seconds.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}), "topology_discovery_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatherer:         gatherer,
		Runs:             runs,
		DeviceFailures:   failures,
		MalformedRecords: malformed,
		Nodes:            nodes,
		Edges:            edges,
		Duration:         duration,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (m *Metrics) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		gatherer = m.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) DeviceFailed(transport string) {
	if m == nil {
		return
	}
	if transport == "" {
		transport = "unknown"
	}
	m.DeviceFailures.WithLabelValues(transport).Inc()
}

// ObserveRun records the outcome of one discovery run.
func (m *Metrics) ObserveRun(elapsed time.Duration, nodes, edges, malformed int) {
	if m == nil {
		return
	}
	m.Runs.Inc()
	m.Duration.Observe(elapsed.Seconds())
	m.SetGraph(nodes, edges)
	m.MalformedRecords.Add(float64(malformed))
}

// SetGraph sets the size gauges of the published graph without counting a
// run.
func (m *Metrics) SetGraph(nodes, edges int) {
	if m == nil {
		return
	}
	m.Nodes.Set(float64(nodes))
	m.Edges.Set(float64(edges))
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}
