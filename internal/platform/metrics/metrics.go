package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cotizaciones"

// Metrics holds the collectors of one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	exports     *prometheus.CounterVec
	exportBytes *prometheus.HistogramVec
	dispatches  *prometheus.CounterVec
	storeOps    *prometheus.CounterVec
	snapshots   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "PDF exports by quality tier and result.",
		}, []string{"tier", "result"}),
		exportBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_bytes",
			Help:      "Size of exported PDFs.",
			Buckets:   prometheus.ExponentialBuckets(8<<10, 2, 10),
		}, []string{"tier"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Quote deliveries by channel and result.",
		}, []string{"channel", "result"}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Repository operations by backend, operation and result.",
		}, []string{"backend", "op", "result"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Live list snapshots received by the controller.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.exports, m.exportBytes, m.dispatches, m.storeOps, m.snapshots,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveExport(tier string, size int, err error) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(tier, result(err)).Inc()
	if err == nil {
		m.exportBytes.WithLabelValues(tier).Observe(float64(size))
	}
}

func (m *Metrics) ObserveDispatch(channel string, err error) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(channel, result(err)).Inc()
}

func (m *Metrics) ObserveStore(backend, op string, err error) {
	if m == nil {
		return
	}
	m.storeOps.WithLabelValues(backend, op, result(err)).Inc()
}

func (m *Metrics) ObserveSnapshot(err error) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
