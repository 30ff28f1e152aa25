// Package metrics собирает метрики Prometheus сервера в отдельном реестре.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "soundlines"

// Metrics набор метрик сервера
type Metrics struct {
	registry *prometheus.Registry

	ReportsSubmitted *prometheus.CounterVec
	NearestLatency   prometheus.Histogram
	WorldFetches     *prometheus.CounterVec
	WorldAcks        *prometheus.CounterVec
	Mutations        *prometheus.CounterVec
	Compactions      *prometheus.CounterVec
	Checkpoints      *prometheus.CounterVec
	ExpiredReports   prometheus.Counter
	StreamClients    prometheus.Gauge
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New создает метрики в новом реестре вместе со стандартными коллекторами процесса
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ReportsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_submitted_total",
			Help:      "Submitted reports by upsert outcome.",
		}, []string{"outcome"}),
		NearestLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "nearest_query_seconds",
			Help:      "Latency of report submission including the k-NN query.",
			Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05},
		}),
		WorldFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "world_fetches_total",
			Help:      "World fetches by delivery mode.",
		}, []string{"mode"}),
		WorldAcks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "world_acks_total",
			Help:      "World acknowledgments by result.",
		}, []string{"result"}),
		Mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "world_mutations_total",
			Help:      "Committed world mutations by entity type.",
		}, []string{"type"}),
		Compactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_compactions_total",
			Help:      "Change log compaction runs by result.",
		}, []string{"result"}),
		Checkpoints: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "World checkpoint writes by result.",
		}, []string{"result"}),
		ExpiredReports: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_expired_total",
			Help:      "Reports dropped by the TTL sweep.",
		}),
		StreamClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Connected WebSocket diff stream clients.",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Sources значения, которые читаются в момент сбора метрик
type Sources struct {
	IndexSize func() int
	LogHead   func() int64
	LogFloor  func() int64
	LogLen    func() int
	Clients   func() int
}

// Observe регистрирует gauge функции для состояния индекса и журнала.
// Пустые функции пропускаются.
func (m *Metrics) Observe(src Sources) {
	factory := promauto.With(m.registry)
	gauge := func(name, help string, fn func() float64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, fn)
	}

	if src.IndexSize != nil {
		gauge("index_reports", "Reports currently held by the spatial index.",
			func() float64 { return float64(src.IndexSize()) })
	}
	if src.LogHead != nil {
		gauge("log_head_seq", "Sequence number of the newest change record.",
			func() float64 { return float64(src.LogHead()) })
	}
	if src.LogFloor != nil {
		gauge("log_floor_seq", "Highest compacted sequence number.",
			func() float64 { return float64(src.LogFloor()) })
	}
	if src.LogLen != nil {
		gauge("log_records", "Change records retained in memory.",
			func() float64 { return float64(src.LogLen()) })
	}
	if src.Clients != nil {
		gauge("tracked_clients", "Clients with a known sync cursor.",
			func() float64 { return float64(src.Clients()) })
	}
}

// ObserveHTTP записывает один HTTP запрос
func (m *Metrics) ObserveHTTP(route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(route, statusLabel(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Handler отдаёт метрики в формате Prometheus
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry возвращает реестр метрик
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
