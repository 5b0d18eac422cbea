package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingestion outcomes
const (
	OutcomeNew       = "new"
	OutcomeExisted   = "existed"
	OutcomeRecovered = "recovered"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// Metrics owns the service's Prometheus registry
type Metrics struct {
	registry *prometheus.Registry

	ingestions    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	activeIngest  prometheus.Gauge
	storedBytes   *prometheus.CounterVec
	droppedEvents prometheus.Counter
	sweptFiles    prometheus.Counter
	httpRequests  *prometheus.CounterVec
}

// New creates and registers every collector
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ingestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "materials_ingestions_total",
			Help: "Finished ingestions by outcome",
		}, []string{"kind", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "materials_stage_duration_seconds",
			Help:    "Duration of each ingestion stage",
			Buckets: []float64{.05, .25, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"stage", "result"}),
		activeIngest: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "materials_active_ingestions",
			Help: "Ingestions currently in progress",
		}),
		storedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "materials_stored_bytes_total",
			Help: "Bytes committed to the blob stores",
		}, []string{"store"}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "materials_progress_events_dropped_total",
			Help: "Progress events emitted after the consumer disconnected",
		}),
		sweptFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "materials_tmp_files_swept_total",
			Help: "Stale temp files removed by the sweeper",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "materials_http_requests_total",
			Help: "HTTP server's handled requests",
		}, []string{"code", "method"}),
	}

	reg.MustRegister(
		m.ingestions,
		m.stageDuration,
		m.activeIngest,
		m.storedBytes,
		m.droppedEvents,
		m.sweptFiles,
		m.httpRequests,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		newSystemInfoCollector(GetSystemInfo()),
	)

	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IngestStarted marks an ingestion as active and returns its completion func
func (m *Metrics) IngestStarted() func() {
	m.activeIngest.Inc()
	return m.activeIngest.Dec
}

// IngestFinished counts a finished ingestion
func (m *Metrics) IngestFinished(kind, outcome string) {
	m.ingestions.WithLabelValues(kind, outcome).Inc()
}

// ObserveStage records how long a stage took
func (m *Metrics) ObserveStage(stage string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.stageDuration.WithLabelValues(stage, result).Observe(time.Since(start).Seconds())
}

// BytesStored counts committed bytes
func (m *Metrics) BytesStored(store string, n int64) {
	if n > 0 {
		m.storedBytes.WithLabelValues(store).Add(float64(n))
	}
}

// EventDropped counts an event nobody received
func (m *Metrics) EventDropped() {
	m.droppedEvents.Inc()
}

// FilesSwept counts removed temp files
func (m *Metrics) FilesSwept(n int) {
	if n > 0 {
		m.sweptFiles.Add(float64(n))
	}
}

// RequestHandled counts one HTTP response
func (m *Metrics) RequestHandled(code int, method string) {
	m.httpRequests.WithLabelValues(strconv.Itoa(code), method).Inc()
}
