package httpx

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}
)

const (
	metricsNamespace = "netwatch"
	metricsSubsystem = "dashboard"
)

// Metrics owns the dashboard's Prometheus collectors. It also observes the
// poller and the animator.
type Metrics struct {
	gatherer prometheus.Gatherer

	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	rateLimitHits  *prometheus.CounterVec
	fetchTotal     *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	commandTotal   *prometheus.CounterVec
	liveGauge      prometheus.Gauge
	spawnedTotal   prometheus.Counter
	droppedTotal   prometheus.Counter
}

// NewMetrics registers collectors on reg, or on the default registry when reg
// is nil. Collectors that are already registered are reused.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer = reg
		gatherer = reg
	}
	m := &Metrics{gatherer: gatherer}

	m.requestTotal = register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "http_requests_total",
		Help:      "Count of processed HTTP requests",
	}, []string{"method", "route", "status"}))

	m.requestLatency = register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "http_request_duration_seconds",
		Help:      "Latency distribution of HTTP handlers",
		Buckets:   histogramBuckets,
	}, []string{"method", "route", "status"}))

	m.rateLimitHits = register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "command_budget_rejections_total",
		Help:      "Commands refused because a caller or address budget was spent",
	}, []string{"route", "budget"}))

	m.fetchTotal = register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "snapshot_fetches_total",
		Help:      "Snapshot fetch completions by outcome",
	}, []string{"outcome"}))

	m.fetchLatency = register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "snapshot_fetch_duration_seconds",
		Help:      "Latency distribution of snapshot fetches",
		Buckets:   histogramBuckets,
	}))

	m.commandTotal = register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "commands_total",
		Help:      "Operator commands by action and outcome",
	}, []string{"action", "outcome"}))

	m.liveGauge = register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "trajectories_live",
		Help:      "Trajectories currently in the animation pool",
	}))

	m.spawnedTotal = register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "trajectories_spawned_total",
		Help:      "Trajectories added to the animation pool",
	}))

	m.droppedTotal = register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "trajectories_dropped_total",
		Help:      "Spawns discarded because the pool was full",
	}))
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) T {
	if err := reg.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return collector
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveFetch records a snapshot fetch completion.
func (m *Metrics) ObserveFetch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(outcome).Inc()
	m.fetchLatency.Observe(d.Seconds())
}

// ObserveCommand records the outcome of a block or unblock.
func (m *Metrics) ObserveCommand(action, outcome string) {
	if m == nil {
		return
	}
	m.commandTotal.WithLabelValues(action, outcome).Inc()
}

// ObserveFrame records animation pool statistics for one tick.
func (m *Metrics) ObserveFrame(live, spawned, dropped int) {
	if m == nil {
		return
	}
	m.liveGauge.Set(float64(live))
	if spawned > 0 {
		m.spawnedTotal.Add(float64(spawned))
	}
	if dropped > 0 {
		m.droppedTotal.Add(float64(dropped))
	}
}

func (m *Metrics) recordRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.requestTotal.With(labels).Inc()
	m.requestLatency.With(labels).Observe(duration.Seconds())
}

func (m *Metrics) recordRateLimitHit(route, budget string) {
	if m == nil {
		return
	}
	m.rateLimitHits.With(prometheus.Labels{"route": route, "budget": budget}).Inc()
}
