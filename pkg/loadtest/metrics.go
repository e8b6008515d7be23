package loadtest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/informalsystems/wsproxy-load-test/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsShutdownTimeout = 5 * time.Second

// Metrics exposes the progress of a load test via Prometheus. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	levelMetric             prometheus.Gauge     // The concurrency level currently underway (0 if none).
	activeConnectionsMetric prometheus.Gauge     // How many connections are currently open.
	sentMetric              prometheus.Counter   // Total requests sent across all levels.
	receivedMetric          prometheus.Counter   // Total messages received across all levels.
	connectFailuresMetric   prometheus.Counter   // Connections that never opened.
	succeededMetric         *prometheus.GaugeVec // Per-level total of messages received.
	failedMetric            *prometheus.GaugeVec // Per-level total of requests without a reply.
	levelsCompletedMetric   prometheus.Counter   // How many levels have finished.
}

// NewMetrics creates a set of load testing metrics on their own registry, so
// that several load tests can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		levelMetric: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wsproxyloadtest_level",
			Help: "The concurrency level currently underway (0 if none)",
		}),
		activeConnectionsMetric: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wsproxyloadtest_active_connections",
			Help: "The number of connections to the proxy that are currently open",
		}),
		sentMetric: factory.NewCounter(prometheus.CounterOpts{
			Name: "wsproxyloadtest_requests_sent_total",
			Help: "The total number of requests sent to the proxy",
		}),
		receivedMetric: factory.NewCounter(prometheus.CounterOpts{
			Name: "wsproxyloadtest_messages_received_total",
			Help: "The total number of messages received from the proxy",
		}),
		connectFailuresMetric: factory.NewCounter(prometheus.CounterOpts{
			Name: "wsproxyloadtest_connect_failures_total",
			Help: "The total number of connections that failed to open",
		}),
		succeededMetric: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wsproxyloadtest_level_succeeded",
			Help: "The number of replies received during each concurrency level",
		}, []string{"level"}),
		failedMetric: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wsproxyloadtest_level_failed",
			Help: "The number of requests without a reply during each concurrency level",
		}, []string{"level"}),
		levelsCompletedMetric: factory.NewCounter(prometheus.CounterOpts{
			Name: "wsproxyloadtest_levels_completed_total",
			Help: "The number of concurrency levels completed so far",
		}),
	}
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes the metrics at /metrics on the given address until the
// returned function is called.
func (m *Metrics) Serve(addr string, logger logging.Logger) (func(), error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, NewError(ErrFailedToStartMetricsServer, err, addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	svr := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		logger.Info("Serving metrics", "addr", l.Addr().String())
		if err := svr.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server shut down", "err", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := svr.Shutdown(ctx); err != nil {
			logger.Error("Failed to gracefully shut down metrics server", "err", err)
		}
		<-stopped
	}, nil
}

func (m *Metrics) levelStarted(level int) {
	if m == nil {
		return
	}
	m.levelMetric.Set(float64(level))
}

func (m *Metrics) levelCompleted(r AggregateResult) {
	if m == nil {
		return
	}
	label := strconv.Itoa(r.Level)
	m.succeededMetric.WithLabelValues(label).Set(float64(r.Succeeded))
	m.failedMetric.WithLabelValues(label).Set(float64(r.Failed))
	m.levelsCompletedMetric.Inc()
	m.levelMetric.Set(0)
}

func (m *Metrics) connectionOpened() {
	if m == nil {
		return
	}
	m.activeConnectionsMetric.Inc()
}

func (m *Metrics) connectionClosed() {
	if m == nil {
		return
	}
	m.activeConnectionsMetric.Dec()
}

func (m *Metrics) connectFailed() {
	if m == nil {
		return
	}
	m.connectFailuresMetric.Inc()
}

func (m *Metrics) requestSent() {
	if m == nil {
		return
	}
	m.sentMetric.Inc()
}

func (m *Metrics) messageReceived() {
	if m == nil {
		return
	}
	m.receivedMetric.Inc()
}
