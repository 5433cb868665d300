// Package metrics exposes poll-cycle counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ebbwatch/internal/common"
	"github.com/ternarybob/ebbwatch/internal/interfaces"
)

const namespace = "ebbwatch"

// Metrics records poll outcomes into its own registry
type Metrics struct {
	registry      *prometheus.Registry
	polls         *prometheus.CounterVec
	notices       prometheus.Counter
	signals       prometheus.Counter
	notifications *prometheus.CounterVec
	pollDuration  prometheus.Histogram
	lastSuccess   prometheus.Gauge
}

var _ interfaces.PollRecorder = (*Metrics)(nil)

// New creates the collectors and registers them with a fresh registry
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.polls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "polls_total",
		Help:      "Poll cycles by result",
	}, []string{"result"})
	m.notices = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notices_extracted_total",
		Help:      "Notices extracted from the EBB page",
	})
	m.signals = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signals_detected_total",
		Help:      "Notices classified as trading signals",
	})
	m.notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Slack notifications by result",
	}, []string{"result"})
	m.pollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "poll_duration_seconds",
		Help:      "Time spent in one poll cycle",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})
	m.lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last poll cycle that fetched the feed",
	})

	m.registry.MustRegister(
		m.polls, m.notices, m.signals,
		m.notifications, m.pollDuration, m.lastSuccess,
	)

	return m
}

// Registry returns the registry the collectors live in
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordPoll updates the collectors for one finished cycle
func (m *Metrics) RecordPoll(found, tradable, delivered, failed int, duration time.Duration, err error) {
	m.pollDuration.Observe(duration.Seconds())

	if err != nil {
		m.polls.WithLabelValues("error").Inc()
		return
	}

	m.polls.WithLabelValues("success").Inc()
	m.notices.Add(float64(found))
	m.signals.Add(float64(tradable))
	m.notifications.WithLabelValues("sent").Add(float64(delivered))
	m.notifications.WithLabelValues("failed").Add(float64(failed))
	m.lastSuccess.SetToCurrentTime()
}

// Server serves /metrics and /healthz
type Server struct {
	server *http.Server
	logger arbor.ILogger
}

// NewServer creates a metrics server for addr
func NewServer(addr string, m *Metrics, logger arbor.ILogger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start listens in the background until Shutdown
func (s *Server) Start() {
	common.SafeGo(s.logger, "metrics-server", func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("Metrics server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Str("addr", s.server.Addr).Msg("Metrics server failed")
		}
	})
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
