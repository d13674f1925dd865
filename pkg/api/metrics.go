package api

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ssargent/framewire/pkg/envelope"
	"github.com/ssargent/framewire/pkg/store"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	directionIngress = "ingress"
	directionEgress  = "egress"

	sessionWriter   = "writer"
	sessionStreamer = "streamer"
)

// Metrics holds all Prometheus metrics for the API
type Metrics struct {
	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec

	// API key authentication metrics
	authRequestsTotal *prometheus.CounterVec

	// Frame transport metrics
	framesTotal       *prometheus.CounterVec
	frameBytesTotal   *prometheus.CounterVec
	activeSessions    *prometheus.GaugeVec
	codecUpdatesTotal prometheus.Counter

	// Store metrics
	storeChannels  prometheus.Gauge
	storeRecords   prometheus.Gauge
	storeDataBytes prometheus.Gauge
}

// NewMetrics creates all Prometheus metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "framewire_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "framewire_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		httpRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "framewire_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),

		authRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "framewire_auth_requests_total",
				Help: "Total number of authentication requests",
			},
			[]string{"status"},
		),

		framesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "framewire_frames_total",
				Help: "Total number of frames moved over writer and streamer sessions",
			},
			[]string{"direction"},
		),

		frameBytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "framewire_frame_bytes_total",
				Help: "Total number of envelope bytes by direction and format",
			},
			[]string{"direction", "format"},
		),

		activeSessions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "framewire_active_sessions",
				Help: "Number of open writer and streamer sessions",
			},
			[]string{"kind"},
		),

		codecUpdatesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "framewire_codec_updates_total",
				Help: "Total number of frame codec updates applied by sessions",
			},
		),

		storeChannels: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "framewire_store_channels",
				Help: "Number of channels with at least one stored series",
			},
		),

		storeRecords: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "framewire_store_records",
				Help: "Number of series records in the log",
			},
		),

		storeDataBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "framewire_store_data_size_bytes",
				Help: "Size of the series log in bytes",
			},
		),
	}

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	statusCodeStr := strconv.Itoa(statusCode)

	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCodeStr).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordAuthRequest records an authentication request
func (m *Metrics) RecordAuthRequest(success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.authRequestsTotal.WithLabelValues(status).Inc()
}

// RecordMessage records one envelope message moving in direction
func (m *Metrics) RecordMessage(direction string, data []byte) {
	m.frameBytesTotal.WithLabelValues(direction, string(envelope.FormatOf(data))).Add(float64(len(data)))
}

// RecordFrame counts a frame moving in direction
func (m *Metrics) RecordFrame(direction string) {
	m.framesTotal.WithLabelValues(direction).Inc()
}

// RecordCodecUpdate counts a frame codec update
func (m *Metrics) RecordCodecUpdate() {
	m.codecUpdatesTotal.Inc()
}

// SessionOpened increments the active session gauge and returns the matching decrement
func (m *Metrics) SessionOpened(kind string) func() {
	gauge := m.activeSessions.WithLabelValues(kind)
	gauge.Inc()
	return gauge.Dec
}

// UpdateStoreStats updates store statistics
func (m *Metrics) UpdateStoreStats(stats store.Stats) {
	m.storeChannels.Set(float64(stats.Channels))
	m.storeRecords.Set(float64(stats.Records))
	m.storeDataBytes.Set(float64(stats.DataSize))
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Record request in flight
		gauge := m.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		// Create response writer wrapper to capture status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		// Call the wrapped handler
		handler(rw, r)

		// Record metrics
		duration := time.Since(start)
		m.RecordHTTPRequest(method, endpoint, rw.statusCode, duration)
	}
}

// InstrumentAuthMiddleware instruments the authentication middleware
func (m *Metrics) InstrumentAuthMiddleware(next func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Check if API key is present
			hasAPIKey := r.Header.Get(apiKeyHeader) != ""

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next(h).ServeHTTP(rw, r)

			if hasAPIKey {
				m.RecordAuthRequest(rw.statusCode != http.StatusUnauthorized)
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through instrumented handlers.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}
