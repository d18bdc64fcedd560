// Package metrics provides Prometheus metrics for the Driftpad server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftpad_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driftpad_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driftpad_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftpad_db_connections_open",
			Help: "Open database connections",
		},
	)

	treeBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "driftpad_tree_build_duration_seconds",
			Help:    "Time to reassemble a project tree from flat records",
			Buckets: prometheus.DefBuckets,
		},
	)

	treeSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftpad_tree_size",
			Help: "Record count of the most recently built project tree",
		},
	)

	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftpad_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)

	refreshTokensActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftpad_refresh_tokens_active",
			Help: "Non-revoked refresh tokens",
		},
	)

	rateLimitHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftpad_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	assistantRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftpad_assistant_requests_total",
			Help: "AI assistant requests by action and result",
		},
		[]string{"action", "result"},
	)

	assistantRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "driftpad_assistant_request_duration_seconds",
			Help:    "Upstream AI completion duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftpad_sse_connections_active",
			Help: "Active SSE subscribers",
		},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftpad_sse_events_total",
			Help: "Published SSE events by type",
		},
		[]string{"type"},
	)

	assetBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftpad_asset_bytes_total",
			Help: "Asset bytes transferred by direction",
		},
		[]string{"direction"},
	)
)

// RecordHTTPRequest records one completed HTTP request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDBQuery records the duration of a named database query.
func RecordDBQuery(query string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// SetDBConnectionsOpen updates the open connection gauge.
func SetDBConnectionsOpen(n int) {
	dbConnectionsOpen.Set(float64(n))
}

// RecordTreeBuild records a tree reassembly.
func RecordTreeBuild(records int, duration time.Duration) {
	treeBuildDuration.Observe(duration.Seconds())
	treeSize.Set(float64(records))
}

// RecordAuthAttempt records a login or refresh attempt.
func RecordAuthAttempt(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// SetActiveRefreshTokens updates the active refresh token gauge.
func SetActiveRefreshTokens(n int64) {
	refreshTokensActive.Set(float64(n))
}

// RecordRateLimitHit counts a 429 rejection.
func RecordRateLimitHit() {
	rateLimitHitsTotal.Inc()
}

// RecordAssistantRequest records an assistant call.
func RecordAssistantRequest(action string, success bool, duration time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	assistantRequestsTotal.WithLabelValues(action, result).Inc()
	assistantRequestDuration.Observe(duration.Seconds())
}

// SetSSEConnectionsActive updates the subscriber gauge.
func SetSSEConnectionsActive(n int64) {
	sseConnectionsActive.Set(float64(n))
}

// RecordSSEEvent counts a published event.
func RecordSSEEvent(eventType string) {
	sseEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordAssetTransfer counts asset bytes in or out.
func RecordAssetTransfer(direction string, bytes int64) {
	assetBytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Middleware instruments HTTP handlers.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
