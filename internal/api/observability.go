package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"broadphase/internal/sim"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics with bounded cardinality (no per-body labels)
var (
	// Broad phase metrics
	stepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "broadphase_tick_duration_seconds",
		Help:    "Time spent in one scheduler tick, all substeps included",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
	})

	entriesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "broadphase_entries",
		Help: "Intervals held by the broad phase after the last step",
	})

	bodiesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "broadphase_bodies",
		Help: "Live bodies in the collider world",
	})

	pairsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "broadphase_pairs",
		Help: "Candidate pairs emitted by the last step",
	})

	shiftsHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "broadphase_sort_shifts",
		Help:    "Insertion-sort element moves per step",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	testsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "broadphase_sweep_tests",
		Help: "Pairs tested on the secondary axes by the last sweep",
	})

	churnTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadphase_population_changes_total",
		Help: "Intervals removed or appended",
	}, []string{"op"}) // Bounded: "removed", "appended"

	skippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broadphase_skipped_substeps_total",
		Help: "Substeps skipped because nothing moved or changed",
	})

	// Trace log metrics
	traceTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trace_log_events",
		Help: "Trace events accepted since start",
	})

	traceDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trace_log_dropped",
		Help: "Trace events dropped by rate limiting or a full buffer",
	})

	renderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "frame_render_duration_seconds",
		Help:    "Time spent rendering a debug frame",
		Buckets: []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1},
	})

	// DoS detection metrics
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"

	// HTTP metrics
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the chi route pattern

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// WebSocket metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Total WebSocket messages sent",
	}, []string{"format"}) // Bounded: "json", "msgpack"
)

// ObservabilityConfig configures the debug server.
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // Localhost only unless ALLOW_DEBUG_EXTERNAL=true
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults.
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// ObservabilityFromEnv applies DISABLE_DEBUG_SERVER, DEBUG_ADDR and
// DEBUG_USER/DEBUG_PASS.
func ObservabilityFromEnv() ObservabilityConfig {
	cfg := DefaultObservabilityConfig()
	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		cfg.Enabled = false
	}
	if addr := os.Getenv("DEBUG_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	cfg.BasicAuthUser = os.Getenv("DEBUG_USER")
	cfg.BasicAuthPass = os.Getenv("DEBUG_PASS")
	return cfg
}

// NewDebugHandler returns the pprof, /metrics and /health mux.
func NewDebugHandler(cfg ObservabilityConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.BasicAuthUser != "" {
		return basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}
	return mux
}

// DebugServer is the internal observability listener.
type DebugServer struct {
	srv *http.Server
}

// StartDebugServer starts the observability server in the background.
// It returns nil, nil when disabled. pprof must never be exposed publicly,
// so non-localhost addresses are rewritten unless explicitly allowed.
func StartDebugServer(cfg ObservabilityConfig) (*DebugServer, error) {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil, nil
	}

	if !isLocalAddr(cfg.ListenAddr) && os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
		log.Println("⚠️ Debug server forced to localhost for security")
		cfg.ListenAddr = "127.0.0.1:6060"
	}

	ds := &DebugServer{srv: &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           NewDebugHandler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}}

	go func() {
		log.Printf("📊 Debug server starting on %s", cfg.ListenAddr)
		log.Printf("   - pprof:   http://%s/debug/pprof/", cfg.ListenAddr)
		log.Printf("   - metrics: http://%s/metrics", cfg.ListenAddr)

		if err := ds.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()

	return ds, nil
}

// Shutdown stops the debug server. Safe on a nil receiver.
func (ds *DebugServer) Shutdown(ctx context.Context) error {
	if ds == nil {
		return nil
	}
	return ds.srv.Shutdown(ctx)
}

func isLocalAddr(addr string) bool {
	for _, prefix := range []string{"127.0.0.1:", "localhost:", "[::1]:"} {
		if len(addr) > len(prefix) && addr[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RecordStep records one scheduler tick. It matches sim.Engine.OnStep.
func RecordStep(res sim.StepResult) {
	stepDuration.Observe(res.Duration.Seconds())
	bodiesGauge.Set(float64(res.Bodies))
	entriesGauge.Set(float64(res.Stats.Entries))
	pairsGauge.Set(float64(res.Stats.Pairs))
	testsGauge.Set(float64(res.Stats.Tests))
	shiftsHistogram.Observe(float64(res.Stats.Shifts))
	if res.Stats.Removed > 0 {
		churnTotal.WithLabelValues("removed").Add(float64(res.Stats.Removed))
	}
	if res.Stats.Appended > 0 {
		churnTotal.WithLabelValues("appended").Add(float64(res.Stats.Appended))
	}
	if res.Skipped > 0 {
		skippedTotal.Add(float64(res.Skipped))
	}
}

// UpdateTraceStats mirrors the trace log counters into gauges.
func UpdateTraceStats(total, dropped uint64) {
	traceTotal.Set(float64(total))
	traceDropped.Set(float64(dropped))
}

// RecordRender records frame render timing.
func RecordRender(duration time.Duration) {
	renderDuration.Observe(duration.Seconds())
}

// RecordConnectionRejected increments the rejection counter.
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics.
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// UpdateWSConnections updates the WebSocket connection gauge.
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages counts one broadcast frame in the given format.
func IncrementWSMessages(format string) {
	wsMessagesTotal.WithLabelValues(format).Inc()
}
