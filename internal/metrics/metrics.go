// Package metrics exposes Prometheus metrics and a health endpoint for the
// band rebalancer.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the rebalancer.
type Metrics struct {
	ObservationsTotal  prometheus.Counter
	ObservationErrors  prometheus.Counter
	StaleFeedRejects   *prometheus.CounterVec // labels: feed
	FeedReconnects     *prometheus.CounterVec // labels: feed
	EpochsTotal        prometheus.Counter
	EpochErrors        prometheus.Counter
	OrdersTotal        *prometheus.CounterVec // labels: side
	OrderSize          prometheus.Histogram
	PctBand            prometheus.Gauge
	MovingAverage      prometheus.Gauge
	StandardDeviation  prometheus.Gauge
	LastPrice          prometheus.Gauge
	RedisWriteDur      prometheus.Histogram
	RedisPublishDrops  prometheus.Counter
	RedisBreakerTrips  prometheus.Counter
	JournalWriteErrors prometheus.Counter
}

// New registers and returns all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		ObservationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bandd_observations_total",
			Help: "Successful indicator engine updates",
		}),
		ObservationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bandd_observation_errors_total",
			Help: "Failed indicator engine updates",
		}),
		StaleFeedRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandd_stale_feed_rejects_total",
			Help: "Updates rejected because a feed exceeded its staleness bound",
		}, []string{"feed"}),
		FeedReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandd_feed_reconnects_total",
			Help: "Price feed WebSocket reconnection attempts",
		}, []string{"feed"}),
		EpochsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bandd_epochs_total",
			Help: "Controller epochs evaluated",
		}),
		EpochErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bandd_epoch_errors_total",
			Help: "Controller epochs that failed (stale feeds, collaborator errors)",
		}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bandd_orders_total",
			Help: "Orders placed by side (NONE counts dead-zone epochs)",
		}, []string{"side"}),
		OrderSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bandd_order_size",
			Help:    "Placed order sizes",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		PctBand: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bandd_pct_band",
			Help: "Band position of the last evaluated price (0..1)",
		}),
		MovingAverage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bandd_moving_average",
			Help: "Current moving average",
		}),
		StandardDeviation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bandd_standard_deviation",
			Help: "Current standard deviation",
		}),
		LastPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bandd_last_price",
			Help: "Most recent observed price",
		}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bandd_redis_write_duration_seconds",
			Help:    "Observation publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisPublishDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bandd_redis_publish_drops_total",
			Help: "Observations dropped because the publish failed",
		}),
		RedisBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bandd_redis_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		JournalWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bandd_journal_write_errors_total",
			Help: "Failed decision journal inserts",
		}),
	}

	prometheus.MustRegister(
		m.ObservationsTotal,
		m.ObservationErrors,
		m.StaleFeedRejects,
		m.FeedReconnects,
		m.EpochsTotal,
		m.EpochErrors,
		m.OrdersTotal,
		m.OrderSize,
		m.PctBand,
		m.MovingAverage,
		m.StandardDeviation,
		m.LastPrice,
		m.RedisWriteDur,
		m.RedisPublishDrops,
		m.RedisBreakerTrips,
		m.JournalWriteErrors,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	EngineInitialized bool      `json:"engine_initialized"`
	LastObservation   time.Time `json:"last_observation"`
	RedisConnected    bool      `json:"redis_connected"`
	JournalOK         bool      `json:"journal_ok"`

	RedisLatencyMs   float64   `json:"redis_latency_ms"`
	JournalLatencyMs float64   `json:"journal_latency_ms"`
	LastCheckAt      time.Time `json:"last_check_at"`
	StartedAt        time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetEngineInitialized(v bool) {
	h.mu.Lock()
	h.EngineInitialized = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastObservation(t time.Time) {
	h.mu.Lock()
	h.LastObservation = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency and connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckJournal pings the journal database and records latency and health.
func (h *HealthStatus) CheckJournal(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.JournalOK = err == nil
	h.JournalLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if db != nil {
					h.CheckJournal(probeCtx, db)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.EngineInitialized || !h.RedisConnected || !h.JournalOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	obsAge := ""
	if !h.LastObservation.IsZero() {
		obsAge = time.Since(h.LastObservation).Round(time.Millisecond).String()
	}

	status := struct {
		Status            string  `json:"status"`
		Uptime            string  `json:"uptime"`
		EngineInitialized bool    `json:"engine_initialized"`
		LastObservation   string  `json:"last_observation"`
		ObservationAge    string  `json:"observation_age"`
		RedisConnected    bool    `json:"redis_connected"`
		RedisLatencyMs    float64 `json:"redis_latency_ms"`
		JournalOK         bool    `json:"journal_ok"`
		JournalLatencyMs  float64 `json:"journal_latency_ms"`
		LastCheckAt       string  `json:"last_check_at"`
	}{
		Status:            overallStatus,
		Uptime:            time.Since(h.StartedAt).Round(time.Second).String(),
		EngineInitialized: h.EngineInitialized,
		LastObservation:   h.LastObservation.Format(time.RFC3339),
		ObservationAge:    obsAge,
		RedisConnected:    h.RedisConnected,
		RedisLatencyMs:    h.RedisLatencyMs,
		JournalOK:         h.JournalOK,
		JournalLatencyMs:  h.JournalLatencyMs,
		LastCheckAt:       h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
