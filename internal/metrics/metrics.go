package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Metrics holds all Prometheus metrics for the replication engine.
type Metrics struct {
	EventsTotal       prometheus.Counter
	EventsDiscarded   *prometheus.CounterVec // labels: reason=inactive|origin|eligibility
	PlacementsTotal   *prometheus.CounterVec // labels: result=success|failure
	PlacementAttempts prometheus.Counter
	FollowersSkipped  prometheus.Counter // scaled quantity rounded down to zero
	PlacementDur      prometheus.Histogram
	ReplicationActive prometheus.Gauge
}

// New registers and returns all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "copytrader_events_total",
			Help: "Order events received from the live subscription",
		}),
		EventsDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "copytrader_events_discarded_total",
			Help: "Events discarded before fan-out (by reason)",
		}, []string{"reason"}),
		PlacementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "copytrader_placements_total",
			Help: "Follower placement outcomes (by result)",
		}, []string{"result"}),
		PlacementAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "copytrader_placement_attempts_total",
			Help: "Individual placement attempts including retries",
		}),
		FollowersSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "copytrader_followers_skipped_total",
			Help: "Followers skipped because the scaled quantity was zero",
		}),
		PlacementDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "copytrader_placement_duration_seconds",
			Help:    "Broker placement call latency",
			Buckets: prometheus.DefBuckets,
		}),
		ReplicationActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "copytrader_replication_active",
			Help: "Replication run state (0=inactive, 1=active)",
		}),
	}

	prometheus.MustRegister(
		m.EventsTotal,
		m.EventsDiscarded,
		m.PlacementsTotal,
		m.PlacementAttempts,
		m.FollowersSkipped,
		m.PlacementDur,
		m.ReplicationActive,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected       bool
	RedisConnected    bool
	JournalOK         bool
	ReplicationActive bool
	StartedAt         time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetJournalOK(v bool) {
	h.mu.Lock()
	h.JournalOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetReplicationActive(v bool) {
	h.mu.Lock()
	h.ReplicationActive = v
	h.mu.Unlock()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := struct {
		Status            string `json:"status"`
		Uptime            string `json:"uptime"`
		WSConnected       bool   `json:"ws_connected"`
		RedisConnected    bool   `json:"redis_connected"`
		JournalOK         bool   `json:"journal_ok"`
		ReplicationActive bool   `json:"replication_active"`
	}{
		Status:            "healthy",
		Uptime:            time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected:       h.WSConnected,
		RedisConnected:    h.RedisConnected,
		JournalOK:         h.JournalOK,
		ReplicationActive: h.ReplicationActive,
	}
	if !h.JournalOK {
		status.Status = "degraded"
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
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
		log.Infof("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Errorf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
