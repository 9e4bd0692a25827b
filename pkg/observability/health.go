package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
)

// CheckFunc probes a single dependency
type CheckFunc func(context.Context) error

// HealthChecker provides liveness and readiness probes over the
// service's dependencies: the Redis session store and the remote
// identity service.
type HealthChecker struct {
	redis    *redis.Client
	upstream CheckFunc
}

// NewHealthChecker creates a new health checker. The upstream check may
// be nil when no cheap probe is available.
func NewHealthChecker(rdb *redis.Client, upstream CheckFunc) *HealthChecker {
	return &HealthChecker{redis: rdb, upstream: upstream}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Liveness always returns 200 while the process serves requests
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now().UTC(),
	})
}

// Readiness checks all dependencies and returns 503 when the service
// cannot do useful work
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}

// Check probes every dependency
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now().UTC(),
		Dependencies: make(map[string]DependencyStatus),
	}

	redisStatus := h.probe(ctx, func(ctx context.Context) error {
		return h.redis.Ping(ctx).Err()
	})
	status.Dependencies["redis"] = redisStatus
	if redisStatus.Status == StatusUnhealthy {
		// no session store means no authenticated request can succeed
		status.Status = StatusUnhealthy
	}

	if h.upstream != nil {
		upstreamStatus := h.probe(ctx, h.upstream)
		status.Dependencies["upstream"] = upstreamStatus
		if upstreamStatus.Status == StatusUnhealthy && status.Status == StatusHealthy {
			// cached reads still work without the upstream
			status.Status = StatusDegraded
		}
	}

	return status
}

func (h *HealthChecker) probe(ctx context.Context, check CheckFunc) DependencyStatus {
	start := time.Now()
	err := check(ctx)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return DependencyStatus{
			Status:    StatusUnhealthy,
			Message:   err.Error(),
			LatencyMS: latency,
		}
	}
	return DependencyStatus{Status: StatusHealthy, LatencyMS: latency}
}

// RegisterHealthRoutes registers liveness and readiness endpoints
func RegisterHealthRoutes(router *mux.Router, checker *HealthChecker) {
	router.HandleFunc("/healthz", checker.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/readyz", checker.Readiness).Methods(http.MethodGet)
}
