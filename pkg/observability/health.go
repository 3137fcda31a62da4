package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// CheckFunc reports whether a dependency is reachable
type CheckFunc func(ctx context.Context) error

type dependency struct {
	name     string
	critical bool
	check    CheckFunc
}

// HealthChecker aggregates dependency checks for the readiness probe
type HealthChecker struct {
	mu      sync.RWMutex
	deps    []dependency
	version string
}

// NewHealthChecker creates a health checker reporting version
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{version: version}
}

// AddCheck registers a dependency. A failing critical dependency makes the
// service unhealthy; a failing optional one only degrades it.
func (h *HealthChecker) AddCheck(name string, critical bool, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deps = append(h.deps, dependency{name: name, critical: critical, check: check})
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string  `json:"status"`
	Message   string  `json:"message,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Check runs every registered dependency check
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.mu.RLock()
	deps := append([]dependency(nil), h.deps...)
	h.mu.RUnlock()
	sort.Slice(deps, func(i, j int) bool { return deps[i].name < deps[j].name })

	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(deps)),
	}

	for _, dep := range deps {
		start := time.Now()
		err := dep.check(ctx)
		ds := DependencyStatus{
			Status:    StatusHealthy,
			LatencyMS: float64(time.Since(start).Microseconds()) / 1000,
		}
		if err != nil {
			ds.Status = StatusUnhealthy
			ds.Message = err.Error()
			if dep.critical {
				status.Status = StatusUnhealthy
			} else if status.Status == StatusHealthy {
				status.Status = StatusDegraded
			}
		}
		status.Dependencies[dep.name] = ds
	}
	return status
}

// Liveness always returns 200 while the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now().UTC(),
	})
}

// Readiness returns 503 when a critical dependency is down
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

// SQLCheck pings db and runs SELECT 1
func SQLCheck(db *sql.DB) CheckFunc {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		var one int
		return db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	}
}

// RedisCheck pings a Redis client
func RedisCheck(client redis.UniversalClient) CheckFunc {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
