package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"

	"stock_screener/metrics"
)

type HealthStatus struct {
	Status          string            `json:"status"`
	Uptime          string            `json:"uptime"`
	StartTime       time.Time         `json:"start_time"`
	MemoryUsage     uint64            `json:"memory_usage"`
	GoroutineCount  int               `json:"goroutine_count"`
	LastError       string            `json:"last_error,omitempty"`
	ComponentStatus map[string]string `json:"component_status"`

	SymbolsProcessed uint64     `json:"symbols_processed"`
	FailedBatches    uint64     `json:"failed_batches"`
	LastProcessed    *time.Time `json:"last_processed,omitempty"`
}

type CheckFunc func(ctx context.Context) error

// Health aggregates named component checks into one document.
type Health struct {
	startTime time.Time

	mu        sync.RWMutex
	checks    map[string]CheckFunc
	lastError string
}

func NewHealth() *Health {
	return &Health{
		startTime: time.Now(),
		checks:    make(map[string]CheckFunc),
	}
}

func (h *Health) RegisterHealthCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *Health) Check(ctx context.Context) HealthStatus {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	processed, failed, last := metrics.GetStats()
	status := HealthStatus{
		Status:           "ok",
		Uptime:           time.Since(h.startTime).Round(time.Second).String(),
		StartTime:        h.startTime,
		MemoryUsage:      m.Alloc,
		GoroutineCount:   runtime.NumGoroutine(),
		ComponentStatus:  make(map[string]string),
		SymbolsProcessed: processed,
		FailedBatches:    failed,
	}
	if !last.IsZero() {
		status.LastProcessed = &last
	}

	// Checks may block on the network; run them outside the lock.
	h.mu.RLock()
	checks := make(map[string]CheckFunc, len(h.checks))
	for name, check := range h.checks {
		checks[name] = check
	}
	h.mu.RUnlock()

	var lastError string
	for name, check := range checks {
		if err := check(ctx); err != nil {
			status.ComponentStatus[name] = "unhealthy"
			status.Status = "degraded"
			lastError = name + ": " + err.Error()
			continue
		}
		status.ComponentStatus[name] = "healthy"
	}

	h.mu.Lock()
	if lastError != "" {
		h.lastError = lastError
	}
	status.LastError = h.lastError
	h.mu.Unlock()
	return status
}

func (h *Health) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}
