package handlers

import (
	"context"
	"net/http"
	"time"

	"task-tracker/tasks-service/cache"
	"task-tracker/tasks-service/utils"
)

// Pinger is anything whose reachability the status endpoint reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store     Pinger
	cache     *cache.Cache
	startedAt time.Time
	version   string
}

// NewHealthHandler reports on store and, when c is non-nil, the user cache.
func NewHealthHandler(store Pinger, c *cache.Cache, version string) *HealthHandler {
	return &HealthHandler{store: store, cache: c, startedAt: time.Now(), version: version}
}

// Health is a liveness probe and never touches dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"timestamp": time.Now().UTC(),
	})
}

// Status is a readiness probe: 503 when the task store does not answer.
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "running", http.StatusOK
	store := "connected"
	if err := h.store.Ping(ctx); err != nil {
		requestLog(r).Warnf("Event ID: STORE_PING_FAILED, Description: Task store unreachable: %v", err)
		status, code, store = "degraded", http.StatusServiceUnavailable, "disconnected"
	}

	body := map[string]any{
		"status":    status,
		"version":   h.version,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
		"store":     store,
	}
	if h.cache != nil {
		body["userCache"] = h.cache.Stats()
	}
	utils.WriteJSON(w, code, body)
}
