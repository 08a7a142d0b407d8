package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 5 * time.Second

// Pinger checks a storage dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServingChecker reports whether the queue monitor is healthy.
type ServingChecker interface {
	Serving() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db      Pinger
	monitor ServingChecker
}

// NewHealthHandler creates a health handler. db may be nil for the in-memory backend.
func NewHealthHandler(db Pinger, monitor ServingChecker) *HealthHandler {
	return &HealthHandler{db: db, monitor: monitor}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	statusCode := http.StatusOK

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			slog.Error("Health check failed", "error", err)
			checks["database"] = "unreachable"
			statusCode = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	if h.monitor != nil {
		if h.monitor.Serving() {
			checks["monitor"] = "ok"
		} else {
			checks["monitor"] = "not_serving"
			statusCode = http.StatusServiceUnavailable
		}
	}

	status := "healthy"
	if statusCode != http.StatusOK {
		status = "degraded"
	}
	JSON(w, statusCode, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
