package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashureev/chatqueue/internal/identity"
	"github.com/ashureev/chatqueue/internal/metrics"
	"github.com/ashureev/chatqueue/internal/middleware"
)

// RouterConfig carries everything NewRouter mounts.
type RouterConfig struct {
	Chat        ChatService
	Health      *HealthHandler
	WebSocket   http.Handler // optional
	CORSOrigins []string
	IsDev       bool
}

// NewRouter builds the HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	if cfg.Health != nil {
		cfg.Health.RegisterHealth(r)
	}
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(cfg.IsDev))
		NewChatHandler(NewHandler(cfg.Chat)).RegisterRoutes(r)
	})
	if cfg.WebSocket != nil {
		r.Handle("/ws/chat/{sessionId}", cfg.WebSocket)
	}
	return r
}
