package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Olafs-World/agent-chatroom/internal/api/middleware"
	"github.com/Olafs-World/agent-chatroom/internal/handlers"
)

// MaxBodyBytes caps POST bodies.
const MaxBodyBytes = 64 * 1024

// NewRouter creates and configures the HTTP router. A nil limiter
// disables rate limiting.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, gate *middleware.Gate, limiter *middleware.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(MaxBodyBytes))

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - allow all origins (agents call from anywhere). Preflights
	// pass through so every OPTIONS gets the same answer.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     middleware.AllowedMethods,
		AllowedHeaders:     middleware.AllowedHeaders,
		ExposedHeaders:     []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials:   false,
		OptionsPassthrough: true,
		MaxAge:             300,
	}))
	r.Use(middleware.Preflight)

	if limiter != nil {
		r.Use(limiter.Middleware)
	}

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	// Public routes
	r.Get("/health", h.Health)

	// Room routes (require the room password)
	r.Group(func(r chi.Router) {
		r.Use(gate.Require)

		r.Get("/", h.Index)
		r.Get("/messages", h.ListMessages)
		r.Post("/messages", h.PostMessage)
		r.Get("/messages/poll", h.Poll)
		r.Get(middleware.StreamPath, h.Stream)
		r.Get("/stats", h.Stats)
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	})

	return r
}
