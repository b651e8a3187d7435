/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in error logs
  2. RealIP:     Client IP for rate limiting behind a proxy
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the agency UI
  6. httprate:   Per-IP request limit on /api

ROUTE GROUPS:
  /api/templates/*   Template CRUD, apply, preview
  /api/presets       Built-in templates
  /api/schedules/*   Calculator schedules, read, delete, audit
  /api/items/*       Lock, unlock, payments, upcoming
  /api/validate      Stateless rule check
  /api/scenarios/*   Demo data loaders (EnableScenarios only)
  /healthz           Liveness

SECURITY NOTE:
  No authentication middleware. Deploy behind the platform gateway, which
  authenticates agents and injects actor IDs.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	AllowedOrigins     []string
	RateLimitPerMinute int // 0 disables rate limiting
	EnableScenarios    bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		if opts.RateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(opts.RateLimitPerMinute, time.Minute))
		}

		// Template routes
		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/", h.CreateTemplate)
			r.Get("/{id}", h.GetTemplate)
			r.Post("/{id}/apply", h.ApplyTemplate)
			r.Post("/{id}/preview", h.PreviewTemplate)
		})
		r.Get("/presets", h.ListPresets)

		// Schedule routes
		r.Route("/schedules", func(r chi.Router) {
			r.Post("/", h.CreateSchedule)
			r.Get("/{activityPricingId}", h.GetSchedule)
			r.Delete("/{activityPricingId}", h.DeleteSchedule)
			r.Get("/{activityPricingId}/audit", h.GetAuditTrail)
		})

		// Item routes
		r.Route("/items", func(r chi.Router) {
			r.Get("/upcoming", h.ListUpcomingItems)
			r.Post("/{id}/lock", h.LockItem)
			r.Post("/{id}/unlock", h.UnlockItem)
			r.Post("/{id}/payments", h.RecordPayment)
		})

		r.Post("/validate", h.ValidateItems)

		// Demo data (development only)
		if opts.EnableScenarios {
			r.Get("/scenarios", h.ListScenarios)
			r.Post("/scenarios/load", h.LoadScenario)
		}
	})

	return r
}
