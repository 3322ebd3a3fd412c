package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackgods/clinic-appointments/internal/identity"
	"github.com/hackgods/clinic-appointments/internal/metrics"
)

type RouterConfig struct {
	Appointments AppointmentService
	Identity     IdentityService
	Postal       AddressLookup
	Health       *HealthHandler
	AuthLimiter  RateLimiter // nil disables auth rate limiting
	TrustProxy   bool        // key the limiter on X-Forwarded-For
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer // defaults to the global registry
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware(cfg.Metrics))

	// Health endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	requireAuth := RequireAuth(cfg.Identity)

	// Auth endpoints
	r.Route("/auth", func(r chi.Router) {
		limit := RateLimitMiddleware(cfg.AuthLimiter, cfg.TrustProxy)
		r.With(limit).Post("/register", registerHandler(cfg.Identity))
		r.With(limit).Post("/login", loginHandler(cfg.Identity))
		r.With(requireAuth).Get("/me", meHandler(cfg.Identity))
	})

	if cfg.Postal != nil {
		r.Get("/integrations/cep/{cep}", cepLookupHandler(cfg.Postal))
	}

	// Patient endpoints
	r.Route("/appointments", func(r chi.Router) {
		r.Get("/available", availableSlotsHandler(cfg.Appointments))

		r.Group(func(r chi.Router) {
			r.Use(requireAuth, RequireRole(identity.RolePatient))
			r.Post("/", createAppointmentHandler(cfg.Appointments))
			r.Get("/me", listMyAppointmentsHandler(cfg.Appointments))
			r.Patch("/{id}/cancel", cancelAppointmentHandler(cfg.Appointments))
		})
	})

	// Staff endpoints
	r.Route("/admin/appointments", func(r chi.Router) {
		r.Use(requireAuth, RequireRole(identity.RoleSecretary, identity.RoleAdmin))
		r.Get("/", listAllAppointmentsHandler(cfg.Appointments))
		r.Get("/{id}", getAppointmentHandler(cfg.Appointments))
		r.Patch("/{id}/status", updateStatusHandler(cfg.Appointments))
	})

	return r
}
