package api

import (
	"net/http"
	"preview/internal/health"
	"preview/internal/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// APIBasePath prefixes every job endpoint. Clients configure the server URI
// including this prefix.
const APIBasePath = "/api"

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Store         JobStore
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Store, cfg.HealthChecker)

	r := chi.NewRouter()

	// Outermost first
	r.Use(RecoveryMiddleware())
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware())
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}
	r.Use(ContentTypeMiddleware())

	// Probes are unauthenticated
	r.Get("/livez", handler.Livez)
	r.Get("/readyz", handler.Readyz)

	r.Route(APIBasePath, func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.APIKey))

		r.Get("/status", handler.Status)
		r.Post("/jobs", handler.CreateJob)
		r.Route("/jobs/{id}", func(r chi.Router) {
			r.Get("/", handler.GetJob)
			r.Delete("/", handler.CancelJob)
			r.Get("/file", handler.GetFile)
		})
	})

	return r
}
