package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/technosupport/ts-licensing/internal/middleware"
)

type Middleware = func(http.Handler) http.Handler

// RouterConfig wires handlers and cross-cutting middleware. Nil middleware
// and a nil Metrics handler are skipped.
type RouterConfig struct {
	Brands      *BrandHandler
	Activations *ActivationHandler
	Health      *HealthHandler

	BrandAuth   Middleware
	BrandLimit  Middleware
	PublicLimit Middleware

	Metrics        http.Handler
	HTTPObserver   middleware.HTTPObserver
	AllowedOrigins []string
	RequestTimeout time.Duration

	// TrustProxyHeaders rewrites RemoteAddr from X-Forwarded-For/X-Real-IP.
	// Per-IP rate limits key on RemoteAddr.
	TrustProxyHeaders bool
}

func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()
	if cfg.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	if cfg.HTTPObserver != nil {
		r.Use(middleware.Instrument(cfg.HTTPObserver))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	if cfg.Health != nil {
		r.Get("/healthz", cfg.Health.Healthz)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			use(r, cfg.BrandAuth, cfg.BrandLimit)
			r.Post("/brands/license-keys", cfg.Brands.CreateLicenseKey)
			r.Post("/brands/licenses", cfg.Brands.CreateLicense)
			r.Get("/brands/licenses/search", cfg.Brands.SearchLicenses)
			r.Patch("/brands/licenses/{licenseID}", cfg.Brands.UpdateLicense)
		})

		r.Group(func(r chi.Router) {
			use(r, cfg.PublicLimit)
			r.Post("/products/activations", cfg.Activations.Activate)
			r.Delete("/products/activations/{activationID}", cfg.Activations.Deactivate)
			r.Get("/licenses/{licenseKey}/status", cfg.Activations.Status)
		})
	})

	return r
}

func use(r chi.Router, mws ...Middleware) {
	for _, mw := range mws {
		if mw != nil {
			r.Use(mw)
		}
	}
}
