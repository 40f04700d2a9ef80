package api

import (
	"context"
	"net/http"

	"archie-shopify-session-store/internal/application"
	"archie-shopify-session-store/internal/infrastructure/metrics"
	securitymiddleware "archie-shopify-session-store/internal/infrastructure/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
)

// RouterConfig holds what the HTTP entry point needs
type RouterConfig struct {
	Manager    *application.Manager
	Binding    func(r *http.Request) application.Binding
	Dispatcher *application.WebhookDispatcher
	// Healthcheck pings the session database; nil skips the check
	Healthcheck    func(ctx context.Context) error
	Gatherer       prometheus.Gatherer
	HTTPMetrics    *metrics.HTTPMetrics
	AuthPathPrefix string
	SwaggerPath    string
	Logger         zerolog.Logger
}

// NewRouter builds the service's HTTP handler
func NewRouter(cfg RouterConfig) http.Handler {
	h := &handlers{
		manager:     cfg.Manager,
		dispatcher:  cfg.Dispatcher,
		healthcheck: cfg.Healthcheck,
		logger:      cfg.Logger,
	}
	prefix := cfg.AuthPathPrefix
	if prefix == "" {
		prefix = "/auth"
	}
	swaggerPath := cfg.SwaggerPath
	if swaggerPath == "" {
		swaggerPath = "./docs/swagger.json"
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(securitymiddleware.RequestLogger(cfg.Logger))
	r.Use(securitymiddleware.Recoverer(cfg.Logger))
	if cfg.HTTPMetrics != nil {
		r.Use(cfg.HTTPMetrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}))
	if cfg.Binding != nil {
		r.Use(securitymiddleware.BindingMiddleware(cfg.Manager, cfg.Binding))
	}

	// Public routes
	r.Get("/health", h.health)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		http.ServeFile(w, r, swaggerPath)
	})

	// OAuth routes
	r.Get(prefix+"/login", h.login)
	r.Post(prefix+"/login", h.login)
	r.Get(prefix+"/callback", h.callback)

	// Webhooks
	r.Post(application.WebhookPath, h.webhook)

	// Embedded app
	r.Get("/", h.app)
	r.Get("/api/sessions", h.sessions)

	return r
}
