package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"archie-shopify-session-store/internal/application"
	"archie-shopify-session-store/internal/application/webhook_handlers"
	"archie-shopify-session-store/internal/config"
	apiinfra "archie-shopify-session-store/internal/infrastructure/api"
	"archie-shopify-session-store/internal/infrastructure/database"
	"archie-shopify-session-store/internal/infrastructure/metrics"
	"archie-shopify-session-store/internal/infrastructure/repository"
	"archie-shopify-session-store/internal/infrastructure/state"
	"archie-shopify-session-store/internal/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

const driverMongo = "mongodb"

func main() {
	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	storeMetrics := metrics.NewStoreMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	managerOpts := []application.Option{
		application.WithMetrics(storeMetrics),
		application.WithAPIVersion(cfg.APIVersion),
		application.WithAuthPathPrefix(cfg.AuthPathPrefix),
	}

	// Session database
	var (
		db          ports.Database
		healthcheck func(context.Context) error
	)
	if cfg.DatabaseDriver == driverMongo {
		client, err := database.ConnectMongo(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to MongoDB")
		}
		defer client.Disconnect(context.Background())

		mongoRepo, err := repository.NewMongoSessionRepository(client.Database(cfg.MongoDatabase), storeMetrics, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize MongoDB session repository")
		}
		managerOpts = append(managerOpts, application.WithSessionRepository(mongoRepo))
		healthcheck = database.MongoHealthcheck(client)
	} else {
		conn, err := database.Open(ctx, database.Config{
			Driver:        cfg.DatabaseDriver,
			URL:           cfg.DatabaseURL,
			RetryAttempts: cfg.RetryAttempts,
			RetryInterval: cfg.RetryInterval,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to open session database")
		}
		defer conn.Close()

		if err := conn.Migrate(ctx, logger); err != nil {
			logger.Fatal().Err(err).Msg("Failed to migrate session database")
		}
		db = conn.Database()
		healthcheck = conn.Healthcheck()
	}

	// OAuth state store
	if cfg.RedisURL != "" {
		redisStates, err := state.NewRedisStateStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisStates.Close()
		managerOpts = append(managerOpts, application.WithStateStore(redisStates))
	} else {
		logger.Warn().Msg("REDIS_URL not set, OAuth state is kept in memory")
	}

	manager := application.NewManager(logger, managerOpts...)

	// Initialize webhook dispatcher and register handlers
	webhookDispatcher := application.NewWebhookDispatcher(logger)
	webhookDispatcher.RegisterHandler(webhook_handlers.NewAppUninstalledHandler(logger, manager.SessionStorage()))
	webhookDispatcher.RegisterHandler(webhook_handlers.NewScopesUpdateHandler(logger, manager.SessionStorage()))

	binding := cfg.Binding()
	binding.DB = db

	router := apiinfra.NewRouter(apiinfra.RouterConfig{
		Manager:        manager,
		Binding:        func(*http.Request) application.Binding { return binding },
		Dispatcher:     webhookDispatcher,
		Healthcheck:    healthcheck,
		Gatherer:       registry,
		HTTPMetrics:    httpMetrics,
		AuthPathPrefix: cfg.AuthPathPrefix,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shut down server")
		}
	}()

	logger.Info().Str("port", cfg.Port).Str("driver", cfg.DatabaseDriver).Msg("Starting API server")
	logger.Info().Msg("Swagger documentation available at http://localhost:" + cfg.Port + "/swagger/index.html")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}
	logger.Info().Msg("Server stopped")
}
