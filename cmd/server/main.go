package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/boost-marketplace/internal/auth"
	"github.com/boost-marketplace/internal/catalog"
	"github.com/boost-marketplace/internal/config"
	"github.com/boost-marketplace/internal/handler"
	"github.com/boost-marketplace/internal/kafka"
	"github.com/boost-marketplace/internal/postgres"
	"github.com/boost-marketplace/internal/pricing"
	"github.com/boost-marketplace/internal/redis"
	"github.com/boost-marketplace/internal/service"
	"github.com/boost-marketplace/internal/websocket"
	"github.com/boost-marketplace/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to dotenv file loaded before the config")
	flag.Parse()

	// Bootstrap logger until the configured level is known
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if err := config.LoadEnv(*envPath); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Logging.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if cfg.Auth.JWTSecret == "" {
		logger.Error("auth.jwt_secret is required")
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cat, err := catalog.New(&cfg.Catalog)
	if err != nil {
		logger.Error("invalid catalog", "error", err)
		os.Exit(1)
	}
	engine := pricing.NewEngine(cat)

	// Initialize Redis
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	localStore, err := redis.NewStore(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer localStore.Close()
	logger.Info("connected to Redis")

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	postgresRepo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer postgresRepo.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := postgresRepo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Select storage per record kind
	var orderStore service.OrderStore = postgresRepo
	if cfg.Storage.Orders == config.BackendLocal {
		orderStore = localStore
	}
	var ticketStore service.TicketStore = postgresRepo
	if cfg.Storage.Tickets == config.BackendLocal {
		ticketStore = localStore
	}
	logger.Info("storage selected", "orders", cfg.Storage.Orders, "tickets", cfg.Storage.Tickets)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Order events go through Kafka when enabled so every instance's hub sees
	// them; otherwise they go straight to the local hub.
	var publisher service.EventPublisher = wsHub
	var kafkaProducer *kafka.Producer
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
			"group_id", cfg.Kafka.GroupID,
		)
		kafkaProducer, err = kafka.NewProducer(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka producer, publishing locally", "error", err)
		} else {
			kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, wsHub, logger)
			if err == nil {
				err = kafkaConsumer.Start()
			}
			if err != nil {
				logger.Warn("failed to start Kafka consumer, publishing locally", "error", err)
				kafkaProducer.Close()
				kafkaProducer = nil
				kafkaConsumer = nil
			} else {
				publisher = kafkaProducer
				logger.Info("Kafka event bus started")
			}
		}
	}

	// Initialize services
	profileService := service.NewProfileService(postgresRepo, cfg.Auth.AdminIDs, logger)
	orderService := service.NewOrderService(orderStore, cat, engine, publisher, logger)
	ticketService := service.NewTicketService(ticketStore, logger)
	preferenceService := service.NewPreferenceService(localStore)

	// Copy records written to the local store into Postgres
	scope := worker.ImportScope{
		Orders:  cfg.Storage.Orders == config.BackendPostgres,
		Tickets: cfg.Storage.Tickets == config.BackendPostgres,
	}
	var importWorker *worker.ImportWorker
	if cfg.Sync.Enabled && (scope.Orders || scope.Tickets) {
		importWorker = worker.NewImportWorker(localStore, postgresRepo, scope, &cfg.Sync, logger)
		if err := importWorker.Start(ctx); err != nil {
			logger.Error("failed to start import worker", "error", err)
			os.Exit(1)
		}
	}

	limiter := handler.NewRateLimiter(&cfg.RateLimit, logger)
	limiter.StartCleanup(ctx)

	httpHandler := handler.NewHandler(handler.Dependencies{
		Orders:         orderService,
		Tickets:        ticketService,
		Profiles:       profileService,
		Preferences:    preferenceService,
		Catalog:        cat,
		Pricing:        engine,
		Hub:            wsHub,
		Auth:           auth.NewMiddleware(auth.NewVerifier(&cfg.Auth), profileService, logger),
		Limiter:        limiter,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Readiness: map[string]handler.Pinger{
			"postgres": postgresRepo,
			"redis":    localStore,
		},
	}, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown HTTP server first so no new events are produced
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	if importWorker != nil {
		if err := importWorker.Stop(); err != nil {
			logger.Error("failed to stop import worker", "error", err)
		}
	}

	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			logger.Error("failed to close Kafka producer", "error", err)
		}
	}
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	wsHub.Stop()
	cancel()

	logger.Info("server stopped")
}
