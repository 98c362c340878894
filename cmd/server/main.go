package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ridesvc/internal/app"
	"ridesvc/internal/broker"
	"ridesvc/internal/client"
	"ridesvc/internal/config"
	"ridesvc/internal/handler"
	internalRedis "ridesvc/internal/redis"
	"ridesvc/internal/repository/postgres"
	"ridesvc/internal/service"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", zap.Error(err))
		} else {
			logger.Info("New Relic enabled", zap.String("app", cfg.NewRelic.AppName))
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL")

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	mb, err := app.NewBroker(cfg.Broker, logger)
	if err != nil {
		logger.Fatal("failed to connect to broker", zap.Error(err))
	}
	defer mb.Close()
	logger.Info("connected to broker", zap.String("kind", cfg.Broker.Kind))

	// Wire dependencies.
	w := wire(db, redisClient, mb, nrApp, cfg, logger)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		if err := w.consumer.Run(runCtx); err != nil {
			logger.Error("search outcome consumer stopped", zap.Error(err))
			stop()
		}
	}()
	if w.sweeper != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			w.sweeper.Run(runCtx)
		}()
	}

	// Start server in goroutine.
	go func() {
		logger.Info("starting server", zap.String("port", cfg.Server.Port))
		if err := w.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-runCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := w.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	workers.Wait()

	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}
	logger.Info("server exited")
}

type wiring struct {
	server   *http.Server
	consumer *broker.OutcomeConsumer
	sweeper  *service.PendingSweeper
}

// wire builds the services and returns the HTTP server and background workers.
func wire(db *sql.DB, redisClient *redis.Client, mb *app.Broker, nrApp *newrelic.Application, cfg *config.Config, logger *zap.Logger) *wiring {
	// Initialize Redis stores.
	cacheStore := internalRedis.NewCacheStore(redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)
	idempotencyStore := internalRedis.NewIdempotencyStore(redisClient)

	// Initialize repositories.
	rideRepo := postgres.NewRideRepository(db)
	promoRepo := postgres.NewPromoCodeRepository(db)

	// Downstream clients share one breaker per service.
	policy := client.Policy{
		Timeout:          cfg.Resilience.Timeout,
		MaxAttempts:      cfg.Resilience.MaxAttempts,
		RetryInterval:    cfg.Resilience.RetryInterval,
		FailureThreshold: cfg.Resilience.FailureThreshold,
		Window:           cfg.Resilience.Window,
		CoolDown:         cfg.Resilience.CoolDown,
		HalfOpenMaxCalls: cfg.Resilience.HalfOpenMaxCalls,
	}
	// The clients add New Relic tracing to the default transport themselves.
	passengers := client.NewPassengerClient(cfg.Services.PassengerURL, client.NewExecutor("passenger", policy, logger), nil)
	drivers := client.NewDriverClient(cfg.Services.DriverURL, client.NewExecutor("driver", policy, logger), nil)

	// Initialize services.
	search := broker.NewSearchPublisher(mb.Publisher, mb.Topics.SearchRequest)
	pricing := service.NewPricingService(promoRepo, cacheStore, logger)
	rideService := service.NewRideService(rideRepo, pricing, passengers, drivers, search, cacheStore, logger)

	consumer := broker.NewOutcomeConsumer(mb.Subscriber, mb.Topics, rideService, nrApp, logger)

	var sweeper *service.PendingSweeper
	if cfg.Sweep.Enabled {
		sweeper = service.NewPendingSweeper(rideRepo, search, lockStore, service.SweeperConfig{
			Interval:   cfg.Sweep.Interval,
			StaleAfter: cfg.Sweep.StaleAfter,
			BatchSize:  cfg.Sweep.BatchSize,
		}, nrApp, logger)
	}

	router := app.NewRouter(app.RouterDeps{
		RideHandler:      handler.NewRideHandler(rideService),
		IdempotencyStore: idempotencyStore,
		NewRelicApp:      nrApp,
		Logger:           logger,
	})

	return &wiring{
		server: &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		consumer: consumer,
		sweeper:  sweeper,
	}
}
