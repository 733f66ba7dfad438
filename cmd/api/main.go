// Package main is the entry point for the API server.
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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/sentra-safety/sentra/internal/alert"
	"github.com/sentra-safety/sentra/internal/api"
	"github.com/sentra-safety/sentra/internal/auth"
	"github.com/sentra-safety/sentra/internal/config"
	"github.com/sentra-safety/sentra/internal/contact"
	"github.com/sentra-safety/sentra/internal/db"
	"github.com/sentra-safety/sentra/internal/geofence"
	"github.com/sentra-safety/sentra/internal/guardian"
	"github.com/sentra-safety/sentra/internal/health"
	"github.com/sentra-safety/sentra/internal/location"
	"github.com/sentra-safety/sentra/internal/middleware"
	"github.com/sentra-safety/sentra/internal/notify"
	"github.com/sentra-safety/sentra/internal/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Sentra API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	tracer, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "sentra-api",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.TracingSamplingRate,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Redis backs distributed rate limiting; without it each instance
	// falls back to counting locally.
	var redisClient *redis.Client
	var rateLimitStore middleware.RateLimitStore = middleware.NewInMemoryRateLimitStore()
	var redisChecker api.HealthChecker
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to parse redis url", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		rateLimitStore = middleware.NewRedisRateLimitStore(redisClient)
		redisChecker = health.NewRedisChecker(redisClient)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	httpMetrics := middleware.NewMetrics()
	locationMetrics := location.NewMetrics()
	geofenceMetrics := geofence.NewMetrics()
	alertMetrics := alert.NewMetrics()
	notifyMetrics := notify.NewMetrics()
	for _, register := range []func(prometheus.Registerer) error{
		httpMetrics.Register,
		locationMetrics.Register,
		geofenceMetrics.Register,
		alertMetrics.Register,
		notifyMetrics.Register,
	} {
		if err := register(registry); err != nil {
			logger.Error("failed to register metrics", "error", err)
			os.Exit(1)
		}
	}

	// Repositories
	samples := location.NewPostgresSampleRepository(pool)
	fences := geofence.NewPostgresRepository(pool)
	alerts := alert.NewPostgresRepository(pool)
	contacts := contact.NewPostgresRepository(pool)
	guardians := guardian.NewPostgresRepository(pool)
	notifications := notify.NewPostgresRepository(pool)

	// Delivery channels are enabled by configuration; a missing provider
	// just leaves its channel unserved.
	senders := buildSenders(ctx, cfg, logger)
	dispatcher := notify.NewDispatcher(
		contacts, guardians, notify.NewPostgresUserDirectory(pool),
		notifications, notify.DefaultTemplates(), senders,
		notifyMetrics, logger,
		notify.WithWorkers(cfg.DispatchWorkers),
		notify.WithAttemptTimeout(time.Duration(cfg.DeliveryTimeoutSeconds)*time.Second),
	)

	// Streaming and the alert/geofence/ingest pipeline
	streamRegistry := location.NewRegistry(locationMetrics, logger)
	alertService := alert.NewService(alerts, dispatcher, streamRegistry, alertMetrics, logger)
	evaluator := geofence.NewEvaluator(
		fences,
		alert.NewGeofenceEscalator(alertService),
		api.RegistryNoticePublisher{Registry: streamRegistry},
		geofenceMetrics, logger,
	)
	gateway := location.NewGateway(samples, streamRegistry, evaluator, locationMetrics, logger)

	jwtService := auth.NewJWTService(cfg.JWTSecret)

	tracingService := ""
	if cfg.TracingEnabled {
		tracingService = "sentra-api"
	}
	handler := api.NewRouter(api.RouterConfig{
		Locations: api.NewLocationHandlers(gateway, samples),
		Alerts:    api.NewAlertHandlers(alertService, guardians, notifications),
		Geofences: api.NewGeofenceHandlers(fences, evaluator),
		Contacts:  api.NewContactHandlers(contacts),
		Guardians: api.NewGuardianHandlers(guardians),
		Stream:    api.NewStreamHandlers(gateway, streamRegistry, guardians),
		Health: api.NewHealthHandlers(api.HealthHandlersConfig{
			DBChecker:    health.NewDBChecker(pool),
			RedisChecker: redisChecker,
		}),
		JWT:                jwtService,
		Logger:             logger,
		Metrics:            httpMetrics,
		RateLimitStore:     rateLimitStore,
		Registry:           registry,
		TracingServiceName: tracingService,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down tracing", "error", err)
	}

	logger.Info("server stopped")
}

// buildSenders constructs the delivery channels the configuration enables.
func buildSenders(ctx context.Context, cfg *config.Config, logger *slog.Logger) []notify.Sender {
	var senders []notify.Sender

	if cfg.TwilioEnabled() {
		senders = append(senders,
			notify.NewTwilioSMSSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber),
			notify.NewTwilioCallSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber),
		)
	} else {
		logger.Warn("twilio not configured; SMS and voice channels disabled")
	}

	if cfg.SMTPEnabled() {
		senders = append(senders, notify.NewSMTPEmailSender(
			cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom,
		))
	} else {
		logger.Warn("smtp not configured; email channel disabled")
	}

	if cfg.PushEnabled() {
		push, err := notify.NewFCMPushSender(ctx, cfg.FirebaseCredentialsFile)
		if err != nil {
			logger.Error("failed to initialize push channel", "error", err)
		} else {
			senders = append(senders, push)
		}
	} else {
		logger.Warn("firebase not configured; push channel disabled")
	}

	return senders
}
