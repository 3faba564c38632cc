package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"skillTrackerAPI/handlers"
	"skillTrackerAPI/internal/cache"
	"skillTrackerAPI/internal/config"
	"skillTrackerAPI/internal/fetcher"
	"skillTrackerAPI/internal/notification"
	"skillTrackerAPI/internal/ranking"
	"skillTrackerAPI/internal/ratelimit"
	"skillTrackerAPI/internal/sources"
	"skillTrackerAPI/internal/store"
	"skillTrackerAPI/internal/telemetry"
	"skillTrackerAPI/internal/workers"
	"skillTrackerAPI/middleware"
	"skillTrackerAPI/services"

	_ "net/http/pprof"
)

const serviceName = "skill-tracker-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet.
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited with error", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsDevelopment() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger.With(zap.String("service", serviceName))
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("Using in-memory store; data is lost on restart")
		return store.NewMemory(), nil
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pg, err := store.NewPostgres(initCtx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(initCtx); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}

func openCache(cfg *config.Config, logger *zap.Logger) (cache.Store, error) {
	if cfg.Redis.Addr == "" {
		logger.Warn("REDIS_ADDR not set, using in-process cache")
		return cache.NewMemory(logger), nil
	}
	return cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Auth.ClerkSecretKey == "" {
		return errors.New("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(cfg.Auth.ClerkSecretKey)
	logger.Info("Clerk initialized successfully")

	shutdownTracer, err := telemetry.InitTracer(ctx, serviceName, cfg.OTLPEndpoint, cfg.Env, logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			logger.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}()

	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		logger.Info("Closing store...")
		db.Close()
	}()

	kv, err := openCache(cfg, logger)
	if err != nil {
		return err
	}
	defer kv.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(registry)

	adapters := sources.NewDefaultRegistry(sources.Options{
		Timeout: cfg.Fetch.CallTimeout,
		RPS:     cfg.Fetch.PlatformRPS,
		Burst:   cfg.Fetch.PlatformBurst,
	})
	f := fetcher.New(fetcher.Config{
		MaxRetries:  cfg.Fetch.MaxRetries,
		BackoffBase: cfg.Fetch.BackoffBase,
		BackoffUnit: cfg.Fetch.BackoffUnit,
		CallTimeout: cfg.Fetch.CallTimeout,
	}, logger, metrics)

	fetchPool := workers.NewPool(workers.Config{
		Name:        "fetch",
		Size:        cfg.Fetch.Workers,
		TaskTimeout: cfg.Fetch.TaskTimeout,
		Logger:      logger,
		Observe:     metrics.PoolTask,
	})
	emailPool := workers.NewPool(workers.Config{
		Name:        "email",
		Size:        cfg.Report.Workers,
		TaskTimeout: cfg.Report.TaskTimeout,
		Logger:      logger,
		Observe:     metrics.PoolTask,
	})

	scheduler := fetcher.NewScheduler(f, adapters, fetchPool, logger, metrics)
	rankings := ranking.NewCache(kv, db, cfg.Ranking.TTL, logger, metrics)
	limiter := ratelimit.New(kv, ratelimit.Config{Window: cfg.Refresh.Window, FailOpen: cfg.Refresh.FailOpen}, logger, metrics)

	var mailer notification.Mailer
	if cfg.Email.Host != "" {
		mailer = notification.NewSMTPMailer(notification.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		}, logger)
	} else {
		logger.Warn("EMAIL_HOST not set, reports will be logged instead of sent")
		mailer = notification.NewLogMailer(logger)
	}

	subscriptionService := services.NewSubscriptionService(db, adapters, f, rankings, logger)
	refreshService := services.NewRefreshService(db, scheduler, rankings, limiter, logger)
	leaderboardService := services.NewLeaderboardService(db, rankings, cfg.Ranking.PageSize, logger)
	notificationService := services.NewNotificationService(db, mailer, logger, metrics)
	reportService := services.NewReportService(db, refreshService, scheduler, notificationService, emailPool, logger, metrics)

	fcmService, err := notification.NewFCMService(ctx, cfg.Auth.FCMCredentialsFile, logger)
	if err != nil {
		logger.Warn("Could not initialize FCM, push disabled", zap.Error(err))
	} else {
		notificationService.SetPushProvider(fcmService)
		logger.Info("FCM Push Provider initialized successfully")
	}

	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionService, logger)
	leaderboardHandler := handlers.NewLeaderboardHandler(leaderboardService, subscriptionService, refreshService, logger)
	notificationHandler := handlers.NewNotificationHandler(notificationService, reportService, subscriptionService, logger)
	jobsHandler := handlers.NewJobsHandler(refreshService, reportService, cfg.Report.JobTimeout, logger)
	webhookHandler := handlers.NewWebhookHandler(subscriptionService, cfg.Auth.ClerkWebhookSecret, logger)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{"store": db, "cache": kv})

	ipLimiter := middleware.NewIPRateLimiter(cfg.API.RPS, cfg.API.Burst)
	go ipLimiter.CleanupVisitors(ctx)
	monitor := middleware.NewMonitor(registry, logger)

	r := mux.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(otelmux.Middleware(serviceName))
	r.Use(monitor.Middleware)
	r.Use(ipLimiter.Middleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(cfg.Metrics.User, cfg.Metrics.Password)(
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))).Methods("GET")
	r.PathPrefix("/debug/pprof/").Handler(
		middleware.SharedSecretMiddleware("X-Pprof-Secret", cfg.PprofSecret)(http.DefaultServeMux))
	r.HandleFunc("/health", healthHandler.Health).Methods("GET")
	r.HandleFunc("/webhooks/clerk", webhookHandler.HandleClerkWebhook).Methods("POST")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/stats", leaderboardHandler.PublicStats).Methods("GET")

	jobs := api.PathPrefix("/jobs").Subrouter()
	jobs.Use(middleware.SharedSecretMiddleware("X-Job-Secret", cfg.Report.JobSecret))
	jobs.HandleFunc("/fetch-leaderboard", jobsHandler.FetchLeaderboard).Methods("POST")
	jobs.HandleFunc("/weekly-update", jobsHandler.WeeklyUpdate).Methods("POST")

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.ClerkAuthMiddleware(middleware.ClerkVerifier, logger))

	protected.HandleFunc("/subscribe", subscriptionHandler.Subscribe).Methods("POST")
	protected.HandleFunc("/unsubscribe", subscriptionHandler.Unsubscribe).Methods("POST")
	protected.HandleFunc("/me/profiles", subscriptionHandler.MyProfiles).Methods("GET")
	protected.HandleFunc("/me/profiles", subscriptionHandler.AddProfile).Methods("POST")
	protected.HandleFunc("/me/profiles/{id:[0-9]+}/refresh", leaderboardHandler.RefreshProfile).Methods("POST")
	protected.HandleFunc("/me/profiles/{platform}/{username}", subscriptionHandler.UpdateUsername).Methods("PUT")
	protected.HandleFunc("/me/group", subscriptionHandler.GroupAction).Methods("POST")
	protected.HandleFunc("/me/report", notificationHandler.SendDailyReport).Methods("POST")
	protected.HandleFunc("/me/devices", notificationHandler.RegisterDevice).Methods("POST")
	protected.HandleFunc("/leaderboard", leaderboardHandler.GetLeaderboard).Methods("GET")

	corsHandler := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins([]string{"*"}),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Job-Secret", "X-Request-ID"}),
		gorillaHandlers.ExposedHeaders([]string{"Content-Length", "Retry-After", "X-Request-ID"}),
	)

	server := http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.Report.JobTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Server shutdown complete")
	return nil
}
