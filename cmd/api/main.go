package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"archie-core-shopify-app/internal/application"
	"archie-core-shopify-app/internal/application/auth"
	"archie-core-shopify-app/internal/application/billing"
	"archie-core-shopify-app/internal/application/webhook_handlers"
	"archie-core-shopify-app/internal/config"
	"archie-core-shopify-app/internal/domain"
	apiinfra "archie-core-shopify-app/internal/infrastructure/api"
	"archie-core-shopify-app/internal/infrastructure/encryption"
	"archie-core-shopify-app/internal/infrastructure/memory"
	"archie-core-shopify-app/internal/infrastructure/queue"
	"archie-core-shopify-app/internal/infrastructure/repository"
	"archie-core-shopify-app/internal/infrastructure/scheduler"
	"archie-core-shopify-app/internal/infrastructure/session"
	shopifyinfra "archie-core-shopify-app/internal/infrastructure/shopify"
	"archie-core-shopify-app/internal/ports"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// persistence groups the storage ports one store driver provides
type persistence struct {
	shops    ports.ShopRepository
	plans    ports.PlanRepository
	charges  ports.ChargeRepository
	tx       ports.Transactor
	sessions ports.SessionStore
	guard    ports.AuthGuard
	close    func(ctx context.Context)
}

func main() {
	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if !config.LoadDotEnv() {
		logger.Warn().Msg("Warning: .env file not found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}
	if cfg.Embedded && !cfg.CookieSecure {
		logger.Warn().Msg("Embedded apps need SESSION_COOKIE_SECURE=true for the session cookie to reach the iframe")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := ports.SystemClock{}

	store, err := openPersistence(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("Failed to initialize storage")
	}
	defer store.close(context.Background())

	// Platform client
	rateLimiter := shopifyinfra.NewRateLimiterWithLimits(cfg.RateLimit, shopifyinfra.DefaultBurst, logger)
	commerce := shopifyinfra.NewClientWithOptions(cfg.APIKey, cfg.APISecret, rateLimiter, shopifyinfra.Options{
		APIVersion: cfg.APIVersion,
		Timeout:    shopifyinfra.DefaultTimeout,
		Retries:    shopifyinfra.DefaultRetries,
	}, logger)

	// Application services
	billingService := billing.NewService(
		store.shops,
		store.plans,
		store.charges,
		store.tx,
		commerce,
		clock,
		billing.Config{AppURL: cfg.AppURL},
		logger,
	)
	seedPlans(ctx, cfg, billingService, logger)

	sessionManager := auth.NewSessionManager(
		store.shops,
		store.sessions,
		store.guard,
		clock,
		auth.SessionConfig{
			GrantMode: domain.GrantMode(cfg.GrantMode),
			Embedded:  cfg.Embedded,
		},
		logger,
	)
	verifier := auth.NewVerifier(
		auth.VerifierConfig{APIKey: cfg.APIKey, APISecret: cfg.APISecret},
		store.shops,
		sessionManager,
		auth.NewSessionTokenValidator(cfg.APIKey, cfg.APISecret, cfg.TokenLeeway, clock),
		clock,
		logger,
	)

	// Background jobs
	webhookDispatcher := application.NewWebhookDispatcher(logger)
	webhookDispatcher.RegisterHandler(webhook_handlers.NewAppUninstalledHandler(logger, store.shops, billingService))
	webhookDispatcher.RegisterHandler(webhook_handlers.NewGDPRHandler(logger))

	jobRunner := application.NewJobRunner(logger)
	jobQueue := queue.NewJobQueue(jobRunner, queue.Options{
		Workers:    cfg.QueueWorkers,
		BufferSize: cfg.QueueBuffer,
		JobTimeout: cfg.JobTimeout,
	}, logger)

	installService := application.NewInstallService(
		store.shops,
		commerce,
		jobQueue,
		clock,
		application.InstallConfig{
			APISecret: cfg.APISecret,
			AppURL:    cfg.AppURL,
			Scopes:    cfg.ScopeList(),
			GrantMode: domain.GrantMode(cfg.GrantMode),
		},
		logger,
	)

	jobRunner.Register(domain.JobKindAfterAuthenticate, installService.AfterAuthenticate)
	jobRunner.Register(domain.JobKindWebhook, application.WebhookJobHandler(webhookDispatcher))
	jobRunner.Register(domain.JobKindChargeExpiry, application.ChargeExpiryJobHandler(billingService, logger))
	jobQueue.Start(context.Background())

	cron := scheduler.New(jobQueue, clock, logger)
	if err := cron.Schedule(cfg.ChargeExpirySchedule, domain.JobKindChargeExpiry); err != nil {
		logger.Fatal().Err(err).Str("spec", cfg.ChargeExpirySchedule).Msg("Failed to schedule charge expiry sweep")
	}
	cron.Start()

	// HTTP
	router := apiinfra.NewRouter(apiinfra.Config{
		APIKey:         cfg.APIKey,
		APISecret:      cfg.APISecret,
		Embedded:       cfg.Embedded,
		BillingEnabled: cfg.BillingEnabled,
		Cookie: session.CookieConfig{
			Secure: cfg.CookieSecure,
			MaxAge: cfg.SessionTTL,
		},
		AllowedOrigins: cfg.OriginList(),
		SwaggerFile:    cfg.SwaggerFile,
	}, apiinfra.Dependencies{
		Verifier: verifier,
		Install:  installService,
		Billing:  billingService,
		Jobs:     jobQueue,
		Clock:    clock,
	}, logger)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Bool("embedded", cfg.Embedded).
			Bool("billing", cfg.BillingEnabled).
			Str("store", cfg.StoreDriver).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to shut down HTTP server")
	}
	cron.Stop(shutdownCtx)
	if err := jobQueue.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to drain job queue")
	}
	logger.Info().Interface("queue", jobQueue.GetStats()).Msg("Stopped")
}

// openPersistence connects the configured store driver
func openPersistence(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*persistence, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn().Msg("Using in-memory storage, data is lost on restart")
		store := memory.NewStore()
		return &persistence{
			shops:    store.Shops(),
			plans:    store.Plans(),
			charges:  store.Charges(),
			tx:       store,
			sessions: store.Sessions(),
			guard:    store.Guard(),
			close:    func(context.Context) {},
		}, nil
	}

	encryptionService, err := encryption.NewService(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}

	// Connect to MongoDB
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, err
	}
	db := client.Database(cfg.MongoDatabase)
	if err := repository.EnsureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	// Connect to Redis
	rdb, err := session.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return &persistence{
		shops:    repository.NewMongoShopRepository(db, encryptionService),
		plans:    repository.NewMongoPlanRepository(db),
		charges:  repository.NewMongoChargeRepository(db),
		tx:       repository.NewMongoTransactor(client),
		sessions: session.NewRedisStore(rdb, cfg.SessionTTL, logger),
		guard:    session.NewRedisGuard(rdb, cfg.SessionTTL, logger),
		close: func(ctx context.Context) {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close Redis client")
			}
			if err := client.Disconnect(ctx); err != nil {
				logger.Error().Err(err).Msg("Failed to disconnect from MongoDB")
			}
		},
	}, nil
}

// seedPlans writes the configured plan catalogue. Plans already referenced by a charge keep
// their stored terms.
func seedPlans(ctx context.Context, cfg *config.Config, billingService *billing.Service, logger zerolog.Logger) {
	if cfg.PlansFile == "" {
		return
	}
	plans, err := config.LoadPlans(cfg.PlansFile)
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.PlansFile).Msg("Failed to load plans")
	}
	for _, plan := range plans {
		err := billingService.SavePlan(ctx, plan)
		switch {
		case err == nil:
			logger.Info().Int64("plan_id", plan.ID).Str("name", plan.Name).Msg("Plan saved")
		case errors.Is(err, domain.ErrPlanInUse):
			logger.Info().Int64("plan_id", plan.ID).Msg("Plan is referenced by charges, keeping stored terms")
		default:
			logger.Fatal().Err(err).Int64("plan_id", plan.ID).Msg("Failed to save plan")
		}
	}
}
