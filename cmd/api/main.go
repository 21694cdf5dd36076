package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"convertax/internal/accrual"
	"convertax/internal/cache"
	"convertax/internal/config"
	"convertax/internal/database"
	"convertax/internal/events"
	"convertax/internal/handlers"
	"convertax/internal/logger"
	"convertax/internal/middleware"
	"convertax/internal/repository"
	"convertax/internal/server"
	"convertax/internal/services"
	"convertax/internal/validator"
)

// @title           Convertax API
// @version         1.0
// @description     Convertax keeps investment balances, accrues monthly compound interest and withholds income tax on withdrawals.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	logger.Init(os.Getenv("ENV"), os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dbManager, err := database.NewManager(database.NewConfig(appConfig))
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer dbManager.Close()

	if err := dbManager.RunMigrations(appConfig.MigrationsPath); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	schedule := accrual.DefaultSchedule().WithMonthlyRate(appConfig.InterestMonthlyRate)
	if err := schedule.Validate(); err != nil {
		return fmt.Errorf("invalid accrual schedule: %w", err)
	}

	health := map[string]handlers.Pinger{
		"database": handlers.PingFunc(dbManager.Ping),
	}

	// Redis backs the cache, the event streams and the shared rate limiter.
	// Without it every concern falls back to a single-process implementation.
	var (
		investmentCache cache.Cache
		notifier        events.Notifier
		limiter         middleware.Limiter
	)
	if appConfig.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     appConfig.RedisAddr,
			Password: appConfig.RedisPassword,
			DB:       appConfig.RedisDB,
		})
		defer rdb.Close()

		investmentCache = cache.NewRedis(rdb)
		notifier = events.NewRedisStreamNotifier(rdb, map[string]string{
			events.TopicInvestmentCreated:   appConfig.InvestmentsStream,
			events.TopicWithdrawalProcessed: appConfig.WithdrawalsStream,
		})
		limiter = middleware.NewRedisLimiter(rdb)
		health["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		log.Infow("Using redis", "addr", appConfig.RedisAddr)
	} else {
		investmentCache = cache.NewMemory()
		notifier = events.NewLogNotifier(logger.Named("events"))
		limiter = middleware.NewMemoryLimiter()
		log.Warn("REDIS_ADDR not set, using in-process cache, limiter and log notifier")
	}

	db := dbManager.DB()
	store := repository.NewGormStore(db)
	relay := events.NewRelay(store, notifier, appConfig.OutboxPollInterval, appConfig.OutboxBatchSize, appConfig.OutboxMaxAttempts, logger.Named("outbox"))

	validator.Register()

	deps := server.Deps{
		Users:       services.NewUserService(db),
		Audit:       services.NewAuditService(db),
		Investments: services.NewInvestmentService(store, investmentCache, schedule, appConfig.CacheTTL),
		Withdrawals: services.NewWithdrawalService(store, investmentCache, schedule),
		Tokens:      middleware.NewTokenIssuer(appConfig.JWTSecret, appConfig.JWTExpirationDur),
		Outbox:      relay,
		Health:      health,
		OpsAPIKey:   appConfig.OpsAPIKey,
	}
	if appConfig.ThrottleEnabled {
		deps.Throttling = server.DefaultThrottling(limiter)
	}

	srv := server.NewHTTPServer(appConfig.Port, server.NewRouter(deps))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Serve(gctx, srv) })
	g.Go(func() error { return relay.Run(gctx) })

	log.Infof("Starting Convertax backend server on port %s", appConfig.Port)
	log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
	return g.Wait()
}
