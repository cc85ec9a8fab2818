package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/velopos/pos/internal/auth"
	"github.com/velopos/pos/internal/cache"
	"github.com/velopos/pos/internal/config"
	"github.com/velopos/pos/internal/db"
	httphandler "github.com/velopos/pos/internal/http"
	"github.com/velopos/pos/internal/http/handlers"
	"github.com/velopos/pos/internal/jobs"
	applog "github.com/velopos/pos/internal/log"
	"github.com/velopos/pos/internal/middleware"
	"github.com/velopos/pos/internal/realtime"
	"github.com/velopos/pos/internal/repo"
	"github.com/velopos/pos/internal/telemetry"
)

const (
	rateLimitWindow = 10 * time.Minute
	pairPerWindow   = 10
	pinPerWindow    = 20
)

func main() {
	// Env vars override .env
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		bootLogger := applog.New("development")
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := applog.New(cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry := telemetry.Setup("velopos-api", cfg.OTLPEndpoint, cfg.OTLPInsecure, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	database, err := db.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Initialize repositories
	storeRepo := repo.NewStoreRepo(database)
	deviceRepo := repo.NewDeviceRepo(database)
	pairingRepo := repo.NewPairingRepo(database)
	employeeRepo := repo.NewEmployeeRepo(database)

	// Initialize auth services
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.EmployeeSessionTTL)
	pairingService := auth.NewPairingService(pairingRepo, storeRepo, deviceRepo, cfg.PairingSalt, cfg.PairingCodeTTL)
	deviceService := auth.NewDeviceService(deviceRepo)
	employeeService := auth.NewEmployeeService(employeeRepo, jwtService)

	redisClient := connectRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	pairLimiter, pinLimiter := newLimiters(ctx, redisClient)

	hub := realtime.NewHub(logger.With().Str("component", "realtime").Logger())
	listener := realtime.NewListener(cfg.DatabaseURL, hub, logger.With().Str("component", "listener").Logger())

	scheduler := jobs.NewScheduler(cfg.CleanupSchedule, pairingRepo, logger.With().Str("component", "jobs").Logger())
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.CleanupSchedule).Msg("failed to start scheduler")
	}

	router := httphandler.NewRouter(httphandler.RouterDeps{
		Devices:     handlers.NewDeviceHandler(pairingService, deviceService, employeeService, logger),
		Admin:       handlers.NewAdminHandler(pairingService, deviceService, storeRepo, logger),
		Health:      handlers.NewHealthHandler(database),
		Realtime:    realtime.NewHandler(hub, deviceService, logger),
		DeviceAuth:  deviceService,
		JWT:         jwtService,
		PairLimiter: pairLimiter,
		PINLimiter:  pinLimiter,
		Logger:      logger,
	})

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           realtime.ClearDeadlines(realtime.Prefix, otelhttp.NewHandler(router, "velopos-api")),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("port", cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return listener.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		scheduler.Stop(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return
	}
	logger.Info().Msg("server exited")
}

func connectRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		// In-memory limits still apply per instance.
		logger.Warn().Err(err).Msg("redis unavailable, using in-memory rate limits")
		return nil
	}
	return client
}

func newLimiters(ctx context.Context, client *redis.Client) (pair, pin middleware.Limiter) {
	if client != nil {
		return middleware.NewRedisLimiter(client, "pair", rateLimitWindow, pairPerWindow),
			middleware.NewRedisLimiter(client, "pin", rateLimitWindow, pinPerWindow)
	}
	return middleware.NewRateLimiter(ctx, rateLimitWindow, pairPerWindow),
		middleware.NewRateLimiter(ctx, rateLimitWindow, pinPerWindow)
}
