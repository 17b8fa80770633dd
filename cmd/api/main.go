package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"travelblog/internal/cache"
	"travelblog/internal/config"
	"travelblog/internal/database"
	"travelblog/internal/handlers"
	"travelblog/internal/jobs"
	"travelblog/internal/log"
	"travelblog/internal/mail"
	"travelblog/internal/middleware"
	"travelblog/internal/ratelimit"
	"travelblog/internal/repository"
	"travelblog/internal/server"
	"travelblog/internal/service"
	"travelblog/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	if cfg.Postgres.MigrateOnStart {
		status, err := database.Migrate(cfg.Postgres.DSN, 0)
		if err != nil {
			logger.Fatal().Err(err).Msg("database migration failed")
		}
		logger.Info().Uint("version", status.Version).Msg("database schema up to date")
	}

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	checks := map[string]func(context.Context) error{
		"database": dbPool.Ping,
		"cache":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}

	var (
		avatarStore  service.AvatarStore
		avatarLinker handlers.AvatarLinker
	)
	if cfg.Storage.Endpoint != "" {
		objectStore, err := storage.NewObjectStore(cfg.Storage)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init object store")
		}
		if err := objectStore.EnsureBucket(ctx); err != nil {
			logger.Warn().Err(err).Msg("ensure avatar bucket failed")
		}
		avatarStore = objectStore
		avatarLinker = objectStore
		checks["storage"] = objectStore.Ping
	} else {
		logger.Warn().Msg("object storage not configured, avatar uploads disabled")
	}

	accounts := repository.NewAccountRepository(dbPool)
	slots := repository.NewAPIKeyRepository(dbPool)
	tokenRepo := repository.NewTokenRepository(dbPool)
	countries := repository.NewCountryRepository(dbPool)

	tokens := service.NewTokenService(tokenRepo, logger)
	sessions := service.NewSessionService(accounts, redisClient, cfg.Security, logger)
	keys := service.NewAPIKeyService(slots, accounts, cfg.Security.APIKeyCooldown, logger)
	accountService := service.NewAccountService(
		accounts,
		tokens,
		keys,
		sessions,
		mail.NewOutbox(redisClient, cfg.Mail.Stream),
		avatarStore,
		cfg,
		logger,
	)

	created, err := accountService.EnsureAdmin(ctx, cfg.Admin)
	if err != nil {
		logger.Fatal().Err(err).Msg("admin bootstrap failed")
	}
	if created {
		logger.Info().Str("username", cfg.Admin.Username).Msg("admin account created")
	}

	handlerSet := handlers.NewHandlerSet(logger, cfg, handlers.Dependencies{
		Accounts:  accountService,
		Keys:      keys,
		Sessions:  sessions,
		Countries: countries,
		Guard:     middleware.NewGuard(sessions, keys, cfg.Security.SessionCookieName, logger),
		Limiter:   ratelimit.New(redisClient),
		Avatars:   avatarLinker,
		Checks:    checks,
	})
	httpServer, err := server.NewHTTPServer(cfg, logger, handlerSet)
	if err != nil {
		logger.Fatal().Err(err).Msg("http server setup failed")
	}

	scheduler := jobs.NewScheduler(tokens, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, keys, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, keys *service.APIKeyService, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop(shutdownCtx)
	// last-used writes run in the background and need the pool.
	keys.Drain()

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
