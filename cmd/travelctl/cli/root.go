// Package cli is the operator command line for the travel blog backend.
package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"travelblog/internal/cache"
	"travelblog/internal/config"
	"travelblog/internal/database"
	"travelblog/internal/log"
	"travelblog/internal/mail"
	"travelblog/internal/repository"
	"travelblog/internal/service"
)

var dsnOverride string

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "travelctl",
		Short: "Operate the travel blog account backend",
		Long: `travelctl runs schema migrations and the few account operations that
have to happen outside the HTTP API: bootstrapping the admin account,
revoking API keys and ending every session of an account.

Configuration is read the same way the API reads it: config.yaml plus
TRAVELBLOG_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&dsnOverride, "dsn", "", "postgres DSN (overrides postgres.dsn)")

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newAdminCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newSessionCmd())

	return cmd
}

func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dsnOverride != "" {
		cfg.Postgres.DSN = dsnOverride
	}
	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required (set TRAVELBLOG_POSTGRES_DSN or --dsn)")
	}
	return cfg, nil
}

// app holds the services an operator command needs. close must be called.
type app struct {
	cfg      *config.AppConfig
	log      zerolog.Logger
	pool     *pgxpool.Pool
	redis    *redis.Client
	accounts *service.AccountService
	keys     *service.APIKeyService
	sessions *service.SessionService
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := log.NewWithLevel(cfg.Environment, "warn")

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	accountRepo := repository.NewAccountRepository(pool)
	keys := service.NewAPIKeyService(repository.NewAPIKeyRepository(pool), accountRepo, cfg.Security.APIKeyCooldown, logger)
	sessions := service.NewSessionService(accountRepo, client, cfg.Security, logger)
	accounts := service.NewAccountService(
		accountRepo,
		service.NewTokenService(repository.NewTokenRepository(pool), logger),
		keys,
		sessions,
		mail.NewOutbox(client, cfg.Mail.Stream),
		nil,
		cfg,
		logger,
	)

	return &app{
		cfg:      cfg,
		log:      logger,
		pool:     pool,
		redis:    client,
		accounts: accounts,
		keys:     keys,
		sessions: sessions,
	}, nil
}

func (a *app) close() {
	a.keys.Drain()
	a.pool.Close()
	_ = a.redis.Close()
}
