package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"travelblog/internal/cache"
	"travelblog/internal/config"
	"travelblog/internal/log"
	"travelblog/internal/mail"
	"travelblog/internal/queue"
	"travelblog/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.NewWithLevel(cfg.Environment, cfg.Worker.LogLevel)

	client, err := cache.NewRedisClient(context.Background(), cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	sender, err := mail.NewSender(cfg.Mail, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("mail sender setup failed")
	}

	name := cfg.Worker.Consumer
	if name == "" {
		name = "worker-" + uuid.NewString()
	}

	processor := tasks.NewProcessor(sender, cfg.HTTP.PublicURL, logger)
	consumer := queue.NewConsumer(
		client,
		cfg.Mail.Stream,
		cfg.Worker.Group,
		name,
		cfg.Worker.ClaimInterval,
		logger,
		processor,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped unexpectedly")
			stop()
		}
	}()

	logger.Info().Str("consumer", name).Str("driver", cfg.Mail.Driver).Msg("mail worker started")
	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("consumer did not stop in time")
	}
}
