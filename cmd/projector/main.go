package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"

	"github.com/kasai-pay/kasai_pay/internal/config"
	"github.com/kasai-pay/kasai_pay/internal/event"
	"github.com/kasai-pay/kasai_pay/internal/history"
	"github.com/kasai-pay/kasai_pay/internal/infra"
	"github.com/kasai-pay/kasai_pay/internal/logging"
	"github.com/kasai-pay/kasai_pay/internal/routes"
	"github.com/kasai-pay/kasai_pay/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Component(logging.New(cfg.LogLevel), "projector")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}()

	repo := history.NewPostgresRepository(db)
	projector := history.NewProjector(repo, logger)

	consumer := event.NewConsumer(cache, cfg.EventStream, cfg.ConsumerGroup, cfg.ConsumerName,
		cfg.ConsumerPartitions, cfg.PollBlock, projector.HandleMessage, logger)

	deps := routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger}
	srv, err := server.New(cfg.AppName+" History", cfg.HistoryAddress(), func(app *fiber.App) error {
		return routes.SetupHistoryAPI(app, deps, repo, consumer.Healthy)
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	consumerErrCh := make(chan error, 1)
	go func() {
		consumerErrCh <- consumer.Run(ctx)
	}()

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	consumerStopped := false
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-consumerErrCh:
		consumerStopped = true
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("consumer error", "error", err)
		}
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	// Wait for the consumer to finish its current poll cycle.
	if !consumerStopped {
		select {
		case <-consumerErrCh:
		case <-shutdownCtx.Done():
			logger.Warn("consumer did not stop before deadline")
		}
	}

	logger.Info("projector exited cleanly")
}
