package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/trogers1052/journal-alert-service/internal/api"
	"github.com/trogers1052/journal-alert-service/internal/bus"
	"github.com/trogers1052/journal-alert-service/internal/config"
	"github.com/trogers1052/journal-alert-service/internal/database"
	"github.com/trogers1052/journal-alert-service/internal/engine"
	"github.com/trogers1052/journal-alert-service/internal/kafka"
	"github.com/trogers1052/journal-alert-service/internal/stats"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("service exited", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger.Info("starting journal-alert-service",
		zap.String("http_addr", cfg.Server.Host+":"+cfg.Server.Port),
		zap.Duration("poll_interval", cfg.Engine.PollInterval),
		zap.Strings("kafka_brokers", cfg.Kafka.Brokers),
		zap.String("redis_addr", cfg.Redis.Addr))

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		return err
	}
	if err := db.ProbeEventColumns(); err != nil {
		// Probe failure only disables insert-shape shortcuts.
		logger.Warn("failed to probe event columns", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := bus.New()
	defer signals.Close()

	if cfg.Redis.Addr != "" {
		bridge, err := bus.NewRedisBridge(signals, cfg.Redis.Addr, cfg.Redis.Channel, logger)
		if err != nil {
			return err
		}
		defer bridge.Close()
		if err := bridge.Start(ctx); err != nil {
			return err
		}
		logger.Info("redis signal bridge connected", zap.String("addr", cfg.Redis.Addr))
	}

	var notifier engine.Notifier
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.NotificationTopic)
		defer producer.Close()
		notifier = producer

		consumer := kafka.NewConsumer(
			cfg.Kafka.Brokers, cfg.Kafka.TradeTopic, cfg.Kafka.GroupID, db, logger)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.Error("kafka consumer stopped", zap.Error(err))
			}
		}()
	}

	aggregator := stats.NewAggregator(db, logger, cfg.Engine.Lookback)
	eng := engine.New(db, db, aggregator, signals, notifier, cfg.Engine.PollInterval, logger)
	go func() {
		if err := eng.Start(ctx); err != nil {
			logger.Error("alert engine stopped", zap.Error(err))
		}
	}()

	handler := api.NewHandler(db, eng, logger)
	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      api.SetupRoutes(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown failed", zap.Error(err))
	}

	logger.Info("journal-alert-service stopped")
	return nil
}
