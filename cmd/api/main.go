package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"rugroulette/internal/cache"
	"rugroulette/internal/config"
	"rugroulette/internal/database"
	"rugroulette/internal/events"
	"rugroulette/internal/game"
	"rugroulette/internal/logging"
	"rugroulette/internal/server"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log)
	logger.Info().Str("env", cfg.Environment).Int("port", cfg.Port).Msg("Starting rugroulette")

	deps := server.Deps{Config: cfg, Logger: logger}
	var sinks game.MultiSink

	if cfg.Redis.Enabled() {
		svc, err := cache.New(cfg.Redis, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Running without Redis")
		} else {
			redisSink := cache.NewSink(svc)
			deps.Cache = svc
			deps.History = redisSink
			sinks = append(sinks, redisSink)
		}
	}

	if cfg.Database.Enabled() {
		db, err := openDatabase(cfg.Database, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Running without history database")
		} else {
			deps.DB = db
			deps.History = db
			sinks = append(sinks, db)
		}
	}

	if cfg.Kafka.Enabled() {
		producer := events.NewProducer(events.ProducerConfig{
			Brokers: cfg.Kafka.BrokerList(),
			Logger:  logger,
		})
		deps.Events = events.NewSink(producer, cfg.Kafka.TopicRugs, cfg.Kafka.TopicSpins)
		sinks = append(sinks, deps.Events)
		logger.Info().Strs("brokers", cfg.Kafka.BrokerList()).Msg("Kafka events enabled")
	}

	opts := cfg.EngineOptions(logger)
	if len(sinks) > 0 {
		opts.Sink = sinks
	}

	deps.Hub = game.NewHub(logger)
	deps.Engine = game.NewEngine(opts, deps.Hub)

	srv := server.New(deps)
	srv.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- srv.Listen(fmt.Sprintf(":%d", cfg.Port))
	}()
	logger.Info().Int("port", cfg.Port).Msg("Server listening")

	select {
	case <-ctx.Done():
	case err := <-listenErr:
		logger.Error().Err(err).Msg("Server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Shutdown error")
		os.Exit(1)
	}
	logger.Info().Msg("Server exited")
}

func openDatabase(cfg config.DatabaseConfig, logger zerolog.Logger) (database.Service, error) {
	db, err := database.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(db.DB(), cfg.MigrationsPath); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
