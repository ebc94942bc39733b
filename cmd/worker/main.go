package main

import (
	"context"
	"os/signal"
	"syscall"

	"schoolreg/internal/audit"
	"schoolreg/internal/config"
	"schoolreg/internal/logging"
	"schoolreg/internal/queue"
	"schoolreg/internal/store"
)

// Worker drains the Redis audit queue into Postgres.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if cfg.QueueBackend != "redis" {
		logging.Fatal().Str("queue_backend", cfg.QueueBackend).Msg("worker needs queue_backend redis; the memory queue is drained by the api process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logging.Fatal().Err(err).Msg("db connect failed")
	}
	defer func() { _ = db.Close() }()
	if err := db.Bootstrap(ctx); err != nil {
		logging.Fatal().Err(err).Msg("bootstrap schema")
	}

	redisClient, err := store.NewRedis(cfg.RedisAddr)
	if err != nil {
		logging.Fatal().Err(err).Msg("redis config")
	}
	defer func() { _ = redisClient.Close() }()
	if !redisClient.Healthy(ctx) {
		logging.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable yet, consumer will keep retrying")
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultRedisKey)

	logging.Info().Str("queue", queue.DefaultRedisKey).Msg("worker started, waiting for audit entries")
	if err := audit.Drain(ctx, q, audit.NewRepository(db.Client)); err != nil {
		logging.Error().Err(err).Msg("audit drain failed")
		return
	}
	logging.Info().Msg("worker stopped")
}
