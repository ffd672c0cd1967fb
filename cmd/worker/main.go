// Package main runs the background job worker (view counts, replay upload to S3).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/eventpass/streamgate/config"
	"github.com/eventpass/streamgate/internal/realtime"
	"github.com/eventpass/streamgate/internal/streams"
	"github.com/eventpass/streamgate/internal/tickets"
	"github.com/eventpass/streamgate/internal/worker"
	"github.com/eventpass/streamgate/pkg/database"
	"github.com/eventpass/streamgate/pkg/logging"
	"github.com/eventpass/streamgate/pkg/queue"
	"github.com/eventpass/streamgate/pkg/redis"
	"github.com/eventpass/streamgate/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Fatal("load config", zap.Error(err))
	}
	logger := logging.New(cfg.Server.LogLevel)
	defer logger.Sync()

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns: int32(cfg.Database.MaxConns),
		MinConns: int32(cfg.Database.MinConns),
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var uploader worker.Uploader
	if cfg.AWS.Region != "" && cfg.AWS.ReplaysBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ReplaysBucket:        cfg.AWS.ReplaysBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}
		uploader = s3Client
	} else {
		logger.Warn("replay storage not configured; replay uploads will fail")
	}

	// Session changes made here still reach viewers connected to any server instance.
	pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
	sessions := streams.NewService(streams.NewRepository(pool), tickets.NewRepository(pool), logger,
		streams.WithCache(streams.NewRedisCache(rdb.Client, time.Duration(cfg.Stream.CacheTTLSeconds)*time.Second)),
		streams.WithPublisher(pubsub),
	)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewProcessor(sessions, uploader, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		processor.Run(workerCtx)
		close(done)
	}()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}
