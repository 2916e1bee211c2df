package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/radieske/live-casino-platform/internal/ledger"
	"github.com/radieske/live-casino-platform/internal/shared/cache"
	"github.com/radieske/live-casino-platform/internal/shared/config"
	"github.com/radieske/live-casino-platform/internal/shared/db"
	"github.com/radieske/live-casino-platform/internal/shared/kafka"
	"github.com/radieske/live-casino-platform/internal/shared/logger"
	"github.com/radieske/live-casino-platform/internal/shared/metrics"
	"github.com/radieske/live-casino-platform/internal/sports"
	"github.com/radieske/live-casino-platform/internal/tables"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg connect", zap.Error(err))
	}
	defer pg.Close()

	// Redis: as notificações wallet:update saem daqui e chegam aos clientes
	// conectados no game-server via o mesmo canal pub/sub
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	store := ledger.NewPostgres(pg, cfg.VoidForfeitBps)
	bridge := tables.NewRedisBridge(rdb, cfg.RedisPubSubChannel, log)

	// Kafka consumer: resultados de eventos esportivos
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicEventResults, "sports-settlement")
	defer reader.Close()

	var dlqWriter *kafka.Writer
	if cfg.TopicEventResultsDLQ != "" {
		dlqWriter = kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicEventResultsDLQ)
		defer dlqWriter.Close()
	}

	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		cancel()
	}()

	worker := sports.NewWorker(store, bridge, reader, dlqWriter, log)
	log.Info("sports-settlement-worker started",
		zap.String("consume", cfg.TopicEventResults),
		zap.String("dlq", cfg.TopicEventResultsDLQ))

	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("worker stopped", zap.Error(err))
	}
}
