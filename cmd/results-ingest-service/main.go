package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/radieske/live-casino-platform/internal/shared/config"
	"github.com/radieske/live-casino-platform/internal/shared/logger"
	"github.com/radieske/live-casino-platform/internal/shared/metrics"
	"github.com/radieske/live-casino-platform/internal/sportsfeed/publisher"
	"github.com/radieske/live-casino-platform/internal/sportsfeed/service"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	pub := publisher.NewKafkaPublisher(strings.Split(cfg.KafkaBrokers, ","), cfg.TopicEventResults, log)
	defer pub.Close()

	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		cancel()
	}()

	client := &service.WSClient{
		URL:       cfg.FeedWSURL,
		Log:       log,
		Publisher: pub,
	}

	log.Info("results-ingest-service started",
		zap.String("feed", cfg.FeedWSURL),
		zap.String("publish", cfg.TopicEventResults))
	client.Start(ctx)
}
