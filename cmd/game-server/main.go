package main

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/live-casino-platform/internal/audit"
	"github.com/radieske/live-casino-platform/internal/engine"
	crashgame "github.com/radieske/live-casino-platform/internal/games/crash"
	"github.com/radieske/live-casino-platform/internal/games/dragontiger"
	"github.com/radieske/live-casino-platform/internal/games/suitroyale"
	"github.com/radieske/live-casino-platform/internal/ledger"
	"github.com/radieske/live-casino-platform/internal/shared/cache"
	"github.com/radieske/live-casino-platform/internal/shared/config"
	"github.com/radieske/live-casino-platform/internal/shared/db"
	"github.com/radieske/live-casino-platform/internal/shared/kafka"
	"github.com/radieske/live-casino-platform/internal/shared/logger"
	"github.com/radieske/live-casino-platform/internal/shared/metrics"
	"github.com/radieske/live-casino-platform/internal/tables"
	wallethttp "github.com/radieske/live-casino-platform/internal/wallet/http"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Postgres: ledger transacional (carteiras, apostas, rodadas)
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg connect", zap.Error(err))
	}
	defer pg.Close()

	// Redis: canal pub/sub que liga engines, worker esportivo e o hub WS
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// ledger com cache Redis dos últimos resultados por mesa
	store := ledger.NewCachedStore(ledger.NewPostgres(pg, cfg.VoidForfeitBps), rdb, 30*time.Second)

	// Kafka: registro de auditoria das liquidações
	auditWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRoundSettled)
	defer auditWriter.Close()
	aud := audit.NewKafka(auditWriter)

	registry := tables.NewRegistry(store, log)
	hub := tables.NewHub(func(r *http.Request) bool { return true }, registry, log)
	bridge := tables.NewRedisBridge(rdb, cfg.RedisPubSubChannel, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tables.StartRedisSubscriber(ctx, rdb, cfg.RedisPubSubChannel, hub, log)

	discrete := engine.Timing{
		BetWindow:   cfg.BetWindow,
		ResultDelay: cfg.ResultDelay,
		EndDelay:    cfg.EndDelay,
	}
	twoPhase := discrete
	twoPhase.RevealDelay = cfg.RevealDelay
	twoPhase.SecondWindow = cfg.SecondWindow

	// Catálogo de mesas do processo. Cada mesa tem RNG próprio: nenhum
	// estado aleatório compartilhado entre goroutines de mesas.
	seed := time.Now().UnixNano()

	sr := suitroyale.New("SR1", store, aud, rand.New(rand.NewSource(seed)), log)
	registry.Add(suitroyale.Name, "SR1", engine.New(engine.Params{
		Game: suitroyale.Name, TableID: "SR1", Hooks: sr,
		Timing: discrete, Pub: bridge, Presence: hub, Log: log,
	}), suitroyale.ValidBet)

	dt := dragontiger.New("DT1", store, aud, rand.New(rand.NewSource(seed+1)), log)
	registry.Add(dragontiger.Name, "DT1", engine.New(engine.Params{
		Game: dragontiger.Name, TableID: "DT1", Hooks: dt,
		Timing: twoPhase, Pub: bridge, Presence: hub, Log: log,
	}), dragontiger.ValidBet)

	cr := crashgame.New("CR1", store, aud, cfg.CrashMinRun, cfg.CrashMaxRun, log)
	registry.Add(crashgame.Name, "CR1", engine.NewCrash(engine.CrashParams{
		Game: crashgame.Name, TableID: "CR1", Driver: cr,
		BetWindow: cfg.BetWindow, Tick: cfg.CrashTick, RiskTick: cfg.CrashRiskTick,
		Cooldown: cfg.CrashCooldown, Seed: seed + 2,
		Pub: bridge, Presence: hub, Log: log,
	}), crashgame.ValidBet)

	// Servidor de métricas e health em porta separada
	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})

	// Servidor público: WS das mesas + API de wallet
	walletSrv := wallethttp.NewServer(log, store)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)
	mux.Handle("/", walletSrv.Router())

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: mux}
	go func() {
		log.Info("game-server running", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server error", zap.Error(err))
		}
	}()

	registry.StartAll()
	log.Info("tables running",
		zap.Duration("bet_window", cfg.BetWindow),
		zap.Duration("result_delay", cfg.ResultDelay))

	// Shutdown gracioso: para as mesas antes de derrubar o HTTP
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	registry.StopAll()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
