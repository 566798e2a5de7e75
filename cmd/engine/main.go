package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/matchbook/params"
	"github.com/uhyunpark/matchbook/pkg/api"
	"github.com/uhyunpark/matchbook/pkg/app/core/market"
	"github.com/uhyunpark/matchbook/pkg/app/core/outbox"
	"github.com/uhyunpark/matchbook/pkg/app/exchange"
	"github.com/uhyunpark/matchbook/pkg/broker"
	"github.com/uhyunpark/matchbook/pkg/storage"
	"github.com/uhyunpark/matchbook/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File, "level", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, sugar); err != nil {
		sugar.Errorw("engine_failed", "err", err)
		logger.Sync()
		os.Exit(1)
	}
	sugar.Info("engine_stopped")
}

func run(ctx context.Context, cfg params.Config, sugar *zap.SugaredLogger) error {
	mode, err := exchange.ParseMatchMode(cfg.Engine.MatchMode)
	if err != nil {
		return err
	}

	// ---- Metrics ----
	var (
		metrics *exchange.Metrics
		promReg *prometheus.Registry
		apiOpts = api.Options{AllowedOrigins: cfg.API.AllowedOrigins}
	)
	if cfg.API.MetricsEnabled {
		promReg = prometheus.NewRegistry()
		promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = exchange.NewMetrics(promReg)
		apiOpts.Gatherer = promReg
		apiOpts.Registerer = promReg
	}

	// ---- Engine ----
	registry := market.NewRegistry(cfg.Engine.Capacity)
	if promReg != nil {
		promReg.MustRegister(exchange.NewBookCollector(registry))
	}
	out := outbox.New()
	engine := exchange.NewEngine(registry, exchange.Config{
		MatchMode:        mode,
		MaxInstrumentLen: cfg.Engine.MaxInstrumentLen,
		Clock:            util.RealClock{},
		Outbox:           out,
		Metrics:          metrics,
	}, sugar.Named("engine"))

	// ---- Snapshots ----
	var store storage.BookStore
	if cfg.Snapshot.Path != "" {
		ps, err := storage.NewPebbleStore(cfg.Snapshot.Path)
		if err != nil {
			return err
		}
		store = ps
	} else {
		store = storage.NewMemoryStore()
	}
	defer store.Close()

	if _, err := engine.Restore(store); err != nil {
		return err
	}

	// ---- Trade sinks ----
	hub := api.NewHub(sugar.Named("ws"))
	dispatcher, closeSinks := newDispatcher(cfg, out, hub, metrics, sugar)
	defer closeSinks()

	sugar.Infow("engine_starting",
		"capacity", cfg.Engine.Capacity,
		"match_mode", mode.String(),
		"match_interval_ms", cfg.Engine.MatchInterval.Milliseconds(),
		"snapshot_path", cfg.Snapshot.Path,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return dispatcher.Run(ctx) })

	apiServer := api.NewServer(engine, hub, apiOpts, sugar.Named("api"))
	g.Go(func() error { return apiServer.Run(ctx, cfg.API.Addr) })

	if mode != exchange.MatchOnInsert {
		g.Go(func() error { return engine.RunMatcher(ctx, cfg.Engine.MatchInterval) })
	}
	if cfg.Snapshot.Interval > 0 {
		job := exchange.NewSnapshotJob(engine, store, cfg.Snapshot.Interval)
		g.Go(func() error { return job.Run(ctx) })
	}

	// ---- Order simulator (optional) ----
	if cfg.Simulator.Enabled {
		feeder := exchange.NewFeeder(engine, exchange.FeederConfig{
			Producers:   cfg.Simulator.Producers,
			Instruments: cfg.Simulator.Instruments,
			MinDelay:    cfg.Simulator.MinDelay,
			MaxDelay:    cfg.Simulator.MaxDelay,
		}, sugar.Named("feeder"))
		g.Go(func() error { return feeder.Run(ctx) })
	} else {
		sugar.Info("simulator_disabled")
	}

	// Progress logging loop
	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				sugar.Infow("engine_progress",
					"instruments", engine.Registry().Count(),
					"sequence", engine.Sequencer().Current(),
					"pending_trades", out.Len(),
				)
			}
		}
	})

	return g.Wait()
}

// newDispatcher registers every configured trade sink. Trades are always
// logged at info level; LOG_LEVEL above info silences them.
func newDispatcher(cfg params.Config, out *outbox.Outbox, hub *api.Hub, metrics *exchange.Metrics, sugar *zap.SugaredLogger) (*exchange.Dispatcher, func()) {
	dispatcher := exchange.NewDispatcher(out, 512, metrics, sugar.Named("dispatch"))
	dispatcher.Add("log", exchange.NewLogSink(sugar.Named("trades")))
	dispatcher.Add("ws", hub)

	closeSinks := func() {}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := broker.NewTradePublisher(broker.NewKafkaWriter(broker.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.TradesTopic,
		}))
		dispatcher.Add("kafka", publisher)
		closeSinks = func() {
			if err := publisher.Close(); err != nil {
				sugar.Warnw("kafka_close_failed", "err", err)
			}
		}
		sugar.Infow("kafka_publisher_enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.TradesTopic)
	}
	return dispatcher, closeSinks
}
