package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/quantfeed/tickflow/internal/broadcast"
	"github.com/quantfeed/tickflow/internal/config"
	"github.com/quantfeed/tickflow/internal/feed"
	"github.com/quantfeed/tickflow/internal/model"
	"github.com/quantfeed/tickflow/internal/store"
	"github.com/quantfeed/tickflow/internal/tick"
	"github.com/quantfeed/tickflow/internal/version"
)

const (
	statsInterval = 30 * time.Second
	drainTimeout  = 30 * time.Second
)

func main() {
	configPath := flag.String("config", "configs/tickd.local.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting tickd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"mode", cfg.Broker.Mode,
		"symbols", len(cfg.Feed.Symbols),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("tickd failed", "error", err)
		os.Exit(1)
	}
	logger.Info("tickd exited")
}

func run(ctx context.Context, cfg *config.ServiceConfig, logger *slog.Logger) error {
	// svc is captured by the ingestion sink closures below and assigned once
	// the ingestor is built.
	var svc *tick.Service
	sink := func(trades []model.Trade) {
		svc.TradeSink()(trades)
	}

	var rdb *redis.Client
	if cfg.Broker.Mode != config.ModeDirect {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Broker.Addr,
			Password: cfg.Broker.Password,
			DB:       cfg.Broker.DB,
		})
		defer rdb.Close()
	}

	ingestor, err := buildIngestor(cfg, rdb, sink, logger)
	if err != nil {
		return err
	}

	svc = tick.New(tick.Config{
		Symbols:         cfg.Feed.Symbols,
		BucketSizes:     cfg.Aggregation.BucketSizes,
		DedupTTL:        cfg.Dedup.TTL,
		DedupMaxEntries: cfg.Dedup.MaxEntries,
		MaxAggregators:  cfg.Aggregation.MaxAggregators,
		HistorySize:     cfg.Aggregation.HistorySize,
		RecentTrades:    cfg.Aggregation.RecentTrades,
		LatencyBudget:   cfg.Aggregation.LatencyBudget,
	}, ingestor, logger)

	if cfg.Store.Enabled {
		writer, pool, err := startWriter(ctx, cfg, svc, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), drainTimeout)
			defer stopCancel()
			writer.Stop(stopCtx)
		}()
	}

	if err := svc.Start(ctx, cfg.Feed.Symbols); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	logger.Info("tickd running",
		"instance_id", cfg.Instance.ID,
		"bucket_sizes", cfg.Aggregation.BucketSizes,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return logStats(gctx, svc, logger)
	})
	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("background task failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), drainTimeout)
	defer shutdownCancel()
	return svc.GracefulShutdown(shutdownCtx, drainTimeout)
}

// buildIngestor wires the ingestion source for the configured mode.
func buildIngestor(cfg *config.ServiceConfig, rdb *redis.Client, sink feed.TradeSink, logger *slog.Logger) (tick.Ingestor, error) {
	linkCfg := feed.LinkConfig{
		URL:                 cfg.Feed.URL,
		Symbols:             cfg.Feed.Symbols,
		SubscribeTimeout:    cfg.Feed.SubscribeTimeout,
		ReconnectBaseDelay:  cfg.Feed.ReconnectBaseDelay,
		ReconnectMaxDelay:   cfg.Feed.ReconnectMaxDelay,
		ReconnectMultiplier: cfg.Feed.ReconnectMultiplier,
		PingInterval:        cfg.Feed.PingInterval,
		PingTimeout:         cfg.Feed.PingTimeout,
		WriteTimeout:        cfg.Feed.WriteTimeout,
		BufferSize:          cfg.Feed.BufferSize,
	}

	switch cfg.Broker.Mode {
	case config.ModeDirect:
		return feed.NewLink(linkCfg, sink, logger), nil

	case config.ModePublisher:
		// A publisher ingests directly and republishes every raw trade to
		// the broker; downstream fanout instances run their own dedup.
		pub := broadcast.NewPublisher(rdb, logger)
		pubSink := pub.Sink()
		combined := func(trades []model.Trade) {
			sink(trades)
			pubSink(trades)
		}
		return feed.NewLink(linkCfg, combined, logger), nil

	case config.ModeFanout:
		var fallback broadcast.FallbackFunc
		if cfg.Broker.FallbackAfter > 0 {
			link := feed.NewLink(linkCfg, sink, logger)
			fallback = func(ctx context.Context) error {
				return link.Start(ctx)
			}
		}
		subCfg := broadcast.SubscriberConfig{
			Symbols:             cfg.Feed.Symbols,
			ReconnectBaseDelay:  cfg.Broker.ReconnectBaseDelay,
			ReconnectMaxDelay:   cfg.Broker.ReconnectMaxDelay,
			ReconnectMultiplier: cfg.Feed.ReconnectMultiplier,
			FallbackAfter:       cfg.Broker.FallbackAfter,
		}
		return broadcast.NewSubscriber(subCfg, rdb, sink, fallback, logger), nil

	default:
		return nil, fmt.Errorf("unknown broker mode %q", cfg.Broker.Mode)
	}
}

// startWriter connects the candle database and hooks the writer into the
// service's candle callbacks.
func startWriter(ctx context.Context, cfg *config.ServiceConfig, svc *tick.Service, logger *slog.Logger) (*store.CandleWriter, *pgxpool.Pool, error) {
	logger.Info("connecting to candle database",
		"host", cfg.Store.Database.Host,
		"port", cfg.Store.Database.Port,
		"database", cfg.Store.Database.Name,
	)

	pool, err := store.Connect(ctx, cfg.Store.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect candle database: %w", err)
	}

	writer := store.NewCandleWriter(store.WriterConfig{
		BatchSize:     cfg.Store.BatchSize,
		FlushInterval: cfg.Store.FlushInterval,
		QueueCapacity: cfg.Store.QueueCapacity,
	}, pool, logger)

	if err := writer.Start(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("start candle writer: %w", err)
	}

	svc.AddCandleCallback(writer.Sink())
	return writer, pool, nil
}

// logStats emits a periodic counter snapshot until the context is cancelled.
func logStats(ctx context.Context, svc *tick.Service, logger *slog.Logger) error {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			stats := svc.Stats()
			logger.Info("service stats",
				"trades_processed", stats.TradesProcessed,
				"duplicates_dropped", stats.DuplicatesDropped,
				"candles_emitted", stats.CandlesEmitted,
				"reconnects", stats.Reconnects,
				"aggregators", stats.Aggregators,
				"latency_warnings", stats.LatencyWarnings,
				"dedup_size", stats.Dedup.Size,
			)
		}
	}
}
