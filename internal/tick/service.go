package tick

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quantfeed/tickflow/internal/agg"
	"github.com/quantfeed/tickflow/internal/dedup"
	"github.com/quantfeed/tickflow/internal/feed"
	"github.com/quantfeed/tickflow/internal/model"
)

// drainPollInterval is how often GracefulShutdown re-checks the callback
// registries while draining.
const drainPollInterval = 50 * time.Millisecond

// Ingestor is the ingestion source a Service drives: a feed.Link in direct
// mode, a broadcast.Subscriber in fan-out mode, or nil when trades are pushed
// in externally (tests, embedding).
type Ingestor interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// reconnectCounter is implemented by both ingestion sources.
type reconnectCounter interface {
	ReconnectCount() int64
}

// Config holds service tunables.
type Config struct {
	Symbols         []string
	BucketSizes     []int
	DedupTTL        time.Duration
	DedupMaxEntries int
	MaxAggregators  int
	HistorySize     int
	RecentTrades    int           // Per-symbol recent trade ring size
	LatencyBudget   time.Duration // Warn threshold for one trade's processing
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BucketSizes:     []int{10, 100, 1000},
		DedupTTL:        time.Minute,
		DedupMaxEntries: 100000,
		MaxAggregators:  1000,
		HistorySize:     500,
		RecentTrades:    1000,
		LatencyBudget:   5 * time.Millisecond,
	}
}

// ServiceStats is the full stats snapshot exposed to operators.
type ServiceStats struct {
	Running           bool
	TradesProcessed   int64
	DuplicatesDropped int64
	CandlesEmitted    int64
	Reconnects        int64
	Aggregators       int
	TradeCallbacks    int
	CandleCallbacks   int
	LatencyWarnings   int64
	Dedup             dedup.Stats
}

// Service is the tick-candle service facade. Construct one per process with
// New and pass it by reference; there is no package-level instance.
type Service struct {
	cfg      Config
	logger   *slog.Logger
	dedup    *dedup.Deduplicator
	registry *agg.Registry
	ingestor Ingestor

	mu        sync.Mutex
	running   bool
	accepting bool
	recent    map[string]*tradeRing
	trCbs     map[CallbackToken]TradeCallback
	cdCbs     map[CallbackToken]CandleCallback

	processed    int64
	duplicates   int64
	latencyWarns int64
}

// New creates a Service. ingestor may be nil for externally fed deployments.
func New(cfg Config, ingestor Ingestor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.DedupTTL == 0 {
		cfg.DedupTTL = def.DedupTTL
	}
	if cfg.DedupMaxEntries == 0 {
		cfg.DedupMaxEntries = def.DedupMaxEntries
	}
	if cfg.MaxAggregators == 0 {
		cfg.MaxAggregators = def.MaxAggregators
	}
	if cfg.HistorySize == 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.RecentTrades == 0 {
		cfg.RecentTrades = def.RecentTrades
	}
	if cfg.LatencyBudget == 0 {
		cfg.LatencyBudget = def.LatencyBudget
	}
	if len(cfg.BucketSizes) == 0 {
		cfg.BucketSizes = def.BucketSizes
	}

	s := &Service{
		cfg:      cfg,
		logger:   logger,
		dedup:    dedup.New(cfg.DedupTTL, cfg.DedupMaxEntries),
		ingestor: ingestor,
		recent:   make(map[string]*tradeRing),
		trCbs:    make(map[CallbackToken]TradeCallback),
		cdCbs:    make(map[CallbackToken]CandleCallback),
	}
	s.registry = agg.NewRegistry(agg.Config{
		MaxAggregators: cfg.MaxAggregators,
		HistorySize:    cfg.HistorySize,
	}, logger)
	s.registry.SetCandleSink(s.emitCandle)
	return s
}

// Registry exposes the aggregator registry for boundary collaborators.
func (s *Service) Registry() *agg.Registry {
	return s.registry
}

// TradeSink returns the single-writer ingestion entry point. Deployment
// wiring hands it to the feed link, the fan-out subscriber, or the broadcast
// publisher chain.
func (s *Service) TradeSink() feed.TradeSink {
	return s.processTrades
}

// Start begins ingestion for the given symbols (falling back to the
// configured set when nil). Calling Start on a running service is a no-op
// with a warning.
func (s *Service) Start(ctx context.Context, symbols []string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("service already running, ignoring start")
		return nil
	}
	s.running = true
	s.accepting = true
	s.mu.Unlock()

	if symbols == nil {
		symbols = s.cfg.Symbols
	}

	// Pre-register aggregators so dispatch has somewhere to route from the
	// first trade.
	for _, sym := range symbols {
		for _, bucket := range s.cfg.BucketSizes {
			s.registry.GetOrCreate(sym, bucket)
		}
	}

	if s.ingestor != nil {
		if err := s.ingestor.Start(ctx); err != nil {
			s.mu.Lock()
			s.running = false
			s.accepting = false
			s.mu.Unlock()
			return err
		}
	}

	s.logger.Info("tick service started",
		"symbols", len(symbols),
		"bucket_sizes", s.cfg.BucketSizes,
	)
	return nil
}

// Stop cancels ingestion and closes the transport.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.accepting = false
	s.mu.Unlock()

	if s.ingestor != nil {
		if err := s.ingestor.Stop(ctx); err != nil {
			return err
		}
	}
	s.logger.Info("tick service stopped")
	return nil
}

// GracefulShutdown stops accepting trades immediately, waits up to
// drainTimeout for all callback registrations to be released, then forces
// closure. The drain is a courtesy window, not a guarantee.
func (s *Service) GracefulShutdown(ctx context.Context, drainTimeout time.Duration) error {
	s.mu.Lock()
	s.accepting = false
	s.mu.Unlock()

	deadline := time.NewTimer(drainTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

drain:
	for s.callbackCount() > 0 {
		select {
		case <-ctx.Done():
			break drain
		case <-deadline.C:
			s.logger.Warn("drain timeout reached, forcing shutdown",
				"remaining_callbacks", s.callbackCount(),
			)
			break drain
		case <-ticker.C:
		}
	}

	return s.Stop(ctx)
}

// GetTickCandles returns up to limit completed candles for (symbol,
// bucketSize), most recent last.
func (s *Service) GetTickCandles(symbol string, bucketSize, limit int) []model.Candle {
	return s.registry.History(symbol, bucketSize, limit)
}

// GetCurrentCandle returns the in-progress bar for (symbol, bucketSize).
func (s *Service) GetCurrentCandle(symbol string, bucketSize int) (model.PartialCandle, bool) {
	return s.registry.Snapshot(symbol, bucketSize)
}

// GetRecentTrades returns up to limit recent trades for symbol, most recent
// last.
func (s *Service) GetRecentTrades(symbol string, limit int) []model.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring, ok := s.recent[symbol]
	if !ok {
		return nil
	}
	return ring.recentLocked(limit)
}

// Stats returns a full counter snapshot.
func (s *Service) Stats() ServiceStats {
	reg := s.registry.Stats()
	ded := s.dedup.Stats()

	var reconnects int64
	if rc, ok := s.ingestor.(reconnectCounter); ok {
		reconnects = rc.ReconnectCount()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return ServiceStats{
		Running:           s.running,
		TradesProcessed:   s.processed,
		DuplicatesDropped: s.duplicates,
		CandlesEmitted:    reg.CandlesEmitted,
		Reconnects:        reconnects,
		Aggregators:       reg.Aggregators,
		TradeCallbacks:    len(s.trCbs),
		CandleCallbacks:   len(s.cdCbs),
		LatencyWarnings:   s.latencyWarns,
		Dedup:             ded,
	}
}

// processTrades is the per-trade hot path: dedup, record, dispatch, fan out.
// Runs on the single ingestion goroutine; nothing here may panic outward or
// block on a slow consumer.
func (s *Service) processTrades(trades []model.Trade) {
	s.mu.Lock()
	accepting := s.accepting
	s.mu.Unlock()
	if !accepting {
		return
	}

	for _, t := range trades {
		start := time.Now()

		if !s.dedup.Add(t.DedupKey()) {
			s.mu.Lock()
			s.duplicates++
			s.mu.Unlock()
			continue
		}

		s.recordRecent(t)
		s.registry.Dispatch(t.Symbol, t)
		s.fanoutTrade(t)

		s.mu.Lock()
		s.processed++
		s.mu.Unlock()

		if elapsed := time.Since(start); elapsed > s.cfg.LatencyBudget {
			s.mu.Lock()
			s.latencyWarns++
			s.mu.Unlock()
			s.logger.Warn("trade processing exceeded latency budget",
				"symbol", t.Symbol,
				"elapsed", elapsed,
				"budget", s.cfg.LatencyBudget,
			)
		}
	}
}

// recordRecent appends a trade to its symbol's bounded ring.
func (s *Service) recordRecent(t model.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring, ok := s.recent[t.Symbol]
	if !ok {
		ring = newTradeRing(s.cfg.RecentTrades)
		s.recent[t.Symbol] = ring
	}
	ring.pushLocked(t)
}

// emitCandle is the registry's candle sink: fan out to candle callbacks.
func (s *Service) emitCandle(symbol string, bucketSize int, c model.Candle) {
	for _, cb := range s.candleCallbacks() {
		s.safeInvoke(func() { cb(symbol, bucketSize, c) })
	}
}

// fanoutTrade delivers one trade to all trade callbacks.
func (s *Service) fanoutTrade(t model.Trade) {
	for _, cb := range s.tradeCallbacks() {
		s.safeInvoke(func() { cb(t.Symbol, t) })
	}
}

// safeInvoke shields the ingestion loop from a broken subscriber: a panic in
// one callback is logged and contained.
func (s *Service) safeInvoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("callback panicked", "panic", r)
		}
	}()
	fn()
}
