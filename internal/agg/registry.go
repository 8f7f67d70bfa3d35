package agg

import (
	"log/slog"
	"sync"

	"github.com/quantfeed/tickflow/internal/model"
)

// CandleSink receives every completed candle from Dispatch. The service layer
// installs one sink and fans out to its registered callbacks from there.
type CandleSink func(symbol string, bucketSize int, c model.Candle)

// Key identifies one aggregator.
type Key struct {
	Symbol     string
	BucketSize int
}

// RegistryStats is a snapshot of registry counters.
type RegistryStats struct {
	Aggregators    int   // Current entry count
	MaxAggregators int   // Configured capacity
	CandlesEmitted int64 // Completed candles across all aggregators
	Evictions      int64 // Entries evicted at capacity
}

// Config holds registry limits.
type Config struct {
	MaxAggregators int // Capacity bound for (symbol, bucket) entries
	HistorySize    int // Completed candles retained per aggregator
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAggregators: 1000,
		HistorySize:    500,
	}
}

// Registry is a bounded collection of aggregators keyed by (symbol, bucket
// size), with a symbol reverse index for O(1) per-trade dispatch. A single
// mutex guards both structures; every insert and evict updates them together.
type Registry struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	aggs     map[Key]*Aggregator
	bySymbol map[string][]Key
	sink     CandleSink

	candles   int64
	evictions int64
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAggregators < 1 {
		cfg.MaxAggregators = 1
	}
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		aggs:     make(map[Key]*Aggregator),
		bySymbol: make(map[string][]Key),
	}
}

// SetCandleSink installs the completed-candle sink. Must be called before
// Dispatch; not synchronized against it.
func (r *Registry) SetCandleSink(sink CandleSink) {
	r.mu.Lock()
	r.sink = sink
	r.mu.Unlock()
}

// GetOrCreate returns the aggregator for (symbol, bucketSize), creating it if
// absent. At capacity the entry with the fewest completed candles is evicted
// first; creation itself never fails.
func (r *Registry) GetOrCreate(symbol string, bucketSize int) *Aggregator {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := Key{Symbol: symbol, BucketSize: bucketSize}
	if a, ok := r.aggs[k]; ok {
		return a
	}

	if len(r.aggs) >= r.cfg.MaxAggregators {
		r.evictLocked()
	}

	a := NewAggregator(symbol, bucketSize, r.cfg.HistorySize)
	r.aggs[k] = a
	r.bySymbol[symbol] = append(r.bySymbol[symbol], k)
	return a
}

// Dispatch routes one trade to every aggregator registered for its symbol,
// via the reverse index. Completed candles are handed to the sink after the
// lock is released so a sink that queries the registry cannot deadlock.
func (r *Registry) Dispatch(symbol string, t model.Trade) {
	type emitted struct {
		bucketSize int
		candle     model.Candle
	}
	var out []emitted

	r.mu.Lock()
	sink := r.sink
	for _, k := range r.bySymbol[symbol] {
		if c, done := r.aggs[k].AddTrade(t); done {
			r.candles++
			out = append(out, emitted{bucketSize: k.BucketSize, candle: c})
		}
	}
	r.mu.Unlock()

	if sink == nil {
		return
	}
	for _, e := range out {
		sink(symbol, e.bucketSize, e.candle)
	}
}

// History returns up to limit completed candles for (symbol, bucketSize),
// most recent last. A missing entry yields nil.
func (r *Registry) History(symbol string, bucketSize, limit int) []model.Candle {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.aggs[Key{Symbol: symbol, BucketSize: bucketSize}]
	if !ok {
		return nil
	}
	return a.History(limit)
}

// Snapshot returns the in-progress bar for (symbol, bucketSize).
func (r *Registry) Snapshot(symbol string, bucketSize int) (model.PartialCandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.aggs[Key{Symbol: symbol, BucketSize: bucketSize}]
	if !ok {
		return model.PartialCandle{}, false
	}
	return a.Snapshot(), true
}

// Len returns the number of registered aggregators.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.aggs)
}

// Keys returns the registered keys for a symbol. Test and debug helper.
func (r *Registry) Keys(symbol string) []Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Key, len(r.bySymbol[symbol]))
	copy(out, r.bySymbol[symbol])
	return out
}

// Stats returns a counter snapshot.
func (r *Registry) Stats() RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RegistryStats{
		Aggregators:    len(r.aggs),
		MaxAggregators: r.cfg.MaxAggregators,
		CandlesEmitted: r.candles,
		Evictions:      r.evictions,
	}
}

// evictLocked removes the aggregator with the fewest completed candles from
// both the primary map and the reverse index. Caller holds r.mu.
func (r *Registry) evictLocked() {
	var victim Key
	var victimScore int64 = -1

	for k, a := range r.aggs {
		if victimScore < 0 || a.CompletedCount() < victimScore {
			victim = k
			victimScore = a.CompletedCount()
		}
	}
	if victimScore < 0 {
		return
	}

	delete(r.aggs, victim)

	keys := r.bySymbol[victim.Symbol]
	for i, k := range keys {
		if k == victim {
			r.bySymbol[victim.Symbol] = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	if len(r.bySymbol[victim.Symbol]) == 0 {
		delete(r.bySymbol, victim.Symbol)
	}

	r.evictions++
	r.logger.Debug("evicted aggregator",
		"symbol", victim.Symbol,
		"bucket_size", victim.BucketSize,
		"completed", victimScore,
	)
}
