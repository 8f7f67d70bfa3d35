package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfeed/tickflow/internal/model"
)

// WriterConfig holds batching parameters.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// QueueCapacity is the initial row queue size.
	QueueCapacity int
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: 5 * time.Second,
		QueueCapacity: 1024,
	}
}

// WriterMetrics is a snapshot of writer counters.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Dropped   int64 // Candles rejected after the queue closed
	Queue     QueueStats
}

// candleRow is the flattened tick_candles row.
type candleRow struct {
	Symbol     string
	BucketSize int
	OpenTime   int64
	CloseTime  int64
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	BuyVolume  float64
	SellVolume float64
	TradeCount int
}

// CandleWriter batches completed candles into the tick_candles table. Install
// its Sink as a service candle callback; the ingestion goroutine only pays
// for an enqueue.
type CandleWriter struct {
	cfg    WriterConfig
	logger *slog.Logger
	db     *pgxpool.Pool
	queue  *rowQueue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	metrics WriterMetrics
}

// NewCandleWriter creates a writer backed by db.
func NewCandleWriter(cfg WriterConfig, db *pgxpool.Pool, logger *slog.Logger) *CandleWriter {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultWriterConfig()
	if cfg.BatchSize == 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = def.QueueCapacity
	}
	return &CandleWriter{
		cfg:    cfg,
		logger: logger,
		db:     db,
		queue:  newRowQueue(cfg.QueueCapacity),
	}
}

// Sink returns the candle callback that feeds this writer.
func (w *CandleWriter) Sink() func(symbol string, bucketSize int, c model.Candle) {
	return func(symbol string, bucketSize int, c model.Candle) {
		row := candleRow{
			Symbol:     symbol,
			BucketSize: bucketSize,
			OpenTime:   c.OpenTime,
			CloseTime:  c.CloseTime,
			Open:       c.Open,
			High:       c.High,
			Low:        c.Low,
			Close:      c.Close,
			Volume:     c.Volume,
			BuyVolume:  c.BuyVolume,
			SellVolume: c.SellVolume,
			TradeCount: c.TradeCount,
		}
		if !w.queue.push(row) {
			w.mu.Lock()
			w.metrics.Dropped++
			w.mu.Unlock()
		}
	}
}

// Start begins the flush loop.
func (w *CandleWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("candle writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains and flushes whatever is queued, then shuts down.
func (w *CandleWriter) Stop(ctx context.Context) error {
	w.queue.close()
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("candle writer stop timed out")
	}

	// Final flush runs on the caller's context since w.ctx is cancelled.
	w.flush(ctx)
	w.logger.Info("candle writer stopped")
	return nil
}

// Stats returns a counter snapshot.
func (w *CandleWriter) Stats() WriterMetrics {
	w.mu.Lock()
	m := w.metrics
	w.mu.Unlock()
	m.Queue = w.queue.stats()
	return m
}

// flushLoop flushes on the ticker and whenever a full batch is waiting.
func (w *CandleWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		case <-poll.C:
			if w.queue.len() >= w.cfg.BatchSize {
				w.flush(w.ctx)
			}
		}
	}
}

// flush drains up to one batch and inserts it.
func (w *CandleWriter) flush(ctx context.Context) {
	rows := w.queue.drain(w.cfg.BatchSize)
	if len(rows) == 0 {
		return
	}
	if w.db == nil {
		return
	}

	start := time.Now()
	conflicts, err := w.batchInsert(ctx, rows)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(rows))
		w.mu.Lock()
		w.metrics.Errors++
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	w.metrics.Inserts += int64(len(rows) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.mu.Unlock()

	w.logger.Debug("flushed candles",
		"count", len(rows),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING, so a
// candle redelivered across restarts is a no-op.
func (w *CandleWriter) batchInsert(ctx context.Context, rows []candleRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO tick_candles (symbol, bucket_size, open_time, close_time, open, high, low, close, volume, buy_volume, sell_volume, trade_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (symbol, bucket_size, open_time) DO NOTHING
		`, r.Symbol, r.BucketSize, r.OpenTime, r.CloseTime, r.Open, r.High, r.Low, r.Close, r.Volume, r.BuyVolume, r.SellVolume, r.TradeCount)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
