package agg

import (
	"github.com/quantfeed/tickflow/internal/model"
)

// Aggregator accumulates trades for one (symbol, bucket size) pair and emits
// a Candle every bucketSize trades. It is not safe for concurrent use; the
// owning Registry serializes access.
type Aggregator struct {
	symbol     string
	bucketSize int

	// Running bucket state, reset after each emission.
	count      int
	openTime   int64
	closeTime  int64
	open       float64
	high       float64
	low        float64
	close      float64
	volume     float64
	buyVolume  float64
	sellVolume float64

	// Completed candle ring, oldest overwritten on overflow.
	history []model.Candle
	head    int
	filled  int

	completed int64 // Total candles emitted over the aggregator's lifetime
}

// NewAggregator creates an aggregator holding up to historySize completed
// candles.
func NewAggregator(symbol string, bucketSize, historySize int) *Aggregator {
	if bucketSize < 1 {
		bucketSize = 1
	}
	if historySize < 1 {
		historySize = 1
	}
	return &Aggregator{
		symbol:     symbol,
		bucketSize: bucketSize,
		history:    make([]model.Candle, historySize),
	}
}

// Symbol returns the aggregator's symbol.
func (a *Aggregator) Symbol() string {
	return a.symbol
}

// BucketSize returns the number of trades per bar.
func (a *Aggregator) BucketSize() int {
	return a.bucketSize
}

// AddTrade folds one trade into the running bucket. When the bucket reaches
// bucketSize trades it returns the completed candle and true, resetting the
// running state; otherwise it returns the zero candle and false.
func (a *Aggregator) AddTrade(t model.Trade) (model.Candle, bool) {
	if a.count == 0 {
		a.openTime = t.Timestamp
		a.open = t.Price
		a.high = t.Price
		a.low = t.Price
	} else {
		if t.Price > a.high {
			a.high = t.Price
		}
		if t.Price < a.low {
			a.low = t.Price
		}
	}

	a.closeTime = t.Timestamp
	a.close = t.Price
	a.volume += t.Qty
	if t.Side == model.Sell {
		a.sellVolume += t.Qty
	} else {
		a.buyVolume += t.Qty
	}
	a.count++

	if a.count < a.bucketSize {
		return model.Candle{}, false
	}

	c := model.Candle{
		BucketSize: a.bucketSize,
		OpenTime:   a.openTime,
		CloseTime:  a.closeTime,
		Open:       a.open,
		High:       a.high,
		Low:        a.low,
		Close:      a.close,
		Volume:     a.volume,
		BuyVolume:  a.buyVolume,
		SellVolume: a.sellVolume,
		TradeCount: a.count,
	}
	a.appendHistory(c)
	a.reset()
	return c, true
}

// Snapshot returns a read-only view of the in-progress bucket. An empty
// bucket yields a snapshot with Ticks == 0 and zero prices.
func (a *Aggregator) Snapshot() model.PartialCandle {
	return model.PartialCandle{
		BucketSize:  a.bucketSize,
		OpenTime:    a.openTime,
		CloseTime:   a.closeTime,
		Open:        a.open,
		High:        a.high,
		Low:         a.low,
		Close:       a.close,
		Volume:      a.volume,
		BuyVolume:   a.buyVolume,
		SellVolume:  a.sellVolume,
		Ticks:       a.count,
		TicksNeeded: a.bucketSize,
	}
}

// History returns up to limit completed candles, most recent last.
// limit <= 0 returns everything retained.
func (a *Aggregator) History(limit int) []model.Candle {
	n := a.filled
	if limit > 0 && limit < n {
		n = limit
	}
	if n == 0 {
		return nil
	}

	out := make([]model.Candle, n)
	// head points at the next write slot; the newest entry sits just before it.
	start := a.head - n
	if start < 0 {
		start += len(a.history)
	}
	for i := 0; i < n; i++ {
		out[i] = a.history[(start+i)%len(a.history)]
	}
	return out
}

// CompletedCount returns the number of candles emitted over the aggregator's
// lifetime. The registry uses it as the eviction score.
func (a *Aggregator) CompletedCount() int64 {
	return a.completed
}

func (a *Aggregator) appendHistory(c model.Candle) {
	a.history[a.head] = c
	a.head = (a.head + 1) % len(a.history)
	if a.filled < len(a.history) {
		a.filled++
	}
	a.completed++
}

func (a *Aggregator) reset() {
	a.count = 0
	a.openTime = 0
	a.closeTime = 0
	a.open = 0
	a.high = 0
	a.low = 0
	a.close = 0
	a.volume = 0
	a.buyVolume = 0
	a.sellVolume = 0
}
