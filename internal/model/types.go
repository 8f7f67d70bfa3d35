package model

// Side indicates which side of the book the taker was on.
type Side int

const (
	Buy Side = iota
	Sell
)

// String returns the canonical wire form.
func (s Side) String() string {
	if s == Sell {
		return "sell"
	}
	return "buy"
}

// ParseSide maps a feed side string to a Side. Upstream feeds are not
// consistent about casing ("Buy" vs "buy"), so the first byte decides.
func ParseSide(s string) Side {
	if len(s) > 0 && (s[0] == 's' || s[0] == 'S') {
		return Sell
	}
	return Buy
}

// Trade is a single executed trade as reported by the exchange.
type Trade struct {
	Symbol    string  // Market symbol (e.g., "BTCUSDT")
	ID        string  // Exchange trade id, unique per exchange+symbol
	Timestamp int64   // Exchange timestamp (ms since epoch)
	Price     float64 // Execution price
	Qty       float64 // Executed quantity (base units)
	Side      Side    // Taker side
}

// DedupKey returns the key used by the deduplicator. Trade ids are only
// unique per symbol, so the symbol is part of the key.
func (t Trade) DedupKey() string {
	return t.Symbol + "|" + t.ID
}

// Candle is a completed fixed-tick-count OHLCV bar.
//
// Invariants: Low <= min(Open, Close), max(Open, Close) <= High, and
// TradeCount == BucketSize.
type Candle struct {
	BucketSize int     // Trades per bar
	OpenTime   int64   // Timestamp of the first trade (ms)
	CloseTime  int64   // Timestamp of the last trade (ms)
	Open       float64 // First trade price
	High       float64 // Highest trade price
	Low        float64 // Lowest trade price
	Close      float64 // Last trade price
	Volume     float64 // Total traded quantity
	BuyVolume  float64 // Quantity with taker side buy
	SellVolume float64 // Quantity with taker side sell
	TradeCount int     // Always equals BucketSize
}

// PartialCandle is a read-only view of the in-progress bar, for live display.
// Ticks counts trades folded in so far; TicksNeeded is the bucket size.
type PartialCandle struct {
	BucketSize  int
	OpenTime    int64
	CloseTime   int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	BuyVolume   float64
	SellVolume  float64
	Ticks       int
	TicksNeeded int
}
