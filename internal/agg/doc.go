// Package agg implements tick-candle aggregation: per (symbol, bucket size)
// state machines that fold a trade stream into fixed-tick-count OHLCV bars,
// and a bounded registry that routes each incoming trade to every aggregator
// registered for its symbol.
//
// The registry keeps a symbol reverse index so the per-trade dispatch path is
// O(bucket sizes subscribed for that symbol), never a scan of all entries. At
// capacity it evicts the aggregator that has completed the fewest candles.
package agg
