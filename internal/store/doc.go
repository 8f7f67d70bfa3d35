// Package store persists completed candles to TimescaleDB. A CandleWriter
// hangs off the service's candle callback: callbacks enqueue rows into a
// growable queue, a background loop batches them, and pgx batch inserts with
// ON CONFLICT DO NOTHING keep redelivered candles idempotent.
package store
