// Package tick is the service facade over the aggregation pipeline. A
// Service owns the deduplicator, the aggregator registry, per-symbol recent
// trade rings, and the callback registries, and drives whichever ingestion
// source the deployment uses (direct feed link or fan-out subscriber).
//
// Exactly one logical path mutates pipeline state: the ingestion source's
// receive loop, via the sink returned by TradeSink. Queries, stats, and
// callback registration are safe to call concurrently with it.
package tick
