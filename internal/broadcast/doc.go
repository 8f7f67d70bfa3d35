// Package broadcast fans one upstream trade stream out to many worker
// processes through a Redis pub/sub broker.
//
// The publisher role wraps a feed.TradeSink: every parsed trade batch becomes
// one pipelined PUBLISH per trade on the symbol's channel. The subscriber
// role runs in each worker, decodes broker messages back into trades, and
// feeds its local sink — so the aggregation core sees exactly the same input
// shape in direct and fan-out deployments. Broker loss is retried with the
// same backoff policy as the ingestion link, with optional fallback to
// direct upstream ingestion.
package broadcast
