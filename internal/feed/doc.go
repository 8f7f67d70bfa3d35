// Package feed owns the single upstream connection to the exchange's public
// trade stream. A Link connects, subscribes to the publicTrade topics for its
// symbol set, and parses inbound messages into model.Trade batches for a
// configured sink. Connection failures are retried with exponential backoff;
// the backoff resets after any successful connect+subscribe.
//
// Message classification happens once at the transport boundary: a raw frame
// becomes a typed message (trade batch, ack, or control) before anything
// downstream sees it.
package feed
