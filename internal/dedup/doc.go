// Package dedup provides a bounded, TTL-based duplicate filter for trade
// identifiers. After a reconnect the upstream feed replays recent trades; the
// deduplicator discards anything already seen within the TTL window.
//
// The structure is last-seen ordered, so the oldest entries sit at the
// eviction frontier. Expiry is lazy: each Add sweeps at most a handful of the
// oldest entries, and an entry past its TTL is treated as absent even before
// it is physically removed.
package dedup
