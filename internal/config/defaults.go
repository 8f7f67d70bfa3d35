package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultFeedURL             = "wss://stream.bybit.com/v5/public/spot"
	DefaultReconnectBaseDelay  = 1 * time.Second
	DefaultReconnectMaxDelay   = 60 * time.Second
	DefaultReconnectMultiplier = 2.0
	DefaultPingInterval        = 30 * time.Second
	DefaultPingTimeout         = 30 * time.Second
	DefaultSubscribeTimeout    = 10 * time.Second
	DefaultWriteTimeout        = 5 * time.Second
	DefaultFeedBufferSize      = 10000
	DefaultDedupTTL            = 1 * time.Minute
	DefaultDedupMaxEntries     = 100000
	DefaultMaxAggregators      = 1000
	DefaultHistorySize         = 500
	DefaultRecentTrades        = 1000
	DefaultLatencyBudget       = 5 * time.Millisecond
	DefaultBrokerAddr          = "localhost:6379"
	DefaultStoreBatchSize      = 500
	DefaultStoreFlushInterval  = 5 * time.Second
	DefaultStoreQueueCapacity  = 1024
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 10
	DefaultMinConns            = 2
)

// DefaultBucketSizes are the tick counts aggregated when none are configured.
var DefaultBucketSizes = []int{10, 100, 1000}

func (c *ServiceConfig) applyDefaults() {
	// Feed defaults
	if c.Feed.URL == "" {
		c.Feed.URL = DefaultFeedURL
	}
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Feed.ReconnectMaxDelay == 0 {
		c.Feed.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Feed.ReconnectMultiplier == 0 {
		c.Feed.ReconnectMultiplier = DefaultReconnectMultiplier
	}
	if c.Feed.PingInterval == 0 {
		c.Feed.PingInterval = DefaultPingInterval
	}
	if c.Feed.PingTimeout == 0 {
		c.Feed.PingTimeout = DefaultPingTimeout
	}
	if c.Feed.SubscribeTimeout == 0 {
		c.Feed.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultWriteTimeout
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultFeedBufferSize
	}

	// Dedup defaults
	if c.Dedup.TTL == 0 {
		c.Dedup.TTL = DefaultDedupTTL
	}
	if c.Dedup.MaxEntries == 0 {
		c.Dedup.MaxEntries = DefaultDedupMaxEntries
	}

	// Aggregation defaults
	if len(c.Aggregation.BucketSizes) == 0 {
		c.Aggregation.BucketSizes = append([]int(nil), DefaultBucketSizes...)
	}
	if c.Aggregation.MaxAggregators == 0 {
		c.Aggregation.MaxAggregators = DefaultMaxAggregators
	}
	if c.Aggregation.HistorySize == 0 {
		c.Aggregation.HistorySize = DefaultHistorySize
	}
	if c.Aggregation.RecentTrades == 0 {
		c.Aggregation.RecentTrades = DefaultRecentTrades
	}
	if c.Aggregation.LatencyBudget == 0 {
		c.Aggregation.LatencyBudget = DefaultLatencyBudget
	}

	// Broker defaults
	if c.Broker.Mode == "" {
		c.Broker.Mode = ModeDirect
	}
	if c.Broker.Addr == "" {
		c.Broker.Addr = DefaultBrokerAddr
	}
	if c.Broker.ReconnectBaseDelay == 0 {
		c.Broker.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Broker.ReconnectMaxDelay == 0 {
		c.Broker.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}

	// Store defaults
	if c.Store.BatchSize == 0 {
		c.Store.BatchSize = DefaultStoreBatchSize
	}
	if c.Store.FlushInterval == 0 {
		c.Store.FlushInterval = DefaultStoreFlushInterval
	}
	if c.Store.QueueCapacity == 0 {
		c.Store.QueueCapacity = DefaultStoreQueueCapacity
	}
	if c.Store.Database.Port == 0 {
		c.Store.Database.Port = DefaultDBPort
	}
	if c.Store.Database.SSLMode == "" {
		c.Store.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Store.Database.MaxConns == 0 {
		c.Store.Database.MaxConns = DefaultMaxConns
	}
	if c.Store.Database.MinConns == 0 {
		c.Store.Database.MinConns = DefaultMinConns
	}
}
