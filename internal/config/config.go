package config

import (
	"time"

	"github.com/quantfeed/tickflow/internal/store"
)

// Broker modes. Direct ingests straight from the upstream feed; publisher
// additionally republishes every accepted trade to the broker; fanout consumes
// the broker instead of the upstream feed.
const (
	ModeDirect    = "direct"
	ModePublisher = "publisher"
	ModeFanout    = "fanout"
)

// ServiceConfig is the root configuration for a tickflow instance.
type ServiceConfig struct {
	Instance    InstanceConfig    `yaml:"instance"`
	Feed        FeedConfig        `yaml:"feed"`
	Dedup       DedupConfig       `yaml:"dedup"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Broker      BrokerConfig      `yaml:"broker"`
	Store       StoreConfig       `yaml:"store"`
}

// InstanceConfig identifies this process.
type InstanceConfig struct {
	ID string `yaml:"id"`
	AZ string `yaml:"az"`
}

// FeedConfig holds upstream websocket settings.
type FeedConfig struct {
	URL                 string        `yaml:"url"`
	Symbols             []string      `yaml:"symbols"`
	ReconnectBaseDelay  time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay   time.Duration `yaml:"reconnect_max_delay"`
	ReconnectMultiplier float64       `yaml:"reconnect_multiplier"`
	PingInterval        time.Duration `yaml:"ping_interval"`
	PingTimeout         time.Duration `yaml:"ping_timeout"`
	SubscribeTimeout    time.Duration `yaml:"subscribe_timeout"`
	WriteTimeout        time.Duration `yaml:"write_timeout"`
	BufferSize          int           `yaml:"buffer_size"`
}

// DedupConfig holds trade deduplication settings.
type DedupConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// AggregationConfig holds candle aggregation settings.
type AggregationConfig struct {
	BucketSizes    []int         `yaml:"bucket_sizes"`
	MaxAggregators int           `yaml:"max_aggregators"`
	HistorySize    int           `yaml:"history_size"`
	RecentTrades   int           `yaml:"recent_trades"`
	LatencyBudget  time.Duration `yaml:"latency_budget"`
}

// BrokerConfig holds Redis pub/sub settings for the publisher/fanout roles.
type BrokerConfig struct {
	Mode               string        `yaml:"mode"`
	Addr               string        `yaml:"addr"`
	Password           string        `yaml:"password"`
	DB                 int           `yaml:"db"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`

	// FallbackAfter is the number of consecutive broker failures before a
	// fanout instance switches to direct ingestion. Zero disables fallback.
	FallbackAfter int `yaml:"fallback_after"`
}

// StoreConfig holds optional candle persistence settings.
type StoreConfig struct {
	Enabled       bool           `yaml:"enabled"`
	Database      store.DBConfig `yaml:"database"`
	BatchSize     int            `yaml:"batch_size"`
	FlushInterval time.Duration  `yaml:"flush_interval"`
	QueueCapacity int            `yaml:"queue_capacity"`
}
