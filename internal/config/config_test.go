package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quantfeed/tickflow/internal/store"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-worker
  az: us-east-1a
feed:
  url: wss://stream.example.com/v5/public/spot
  symbols: [BTCUSDT, ETHUSDT]
aggregation:
  bucket_sizes: [10, 50]
broker:
  mode: publisher
  addr: redis.internal:6379
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-worker" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-worker")
	}
	if cfg.Feed.URL != "wss://stream.example.com/v5/public/spot" {
		t.Errorf("Feed.URL = %q", cfg.Feed.URL)
	}
	if len(cfg.Feed.Symbols) != 2 || cfg.Feed.Symbols[0] != "BTCUSDT" {
		t.Errorf("Feed.Symbols = %v", cfg.Feed.Symbols)
	}
	if len(cfg.Aggregation.BucketSizes) != 2 || cfg.Aggregation.BucketSizes[1] != 50 {
		t.Errorf("Aggregation.BucketSizes = %v", cfg.Aggregation.BucketSizes)
	}
	if cfg.Broker.Mode != ModePublisher {
		t.Errorf("Broker.Mode = %q, want %q", cfg.Broker.Mode, ModePublisher)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_BROKER_PASSWORD", "secret123")

	yaml := `
instance:
  id: test-worker
feed:
  symbols: [BTCUSDT]
broker:
  mode: fanout
  addr: localhost:6379
  password: ${TEST_BROKER_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Broker.Password != "secret123" {
		t.Errorf("Broker.Password = %q, want %q", cfg.Broker.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-worker
feed:
  symbols: [BTCUSDT]
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Feed.URL != DefaultFeedURL {
		t.Errorf("Feed.URL = %q, want default %q", cfg.Feed.URL, DefaultFeedURL)
	}
	if cfg.Feed.ReconnectBaseDelay != DefaultReconnectBaseDelay {
		t.Errorf("Feed.ReconnectBaseDelay = %v, want %v", cfg.Feed.ReconnectBaseDelay, DefaultReconnectBaseDelay)
	}
	if cfg.Dedup.TTL != DefaultDedupTTL {
		t.Errorf("Dedup.TTL = %v, want %v", cfg.Dedup.TTL, DefaultDedupTTL)
	}
	if len(cfg.Aggregation.BucketSizes) != len(DefaultBucketSizes) {
		t.Errorf("Aggregation.BucketSizes = %v, want %v", cfg.Aggregation.BucketSizes, DefaultBucketSizes)
	}
	if cfg.Broker.Mode != ModeDirect {
		t.Errorf("Broker.Mode = %q, want %q", cfg.Broker.Mode, ModeDirect)
	}
	if cfg.Aggregation.LatencyBudget != 5*time.Millisecond {
		t.Errorf("Aggregation.LatencyBudget = %v, want 5ms", cfg.Aggregation.LatencyBudget)
	}
	if cfg.Store.Database.Port != DefaultDBPort {
		t.Errorf("Store.Database.Port = %d, want %d", cfg.Store.Database.Port, DefaultDBPort)
	}
}

func TestValidate(t *testing.T) {
	valid := func() ServiceConfig {
		cfg := ServiceConfig{
			Instance: InstanceConfig{ID: "test"},
			Feed: FeedConfig{
				URL:     "wss://stream.example.com",
				Symbols: []string{"BTCUSDT"},
			},
			Dedup:       DedupConfig{TTL: time.Minute, MaxEntries: 1000},
			Aggregation: AggregationConfig{BucketSizes: []int{10}, MaxAggregators: 100, HistorySize: 50},
			Broker:      BrokerConfig{Mode: ModeDirect},
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*ServiceConfig)
		wantErr string
	}{
		{
			name:    "valid direct config",
			mutate:  func(c *ServiceConfig) {},
			wantErr: "",
		},
		{
			name:    "missing instance id",
			mutate:  func(c *ServiceConfig) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "no symbols",
			mutate:  func(c *ServiceConfig) { c.Feed.Symbols = nil },
			wantErr: "feed.symbols must list at least one symbol",
		},
		{
			name:    "bad broker mode",
			mutate:  func(c *ServiceConfig) { c.Broker.Mode = "relay" },
			wantErr: `broker.mode must be one of "direct", "publisher", "fanout", got "relay"`,
		},
		{
			name: "publisher without broker addr",
			mutate: func(c *ServiceConfig) {
				c.Broker.Mode = ModePublisher
				c.Broker.Addr = ""
			},
			wantErr: "broker.addr is required for publisher and fanout modes",
		},
		{
			name: "fanout without feed url is fine when fallback disabled",
			mutate: func(c *ServiceConfig) {
				c.Broker.Mode = ModeFanout
				c.Broker.Addr = "localhost:6379"
				c.Feed.URL = ""
			},
			wantErr: "",
		},
		{
			name: "fanout with fallback needs feed url",
			mutate: func(c *ServiceConfig) {
				c.Broker.Mode = ModeFanout
				c.Broker.Addr = "localhost:6379"
				c.Broker.FallbackAfter = 3
				c.Feed.URL = ""
			},
			wantErr: "feed.url is required",
		},
		{
			name:    "zero bucket size",
			mutate:  func(c *ServiceConfig) { c.Aggregation.BucketSizes = []int{10, 0} },
			wantErr: "aggregation.bucket_sizes entries must be >= 1, got 0",
		},
		{
			name:    "non-positive dedup ttl",
			mutate:  func(c *ServiceConfig) { c.Dedup.TTL = 0 },
			wantErr: "dedup.ttl must be positive",
		},
		{
			name: "store enabled without password",
			mutate: func(c *ServiceConfig) {
				c.Store.Enabled = true
				c.Store.BatchSize = 100
				c.Store.Database = store.DBConfig{Host: "localhost", Name: "db", User: "u", MaxConns: 5}
			},
			wantErr: "store.database.password is required",
		},
		{
			name: "store min conns exceeds max",
			mutate: func(c *ServiceConfig) {
				c.Store.Enabled = true
				c.Store.BatchSize = 100
				c.Store.Database = store.DBConfig{
					Host: "localhost", Name: "db", User: "u", Password: "p",
					MaxConns: 5, MinConns: 10,
				}
			},
			wantErr: "store.database.min_conns (10) cannot exceed max_conns (5)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Errorf("Validate() expected error %q, got nil", tt.wantErr)
			} else if err.Error() != tt.wantErr {
				t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
