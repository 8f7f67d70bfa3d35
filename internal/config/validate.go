package config

import (
	"errors"
	"fmt"

	"github.com/quantfeed/tickflow/internal/store"
)

// Validate checks that all required fields are set and values are valid.
func (c *ServiceConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if len(c.Feed.Symbols) == 0 {
		return errors.New("feed.symbols must list at least one symbol")
	}

	switch c.Broker.Mode {
	case ModeDirect, ModePublisher, ModeFanout:
	default:
		return fmt.Errorf("broker.mode must be one of %q, %q, %q, got %q",
			ModeDirect, ModePublisher, ModeFanout, c.Broker.Mode)
	}

	// Direct and publisher instances read the upstream feed themselves. A
	// fanout instance only needs it when fallback is enabled.
	needsFeed := c.Broker.Mode != ModeFanout || c.Broker.FallbackAfter > 0
	if needsFeed && c.Feed.URL == "" {
		return errors.New("feed.url is required")
	}

	if c.Broker.Mode != ModeDirect && c.Broker.Addr == "" {
		return errors.New("broker.addr is required for publisher and fanout modes")
	}
	if c.Broker.FallbackAfter < 0 {
		return errors.New("broker.fallback_after must be >= 0")
	}

	for _, b := range c.Aggregation.BucketSizes {
		if b < 1 {
			return fmt.Errorf("aggregation.bucket_sizes entries must be >= 1, got %d", b)
		}
	}
	if c.Aggregation.MaxAggregators < 1 {
		return errors.New("aggregation.max_aggregators must be >= 1")
	}
	if c.Aggregation.HistorySize < 1 {
		return errors.New("aggregation.history_size must be >= 1")
	}

	if c.Dedup.MaxEntries < 1 {
		return errors.New("dedup.max_entries must be >= 1")
	}
	if c.Dedup.TTL <= 0 {
		return errors.New("dedup.ttl must be positive")
	}

	if c.Store.Enabled {
		if err := validateDB(&c.Store.Database); err != nil {
			return err
		}
		if c.Store.BatchSize < 1 {
			return errors.New("store.batch_size must be >= 1")
		}
	}

	return nil
}

func validateDB(db *store.DBConfig) error {
	if db.Host == "" {
		return errors.New("store.database.host is required")
	}
	if db.Name == "" {
		return errors.New("store.database.name is required")
	}
	if db.User == "" {
		return errors.New("store.database.user is required")
	}
	if db.Password == "" {
		return errors.New("store.database.password is required")
	}
	if db.MaxConns < 1 {
		return errors.New("store.database.max_conns must be >= 1")
	}
	if db.MinConns < 0 {
		return errors.New("store.database.min_conns must be >= 0")
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("store.database.min_conns (%d) cannot exceed max_conns (%d)", db.MinConns, db.MaxConns)
	}
	return nil
}
