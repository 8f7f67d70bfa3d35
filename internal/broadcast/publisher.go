package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantfeed/tickflow/internal/feed"
	"github.com/quantfeed/tickflow/internal/model"
)

// PublisherStats is a snapshot of publisher counters.
type PublisherStats struct {
	Published     int64 // Trades published to the broker
	PublishErrors int64 // Failed pipeline executions or encodes
}

// Publisher forwards parsed trades to the broker. One logical instance runs
// per deployment; workers consume through Subscribers.
type Publisher struct {
	rdb     redis.UniversalClient
	logger  *slog.Logger
	timeout time.Duration

	mu        sync.Mutex
	published int64
	errors    int64
}

// NewPublisher creates a Publisher on an established Redis client.
func NewPublisher(rdb redis.UniversalClient, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		rdb:     rdb,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Sink returns the TradeSink to hang off an ingestion link. One inbound feed
// message becomes one broker pipeline call.
func (p *Publisher) Sink() feed.TradeSink {
	return p.publish
}

// Stats returns a counter snapshot.
func (p *Publisher) Stats() PublisherStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PublisherStats{Published: p.published, PublishErrors: p.errors}
}

// publish encodes a batch and executes one pipeline of PUBLISH commands.
// Errors are counted and logged; the ingestion loop never sees them.
func (p *Publisher) publish(trades []model.Trade) {
	if len(trades) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	pipe := p.rdb.Pipeline()
	queued := 0
	for _, t := range trades {
		data, err := model.EncodeTrade(t)
		if err != nil {
			p.mu.Lock()
			p.errors++
			p.mu.Unlock()
			p.logger.Warn("failed to encode trade for broadcast",
				"symbol", t.Symbol,
				"trade_id", t.ID,
				"error", err,
			)
			continue
		}
		pipe.Publish(ctx, model.TradeChannel(t.Symbol), data)
		queued++
	}
	if queued == 0 {
		return
	}

	if _, err := pipe.Exec(ctx); err != nil {
		p.mu.Lock()
		p.errors++
		p.mu.Unlock()
		p.logger.Warn("broker publish failed",
			"trades", queued,
			"error", err,
		)
		return
	}

	p.mu.Lock()
	p.published += int64(queued)
	p.mu.Unlock()
}
