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

// FallbackFunc starts direct upstream ingestion when the broker is judged
// unreachable. Optional; a nil fallback means keep retrying forever.
type FallbackFunc func(ctx context.Context) error

// SubscriberConfig configures a fan-out subscriber.
type SubscriberConfig struct {
	Symbols             []string
	ReconnectBaseDelay  time.Duration
	ReconnectMaxDelay   time.Duration
	ReconnectMultiplier float64

	// FallbackAfter is the number of consecutive broker failures before the
	// fallback is invoked. Zero disables fallback.
	FallbackAfter int
}

// SubscriberStats is a snapshot of subscriber counters.
type SubscriberStats struct {
	Received     int64 // Trades decoded and forwarded
	DecodeErrors int64 // Broker messages dropped as undecodable
	Reconnects   int64 // Broker reconnection attempts
	FellBack     bool  // True once direct fallback has been triggered
}

// Subscriber consumes the broker channels for its symbol set and feeds the
// local aggregation sink, making a fan-out worker behaviorally identical to
// a direct-ingestion worker.
type Subscriber struct {
	cfg      SubscriberConfig
	rdb      redis.UniversalClient
	sink     feed.TradeSink
	fallback FallbackFunc
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	running    bool
	received   int64
	decodeErrs int64
	reconnects int64
	fellBack   bool
}

// NewSubscriber creates a fan-out subscriber feeding sink.
func NewSubscriber(cfg SubscriberConfig, rdb redis.UniversalClient, sink feed.TradeSink, fallback FallbackFunc, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectBaseDelay == 0 {
		cfg.ReconnectBaseDelay = time.Second
	}
	if cfg.ReconnectMaxDelay == 0 {
		cfg.ReconnectMaxDelay = 60 * time.Second
	}
	if cfg.ReconnectMultiplier == 0 {
		cfg.ReconnectMultiplier = 2.0
	}
	return &Subscriber{
		cfg:      cfg,
		rdb:      rdb,
		sink:     sink,
		fallback: fallback,
		logger:   logger,
	}
}

// Start begins consuming broker channels.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("fan-out subscriber started", "symbols", len(s.cfg.Symbols))
	return nil
}

// Stop cancels the consume loop, interrupting any pending backoff sleep.
func (s *Subscriber) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("fan-out subscriber stopped")
	case <-ctx.Done():
		s.logger.Warn("fan-out subscriber stop timed out")
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

// Stats returns a counter snapshot.
func (s *Subscriber) Stats() SubscriberStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SubscriberStats{
		Received:     s.received,
		DecodeErrors: s.decodeErrs,
		Reconnects:   s.reconnects,
		FellBack:     s.fellBack,
	}
}

// ReconnectCount returns the number of broker reconnection attempts so far.
func (s *Subscriber) ReconnectCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

// run is the subscribe/consume/backoff cycle.
func (s *Subscriber) run() {
	defer s.wg.Done()

	channels := make([]string, len(s.cfg.Symbols))
	for i, sym := range s.cfg.Symbols {
		channels[i] = model.TradeChannel(sym)
	}

	bo := feed.NewBackoff(s.cfg.ReconnectBaseDelay, s.cfg.ReconnectMaxDelay, s.cfg.ReconnectMultiplier)
	failures := 0
	first := true

	for {
		if s.ctx.Err() != nil {
			return
		}

		if !first {
			s.mu.Lock()
			s.reconnects++
			s.mu.Unlock()
		}
		first = false

		err := s.consume(channels, bo, &failures)
		if s.ctx.Err() != nil {
			return
		}

		failures++
		if s.cfg.FallbackAfter > 0 && failures >= s.cfg.FallbackAfter && s.fallback != nil {
			s.logger.Warn("broker unreachable, falling back to direct ingestion",
				"failures", failures,
				"error", err,
			)
			s.mu.Lock()
			s.fellBack = true
			s.mu.Unlock()
			if err := s.fallback(s.ctx); err != nil {
				s.logger.Error("direct fallback failed", "error", err)
			}
			return
		}

		delay := bo.Next()
		s.logger.Warn("broker connection lost, will retry",
			"error", err,
			"retry_in", delay,
		)

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// consume runs one subscription lifetime. A confirmed subscribe resets the
// backoff and the fallback failure count.
func (s *Subscriber) consume(channels []string, bo *feed.Backoff, failures *int) error {
	pubsub := s.rdb.Subscribe(s.ctx, channels...)
	defer pubsub.Close()

	// Confirm the subscription before declaring success.
	if _, err := pubsub.Receive(s.ctx); err != nil {
		return err
	}

	bo.Reset()
	*failures = 0
	s.logger.Info("subscribed to broker channels", "channels", len(channels))

	for {
		msg, err := pubsub.ReceiveMessage(s.ctx)
		if err != nil {
			return err
		}
		s.handlePayload(msg.Channel, []byte(msg.Payload))
	}
}

// handlePayload decodes one broker message and forwards the trade.
func (s *Subscriber) handlePayload(channel string, payload []byte) {
	t, err := model.DecodeTrade(payload)
	if err != nil {
		s.mu.Lock()
		s.decodeErrs++
		s.mu.Unlock()
		s.logger.Warn("dropping undecodable broker message",
			"channel", channel,
			"error", err,
		)
		return
	}

	s.mu.Lock()
	s.received++
	s.mu.Unlock()

	if s.sink != nil {
		s.sink([]model.Trade{t})
	}
}
