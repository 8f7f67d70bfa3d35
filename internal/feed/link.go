package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Link maintains the upstream connection: connect, subscribe, receive,
// reconnect with backoff. Parsed trades go to the sink; the link never blocks
// on anything but the transport and its own backoff sleeps.
type Link struct {
	cfg    LinkConfig
	sink   TradeSink
	logger *slog.Logger

	// newClient is swapped out in tests.
	newClient func(ClientConfig, *slog.Logger) Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	running    bool
	client     Client
	messages   int64
	trades     int64
	parseErrs  int64
	reconnects int64
}

// NewLink creates an ingestion link feeding sink.
func NewLink(cfg LinkConfig, sink TradeSink, logger *slog.Logger) *Link {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultLinkConfig()
	if cfg.SubscribeTimeout == 0 {
		cfg.SubscribeTimeout = def.SubscribeTimeout
	}
	if cfg.ReconnectBaseDelay == 0 {
		cfg.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if cfg.ReconnectMaxDelay == 0 {
		cfg.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if cfg.ReconnectMultiplier == 0 {
		cfg.ReconnectMultiplier = def.ReconnectMultiplier
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = def.PingTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = def.BufferSize
	}

	return &Link{
		cfg:       cfg,
		sink:      sink,
		logger:    logger,
		newClient: NewClient,
	}
}

// Start begins the connect-and-listen cycle.
func (l *Link) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = true
	l.mu.Unlock()

	l.ctx, l.cancel = context.WithCancel(ctx)

	l.wg.Add(1)
	go l.run()

	l.logger.Info("ingestion link started",
		"url", l.cfg.URL,
		"symbols", len(l.cfg.Symbols),
	)
	return nil
}

// Stop cancels the receive loop (including any pending backoff sleep) and
// closes the transport.
func (l *Link) Stop(ctx context.Context) error {
	if l.cancel != nil {
		l.cancel()
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.Info("ingestion link stopped")
	case <-ctx.Done():
		l.logger.Warn("ingestion link stop timed out")
	}

	l.mu.Lock()
	cli := l.client
	l.running = false
	l.mu.Unlock()
	if cli != nil {
		cli.Close()
	}
	return nil
}

// Stats returns a counter snapshot.
func (l *Link) Stats() LinkStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	connected := l.client != nil && l.client.IsConnected()
	return LinkStats{
		MessagesReceived: l.messages,
		TradesParsed:     l.trades,
		ParseErrors:      l.parseErrs,
		Reconnects:       l.reconnects,
		Connected:        connected,
	}
}

// ReconnectCount returns the number of reconnection attempts so far.
func (l *Link) ReconnectCount() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reconnects
}

// run is the connect/listen/backoff cycle. Only exits on context cancel.
func (l *Link) run() {
	defer l.wg.Done()

	bo := NewBackoff(l.cfg.ReconnectBaseDelay, l.cfg.ReconnectMaxDelay, l.cfg.ReconnectMultiplier)
	first := true

	for {
		if l.ctx.Err() != nil {
			return
		}

		if !first {
			l.mu.Lock()
			l.reconnects++
			l.mu.Unlock()
		}
		first = false

		err := l.connectAndListen(bo)
		if l.ctx.Err() != nil {
			return
		}

		delay := bo.Next()
		l.logger.Warn("connection lost, will retry",
			"error", err,
			"retry_in", delay,
		)

		select {
		case <-l.ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// connectAndListen runs one connection lifetime: dial, subscribe, receive
// until failure. A successful connect+subscribe resets the backoff.
func (l *Link) connectAndListen(bo *Backoff) error {
	cli := l.newClient(ClientConfig{
		URL:          l.cfg.URL,
		PingInterval: l.cfg.PingInterval,
		PingTimeout:  l.cfg.PingTimeout,
		WriteTimeout: l.cfg.WriteTimeout,
		BufferSize:   l.cfg.BufferSize,
	}, l.logger)

	l.mu.Lock()
	l.client = cli
	l.mu.Unlock()
	defer cli.Close()

	if err := cli.Connect(l.ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if err := l.subscribe(cli); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	bo.Reset()
	l.logger.Info("subscribed to trade stream", "symbols", len(l.cfg.Symbols))

	for {
		select {
		case <-l.ctx.Done():
			return l.ctx.Err()
		case err := <-cli.Errors():
			return err
		case msg, ok := <-cli.Messages():
			if !ok {
				return ErrNotConnected
			}
			l.handleMessage(msg)
		}
	}
}

// subscribe sends one subscribe request listing all desired topics and waits
// for the acknowledgement. Trade frames arriving before the ack are processed
// rather than dropped.
func (l *Link) subscribe(cli Client) error {
	topics := make([]string, len(l.cfg.Symbols))
	for i, s := range l.cfg.Symbols {
		topics[i] = TradeTopic(s)
	}

	req, err := json.Marshal(subscribeRequest{Op: "subscribe", Args: topics})
	if err != nil {
		return err
	}
	if err := cli.Send(req); err != nil {
		return err
	}

	deadline := time.NewTimer(l.cfg.SubscribeTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return l.ctx.Err()
		case <-deadline.C:
			return ErrTimeout
		case err := <-cli.Errors():
			return err
		case msg, ok := <-cli.Messages():
			if !ok {
				return ErrNotConnected
			}
			m, err := classify(msg.Data)
			if err != nil {
				l.countParseError(err)
				continue
			}
			if m.kind == kindAck {
				if !m.ack.Success {
					return fmt.Errorf("%w: %s", ErrSubscribeFailed, m.ack.RetMsg)
				}
				return nil
			}
			l.dispatch(m)
		}
	}
}

// handleMessage classifies one frame and forwards any trades to the sink.
func (l *Link) handleMessage(msg TimestampedMessage) {
	l.mu.Lock()
	l.messages++
	l.mu.Unlock()

	m, err := classify(msg.Data)
	if err != nil {
		l.countParseError(err)
		return
	}
	l.dispatch(m)
}

func (l *Link) dispatch(m inboundMessage) {
	switch m.kind {
	case kindTradeBatch:
		if len(m.trades) == 0 {
			return
		}
		l.mu.Lock()
		l.trades += int64(len(m.trades))
		l.mu.Unlock()
		if l.sink != nil {
			l.sink(m.trades)
		}
	case kindUnknown:
		l.logger.Debug("skipping message", "topic", m.topic)
	}
}

func (l *Link) countParseError(err error) {
	l.mu.Lock()
	l.parseErrs++
	l.mu.Unlock()
	l.logger.Warn("dropping undecodable message", "error", err)
}
