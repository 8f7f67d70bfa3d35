package feed

import (
	"errors"
	"time"

	"github.com/quantfeed/tickflow/internal/model"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrSubscribeFailed = errors.New("subscribe rejected")
	ErrTimeout         = errors.New("operation timeout")
)

// TradeSink receives every parsed trade batch from the receive loop. One
// inbound frame yields one call.
type TradeSink func(trades []model.Trade)

// TimestampedMessage wraps raw frame data with its receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw frame bytes from the websocket
	ReceivedAt time.Time // Local timestamp when ReadMessage returned
}

// ClientConfig configures a websocket client.
type ClientConfig struct {
	URL          string        // Websocket URL (e.g., wss://stream.bybit.com/v5/public/spot)
	PingInterval time.Duration // Keepalive ping cadence
	PingTimeout  time.Duration // Max silence before the connection is declared stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 30 * time.Second,
		PingTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   10000,
	}
}

// LinkConfig configures an ingestion link.
type LinkConfig struct {
	URL                 string
	Symbols             []string
	SubscribeTimeout    time.Duration
	ReconnectBaseDelay  time.Duration
	ReconnectMaxDelay   time.Duration
	ReconnectMultiplier float64
	PingInterval        time.Duration
	PingTimeout         time.Duration
	WriteTimeout        time.Duration
	BufferSize          int
}

// DefaultLinkConfig returns sensible defaults.
func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		SubscribeTimeout:    10 * time.Second,
		ReconnectBaseDelay:  time.Second,
		ReconnectMaxDelay:   60 * time.Second,
		ReconnectMultiplier: 2.0,
		PingInterval:        30 * time.Second,
		PingTimeout:         30 * time.Second,
		WriteTimeout:        5 * time.Second,
		BufferSize:          10000,
	}
}

// LinkStats is a snapshot of link counters.
type LinkStats struct {
	MessagesReceived int64 // Raw frames received
	TradesParsed     int64 // Trades forwarded to the sink
	ParseErrors      int64 // Frames dropped as undecodable
	Reconnects       int64 // Reconnection attempts
	Connected        bool  // Current transport state
}

// subscribeRequest is the upstream subscribe command. Topics look like
// "publicTrade.BTCUSDT".
type subscribeRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// TradeTopic returns the subscribe topic for a symbol.
func TradeTopic(symbol string) string {
	return "publicTrade." + symbol
}
