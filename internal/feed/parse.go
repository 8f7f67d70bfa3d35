package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/quantfeed/tickflow/internal/model"
)

// messageKind tags a classified inbound frame.
type messageKind int

const (
	kindUnknown messageKind = iota
	kindTradeBatch
	kindAck
	kindControl // pong and other keepalive chatter
)

// inboundMessage is a frame after boundary classification. Exactly one of
// the payload fields is meaningful for its kind.
type inboundMessage struct {
	kind   messageKind
	topic  string
	trades []model.Trade
	ack    ackMessage
}

// ackMessage is the response to a subscribe request.
type ackMessage struct {
	Op      string `json:"op"`
	Success bool   `json:"success"`
	RetMsg  string `json:"ret_msg"`
}

// envelope is the common frame shape: stream messages carry a topic and a
// payload array, command responses carry an op.
type envelope struct {
	Topic string          `json:"topic"`
	Op    string          `json:"op"`
	Data  json.RawMessage `json:"data"`
}

// tradeEntry is one element of a publicTrade payload array. Prices and
// quantities arrive as strings.
type tradeEntry struct {
	Timestamp int64  `json:"T"`
	Symbol    string `json:"s"`
	Side      string `json:"S"`
	Qty       string `json:"v"`
	Price     string `json:"p"`
	ID        string `json:"i"`
}

// classify decodes a raw frame into a typed message. Trade parsing happens
// here, once, so nothing downstream ever re-inspects raw bytes.
func classify(data []byte) (inboundMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return inboundMessage{}, fmt.Errorf("decode envelope: %w", err)
	}

	switch {
	case strings.HasPrefix(env.Topic, "publicTrade."):
		trades, err := parseTrades(env.Data)
		if err != nil {
			return inboundMessage{}, err
		}
		return inboundMessage{kind: kindTradeBatch, topic: env.Topic, trades: trades}, nil

	case env.Op == "subscribe", env.Op == "unsubscribe":
		var ack ackMessage
		if err := json.Unmarshal(data, &ack); err != nil {
			return inboundMessage{}, fmt.Errorf("decode ack: %w", err)
		}
		return inboundMessage{kind: kindAck, ack: ack}, nil

	case env.Op == "ping", env.Op == "pong":
		return inboundMessage{kind: kindControl}, nil
	}

	return inboundMessage{kind: kindUnknown, topic: env.Topic}, nil
}

// parseTrades converts a publicTrade payload array into Trade records.
func parseTrades(data json.RawMessage) ([]model.Trade, error) {
	var entries []tradeEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode trade payload: %w", err)
	}

	trades := make([]model.Trade, 0, len(entries))
	for _, e := range entries {
		price, err := strconv.ParseFloat(e.Price, 64)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", e.Price, err)
		}
		qty, err := strconv.ParseFloat(e.Qty, 64)
		if err != nil {
			return nil, fmt.Errorf("parse qty %q: %w", e.Qty, err)
		}
		if e.Symbol == "" || e.ID == "" {
			return nil, fmt.Errorf("trade entry missing symbol or id")
		}

		trades = append(trades, model.Trade{
			Symbol:    e.Symbol,
			ID:        e.ID,
			Timestamp: e.Timestamp,
			Price:     price,
			Qty:       qty,
			Side:      model.ParseSide(e.Side),
		})
	}
	return trades, nil
}
