package model

import (
	"encoding/json"
	"fmt"
)

// tradeWire is the broker message payload. Field names are part of the wire
// contract; decoders must tolerate unknown extra fields.
type tradeWire struct {
	Symbol    string  `json:"symbol"`
	TradeID   string  `json:"trade_id"`
	Timestamp int64   `json:"ts"`
	Price     float64 `json:"price"`
	Qty       float64 `json:"qty"`
	Side      string  `json:"side"`
}

// TradeChannel returns the broker channel name for a symbol.
func TradeChannel(symbol string) string {
	return "trades:" + symbol
}

// EncodeTrade serializes a trade for broker publication.
func EncodeTrade(t Trade) ([]byte, error) {
	return json.Marshal(tradeWire{
		Symbol:    t.Symbol,
		TradeID:   t.ID,
		Timestamp: t.Timestamp,
		Price:     t.Price,
		Qty:       t.Qty,
		Side:      t.Side.String(),
	})
}

// DecodeTrade parses a broker message back into a Trade.
func DecodeTrade(data []byte) (Trade, error) {
	var w tradeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Trade{}, fmt.Errorf("decode trade: %w", err)
	}
	if w.Symbol == "" || w.TradeID == "" {
		return Trade{}, fmt.Errorf("decode trade: missing symbol or trade id")
	}
	return Trade{
		Symbol:    w.Symbol,
		ID:        w.TradeID,
		Timestamp: w.Timestamp,
		Price:     w.Price,
		Qty:       w.Qty,
		Side:      ParseSide(w.Side),
	}, nil
}
