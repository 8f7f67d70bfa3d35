package feed

import (
	"testing"

	"github.com/quantfeed/tickflow/internal/model"
)

func TestClassify_TradeBatch(t *testing.T) {
	data := []byte(`{
		"topic": "publicTrade.BTCUSDT",
		"type": "snapshot",
		"ts": 1700000000500,
		"data": [
			{"T": 1700000000123, "s": "BTCUSDT", "S": "Buy", "v": "0.005", "p": "43210.50", "i": "trade-1"},
			{"T": 1700000000456, "s": "BTCUSDT", "S": "Sell", "v": "0.010", "p": "43209.00", "i": "trade-2"}
		]
	}`)

	m, err := classify(data)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if m.kind != kindTradeBatch {
		t.Fatalf("kind = %v, want trade batch", m.kind)
	}
	if len(m.trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(m.trades))
	}

	first := m.trades[0]
	if first.Symbol != "BTCUSDT" || first.ID != "trade-1" {
		t.Errorf("first trade = %+v", first)
	}
	if first.Price != 43210.50 || first.Qty != 0.005 {
		t.Errorf("first trade price/qty = %v/%v", first.Price, first.Qty)
	}
	if first.Side != model.Buy {
		t.Errorf("first trade side = %v, want Buy", first.Side)
	}
	if m.trades[1].Side != model.Sell {
		t.Errorf("second trade side = %v, want Sell", m.trades[1].Side)
	}
}

func TestClassify_SubscribeAck(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		success bool
	}{
		{"success", `{"op":"subscribe","success":true,"ret_msg":""}`, true},
		{"failure", `{"op":"subscribe","success":false,"ret_msg":"bad topic"}`, false},
	}

	for _, tt := range tests {
		m, err := classify([]byte(tt.data))
		if err != nil {
			t.Fatalf("%s: classify failed: %v", tt.name, err)
		}
		if m.kind != kindAck {
			t.Errorf("%s: kind = %v, want ack", tt.name, m.kind)
		}
		if m.ack.Success != tt.success {
			t.Errorf("%s: Success = %v, want %v", tt.name, m.ack.Success, tt.success)
		}
	}
}

func TestClassify_ControlAndUnknown(t *testing.T) {
	m, err := classify([]byte(`{"op":"pong"}`))
	if err != nil || m.kind != kindControl {
		t.Errorf("pong: kind = %v err = %v, want control/nil", m.kind, err)
	}

	m, err = classify([]byte(`{"topic":"tickers.BTCUSDT","data":{}}`))
	if err != nil || m.kind != kindUnknown {
		t.Errorf("ticker: kind = %v err = %v, want unknown/nil", m.kind, err)
	}
}

func TestClassify_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad json", `{"topic":`},
		{"bad price", `{"topic":"publicTrade.X","data":[{"T":1,"s":"X","S":"Buy","v":"1","p":"abc","i":"a"}]}`},
		{"bad qty", `{"topic":"publicTrade.X","data":[{"T":1,"s":"X","S":"Buy","v":"","p":"1","i":"a"}]}`},
		{"missing id", `{"topic":"publicTrade.X","data":[{"T":1,"s":"X","S":"Buy","v":"1","p":"1"}]}`},
	}

	for _, tt := range tests {
		if _, err := classify([]byte(tt.data)); err == nil {
			t.Errorf("%s: expected error, got nil", tt.name)
		}
	}
}

func TestTradeTopic(t *testing.T) {
	if got := TradeTopic("ETHUSDT"); got != "publicTrade.ETHUSDT" {
		t.Errorf("TradeTopic = %q", got)
	}
}
