package tick

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/quantfeed/tickflow/internal/model"
)

func testService(t *testing.T, cfg Config) *Service {
	t.Helper()
	s := New(cfg, nil, slog.Default())
	if err := s.Start(context.Background(), cfg.Symbols); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { s.Stop(context.Background()) })
	return s
}

func makeTrades(symbol string, n int, base float64) []model.Trade {
	out := make([]model.Trade, n)
	for i := range out {
		side := model.Buy
		if i%2 == 1 {
			side = model.Sell
		}
		out[i] = model.Trade{
			Symbol:    symbol,
			ID:        fmt.Sprintf("t-%d", i),
			Timestamp: 1700000000000 + int64(i),
			Price:     base + float64(i),
			Qty:       1,
			Side:      side,
		}
	}
	return out
}

func TestService_TenTradesOneCandle(t *testing.T) {
	s := testService(t, Config{
		Symbols:     []string{"BTCUSD"},
		BucketSizes: []int{10},
	})

	var mu sync.Mutex
	var emitted []model.Candle
	s.AddCandleCallback(func(symbol string, bucketSize int, c model.Candle) {
		mu.Lock()
		emitted = append(emitted, c)
		mu.Unlock()
	})

	s.TradeSink()(makeTrades("BTCUSD", 10, 100))

	mu.Lock()
	defer mu.Unlock()
	if len(emitted) != 1 {
		t.Fatalf("got %d candles, want exactly 1", len(emitted))
	}
	c := emitted[0]
	if c.Open != 100 {
		t.Errorf("Open = %v, want 100", c.Open)
	}
	if c.Close != 109 {
		t.Errorf("Close = %v, want 109", c.Close)
	}
	if c.TradeCount != 10 {
		t.Errorf("TradeCount = %d, want 10", c.TradeCount)
	}
	if c.Volume != 10 {
		t.Errorf("Volume = %v, want 10", c.Volume)
	}

	hist := s.GetTickCandles("BTCUSD", 10, 0)
	if len(hist) != 1 || hist[0] != c {
		t.Errorf("GetTickCandles = %v, want [%+v]", hist, c)
	}
}

func TestService_StartIsIdempotent(t *testing.T) {
	s := testService(t, Config{Symbols: []string{"BTCUSD"}, BucketSizes: []int{10}})

	if err := s.Start(context.Background(), nil); err != nil {
		t.Errorf("second Start returned %v, want nil", err)
	}
	if !s.Stats().Running {
		t.Error("service not running after double Start")
	}
}

func TestService_DuplicatesDropped(t *testing.T) {
	s := testService(t, Config{Symbols: []string{"BTCUSD"}, BucketSizes: []int{10}})

	trades := makeTrades("BTCUSD", 5, 100)
	sink := s.TradeSink()
	sink(trades)
	sink(trades) // Redelivery of the same batch.

	stats := s.Stats()
	if stats.TradesProcessed != 5 {
		t.Errorf("TradesProcessed = %d, want 5", stats.TradesProcessed)
	}
	if stats.DuplicatesDropped != 5 {
		t.Errorf("DuplicatesDropped = %d, want 5", stats.DuplicatesDropped)
	}

	snap, ok := s.GetCurrentCandle("BTCUSD", 10)
	if !ok {
		t.Fatal("no partial candle for BTCUSD/10")
	}
	if snap.Ticks != 5 {
		t.Errorf("partial Ticks = %d, want 5", snap.Ticks)
	}
}

func TestService_RecentTrades(t *testing.T) {
	s := testService(t, Config{
		Symbols:      []string{"BTCUSD"},
		BucketSizes:  []int{10},
		RecentTrades: 8,
	})

	trades := makeTrades("BTCUSD", 12, 100)
	s.TradeSink()(trades)

	got := s.GetRecentTrades("BTCUSD", 0)
	if len(got) != 8 {
		t.Fatalf("got %d recent trades, want 8 (ring capacity)", len(got))
	}
	if got[len(got)-1] != trades[11] {
		t.Errorf("most recent trade = %+v, want %+v", got[len(got)-1], trades[11])
	}
	if got[0] != trades[4] {
		t.Errorf("oldest retained trade = %+v, want %+v", got[0], trades[4])
	}

	limited := s.GetRecentTrades("BTCUSD", 3)
	if len(limited) != 3 || limited[2] != trades[11] {
		t.Errorf("limited query = %v", limited)
	}

	if s.GetRecentTrades("NOSUCH", 5) != nil {
		t.Error("unknown symbol should yield nil")
	}
}

func TestService_CallbackRemoval(t *testing.T) {
	s := testService(t, Config{Symbols: []string{"BTCUSD"}, BucketSizes: []int{10}})

	var calls int64
	var mu sync.Mutex
	token := s.AddTradeCallback(func(symbol string, tr model.Trade) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	sink := s.TradeSink()
	sink(makeTrades("BTCUSD", 3, 100))

	if !s.RemoveTradeCallback(token) {
		t.Error("RemoveTradeCallback returned false for live token")
	}
	if s.RemoveTradeCallback(token) {
		t.Error("RemoveTradeCallback returned true for already-removed token")
	}
	if s.RemoveTradeCallback("no-such-token") {
		t.Error("RemoveTradeCallback returned true for unknown token")
	}

	sink([]model.Trade{{Symbol: "BTCUSD", ID: "after-removal", Price: 100, Qty: 1}})

	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Errorf("callback invoked %d times, want 3", calls)
	}
}

func TestService_CallbackPanicIsContained(t *testing.T) {
	s := testService(t, Config{Symbols: []string{"BTCUSD"}, BucketSizes: []int{10}})

	s.AddTradeCallback(func(symbol string, tr model.Trade) {
		panic("subscriber bug")
	})
	var mu sync.Mutex
	var survived int
	s.AddTradeCallback(func(symbol string, tr model.Trade) {
		mu.Lock()
		survived++
		mu.Unlock()
	})

	s.TradeSink()(makeTrades("BTCUSD", 2, 100))

	mu.Lock()
	defer mu.Unlock()
	if survived != 2 {
		t.Errorf("healthy callback invoked %d times, want 2", survived)
	}
	if got := s.Stats().TradesProcessed; got != 2 {
		t.Errorf("TradesProcessed = %d, want 2", got)
	}
}

func TestService_GracefulShutdownStopsAccepting(t *testing.T) {
	s := New(Config{Symbols: []string{"BTCUSD"}, BucketSizes: []int{10}}, nil, slog.Default())
	ctx := context.Background()
	if err := s.Start(ctx, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	token := s.AddTradeCallback(func(symbol string, tr model.Trade) {})
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.RemoveTradeCallback(token)
	}()

	start := time.Now()
	if err := s.GracefulShutdown(ctx, 2*time.Second); err != nil {
		t.Fatalf("GracefulShutdown failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= 2*time.Second {
		t.Errorf("shutdown took %v, expected to finish once callbacks drained", elapsed)
	}

	stats := s.Stats()
	if stats.Running {
		t.Error("service still running after GracefulShutdown")
	}

	s.TradeSink()(makeTrades("BTCUSD", 1, 100))
	if got := s.Stats().TradesProcessed; got != 0 {
		t.Errorf("TradesProcessed = %d after shutdown, want 0", got)
	}
}

func TestService_GracefulShutdownTimesOut(t *testing.T) {
	s := New(Config{Symbols: []string{"BTCUSD"}, BucketSizes: []int{10}}, nil, slog.Default())
	ctx := context.Background()
	if err := s.Start(ctx, nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Never removed: the drain window must expire, not hang.
	s.AddCandleCallback(func(symbol string, bucketSize int, c model.Candle) {})

	if err := s.GracefulShutdown(ctx, 150*time.Millisecond); err != nil {
		t.Fatalf("GracefulShutdown failed: %v", err)
	}
	if s.Stats().Running {
		t.Error("service still running after forced shutdown")
	}
}

// TestService_BrokerDeliveryMatchesDirect feeds the same trades once directly
// and once through the broker wire encoding with redelivery, and expects
// identical candles out of both services.
func TestService_BrokerDeliveryMatchesDirect(t *testing.T) {
	trades := makeTrades("BTCUSD", 20, 250)

	direct := testService(t, Config{Symbols: []string{"BTCUSD"}, BucketSizes: []int{10}})
	direct.TradeSink()(trades)

	fanout := testService(t, Config{Symbols: []string{"BTCUSD"}, BucketSizes: []int{10}})
	sink := fanout.TradeSink()
	for _, tr := range trades {
		data, err := model.EncodeTrade(tr)
		if err != nil {
			t.Fatalf("EncodeTrade failed: %v", err)
		}
		decoded, err := model.DecodeTrade(data)
		if err != nil {
			t.Fatalf("DecodeTrade failed: %v", err)
		}
		// At-least-once broker delivery: every trade arrives twice.
		sink([]model.Trade{decoded})
		sink([]model.Trade{decoded})
	}

	want := direct.GetTickCandles("BTCUSD", 10, 0)
	got := fanout.GetTickCandles("BTCUSD", 10, 0)
	if len(want) != 2 || len(got) != len(want) {
		t.Fatalf("candle counts: direct=%d fanout=%d, want 2 each", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candle %d mismatch: direct=%+v fanout=%+v", i, want[i], got[i])
		}
	}

	if dups := fanout.Stats().DuplicatesDropped; dups != 20 {
		t.Errorf("DuplicatesDropped = %d, want 20", dups)
	}
}

func TestService_StatsSnapshot(t *testing.T) {
	s := testService(t, Config{Symbols: []string{"BTCUSD"}, BucketSizes: []int{10, 100}})

	s.AddTradeCallback(func(string, model.Trade) {})
	s.AddCandleCallback(func(string, int, model.Candle) {})
	s.TradeSink()(makeTrades("BTCUSD", 10, 100))

	stats := s.Stats()
	if !stats.Running {
		t.Error("Running = false")
	}
	if stats.TradesProcessed != 10 {
		t.Errorf("TradesProcessed = %d, want 10", stats.TradesProcessed)
	}
	if stats.CandlesEmitted != 1 {
		t.Errorf("CandlesEmitted = %d, want 1 (only the 10-bucket completed)", stats.CandlesEmitted)
	}
	if stats.Aggregators != 2 {
		t.Errorf("Aggregators = %d, want 2", stats.Aggregators)
	}
	if stats.TradeCallbacks != 1 || stats.CandleCallbacks != 1 {
		t.Errorf("callback counts = %d/%d, want 1/1", stats.TradeCallbacks, stats.CandleCallbacks)
	}
	if stats.Dedup.FirstSeen != 10 {
		t.Errorf("Dedup.FirstSeen = %d, want 10", stats.Dedup.FirstSeen)
	}
}
