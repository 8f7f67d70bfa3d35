package tick

import (
	"github.com/google/uuid"

	"github.com/quantfeed/tickflow/internal/model"
)

// CallbackToken identifies one callback registration for later removal.
type CallbackToken string

// TradeCallback receives every accepted (non-duplicate) trade.
type TradeCallback func(symbol string, t model.Trade)

// CandleCallback receives every completed candle.
type CandleCallback func(symbol string, bucketSize int, c model.Candle)

// AddTradeCallback registers cb and returns its removal token.
func (s *Service) AddTradeCallback(cb TradeCallback) CallbackToken {
	token := CallbackToken(uuid.NewString())
	s.mu.Lock()
	s.trCbs[token] = cb
	s.mu.Unlock()
	return token
}

// RemoveTradeCallback deregisters a trade callback. Returns false for an
// unknown token.
func (s *Service) RemoveTradeCallback(token CallbackToken) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trCbs[token]; !ok {
		return false
	}
	delete(s.trCbs, token)
	return true
}

// AddCandleCallback registers cb and returns its removal token.
func (s *Service) AddCandleCallback(cb CandleCallback) CallbackToken {
	token := CallbackToken(uuid.NewString())
	s.mu.Lock()
	s.cdCbs[token] = cb
	s.mu.Unlock()
	return token
}

// RemoveCandleCallback deregisters a candle callback. Returns false for an
// unknown token.
func (s *Service) RemoveCandleCallback(token CallbackToken) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cdCbs[token]; !ok {
		return false
	}
	delete(s.cdCbs, token)
	return true
}

// tradeCallbacks returns a snapshot of the registered trade callbacks so the
// hot path never invokes user code under the service lock.
func (s *Service) tradeCallbacks() []TradeCallback {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.trCbs) == 0 {
		return nil
	}
	out := make([]TradeCallback, 0, len(s.trCbs))
	for _, cb := range s.trCbs {
		out = append(out, cb)
	}
	return out
}

// candleCallbacks returns a snapshot of the registered candle callbacks.
func (s *Service) candleCallbacks() []CandleCallback {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cdCbs) == 0 {
		return nil
	}
	out := make([]CandleCallback, 0, len(s.cdCbs))
	for _, cb := range s.cdCbs {
		out = append(out, cb)
	}
	return out
}

// callbackCount returns the total number of live registrations.
func (s *Service) callbackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trCbs) + len(s.cdCbs)
}
