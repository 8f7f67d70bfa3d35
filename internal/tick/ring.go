package tick

import "github.com/quantfeed/tickflow/internal/model"

// tradeRing is a fixed-capacity ring of recent trades, oldest overwritten
// first. Not self-synchronized; the Service's mutex guards it.
type tradeRing struct {
	buf    []model.Trade
	head   int // Next write position
	filled bool
}

func newTradeRing(capacity int) *tradeRing {
	if capacity < 1 {
		capacity = 1
	}
	return &tradeRing{buf: make([]model.Trade, capacity)}
}

func (r *tradeRing) pushLocked(t model.Trade) {
	r.buf[r.head] = t
	r.head++
	if r.head == len(r.buf) {
		r.head = 0
		r.filled = true
	}
}

func (r *tradeRing) lenLocked() int {
	if r.filled {
		return len(r.buf)
	}
	return r.head
}

// recentLocked returns up to limit trades, most recent last. limit <= 0 means
// all available.
func (r *tradeRing) recentLocked(limit int) []model.Trade {
	n := r.lenLocked()
	if n == 0 {
		return nil
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]model.Trade, 0, limit)
	start := r.head - limit
	if !r.filled {
		// Buffer is linear: entries live in buf[0:head].
		return append(out, r.buf[start:r.head]...)
	}
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < limit; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
