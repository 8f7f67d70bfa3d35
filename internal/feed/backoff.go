package feed

import "time"

// Backoff produces reconnect delays: starts at base, multiplies after each
// consecutive failure, caps at max, and resets to base after a success. The
// broadcast subscriber shares this policy, so it lives on the exported
// surface.
type Backoff struct {
	base time.Duration
	max  time.Duration
	mult float64
	cur  time.Duration
}

// NewBackoff creates a Backoff, sanitizing nonsensical parameters.
func NewBackoff(base, max time.Duration, mult float64) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	if mult < 1 {
		mult = 2
	}
	return &Backoff{base: base, max: max, mult: mult, cur: base}
}

// Next returns the delay to wait before the upcoming attempt and advances
// the sequence.
func (b *Backoff) Next() time.Duration {
	d := b.cur
	b.cur = time.Duration(float64(b.cur) * b.mult)
	if b.cur > b.max {
		b.cur = b.max
	}
	return d
}

// Reset returns the sequence to the initial delay.
func (b *Backoff) Reset() {
	b.cur = b.base
}
