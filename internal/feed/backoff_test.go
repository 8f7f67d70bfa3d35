package feed

import (
	"testing"
	"time"
)

func TestBackoff_NonDecreasingAndCapped(t *testing.T) {
	bo := NewBackoff(time.Second, 10*time.Second, 2.0)

	var prev time.Duration
	for i := 0; i < 6; i++ {
		d := bo.Next()
		if d < prev {
			t.Errorf("delay %d = %v, decreased from %v", i, d, prev)
		}
		if d > 10*time.Second {
			t.Errorf("delay %d = %v, exceeds max", i, d)
		}
		prev = d
	}
	if prev != 10*time.Second {
		t.Errorf("final delay = %v, want max 10s", prev)
	}
}

func TestBackoff_Sequence(t *testing.T) {
	bo := NewBackoff(time.Second, time.Minute, 2.0)

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i, w := range want {
		if d := bo.Next(); d != w {
			t.Errorf("delay %d = %v, want %v", i, d, w)
		}
	}
}

func TestBackoff_ResetAfterSuccess(t *testing.T) {
	bo := NewBackoff(time.Second, time.Minute, 2.0)

	bo.Next()
	bo.Next()
	bo.Next()
	bo.Reset()

	if d := bo.Next(); d != time.Second {
		t.Errorf("delay after reset = %v, want 1s", d)
	}
}

func TestNewBackoff_Sanitizes(t *testing.T) {
	bo := NewBackoff(0, 0, 0)
	if bo.base <= 0 || bo.max < bo.base || bo.mult < 1 {
		t.Errorf("unsanitized backoff: %+v", bo)
	}
}
