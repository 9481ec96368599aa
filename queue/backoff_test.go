package queue

import (
	"testing"
	"time"
)

func TestExponentialBackoff(t *testing.T) {
	b := DefaultBackoff()

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 30 * time.Second}, // clamped to first attempt
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{5, 8 * time.Minute},
		{6, 10 * time.Minute}, // cap
		{20, 10 * time.Minute},
	}
	for _, c := range cases {
		if got := b.Delay(c.attempt); got != c.want {
			t.Fatalf("Delay(%d) = %s, want %s", c.attempt, got, c.want)
		}
	}
}

func TestExponentialBackoff_Cap(t *testing.T) {
	b := ExponentialBackoff{Base: time.Second, Factor: 10, Cap: 5 * time.Second}
	if got := b.Delay(1); got != time.Second {
		t.Fatalf("Delay(1) = %s, want 1s", got)
	}
	if got := b.Delay(2); got != 5*time.Second {
		t.Fatalf("Delay(2) = %s, want cap", got)
	}
}
