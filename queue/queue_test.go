package queue

import (
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	q := New(nil, Options{})

	if q.opts.MaxRetries != 3 {
		t.Fatalf("expected default max retries 3, got %d", q.opts.MaxRetries)
	}
	if q.opts.TTL != 12*time.Hour {
		t.Fatalf("expected default TTL 12h, got %s", q.opts.TTL)
	}
	if q.opts.ClaimTimeout != 10*time.Minute {
		t.Fatalf("expected default claim timeout 10m, got %s", q.opts.ClaimTimeout)
	}
	if q.opts.Backoff == nil || q.opts.Now == nil {
		t.Fatalf("backoff and clock must be populated")
	}
}

func TestNackDisposition(t *testing.T) {
	q := New(nil, Options{MaxRetries: 3})

	cases := []struct {
		attempts  int
		exhausted bool
		delay     time.Duration
	}{
		{1, false, 30 * time.Second},
		{2, false, 60 * time.Second},
		{3, true, 0},
		{7, true, 0},
	}
	for _, c := range cases {
		exhausted, delay := q.nackDisposition(c.attempts)
		if exhausted != c.exhausted {
			t.Fatalf("attempt %d: exhausted = %v, want %v", c.attempts, exhausted, c.exhausted)
		}
		if delay != c.delay {
			t.Fatalf("attempt %d: delay = %s, want %s", c.attempts, delay, c.delay)
		}
	}
}

func TestExpired_Boundary(t *testing.T) {
	q := New(nil, Options{TTL: 12 * time.Hour})
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	if q.expired(now.Add(-12*time.Hour), now) {
		t.Fatalf("a message exactly TTL old must still be live")
	}
	if !q.expired(now.Add(-12*time.Hour-time.Second), now) {
		t.Fatalf("a message past the TTL must be expired")
	}
}

func TestStaleClaimCutoff(t *testing.T) {
	q := New(nil, Options{ClaimTimeout: 10 * time.Minute})
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	cutoff := q.staleClaimCutoff(now)

	if !now.Add(-9 * time.Minute).After(cutoff) {
		t.Fatalf("a claim held for 9m must still be held")
	}
	if !now.Add(-11 * time.Minute).Before(cutoff) {
		t.Fatalf("a claim held for 11m must be redeliverable")
	}
}
