package scraper

import (
	"testing"
	"time"
)

func TestDeadline(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	d := NewDeadline(4*time.Minute, clock)
	if d.Exceeded() {
		t.Fatalf("fresh deadline already exceeded")
	}
	if d.Remaining() != 4*time.Minute {
		t.Fatalf("expected 4m remaining, got %s", d.Remaining())
	}

	now = now.Add(3 * time.Minute)
	if d.Exceeded() {
		t.Fatalf("deadline exceeded with budget left")
	}
	if d.Elapsed() != 3*time.Minute {
		t.Fatalf("expected 3m elapsed, got %s", d.Elapsed())
	}

	now = now.Add(90 * time.Second)
	if !d.Exceeded() {
		t.Fatalf("deadline not exceeded past budget")
	}
	if d.Remaining() != 0 {
		t.Fatalf("expected 0 remaining, got %s", d.Remaining())
	}
}

func TestDeadline_BoundaryIsInclusive(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	d := NewDeadline(time.Minute, clock)
	now = now.Add(time.Minute)
	if d.Exceeded() {
		t.Fatalf("deadline exceeded exactly at budget")
	}
	now = now.Add(time.Nanosecond)
	if !d.Exceeded() {
		t.Fatalf("deadline not exceeded past budget")
	}
}
