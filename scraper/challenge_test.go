package scraper

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"price_tracker/config"
)

// fakePage serves a scripted sequence of HTML snapshots; Reload advances it.
type fakePage struct {
	pages   []string
	pos     int
	reloads int
}

func (p *fakePage) HTML() (string, error) {
	if p.pos >= len(p.pages) {
		return p.pages[len(p.pages)-1], nil
	}
	return p.pages[p.pos], nil
}

func (p *fakePage) Reload() error {
	p.reloads++
	if p.pos < len(p.pages)-1 {
		p.pos++
	}
	return nil
}

func guardForTest(cfg config.BlockConfig, sleeps *[]time.Duration) *ChallengeGuard {
	sleep := func(d time.Duration) {
		if sleeps != nil {
			*sleeps = append(*sleeps, d)
		}
	}
	return NewChallengeGuard(cfg, sleep, rand.New(rand.NewSource(1)))
}

func TestIsBlockedHTML(t *testing.T) {
	if !IsBlockedHTML(loadFixture(t, "blocked_challenge.html")) {
		t.Fatalf("expected challenge page to be detected")
	}
	if !IsBlockedHTML(`<html><body><form id="destForm" action="/distil"></form></body></html>`) {
		t.Fatalf("expected destForm page to be detected")
	}
	if IsBlockedHTML(loadFixture(t, "detail_basic.html")) {
		t.Fatalf("listing page flagged as blocked")
	}
	if IsBlockedHTML(loadFixture(t, "results_scard.html")) {
		t.Fatalf("results page flagged as blocked")
	}
}

func TestResolve_ClearsAfterReload(t *testing.T) {
	blocked := loadFixture(t, "blocked_challenge.html")
	clear := loadFixture(t, "detail_basic.html")
	page := &fakePage{pages: []string{blocked, blocked, clear}}

	var sleeps []time.Duration
	guard := guardForTest(config.BlockConfig{
		MaxRetries: 3,
		WaitMin:    20 * time.Second,
		WaitMax:    45 * time.Second,
	}, &sleeps)

	if err := guard.Resolve(page, nil); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if page.reloads != 2 {
		t.Fatalf("expected 2 reloads, got %d", page.reloads)
	}
	for _, d := range sleeps {
		if d < 20*time.Second || d >= 45*time.Second {
			t.Fatalf("wait %s outside configured interval", d)
		}
	}
}

func TestResolve_Exhausted(t *testing.T) {
	blocked := loadFixture(t, "blocked_challenge.html")
	page := &fakePage{pages: []string{blocked}}

	guard := guardForTest(config.BlockConfig{
		MaxRetries: 3,
		WaitMin:    time.Second,
		WaitMax:    2 * time.Second,
	}, nil)

	err := guard.Resolve(page, nil)
	if !errors.Is(err, ErrChallengeExhausted) {
		t.Fatalf("expected ErrChallengeExhausted, got %v", err)
	}
	if page.reloads != 3 {
		t.Fatalf("expected 3 reloads, got %d", page.reloads)
	}
}

func TestResolve_DeadlineCutsWaiting(t *testing.T) {
	blocked := loadFixture(t, "blocked_challenge.html")
	page := &fakePage{pages: []string{blocked}}

	now := time.Now()
	clock := func() time.Time { return now }
	deadline := NewDeadline(time.Minute, clock)

	sleep := func(d time.Duration) { now = now.Add(d) }
	guard := NewChallengeGuard(config.BlockConfig{
		MaxRetries: 5,
		WaitMin:    45 * time.Second,
		WaitMax:    45 * time.Second,
	}, sleep, rand.New(rand.NewSource(1)))

	err := guard.Resolve(page, deadline)
	if !errors.Is(err, ErrDeadlineExceeded) {
		t.Fatalf("expected ErrDeadlineExceeded, got %v", err)
	}
	// The budget dies during the second wait, before reload number two.
	if page.reloads > 2 {
		t.Fatalf("expected at most 2 reloads, got %d", page.reloads)
	}
}
