package scraper

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"price_tracker/config"
)

var ErrChallengeExhausted = errors.New("challenge not cleared within retry budget")

// Textual markers shown to users on a challenge page. Matching runs on
// visible-ish text, not raw HTML, to avoid tripping on CSS class names.
var blockMarkers = []string{
	"verify you're a human",
	"not a robot",
	"enter the characters you see",
	"access to this page has been denied",
	"checking your browser",
	"pardon our interruption",
	"reference id:",
}

// IsBlockedHTML reports whether a page snapshot looks like a bot challenge.
func IsBlockedHTML(html string) bool {
	return IsBlockedHTMLWith(html, nil)
}

// IsBlockedHTMLWith additionally checks site-specific markers from config.
func IsBlockedHTMLWith(html string, extra []string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	if doc.Find("form#destForm").Length() > 0 {
		return true
	}
	body := strings.ToLower(doc.Find("body").Text())
	for _, marker := range blockMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	for _, marker := range extra {
		if strings.Contains(body, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// ChallengePage is the slice of page behavior the guard needs.
type ChallengePage interface {
	HTML() (string, error)
	Reload() error
}

// ChallengeGuard resolves bot challenges by waiting a randomized interval and
// reloading, up to a bounded number of retries. Waits draw from the task
// deadline; an exceeded deadline ends resolution immediately.
type ChallengeGuard struct {
	cfg   config.BlockConfig
	sleep func(time.Duration)
	rng   *rand.Rand
}

func NewChallengeGuard(cfg config.BlockConfig, sleep func(time.Duration), rng *rand.Rand) *ChallengeGuard {
	if sleep == nil {
		sleep = time.Sleep
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &ChallengeGuard{cfg: cfg, sleep: sleep, rng: rng}
}

// Blocked checks the current page for a challenge.
func (g *ChallengeGuard) Blocked(page ChallengePage) (bool, error) {
	html, err := page.HTML()
	if err != nil {
		return false, fmt.Errorf("read page: %w", err)
	}
	return IsBlockedHTML(html), nil
}

// Resolve clears a detected challenge. Returns nil once the page no longer
// looks blocked, ErrChallengeExhausted after the retry budget, or the
// deadline's timeout error if the budget runs out mid-wait.
func (g *ChallengeGuard) Resolve(page ChallengePage, deadline *Deadline) error {
	for attempt := 1; attempt <= g.cfg.MaxRetries; attempt++ {
		if deadline != nil && deadline.Exceeded() {
			return ErrDeadlineExceeded
		}

		wait := g.waitInterval()
		log.Printf("Challenge active, waiting %.0fs before reload (attempt %d/%d)",
			wait.Seconds(), attempt, g.cfg.MaxRetries)
		g.sleep(wait)

		if deadline != nil && deadline.Exceeded() {
			return ErrDeadlineExceeded
		}

		if err := page.Reload(); err != nil {
			log.Printf("Warning: challenge reload failed: %v", err)
			continue
		}

		blocked, err := g.Blocked(page)
		if err != nil {
			log.Printf("Warning: challenge recheck failed: %v", err)
			continue
		}
		if !blocked {
			log.Printf("Challenge cleared after %d attempt(s)", attempt)
			return nil
		}

		if g.cfg.Recheck {
			// One extra short settle then recheck; cheap reloads sometimes
			// land on a second interstitial that clears on its own.
			g.sleep(2 * time.Second)
			if blocked, err := g.Blocked(page); err == nil && !blocked {
				return nil
			}
		}
	}
	return ErrChallengeExhausted
}

func (g *ChallengeGuard) waitInterval() time.Duration {
	min, max := g.cfg.WaitMin, g.cfg.WaitMax
	if max <= min {
		return min
	}
	return min + time.Duration(g.rng.Int63n(int64(max-min)))
}
