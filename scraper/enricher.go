package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"price_tracker/config"
	"price_tracker/models"
)

// Enricher visits one listing detail page per task and extracts the
// worker-owned fields. Navigation, challenge handling and parsing all run
// under a single per-task deadline.
type Enricher struct {
	session   *Session
	guard     *ChallengeGuard
	worker    config.WorkerConfig
	browser   config.BrowserConfig
	snapshots *Snapshotter
	debug     *Snapshotter
	clock     Clock

	// OnSnapshot is called for each artifact written, so the caller can
	// record it for upload. Optional.
	OnSnapshot func(kind, path string)

	resultsURL string
	navTimeout time.Duration
}

func NewEnricher(session *Session, guard *ChallengeGuard, worker config.WorkerConfig, browser config.BrowserConfig, clock Clock) *Enricher {
	if clock == nil {
		clock = time.Now
	}
	return &Enricher{
		session:    session,
		guard:      guard,
		worker:     worker,
		browser:    browser,
		snapshots:  NewSnapshotter(browser.SnapshotDir),
		debug:      NewSnapshotter(browser.DebugSnapshotDir),
		clock:      clock,
		resultsURL: "https://www.ebay.com",
		navTimeout: 30 * time.Second,
	}
}

// SetResultsContext points click-through navigation at a live results page.
func (e *Enricher) SetResultsContext(url string) {
	if url != "" {
		e.resultsURL = url
	}
}

// Extract runs the full per-listing state machine and classifies the result.
// It never returns an error; every failure mode maps onto the outcome.
func (e *Enricher) Extract(ctx context.Context, task models.EnrichmentTask) models.ExtractionOutcome {
	if ExternalIDFromURL(task.URL) == "" {
		return models.PermanentFailure(models.ReasonInvalidURL, fmt.Errorf("no item id in %q", task.URL))
	}

	deadline := NewDeadline(e.worker.ListingMax, e.clock)

	if err := e.navigate(ctx, task); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return models.TemporaryFailure(models.ReasonTimeout, err)
		}
		return models.TemporaryFailure(models.ReasonNetwork, err)
	}

	if deadline.Exceeded() {
		return models.TemporaryFailure(models.ReasonTimeout, ErrDeadlineExceeded)
	}

	// Challenge gate. Waiting and reloading draw from the task deadline.
	blocked, err := e.guard.Blocked(e.session)
	if err != nil {
		return models.TemporaryFailure(models.ReasonNetwork, err)
	}
	if blocked {
		e.saveDebug(task, "blocked")
		if err := e.guard.Resolve(e.session, deadline); err != nil {
			if errors.Is(err, ErrDeadlineExceeded) {
				return models.TemporaryFailure(models.ReasonTimeout, err)
			}
			return models.TemporaryFailure(models.ReasonChallengeExhausted, err)
		}
	}

	if deadline.Exceeded() {
		return models.TemporaryFailure(models.ReasonTimeout, ErrDeadlineExceeded)
	}

	html, err := e.session.HTML()
	if err != nil {
		return models.TemporaryFailure(models.ReasonNetwork, err)
	}
	if IsRemovedHTML(html) {
		e.saveDebug(task, "removed")
		return models.PermanentFailure(models.ReasonNotFound, nil)
	}

	e.session.HumanSettle(e.browser.SettleMin, e.browser.SettleMax, deadline)
	if deadline.Exceeded() {
		return models.TemporaryFailure(models.ReasonTimeout, ErrDeadlineExceeded)
	}

	e.saveSnapshot(task)

	// Re-read after settle; lazy page sections render late.
	html, err = e.session.HTML()
	if err != nil {
		return models.TemporaryFailure(models.ReasonNetwork, err)
	}
	if deadline.Exceeded() {
		return models.TemporaryFailure(models.ReasonTimeout, ErrDeadlineExceeded)
	}

	fields, ok := ParseDetail(html)
	if !ok {
		e.saveDebug(task, "parse_failure")
		return models.TemporaryFailure(models.ReasonParseError, fmt.Errorf("page did not parse as a listing"))
	}

	return models.Success(fields)
}

// navigate prefers clicking a listing anchor from the results context, which
// preserves a believable referer chain; direct goto with a referer header is
// the fallback.
func (e *Enricher) navigate(ctx context.Context, task models.EnrichmentTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if e.worker.NavMode == "click" {
		if err := e.clickThrough(task); err == nil {
			return e.verifyArrival(task)
		} else {
			log.Printf("Click-through failed for %s (%v), using direct navigation", task.ExternalID, err)
		}
	}

	if err := e.session.Navigate(task.URL, e.resultsURL, e.navTimeout); err != nil {
		return err
	}
	return e.verifyArrival(task)
}

func (e *Enricher) clickThrough(task models.EnrichmentTask) error {
	page, err := e.session.Page()
	if err != nil {
		return err
	}

	current := page.URL()
	if !strings.Contains(current, "/sch/") {
		return fmt.Errorf("not on a results page")
	}

	anchor := page.Locator(fmt.Sprintf("a[href*='/itm/%s']", task.ExternalID)).First()
	count, err := anchor.Count()
	if err != nil || count == 0 {
		return fmt.Errorf("no anchor for item %s on results page", task.ExternalID)
	}

	anchor.ScrollIntoViewIfNeeded(playwright.LocatorScrollIntoViewIfNeededOptions{
		Timeout: playwright.Float(2000),
	})
	e.session.SimulateHumanBehavior()

	if err := anchor.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(float64(e.navTimeout.Milliseconds())),
	}); err != nil {
		return fmt.Errorf("click anchor: %w", err)
	}
	if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: playwright.Float(float64(e.navTimeout.Milliseconds())),
	}); err != nil {
		return fmt.Errorf("wait after click: %w", err)
	}
	return nil
}

// verifyArrival confirms the browser actually landed on the listing. Ad
// interstitials and soft redirects land elsewhere without an error.
func (e *Enricher) verifyArrival(task models.EnrichmentTask) error {
	current, err := e.session.CurrentURL()
	if err != nil {
		return err
	}
	if !strings.Contains(current, "/itm/") {
		return fmt.Errorf("landed on %s instead of listing", current)
	}
	if id := ExternalIDFromURL(current); id != "" && id != task.ExternalID {
		return fmt.Errorf("landed on item %s, wanted %s", id, task.ExternalID)
	}
	return nil
}

func (e *Enricher) saveSnapshot(task models.EnrichmentTask) {
	png, htmlPath := e.snapshots.Save(e.session, task.ExternalID)
	e.notify("png", png)
	e.notify("html", htmlPath)
}

func (e *Enricher) saveDebug(task models.EnrichmentTask, label string) {
	png, htmlPath := e.debug.Save(e.session, task.ExternalID+"_"+label)
	e.notify("png", png)
	e.notify("html", htmlPath)
}

func (e *Enricher) notify(kind, path string) {
	if e.OnSnapshot != nil && path != "" {
		e.OnSnapshot(kind, path)
	}
}
