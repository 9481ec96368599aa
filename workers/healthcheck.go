package workers

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"price_tracker/models"
	"price_tracker/scraper"
)

// HealthcheckStore is the slice of the listing store the healthcheck uses.
type HealthcheckStore interface {
	GetStaleActiveListings(ctx context.Context, staleDuration time.Duration, limit int) ([]models.Listing, error)
}

// HealthcheckWorker re-checks active listings that no collector run has seen
// recently. Listings confirmed gone are deactivated; everything else is left
// for the next collection pass.
type HealthcheckWorker struct {
	store      HealthcheckStore
	listings   ListingWriter
	httpClient *http.Client
	triggerCh  chan struct{}
	logFunc    LogFunc
}

func NewHealthcheckWorker(store HealthcheckStore, listings ListingWriter, client *http.Client) *HealthcheckWorker {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HealthcheckWorker{
		store:      store,
		listings:   listings,
		httpClient: client,
		triggerCh:  make(chan struct{}, 1),
		logFunc:    NoOpLogger,
	}
}

func (w *HealthcheckWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Trigger causes the worker to run a batch immediately.
func (w *HealthcheckWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// CheckResult is the verdict on one listing URL.
type CheckResult struct {
	IsLive     bool
	StatusCode int
	Error      error
}

// Check fetches a listing URL and decides whether it is still live. Ended
// listings often keep answering 200, so the body is scanned for the ended
// markers as well.
func (w *HealthcheckWorker) Check(ctx context.Context, listingURL string) CheckResult {
	req, err := http.NewRequestWithContext(ctx, "GET", listingURL, nil)
	if err != nil {
		return CheckResult{Error: err}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return CheckResult{Error: err}
	}
	defer resp.Body.Close()

	result := CheckResult{StatusCode: resp.StatusCode}

	switch resp.StatusCode {
	case 200:
		body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
		if err != nil {
			result.Error = err
			return result
		}
		result.IsLive = !scraper.IsRemovedHTML(string(body))
	case 404, 410:
		result.IsLive = false
	case 301, 302:
		result.IsLive = !isDelistRedirect(resp.Header.Get("Location"))
	default:
		// Blocks and server errors prove nothing about the listing.
		result.IsLive = true
	}

	return result
}

// isDelistRedirect reports whether a redirect points away from an item page.
// Ended items redirect to search or category pages.
func isDelistRedirect(location string) bool {
	if location == "" {
		return false
	}
	return !strings.Contains(location, "/itm/")
}

// Run starts the healthcheck loop.
func (w *HealthcheckWorker) Run(ctx context.Context, staleDuration time.Duration, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Healthcheck worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, staleDuration, batchSize)
		case <-w.triggerCh:
			log.Println("Healthcheck worker triggered manually")
			w.processBatch(ctx, staleDuration, batchSize)
		}
	}
}

func (w *HealthcheckWorker) processBatch(ctx context.Context, staleDuration time.Duration, batchSize int) {
	listings, err := w.store.GetStaleActiveListings(ctx, staleDuration, batchSize)
	if err != nil {
		log.Printf("Healthcheck: query error: %v", err)
		return
	}
	if len(listings) == 0 {
		return
	}

	log.Printf("Healthcheck: checking %d stale listings", len(listings))

	var checked, deactivated int
	for i := range listings {
		l := &listings[i]
		if l.URL == "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		result := w.Check(ctx, l.URL)
		checked++

		if result.Error != nil {
			log.Printf("Healthcheck: error checking %s: %v", l.URL, result.Error)
			continue
		}

		if !result.IsLive {
			log.Printf("Healthcheck: listing %s gone (status %d)", l.ExternalID, result.StatusCode)
			if err := w.listings.Deactivate(ctx, l.ID, time.Now()); err != nil {
				log.Printf("Healthcheck: deactivate %s failed: %v", l.ExternalID, err)
			} else {
				deactivated++
			}
		}

		// Rate limit between requests
		time.Sleep(500 * time.Millisecond)
	}

	if checked > 0 {
		msg := fmt.Sprintf("checked %d listings", checked)
		if deactivated > 0 {
			msg += fmt.Sprintf(", deactivated %d", deactivated)
		}
		log.Printf("Healthcheck: %s", msg)
		w.logFunc(models.LogLevelInfo, "healthcheck", msg)
	}
}
