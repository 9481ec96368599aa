package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"price_tracker/config"
	"price_tracker/models"
	"price_tracker/services"
)

// ErrRunFailed marks a collector run that aborted before completing its
// sweep. A failed run performs no reconciliation and enqueues nothing.
var ErrRunFailed = errors.New("collector run failed")

// Pager fetches and parses one results page.
type Pager interface {
	FetchPage(ctx context.Context, term string, pageNum int) ([]models.SummaryListing, error)
}

// Publisher enqueues enrichment tasks.
type Publisher interface {
	Publish(ctx context.Context, task models.EnrichmentTask) error
}

// ListingProcessor is the slice of the listing service the collector uses.
type ListingProcessor interface {
	ProcessSummary(ctx context.Context, searchID int64, site string, sl *models.SummaryListing, now time.Time) (*services.ProcessResult, error)
	Reconcile(ctx context.Context, searchID int64, observed []string, now time.Time) (int, error)
}

// RunLog records run history and per-run logs. Optional.
type RunLog interface {
	CreateRun(run *models.CollectRun) (int64, error)
	UpdateRun(run *models.CollectRun) error
	Log(runID *int64, level models.LogLevel, message, site string) error
	UpdateSiteStats(site string) error
}

// Collector walks a search's result pages, upserts what it sees, reconciles
// the active set against the observed set, and enqueues enrichment work.
type Collector struct {
	pager    Pager
	listings ListingProcessor
	queue    Publisher
	runs     RunLog
	cfg      config.SearchConfig
	clock    func() time.Time
}

func New(pager Pager, listings ListingProcessor, queue Publisher, runs RunLog, cfg config.SearchConfig, clock func() time.Time) *Collector {
	if clock == nil {
		clock = time.Now
	}
	if cfg.PageRetries < 1 {
		cfg.PageRetries = 1
	}
	return &Collector{pager: pager, listings: listings, queue: queue, runs: runs, cfg: cfg, clock: clock}
}

// Run executes one full collection pass for a search.
//
// Pagination is sequential. A page that keeps failing after its retry budget
// is skipped; a skipped page leaves the observed set incomplete, so the run
// still completes and enqueues, but reconciliation is withheld. A run that
// cannot collect anything at all, or is cancelled, fails outright.
func (c *Collector) Run(ctx context.Context, search *models.Search) (*models.CollectRun, error) {
	run := &models.CollectRun{
		SearchID:  search.ID,
		Site:      search.Site,
		StartedAt: c.clock(),
		Status:    models.RunStatusRunning,
	}
	if c.runs != nil {
		id, err := c.runs.CreateRun(run)
		if err != nil {
			log.Printf("Warning: could not record run start: %v", err)
		} else {
			run.ID = id
		}
	}

	observed, pending, err := c.sweep(ctx, search, run)
	if err != nil {
		c.finishRun(run, models.RunStatusFailed)
		c.logRun(run, models.LogLevelError, fmt.Sprintf("run aborted: %v", err))
		return run, fmt.Errorf("%w: %v", ErrRunFailed, err)
	}

	// Reconciliation only over a complete observed set. A run with skipped
	// pages would deactivate listings it simply failed to see.
	if run.PagesSkipped == 0 {
		deactivated, err := c.listings.Reconcile(ctx, search.ID, observed, c.clock())
		if err != nil {
			c.finishRun(run, models.RunStatusFailed)
			return run, fmt.Errorf("%w: %v", ErrRunFailed, err)
		}
		run.ListingsDeactivated = deactivated
		log.Printf("Reconciled search %d: %d listings deactivated", search.ID, deactivated)
	} else {
		c.logRun(run, models.LogLevelWarn,
			fmt.Sprintf("%d pages skipped, reconciliation withheld", run.PagesSkipped))
	}

	run.TasksEnqueued = c.enqueue(ctx, pending, run)

	c.finishRun(run, models.RunStatusCompleted)
	log.Printf("Run complete: %d pages, %d listings (%d new), %d tasks enqueued",
		run.PagesScraped, run.ListingsFound, run.ListingsNew, run.TasksEnqueued)
	return run, nil
}

// sweep walks the result pages and returns the observed external ids plus the
// enrichment candidates (new or price-changed listings, in page order).
func (c *Collector) sweep(ctx context.Context, search *models.Search, run *models.CollectRun) ([]string, []models.EnrichmentTask, error) {
	var observed []string
	var pending []models.EnrichmentTask
	seen := make(map[string]bool)

	for pageNum := 1; c.cfg.MaxPages == 0 || pageNum <= c.cfg.MaxPages; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		listings, err := c.fetchWithRetries(ctx, search.Term, pageNum)
		if err != nil {
			if pageNum == 1 {
				// Nothing collected; the whole run is void.
				return nil, nil, fmt.Errorf("page 1 unavailable: %w", err)
			}
			run.PagesSkipped++
			run.ErrorsCount++
			c.logRun(run, models.LogLevelWarn, fmt.Sprintf("page %d skipped: %v", pageNum, err))
			continue
		}

		run.PagesScraped++
		if len(listings) == 0 {
			break
		}

		now := c.clock()
		for i := range listings {
			sl := &listings[i]
			if seen[sl.ExternalID] {
				continue
			}
			seen[sl.ExternalID] = true
			// Observed means present on the page. A failed summary write must
			// not drop the id here, or reconciliation would deactivate a
			// listing the sweep actually saw.
			observed = append(observed, sl.ExternalID)

			result, err := c.listings.ProcessSummary(ctx, search.ID, search.Site, sl, now)
			if err != nil {
				run.ErrorsCount++
				log.Printf("Warning: process %s failed: %v", sl.ExternalID, err)
				continue
			}

			run.ListingsFound++
			if result.IsNew {
				run.ListingsNew++
			}
			if result.IsNew || result.PriceChanged {
				pending = append(pending, models.EnrichmentTask{
					ListingID:  result.ListingID,
					ExternalID: sl.ExternalID,
					URL:        sl.URL,
					SearchID:   search.ID,
				})
			}
		}
	}

	if run.ListingsFound == 0 {
		return nil, nil, fmt.Errorf("no listings collected")
	}
	return observed, pending, nil
}

func (c *Collector) fetchWithRetries(ctx context.Context, term string, pageNum int) ([]models.SummaryListing, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.PageRetries; attempt++ {
		listings, err := c.pager.FetchPage(ctx, term, pageNum)
		if err == nil {
			return listings, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("Page %d attempt %d/%d failed: %v", pageNum, attempt, c.cfg.PageRetries, err)
	}
	return nil, lastErr
}

// enqueue publishes enrichment tasks up to the configured cap.
func (c *Collector) enqueue(ctx context.Context, pending []models.EnrichmentTask, run *models.CollectRun) int {
	limit := len(pending)
	if c.cfg.EnrichLimit > 0 && c.cfg.EnrichLimit < limit {
		limit = c.cfg.EnrichLimit
	}

	enqueued := 0
	for _, task := range pending[:limit] {
		if err := c.queue.Publish(ctx, task); err != nil {
			run.ErrorsCount++
			log.Printf("Warning: enqueue %s failed: %v", task.ExternalID, err)
			continue
		}
		enqueued++
	}
	return enqueued
}

func (c *Collector) finishRun(run *models.CollectRun, status models.RunStatus) {
	now := c.clock()
	run.FinishedAt = &now
	run.Status = status
	if c.runs != nil {
		if err := c.runs.UpdateRun(run); err != nil {
			log.Printf("Warning: could not record run finish: %v", err)
		}
		if err := c.runs.UpdateSiteStats(run.Site); err != nil {
			log.Printf("Warning: could not refresh site stats: %v", err)
		}
	}
}

func (c *Collector) logRun(run *models.CollectRun, level models.LogLevel, message string) {
	log.Printf("[%s] %s", level, message)
	if c.runs != nil {
		runID := run.ID
		var idPtr *int64
		if runID != 0 {
			idPtr = &runID
		}
		if err := c.runs.Log(idPtr, level, message, run.Site); err != nil {
			log.Printf("Warning: run log write failed: %v", err)
		}
	}
}
