package collector

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"price_tracker/config"
	"price_tracker/identity"
	"price_tracker/models"
	"price_tracker/queue"
	"price_tracker/scraper"
	"price_tracker/services"
	"price_tracker/storage"
)

// Runner owns the browser lifecycle around collection passes. Each pass gets
// a fresh session and identity; the profile directory is reused so cookies
// accumulate like a returning visitor's would.
type Runner struct {
	cfg      *config.Config
	store    *storage.PostgresStore
	runs     *storage.SQLiteStore
	queue    *queue.WorkQueue
	listings *services.ListingService
}

func NewRunner(cfg *config.Config, store *storage.PostgresStore, runs *storage.SQLiteStore, q *queue.WorkQueue, listings *services.ListingService) *Runner {
	return &Runner{cfg: cfg, store: store, runs: runs, queue: q, listings: listings}
}

// CollectSearch runs one full collection pass for a search, browser included.
func (r *Runner) CollectSearch(ctx context.Context, search *models.Search) (*models.CollectRun, error) {
	site, ok := r.cfg.Sites[search.Site]
	if !ok {
		return nil, fmt.Errorf("no site config for %q", search.Site)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	profile := identity.NewProfile(rng)

	session, err := scraper.NewSession(r.cfg.Browser, r.cfg.Browser.UserDataDir, profile, rng)
	if err != nil {
		return nil, fmt.Errorf("launch session: %w", err)
	}
	defer session.Close()

	log.Printf("Collecting %q on %s (%s)", search.Term, search.Site, profile.UserAgent)

	fetcher := scraper.NewResultsFetcher(session, site)
	c := New(fetcher, r.listings, r.queue, r.runs, r.cfg.Search, nil)

	run, err := c.Run(ctx, search)

	if touchErr := r.store.TouchSearchLastRun(ctx, search.ID, time.Now()); touchErr != nil {
		log.Printf("Warning: touch search %d: %v", search.ID, touchErr)
	}
	return run, err
}

// CollectDue runs every active search whose frequency window has elapsed.
// Searches run one at a time; a single results browser is enough.
func (r *Runner) CollectDue(ctx context.Context) error {
	searches, err := r.store.GetActiveSearches(ctx)
	if err != nil {
		return fmt.Errorf("get searches: %w", err)
	}

	var firstErr error
	for i := range searches {
		search := &searches[i]
		if !searchDue(search, time.Now()) {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := r.CollectSearch(ctx, search); err != nil {
			log.Printf("Collection for %q failed: %v", search.Term, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func searchDue(search *models.Search, now time.Time) bool {
	if search.LastRunAt == nil {
		return true
	}
	freq := time.Duration(search.FrequencyHours) * time.Hour
	if freq <= 0 {
		freq = 24 * time.Hour
	}
	return now.Sub(*search.LastRunAt) >= freq
}
