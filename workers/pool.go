package workers

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"price_tracker/config"
	"price_tracker/identity"
	"price_tracker/queue"
	"price_tracker/scraper"
	"price_tracker/services"
	"price_tracker/storage"
)

// launchStagger spaces out browser startups so a burst of chromium launches
// does not exhaust the host.
const launchStagger = 3 * time.Second

// Pool runs the configured number of enrichment workers, each with its own
// browser session, profile directory and identity.
type Pool struct {
	cfg      *config.Config
	store    *storage.PostgresStore
	queue    *queue.WorkQueue
	listings *services.ListingService
	logFunc  LogFunc
}

func NewPool(cfg *config.Config, store *storage.PostgresStore, q *queue.WorkQueue, listings *services.ListingService) *Pool {
	return &Pool{
		cfg:      cfg,
		store:    store,
		queue:    q,
		listings: listings,
		logFunc:  NoOpLogger,
	}
}

func (p *Pool) SetLogger(fn LogFunc) {
	p.logFunc = fn
}

// Run launches the workers and blocks until every worker has returned after
// context cancellation.
func (p *Pool) Run(ctx context.Context) {
	n := p.cfg.Worker.Parallelism
	log.Printf("Starting %d enrichment workers", n)

	var wg sync.WaitGroup
	for slot := 0; slot < n; slot++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			if err := p.runWorker(ctx, slot); err != nil {
				log.Printf("worker-%d exited: %v", slot, err)
			}
		}(slot)

		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-time.After(launchStagger):
		}
	}

	wg.Wait()
	log.Println("All enrichment workers stopped")
}

func (p *Pool) runWorker(ctx context.Context, slot int) error {
	name := fmt.Sprintf("worker-%d", slot)

	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(slot)))
	profile := identity.NewProfile(rng)

	session, err := scraper.NewSession(p.cfg.Browser, p.cfg.WorkerUserDataDir(slot), profile, rng)
	if err != nil {
		return fmt.Errorf("launch session: %w", err)
	}
	defer session.Close()

	guard := scraper.NewChallengeGuard(p.cfg.Block, nil, rng)
	enricher := scraper.NewEnricher(session, guard, p.cfg.Worker, p.cfg.Browser, nil)

	w := NewEnrichmentWorker(name, p.queue, enricher, p.listings, p.store, p.cfg.Queue.PollInterval)
	w.SetLogger(p.logFunc)
	enricher.OnSnapshot = w.RecordSnapshot

	log.Printf("%s: session ready (%s, %dx%d)", name, profile.UserAgent, profile.ViewportWidth, profile.ViewportHeight)

	w.Run(ctx)
	return nil
}
