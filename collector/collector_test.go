package collector

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"price_tracker/config"
	"price_tracker/models"
	"price_tracker/services"
)

type fakePager struct {
	pages    map[int][]models.SummaryListing
	failures map[int]int // page -> remaining failures
	calls    int
}

func (p *fakePager) FetchPage(ctx context.Context, term string, pageNum int) ([]models.SummaryListing, error) {
	p.calls++
	if remaining := p.failures[pageNum]; remaining > 0 {
		p.failures[pageNum] = remaining - 1
		return nil, errors.New("fetch failed")
	}
	return p.pages[pageNum], nil
}

type fakeProcessor struct {
	known      map[string]float64 // external id -> stored price
	processed  []string
	reconciled [][]string
	failFor    map[string]bool
}

func (f *fakeProcessor) ProcessSummary(ctx context.Context, searchID int64, site string, sl *models.SummaryListing, now time.Time) (*services.ProcessResult, error) {
	if f.failFor[sl.ExternalID] {
		return nil, errors.New("db down")
	}
	f.processed = append(f.processed, sl.ExternalID)
	result := &services.ProcessResult{ListingID: int64(len(f.processed))}
	price, seen := f.known[sl.ExternalID]
	if !seen {
		result.IsNew = true
	} else if price != sl.Price {
		result.PriceChanged = true
	}
	return result, nil
}

func (f *fakeProcessor) Reconcile(ctx context.Context, searchID int64, observed []string, now time.Time) (int, error) {
	f.reconciled = append(f.reconciled, observed)
	return 1, nil
}

type fakePublisher struct {
	tasks   []models.EnrichmentTask
	failAll bool
}

func (f *fakePublisher) Publish(ctx context.Context, task models.EnrichmentTask) error {
	if f.failAll {
		return errors.New("queue down")
	}
	f.tasks = append(f.tasks, task)
	return nil
}

func summaries(ids ...string) []models.SummaryListing {
	var out []models.SummaryListing
	for _, id := range ids {
		out = append(out, models.SummaryListing{
			ExternalID: id,
			Title:      "listing " + id,
			URL:        fmt.Sprintf("https://www.ebay.com/itm/%s", id),
			Price:      100,
		})
	}
	return out
}

func testSearch() *models.Search {
	return &models.Search{ID: 7, Term: "tenor saxophone", Site: models.SiteEbay}
}

func TestRun_HappyPath(t *testing.T) {
	pager := &fakePager{pages: map[int][]models.SummaryListing{
		1: summaries("101", "102"),
		2: summaries("102", "103"), // 102 repeats across pages
		3: nil,
	}}
	proc := &fakeProcessor{known: map[string]float64{"103": 100}}
	pub := &fakePublisher{}

	c := New(pager, proc, pub, nil, config.SearchConfig{PageRetries: 2}, nil)
	run, err := c.Run(context.Background(), testSearch())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if run.Status != models.RunStatusCompleted {
		t.Fatalf("expected completed, got %s", run.Status)
	}
	if run.PagesScraped != 3 {
		t.Fatalf("expected 3 pages scraped, got %d", run.PagesScraped)
	}
	if run.ListingsFound != 3 {
		t.Fatalf("expected 3 listings, got %d", run.ListingsFound)
	}
	if run.ListingsNew != 2 {
		t.Fatalf("expected 2 new listings, got %d", run.ListingsNew)
	}
	// 101 and 102 are new; 103 already known at the same price.
	if run.TasksEnqueued != 2 {
		t.Fatalf("expected 2 tasks enqueued, got %d", run.TasksEnqueued)
	}
	if len(pub.tasks) != 2 || pub.tasks[0].ExternalID != "101" || pub.tasks[1].ExternalID != "102" {
		t.Fatalf("unexpected enqueued tasks %+v", pub.tasks)
	}
	if len(proc.reconciled) != 1 {
		t.Fatalf("expected one reconcile call, got %d", len(proc.reconciled))
	}
	if got := proc.reconciled[0]; len(got) != 3 {
		t.Fatalf("expected 3 observed ids, got %v", got)
	}
	if run.ListingsDeactivated != 1 {
		t.Fatalf("expected 1 deactivated, got %d", run.ListingsDeactivated)
	}
}

func TestRun_PriceChangeEnqueues(t *testing.T) {
	pager := &fakePager{pages: map[int][]models.SummaryListing{
		1: summaries("201"),
		2: nil,
	}}
	proc := &fakeProcessor{known: map[string]float64{"201": 80}} // stored at 80, seen at 100
	pub := &fakePublisher{}

	c := New(pager, proc, pub, nil, config.SearchConfig{}, nil)
	run, err := c.Run(context.Background(), testSearch())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if run.ListingsNew != 0 {
		t.Fatalf("expected no new listings, got %d", run.ListingsNew)
	}
	if run.TasksEnqueued != 1 {
		t.Fatalf("expected price change to enqueue, got %d", run.TasksEnqueued)
	}
}

func TestRun_FirstPageFailureVoidsRun(t *testing.T) {
	pager := &fakePager{
		pages:    map[int][]models.SummaryListing{1: summaries("301")},
		failures: map[int]int{1: 5},
	}
	proc := &fakeProcessor{}
	pub := &fakePublisher{}

	c := New(pager, proc, pub, nil, config.SearchConfig{PageRetries: 2}, nil)
	run, err := c.Run(context.Background(), testSearch())
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("expected ErrRunFailed, got %v", err)
	}
	if run.Status != models.RunStatusFailed {
		t.Fatalf("expected failed status, got %s", run.Status)
	}
	if pager.calls != 2 {
		t.Fatalf("expected 2 fetch attempts, got %d", pager.calls)
	}
	if len(pub.tasks) != 0 {
		t.Fatalf("failed run must not enqueue, got %d tasks", len(pub.tasks))
	}
	if len(proc.reconciled) != 0 {
		t.Fatalf("failed run must not reconcile")
	}
}

func TestRun_SkippedPageWithholdsReconciliation(t *testing.T) {
	pager := &fakePager{
		pages: map[int][]models.SummaryListing{
			1: summaries("401", "402"),
			3: nil,
		},
		failures: map[int]int{2: 10},
	}
	proc := &fakeProcessor{}
	pub := &fakePublisher{}

	c := New(pager, proc, pub, nil, config.SearchConfig{PageRetries: 2}, nil)
	run, err := c.Run(context.Background(), testSearch())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if run.PagesSkipped != 1 {
		t.Fatalf("expected 1 skipped page, got %d", run.PagesSkipped)
	}
	// The observed set is incomplete, so nothing may be deactivated, but the
	// listings that were seen still get enriched.
	if len(proc.reconciled) != 0 {
		t.Fatalf("reconciliation must be withheld on skipped pages")
	}
	if run.TasksEnqueued != 2 {
		t.Fatalf("expected 2 tasks enqueued, got %d", run.TasksEnqueued)
	}
}

func TestRun_ProcessFailureKeepsListingObserved(t *testing.T) {
	pager := &fakePager{pages: map[int][]models.SummaryListing{
		1: summaries("701", "702"),
		2: nil,
	}}
	proc := &fakeProcessor{failFor: map[string]bool{"702": true}}
	pub := &fakePublisher{}

	c := New(pager, proc, pub, nil, config.SearchConfig{}, nil)
	run, err := c.Run(context.Background(), testSearch())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if run.ErrorsCount != 1 {
		t.Fatalf("expected 1 error counted, got %d", run.ErrorsCount)
	}

	// 702 was on the page; a failed summary write must not let
	// reconciliation treat it as missing and deactivate it.
	if len(proc.reconciled) != 1 {
		t.Fatalf("expected one reconcile call, got %d", len(proc.reconciled))
	}
	got := proc.reconciled[0]
	if len(got) != 2 || got[0] != "701" || got[1] != "702" {
		t.Fatalf("observed set must include the failed row, got %v", got)
	}

	// The failed row was never upserted, so only 701 is an enrichment candidate.
	if run.ListingsFound != 1 {
		t.Fatalf("expected 1 listing processed, got %d", run.ListingsFound)
	}
	if run.TasksEnqueued != 1 || pub.tasks[0].ExternalID != "701" {
		t.Fatalf("unexpected enqueued tasks %+v", pub.tasks)
	}
}

func TestRun_EnrichLimitCapsQueue(t *testing.T) {
	pager := &fakePager{pages: map[int][]models.SummaryListing{
		1: summaries("501", "502", "503", "504"),
		2: nil,
	}}
	proc := &fakeProcessor{}
	pub := &fakePublisher{}

	c := New(pager, proc, pub, nil, config.SearchConfig{EnrichLimit: 2}, nil)
	run, err := c.Run(context.Background(), testSearch())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if run.TasksEnqueued != 2 {
		t.Fatalf("expected enqueue capped at 2, got %d", run.TasksEnqueued)
	}
	if pub.tasks[0].ExternalID != "501" || pub.tasks[1].ExternalID != "502" {
		t.Fatalf("cap must keep page order, got %+v", pub.tasks)
	}
}

func TestRun_MaxPagesStopsSweep(t *testing.T) {
	pager := &fakePager{pages: map[int][]models.SummaryListing{
		1: summaries("601"),
		2: summaries("602"),
		3: summaries("603"),
	}}
	proc := &fakeProcessor{}
	pub := &fakePublisher{}

	c := New(pager, proc, pub, nil, config.SearchConfig{MaxPages: 2}, nil)
	run, err := c.Run(context.Background(), testSearch())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if run.PagesScraped != 2 {
		t.Fatalf("expected 2 pages scraped, got %d", run.PagesScraped)
	}
	if run.ListingsFound != 2 {
		t.Fatalf("expected 2 listings, got %d", run.ListingsFound)
	}
}

func TestRun_NoListingsFails(t *testing.T) {
	pager := &fakePager{pages: map[int][]models.SummaryListing{1: nil}}
	proc := &fakeProcessor{}
	pub := &fakePublisher{}

	c := New(pager, proc, pub, nil, config.SearchConfig{}, nil)
	_, err := c.Run(context.Background(), testSearch())
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("expected ErrRunFailed on empty sweep, got %v", err)
	}
}
