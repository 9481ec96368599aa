package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"price_tracker/models"
	"price_tracker/storage"
)

// ListingService applies summary and detail observations to the listing
// store. The collector and the workers both go through it, so the
// field-ownership split lives in exactly one place.
type ListingService struct {
	store *storage.PostgresStore
}

func NewListingService(store *storage.PostgresStore) *ListingService {
	return &ListingService{store: store}
}

// ProcessResult contains the outcome of processing one summary observation.
type ProcessResult struct {
	ListingID    int64
	IsNew        bool
	PriceChanged bool
}

// ProcessSummary upserts the collector-owned fields for one observed cell.
// Idempotent: re-observing the same listing updates summary fields and
// last_seen_at without touching first_seen_at or activation state.
func (s *ListingService) ProcessSummary(ctx context.Context, searchID int64, site string, sl *models.SummaryListing, now time.Time) (*ProcessResult, error) {
	result := &ProcessResult{}

	existing, err := s.store.GetListingBySiteAndExternalID(ctx, site, sl.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	if existing == nil {
		result.IsNew = true
	} else if existing.Price != sl.Price {
		result.PriceChanged = true
	}

	id, err := s.store.UpsertSummary(ctx, searchID, site, sl, now)
	if err != nil {
		return nil, fmt.Errorf("upsert summary: %w", err)
	}
	result.ListingID = id

	return result, nil
}

// ApplyDetail writes the worker-owned fields for a successfully enriched
// listing and refreshes last_seen_at.
func (s *ListingService) ApplyDetail(ctx context.Context, listingID int64, fields *models.DetailFields, now time.Time) error {
	if err := s.store.UpsertDetail(ctx, listingID, fields, now); err != nil {
		return fmt.Errorf("upsert detail: %w", err)
	}
	return nil
}

// Deactivate ends a listing that is confirmed gone. Idempotent.
func (s *ListingService) Deactivate(ctx context.Context, listingID int64, now time.Time) error {
	if err := s.store.DeactivateListing(ctx, listingID, now); err != nil {
		return fmt.Errorf("deactivate listing: %w", err)
	}
	return nil
}

// Reconcile ends every active listing of the search missing from the
// observed set. Only a fully successful collector run may call this.
func (s *ListingService) Reconcile(ctx context.Context, searchID int64, observed []string, now time.Time) (int, error) {
	n, err := s.store.DeactivateMissing(ctx, searchID, observed, now)
	if err != nil {
		return 0, fmt.Errorf("reconcile search %d: %w", searchID, err)
	}
	return n, nil
}

// ProcessStats tracks aggregate statistics for a collector run.
type ProcessStats struct {
	ListingsProcessed int
	ListingsNew       int
	PriceChanges      int
	Errors            int
}

// Aggregate adds a ProcessResult to the stats.
func (s *ProcessStats) Aggregate(r *ProcessResult) {
	s.ListingsProcessed++
	if r.IsNew {
		s.ListingsNew++
	}
	if r.PriceChanged {
		s.PriceChanges++
	}
}

// ToJSON returns JSON-serializable metadata.
func (s *ProcessStats) ToJSON() json.RawMessage {
	data, _ := json.Marshal(map[string]int{
		"listings_processed": s.ListingsProcessed,
		"listings_new":       s.ListingsNew,
		"price_changes":      s.PriceChanges,
		"errors":             s.Errors,
	})
	return data
}
