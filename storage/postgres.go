package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"price_tracker/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// =============================================================================
// Searches
// =============================================================================

func (s *PostgresStore) GetOrCreateSearch(ctx context.Context, term, site string) (*models.Search, error) {
	query := `
		INSERT INTO searches (term, site, active, frequency_hours)
		VALUES ($1, $2, true, 24)
		ON CONFLICT (term, site) DO UPDATE SET term = EXCLUDED.term
		RETURNING id, term, site, active, frequency_hours, last_run_at`

	var sr models.Search
	err := s.pool.QueryRow(ctx, query, term, site).Scan(
		&sr.ID, &sr.Term, &sr.Site, &sr.Active, &sr.FrequencyHours, &sr.LastRunAt,
	)
	if err != nil {
		return nil, err
	}
	return &sr, nil
}

func (s *PostgresStore) GetActiveSearches(ctx context.Context) ([]models.Search, error) {
	query := `
		SELECT id, term, site, active, frequency_hours, last_run_at
		FROM searches WHERE active
		ORDER BY id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var searches []models.Search
	for rows.Next() {
		var sr models.Search
		if err := rows.Scan(&sr.ID, &sr.Term, &sr.Site, &sr.Active, &sr.FrequencyHours, &sr.LastRunAt); err != nil {
			return nil, err
		}
		searches = append(searches, sr)
	}
	return searches, rows.Err()
}

func (s *PostgresStore) TouchSearchLastRun(ctx context.Context, id int64, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE searches SET last_run_at = $2 WHERE id = $1`, id, at)
	return err
}

// =============================================================================
// Listings
// =============================================================================

func (s *PostgresStore) GetListingBySiteAndExternalID(ctx context.Context, site, externalID string) (*models.Listing, error) {
	query := `
		SELECT id, search_id, site, external_id, title, url, price, currency,
			condition, seller_location, region, shipping_info, has_best_offer,
			auction_end_time, brand, model, instrument_type,
			first_seen_at, last_seen_at, is_active, ended_at, scraped_at
		FROM listings WHERE site = $1 AND external_id = $2`

	var l models.Listing
	err := s.pool.QueryRow(ctx, query, site, externalID).Scan(
		&l.ID, &l.SearchID, &l.Site, &l.ExternalID, &l.Title, &l.URL, &l.Price, &l.Currency,
		&l.Condition, &l.SellerLocation, &l.Region, &l.ShippingInfo, &l.HasBestOffer,
		&l.AuctionEndTime, &l.Brand, &l.Model, &l.InstrumentType,
		&l.FirstSeenAt, &l.LastSeenAt, &l.IsActive, &l.EndedAt, &l.ScrapedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *PostgresStore) GetListingByID(ctx context.Context, id int64) (*models.Listing, error) {
	query := `
		SELECT id, search_id, site, external_id, title, url, price, currency,
			condition, seller_location, region, shipping_info, has_best_offer,
			auction_end_time, brand, model, instrument_type,
			first_seen_at, last_seen_at, is_active, ended_at, scraped_at
		FROM listings WHERE id = $1`

	var l models.Listing
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&l.ID, &l.SearchID, &l.Site, &l.ExternalID, &l.Title, &l.URL, &l.Price, &l.Currency,
		&l.Condition, &l.SellerLocation, &l.Region, &l.ShippingInfo, &l.HasBestOffer,
		&l.AuctionEndTime, &l.Brand, &l.Model, &l.InstrumentType,
		&l.FirstSeenAt, &l.LastSeenAt, &l.IsActive, &l.EndedAt, &l.ScrapedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// UpsertSummary writes the collector-owned columns. A fresh row starts active
// with first_seen = last_seen = scraped_at = now; a re-observed row keeps its
// first_seen_at and activation state and only refreshes summary fields and
// last_seen_at.
func (s *PostgresStore) UpsertSummary(ctx context.Context, searchID int64, site string, sl *models.SummaryListing, now time.Time) (int64, error) {
	query := `
		INSERT INTO listings (
			search_id, site, external_id, title, url, price, currency,
			condition, seller_location, shipping_info, brand, model, instrument_type,
			first_seen_at, last_seen_at, is_active, scraped_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14, true, $14
		)
		ON CONFLICT (site, external_id) DO UPDATE SET
			title = EXCLUDED.title,
			url = EXCLUDED.url,
			price = EXCLUDED.price,
			currency = COALESCE(NULLIF(EXCLUDED.currency, ''), listings.currency),
			condition = COALESCE(NULLIF(EXCLUDED.condition, ''), listings.condition),
			seller_location = COALESCE(NULLIF(EXCLUDED.seller_location, ''), listings.seller_location),
			shipping_info = COALESCE(NULLIF(EXCLUDED.shipping_info, ''), listings.shipping_info),
			brand = COALESCE(NULLIF(EXCLUDED.brand, ''), listings.brand),
			model = COALESCE(NULLIF(EXCLUDED.model, ''), listings.model),
			instrument_type = COALESCE(NULLIF(EXCLUDED.instrument_type, ''), listings.instrument_type),
			last_seen_at = EXCLUDED.last_seen_at,
			scraped_at = EXCLUDED.scraped_at
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		searchID, site, sl.ExternalID, sl.Title, sl.URL, sl.Price, sl.Currency,
		sl.Condition, sl.SellerLocation, sl.ShippingInfo, sl.Brand, sl.Model, sl.InstrumentType,
		now,
	).Scan(&id)
	return id, err
}

// UpsertDetail writes the worker-owned columns plus last_seen_at.
func (s *PostgresStore) UpsertDetail(ctx context.Context, listingID int64, d *models.DetailFields, now time.Time) error {
	query := `
		UPDATE listings SET
			condition = COALESCE(NULLIF($2, ''), condition),
			seller_location = COALESCE(NULLIF($3, ''), seller_location),
			region = COALESCE(NULLIF($4, ''), region),
			shipping_info = COALESCE(NULLIF($5, ''), shipping_info),
			has_best_offer = $6,
			auction_end_time = COALESCE($7, auction_end_time),
			last_seen_at = $8
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query,
		listingID, d.Condition, d.SellerLocation, d.Region, d.ShippingInfo,
		d.HasBestOffer, d.AuctionEndTime, now,
	)
	return err
}

// DeactivateListing marks a single listing ended. Idempotent: an already
// inactive row keeps its original ended_at.
func (s *PostgresStore) DeactivateListing(ctx context.Context, listingID int64, now time.Time) error {
	query := `
		UPDATE listings SET is_active = false, ended_at = COALESCE(ended_at, $2)
		WHERE id = $1`
	_, err := s.pool.Exec(ctx, query, listingID, now)
	return err
}

// DeactivateMissing ends every active listing of the search that is absent
// from the observed external-id set. Called once, at the end of a fully
// successful collector run.
func (s *PostgresStore) DeactivateMissing(ctx context.Context, searchID int64, observed []string, now time.Time) (int, error) {
	query := `
		UPDATE listings SET is_active = false, ended_at = COALESCE(ended_at, $3)
		WHERE search_id = $1 AND is_active AND NOT (external_id = ANY($2))`

	tag, err := s.pool.Exec(ctx, query, searchID, observed, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) GetStaleActiveListings(ctx context.Context, staleDuration time.Duration, limit int) ([]models.Listing, error) {
	query := `
		SELECT id, search_id, site, external_id, title, url, price, currency,
			condition, seller_location, region, shipping_info, has_best_offer,
			auction_end_time, brand, model, instrument_type,
			first_seen_at, last_seen_at, is_active, ended_at, scraped_at
		FROM listings
		WHERE is_active AND last_seen_at < $1
		ORDER BY last_seen_at
		LIMIT $2`

	staleTime := time.Now().Add(-staleDuration)
	rows, err := s.pool.Query(ctx, query, staleTime, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		if err := rows.Scan(
			&l.ID, &l.SearchID, &l.Site, &l.ExternalID, &l.Title, &l.URL, &l.Price, &l.Currency,
			&l.Condition, &l.SellerLocation, &l.Region, &l.ShippingInfo, &l.HasBestOffer,
			&l.AuctionEndTime, &l.Brand, &l.Model, &l.InstrumentType,
			&l.FirstSeenAt, &l.LastSeenAt, &l.IsActive, &l.EndedAt, &l.ScrapedAt,
		); err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// =============================================================================
// Snapshot Artifacts
// =============================================================================

func (s *PostgresStore) InsertSnapshotArtifact(ctx context.Context, a *models.SnapshotArtifact) error {
	query := `
		INSERT INTO snapshot_artifacts (id, listing_id, external_id, kind, local_path, remote_key, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.ListingID, a.ExternalID, a.Kind, a.LocalPath, a.RemoteKey, a.Status, a.Attempts, a.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetPendingSnapshots(ctx context.Context, limit int) ([]models.SnapshotArtifact, error) {
	query := `
		SELECT id, listing_id, external_id, kind, local_path, remote_key, status, attempts, created_at, uploaded_at
		FROM snapshot_artifacts
		WHERE status = 'pending' AND attempts < 3
		ORDER BY created_at
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []models.SnapshotArtifact
	for rows.Next() {
		var a models.SnapshotArtifact
		if err := rows.Scan(
			&a.ID, &a.ListingID, &a.ExternalID, &a.Kind, &a.LocalPath, &a.RemoteKey,
			&a.Status, &a.Attempts, &a.CreatedAt, &a.UploadedAt,
		); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

func (s *PostgresStore) UpdateSnapshotStatus(ctx context.Context, id string, status models.SnapshotStatus, remoteKey string, attempts int, uploadedAt *time.Time) error {
	query := `
		UPDATE snapshot_artifacts
		SET status = $2, remote_key = COALESCE(NULLIF($3, ''), remote_key), attempts = $4, uploaded_at = $5
		WHERE id = $1`
	_, err := s.pool.Exec(ctx, query, id, status, remoteKey, attempts, uploadedAt)
	return err
}
