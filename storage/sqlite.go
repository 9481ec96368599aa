package storage

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"price_tracker/models"
)

// SQLiteStore is the local operational store: run history, per-run logs and
// site stats. It never holds listing data, which lives in Postgres.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS collect_runs (
		id INTEGER PRIMARY KEY,
		search_id INTEGER,
		site TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		pages_scraped INTEGER DEFAULT 0,
		pages_skipped INTEGER DEFAULT 0,
		listings_found INTEGER DEFAULT 0,
		listings_new INTEGER DEFAULT 0,
		listings_deactivated INTEGER DEFAULT 0,
		tasks_enqueued INTEGER DEFAULT 0,
		errors_count INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS run_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		site TEXT
	);

	CREATE TABLE IF NOT EXISTS site_stats (
		site TEXT PRIMARY KEY,
		last_run_at DATETIME,
		last_run_status TEXT,
		total_runs INTEGER,
		success_rate REAL,
		avg_run_duration_sec INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_logs_run ON run_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON collect_runs(status, started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_search ON collect_runs(search_id, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateRun(run *models.CollectRun) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO collect_runs (search_id, site, started_at, status)
		VALUES (?, ?, ?, ?)`,
		run.SearchID, run.Site, run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(run *models.CollectRun) error {
	_, err := s.db.Exec(`
		UPDATE collect_runs SET finished_at = ?, status = ?, pages_scraped = ?,
			pages_skipped = ?, listings_found = ?, listings_new = ?,
			listings_deactivated = ?, tasks_enqueued = ?, errors_count = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.PagesScraped,
		run.PagesSkipped, run.ListingsFound, run.ListingsNew,
		run.ListingsDeactivated, run.TasksEnqueued, run.ErrorsCount, run.ID)
	return err
}

func (s *SQLiteStore) GetRun(id int64) (*models.CollectRun, error) {
	row := s.db.QueryRow(`
		SELECT id, search_id, site, started_at, finished_at, status, pages_scraped,
			pages_skipped, listings_found, listings_new, listings_deactivated,
			tasks_enqueued, errors_count
		FROM collect_runs WHERE id = ?`, id)

	var run models.CollectRun
	err := row.Scan(&run.ID, &run.SearchID, &run.Site, &run.StartedAt, &run.FinishedAt,
		&run.Status, &run.PagesScraped, &run.PagesSkipped, &run.ListingsFound,
		&run.ListingsNew, &run.ListingsDeactivated, &run.TasksEnqueued, &run.ErrorsCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *SQLiteStore) Log(runID *int64, level models.LogLevel, message, site string) error {
	_, err := s.db.Exec(`
		INSERT INTO run_logs (run_id, timestamp, level, message, site)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), level, message, site)
	return err
}

func (s *SQLiteStore) GetLastRunTime(site string) (time.Time, error) {
	var lastRun time.Time
	err := s.db.QueryRow(`
		SELECT last_run_at FROM site_stats WHERE site = ?`, site).Scan(&lastRun)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	return lastRun, err
}

func (s *SQLiteStore) UpdateSiteStats(site string) error {
	_, err := s.db.Exec(`
		INSERT INTO site_stats (site, last_run_at, last_run_status, total_runs, success_rate, avg_run_duration_sec)
		SELECT
			?,
			COALESCE(
				(SELECT started_at FROM collect_runs WHERE site = ? AND status = 'completed' ORDER BY started_at DESC LIMIT 1),
				(SELECT started_at FROM collect_runs WHERE site = ? ORDER BY started_at DESC LIMIT 1)
			),
			(SELECT status FROM collect_runs WHERE site = ? ORDER BY started_at DESC LIMIT 1),
			(SELECT COUNT(*) FROM collect_runs WHERE site = ?),
			(SELECT CAST(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) AS REAL) /
				NULLIF(COUNT(*), 0) FROM collect_runs WHERE site = ?),
			(SELECT AVG(CAST((julianday(finished_at) - julianday(started_at)) * 86400 AS INTEGER))
				FROM collect_runs WHERE site = ? AND finished_at IS NOT NULL)
		ON CONFLICT(site) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_run_status = excluded.last_run_status,
			total_runs = excluded.total_runs,
			success_rate = excluded.success_rate,
			avg_run_duration_sec = excluded.avg_run_duration_sec`,
		site, site, site, site, site, site, site)
	return err
}
