package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// CollectRun records one collector pass over a Search. A failed run performed
// no reconciliation and enqueued nothing; its counters reflect work done
// before the abort.
type CollectRun struct {
	ID                  int64      `json:"id" db:"id"`
	SearchID            int64      `json:"search_id" db:"search_id"`
	Site                string     `json:"site" db:"site"`
	StartedAt           time.Time  `json:"started_at" db:"started_at"`
	FinishedAt          *time.Time `json:"finished_at" db:"finished_at"`
	Status              RunStatus  `json:"status" db:"status"`
	PagesScraped        int        `json:"pages_scraped" db:"pages_scraped"`
	PagesSkipped        int        `json:"pages_skipped" db:"pages_skipped"`
	ListingsFound       int        `json:"listings_found" db:"listings_found"`
	ListingsNew         int        `json:"listings_new" db:"listings_new"`
	ListingsDeactivated int        `json:"listings_deactivated" db:"listings_deactivated"`
	TasksEnqueued       int        `json:"tasks_enqueued" db:"tasks_enqueued"`
	ErrorsCount         int        `json:"errors_count" db:"errors_count"`
}
