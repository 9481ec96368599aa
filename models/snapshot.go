package models

import "time"

type SnapshotStatus string

const (
	SnapshotStatusPending  SnapshotStatus = "pending"
	SnapshotStatusUploaded SnapshotStatus = "uploaded"
	SnapshotStatusFailed   SnapshotStatus = "failed"
)

// SnapshotArtifact is a debug capture (page screenshot or HTML dump) written
// by the enrichment path and optionally drained to S3 by the snapshot worker.
type SnapshotArtifact struct {
	ID         string         `json:"id" db:"id"`
	ListingID  int64          `json:"listing_id" db:"listing_id"`
	ExternalID string         `json:"external_id" db:"external_id"`
	Kind       string         `json:"kind" db:"kind"` // png or html
	LocalPath  string         `json:"local_path" db:"local_path"`
	RemoteKey  string         `json:"remote_key" db:"remote_key"`
	Status     SnapshotStatus `json:"status" db:"status"`
	Attempts   int            `json:"attempts" db:"attempts"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	UploadedAt *time.Time     `json:"uploaded_at" db:"uploaded_at"`
}
