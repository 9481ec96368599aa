package workers

import (
	"context"
	"log"
	"os"
	"time"

	"price_tracker/models"
)

const snapshotMaxAttempts = 3

// SnapshotStore is the slice of the listing store the snapshot worker uses.
type SnapshotStore interface {
	GetPendingSnapshots(ctx context.Context, limit int) ([]models.SnapshotArtifact, error)
	UpdateSnapshotStatus(ctx context.Context, id string, status models.SnapshotStatus, remoteKey string, attempts int, uploadedAt *time.Time) error
}

// Uploader ships a local file to remote storage and returns its key.
type Uploader interface {
	UploadFile(ctx context.Context, localPath string) (string, error)
	PublicURL(key string) string
}

// SnapshotWorker drains pending snapshot artifacts to S3 and deletes the
// local files once they are safely uploaded.
type SnapshotWorker struct {
	store     SnapshotStore
	uploader  Uploader
	triggerCh chan struct{}
	keepLocal bool
}

func NewSnapshotWorker(store SnapshotStore, uploader Uploader) *SnapshotWorker {
	return &SnapshotWorker{
		store:     store,
		uploader:  uploader,
		triggerCh: make(chan struct{}, 1),
	}
}

// Trigger causes the worker to run a batch immediately.
func (w *SnapshotWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run starts the snapshot upload loop.
func (w *SnapshotWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Snapshot worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, batchSize)
		case <-w.triggerCh:
			w.processBatch(ctx, batchSize)
		}
	}
}

func (w *SnapshotWorker) processBatch(ctx context.Context, batchSize int) {
	artifacts, err := w.store.GetPendingSnapshots(ctx, batchSize)
	if err != nil {
		log.Printf("Snapshot worker: query error: %v", err)
		return
	}
	if len(artifacts) == 0 {
		return
	}

	log.Printf("Snapshot worker: uploading %d artifacts", len(artifacts))

	var uploaded, failed int
	for i := range artifacts {
		a := &artifacts[i]

		key, err := w.uploader.UploadFile(ctx, a.LocalPath)
		if err != nil {
			failed++
			log.Printf("Snapshot worker: upload %s failed: %v", a.LocalPath, err)

			attempts := a.Attempts + 1
			status := models.SnapshotStatusPending
			if attempts >= snapshotMaxAttempts {
				status = models.SnapshotStatusFailed
			}
			if err := w.store.UpdateSnapshotStatus(ctx, a.ID, status, "", attempts, nil); err != nil {
				log.Printf("Snapshot worker: status update %s failed: %v", a.ID, err)
			}
			continue
		}

		now := time.Now()
		if err := w.store.UpdateSnapshotStatus(ctx, a.ID, models.SnapshotStatusUploaded, key, a.Attempts, &now); err != nil {
			log.Printf("Snapshot worker: status update %s failed: %v", a.ID, err)
			failed++
			continue
		}
		uploaded++
		log.Printf("Snapshot worker: uploaded %s", w.uploader.PublicURL(key))

		if !w.keepLocal {
			if err := os.Remove(a.LocalPath); err != nil && !os.IsNotExist(err) {
				log.Printf("Warning: remove %s: %v", a.LocalPath, err)
			}
		}
	}

	if uploaded > 0 || failed > 0 {
		log.Printf("Snapshot worker: uploaded %d, failed %d", uploaded, failed)
	}
}
