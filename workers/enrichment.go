package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"price_tracker/models"
	"price_tracker/queue"
)

// TaskQueue is the slice of the work queue an enrichment worker drives.
type TaskQueue interface {
	Consume(ctx context.Context, consumer string) (*queue.Delivery, error)
	Ack(ctx context.Context, d *queue.Delivery) error
	Nack(ctx context.Context, d *queue.Delivery) error
}

// Extractor runs one enrichment attempt and classifies the result.
type Extractor interface {
	Extract(ctx context.Context, task models.EnrichmentTask) models.ExtractionOutcome
}

// ListingWriter applies extraction outcomes to the listing store.
type ListingWriter interface {
	ApplyDetail(ctx context.Context, listingID int64, fields *models.DetailFields, now time.Time) error
	Deactivate(ctx context.Context, listingID int64, now time.Time) error
}

// SnapshotRecorder persists snapshot artifact records for later upload.
type SnapshotRecorder interface {
	InsertSnapshotArtifact(ctx context.Context, a *models.SnapshotArtifact) error
}

// EnrichmentWorker consumes enrichment tasks one at a time and maps each
// extraction outcome onto the queue: success and permanent failures ack,
// temporary failures nack for redelivery with backoff.
type EnrichmentWorker struct {
	name      string
	queue     TaskQueue
	extractor Extractor
	listings  ListingWriter
	snapshots SnapshotRecorder
	poll      time.Duration
	clock     func() time.Time
	logFunc   LogFunc

	// set for the duration of one task so RecordSnapshot can attribute
	// artifacts; each worker runs on a single goroutine
	ctx     context.Context
	current models.EnrichmentTask
}

func NewEnrichmentWorker(name string, q TaskQueue, extractor Extractor, listings ListingWriter, snapshots SnapshotRecorder, poll time.Duration) *EnrichmentWorker {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &EnrichmentWorker{
		name:      name,
		queue:     q,
		extractor: extractor,
		listings:  listings,
		snapshots: snapshots,
		poll:      poll,
		clock:     time.Now,
		logFunc:   NoOpLogger,
	}
}

func (w *EnrichmentWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Run consumes until the context is cancelled. An empty queue is polled, not
// busy-waited.
func (w *EnrichmentWorker) Run(ctx context.Context) {
	w.ctx = ctx
	log.Printf("%s: started", w.name)

	for {
		if ctx.Err() != nil {
			log.Printf("%s: stopping", w.name)
			return
		}

		d, err := w.queue.Consume(ctx, w.name)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("%s: consume error: %v", w.name, err)
			}
			w.idle(ctx)
			continue
		}
		if d == nil {
			w.idle(ctx)
			continue
		}

		w.Process(ctx, d)
	}
}

// Process runs one delivered task through extraction and settles it.
func (w *EnrichmentWorker) Process(ctx context.Context, d *queue.Delivery) {
	w.current = d.Task
	defer func() { w.current = models.EnrichmentTask{} }()

	log.Printf("%s: task %s (attempt %d)", w.name, d.Task.ExternalID, d.Task.AttemptCount+1)

	outcome := w.extractor.Extract(ctx, d.Task)
	now := w.clock()

	switch outcome.Kind {
	case models.OutcomeSuccess:
		if err := w.listings.ApplyDetail(ctx, d.Task.ListingID, outcome.Fields, now); err != nil {
			// Extraction worked but the write did not; redeliver so the
			// fields are not lost.
			log.Printf("%s: apply detail for %s failed: %v", w.name, d.Task.ExternalID, err)
			w.nack(ctx, d)
			return
		}
		w.ack(ctx, d)
		log.Printf("%s: enriched %s", w.name, d.Task.ExternalID)

	case models.OutcomePermanentFailure:
		if err := w.listings.Deactivate(ctx, d.Task.ListingID, now); err != nil {
			log.Printf("%s: deactivate %s failed: %v", w.name, d.Task.ExternalID, err)
			w.nack(ctx, d)
			return
		}
		w.ack(ctx, d)
		log.Printf("%s: listing %s gone (%s)", w.name, d.Task.ExternalID, outcome.Reason)
		w.logFunc(models.LogLevelInfo, "enrichment",
			fmt.Sprintf("listing %s deactivated: %s", d.Task.ExternalID, outcome.Reason))

	case models.OutcomeTemporaryFailure:
		log.Printf("%s: task %s failed (%s): %v", w.name, d.Task.ExternalID, outcome.Reason, outcome.Err)
		w.nack(ctx, d)
	}
}

// RecordSnapshot registers a snapshot file written during the current task.
// Wired as the enricher's snapshot callback.
func (w *EnrichmentWorker) RecordSnapshot(kind, path string) {
	if w.snapshots == nil || path == "" {
		return
	}
	ctx := w.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	artifact := &models.SnapshotArtifact{
		ID:         uuid.NewString(),
		ListingID:  w.current.ListingID,
		ExternalID: w.current.ExternalID,
		Kind:       kind,
		LocalPath:  path,
		Status:     models.SnapshotStatusPending,
		CreatedAt:  w.clock(),
	}
	if err := w.snapshots.InsertSnapshotArtifact(ctx, artifact); err != nil {
		log.Printf("Warning: record snapshot %s: %v", path, err)
	}
}

func (w *EnrichmentWorker) ack(ctx context.Context, d *queue.Delivery) {
	if err := w.queue.Ack(ctx, d); err != nil {
		log.Printf("%s: ack %d failed: %v", w.name, d.ID, err)
	}
}

func (w *EnrichmentWorker) nack(ctx context.Context, d *queue.Delivery) {
	if err := w.queue.Nack(ctx, d); err != nil {
		log.Printf("%s: nack %d failed: %v", w.name, d.ID, err)
	}
}

func (w *EnrichmentWorker) idle(ctx context.Context) {
	t := time.NewTimer(w.poll)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
