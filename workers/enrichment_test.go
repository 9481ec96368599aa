package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"price_tracker/models"
	"price_tracker/queue"
)

type fakeQueue struct {
	acked  []int64
	nacked []int64
}

func (q *fakeQueue) Consume(ctx context.Context, consumer string) (*queue.Delivery, error) {
	return nil, nil
}

func (q *fakeQueue) Ack(ctx context.Context, d *queue.Delivery) error {
	q.acked = append(q.acked, d.ID)
	return nil
}

func (q *fakeQueue) Nack(ctx context.Context, d *queue.Delivery) error {
	q.nacked = append(q.nacked, d.ID)
	return nil
}

type fakeExtractor struct {
	outcome models.ExtractionOutcome
	tasks   []models.EnrichmentTask
}

func (e *fakeExtractor) Extract(ctx context.Context, task models.EnrichmentTask) models.ExtractionOutcome {
	e.tasks = append(e.tasks, task)
	return e.outcome
}

type fakeListings struct {
	applied     []int64
	deactivated []int64
	applyErr    error
}

func (l *fakeListings) ApplyDetail(ctx context.Context, listingID int64, fields *models.DetailFields, now time.Time) error {
	if l.applyErr != nil {
		return l.applyErr
	}
	l.applied = append(l.applied, listingID)
	return nil
}

func (l *fakeListings) Deactivate(ctx context.Context, listingID int64, now time.Time) error {
	l.deactivated = append(l.deactivated, listingID)
	return nil
}

type fakeSnapshots struct {
	artifacts []models.SnapshotArtifact
}

func (s *fakeSnapshots) InsertSnapshotArtifact(ctx context.Context, a *models.SnapshotArtifact) error {
	s.artifacts = append(s.artifacts, *a)
	return nil
}

func delivery() *queue.Delivery {
	return &queue.Delivery{
		ID: 42,
		Task: models.EnrichmentTask{
			ListingID:  9,
			ExternalID: "166123456789",
			URL:        "https://www.ebay.com/itm/166123456789",
			SearchID:   7,
		},
		EnqueuedAt: time.Now(),
	}
}

func TestProcess_SuccessAppliesAndAcks(t *testing.T) {
	q := &fakeQueue{}
	listings := &fakeListings{}
	extractor := &fakeExtractor{outcome: models.Success(&models.DetailFields{Region: "USA"})}

	w := NewEnrichmentWorker("worker-0", q, extractor, listings, nil, time.Second)
	w.Process(context.Background(), delivery())

	if len(listings.applied) != 1 || listings.applied[0] != 9 {
		t.Fatalf("expected detail applied to listing 9, got %v", listings.applied)
	}
	if len(q.acked) != 1 || q.acked[0] != 42 {
		t.Fatalf("expected delivery 42 acked, got %v", q.acked)
	}
	if len(q.nacked) != 0 {
		t.Fatalf("success must not nack")
	}
	if len(listings.deactivated) != 0 {
		t.Fatalf("success must not deactivate")
	}
}

func TestProcess_PermanentFailureDeactivatesAndAcks(t *testing.T) {
	q := &fakeQueue{}
	listings := &fakeListings{}
	extractor := &fakeExtractor{outcome: models.PermanentFailure(models.ReasonNotFound, nil)}

	w := NewEnrichmentWorker("worker-0", q, extractor, listings, nil, time.Second)
	w.Process(context.Background(), delivery())

	if len(listings.deactivated) != 1 || listings.deactivated[0] != 9 {
		t.Fatalf("expected listing 9 deactivated, got %v", listings.deactivated)
	}
	if len(q.acked) != 1 {
		t.Fatalf("permanent failure must ack, got %v", q.acked)
	}
	if len(q.nacked) != 0 {
		t.Fatalf("permanent failure must not nack")
	}
}

func TestProcess_TemporaryFailureNacks(t *testing.T) {
	q := &fakeQueue{}
	listings := &fakeListings{}
	extractor := &fakeExtractor{outcome: models.TemporaryFailure(models.ReasonTimeout, errors.New("deadline"))}

	w := NewEnrichmentWorker("worker-0", q, extractor, listings, nil, time.Second)
	w.Process(context.Background(), delivery())

	if len(q.nacked) != 1 || q.nacked[0] != 42 {
		t.Fatalf("expected delivery 42 nacked, got %v", q.nacked)
	}
	if len(q.acked) != 0 {
		t.Fatalf("temporary failure must not ack")
	}
	if len(listings.applied) != 0 || len(listings.deactivated) != 0 {
		t.Fatalf("temporary failure must not touch the listing")
	}
}

func TestProcess_ApplyErrorNacksInsteadOfAck(t *testing.T) {
	q := &fakeQueue{}
	listings := &fakeListings{applyErr: errors.New("db down")}
	extractor := &fakeExtractor{outcome: models.Success(&models.DetailFields{})}

	w := NewEnrichmentWorker("worker-0", q, extractor, listings, nil, time.Second)
	w.Process(context.Background(), delivery())

	if len(q.acked) != 0 {
		t.Fatalf("failed write must not ack")
	}
	if len(q.nacked) != 1 {
		t.Fatalf("failed write must nack for redelivery, got %v", q.nacked)
	}
}

func TestRecordSnapshot(t *testing.T) {
	q := &fakeQueue{}
	snapshots := &fakeSnapshots{}
	extractor := &fakeExtractor{outcome: models.Success(&models.DetailFields{})}

	w := NewEnrichmentWorker("worker-0", q, extractor, &fakeListings{}, snapshots, time.Second)

	d := delivery()
	w.current = d.Task
	w.RecordSnapshot("png", "snapshots/20260828_101500_166123456789.png")
	w.RecordSnapshot("html", "snapshots/20260828_101500_166123456789.html")
	w.RecordSnapshot("png", "") // nothing was written

	if len(snapshots.artifacts) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(snapshots.artifacts))
	}
	a := snapshots.artifacts[0]
	if a.ListingID != 9 || a.ExternalID != "166123456789" {
		t.Fatalf("artifact not attributed to task: %+v", a)
	}
	if a.Kind != "png" || a.Status != models.SnapshotStatusPending {
		t.Fatalf("unexpected artifact %+v", a)
	}
	if a.ID == "" || a.ID == snapshots.artifacts[1].ID {
		t.Fatalf("artifacts need distinct ids")
	}
}
