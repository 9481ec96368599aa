package workers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"price_tracker/models"
)

type fakeSnapshotStore struct {
	pending []models.SnapshotArtifact
	updates []struct {
		id       string
		status   models.SnapshotStatus
		key      string
		attempts int
	}
}

func (s *fakeSnapshotStore) GetPendingSnapshots(ctx context.Context, limit int) ([]models.SnapshotArtifact, error) {
	return s.pending, nil
}

func (s *fakeSnapshotStore) UpdateSnapshotStatus(ctx context.Context, id string, status models.SnapshotStatus, remoteKey string, attempts int, uploadedAt *time.Time) error {
	s.updates = append(s.updates, struct {
		id       string
		status   models.SnapshotStatus
		key      string
		attempts int
	}{id, status, remoteKey, attempts})
	return nil
}

type fakeUploader struct {
	fail bool
}

func (u *fakeUploader) UploadFile(ctx context.Context, localPath string) (string, error) {
	if u.fail {
		return "", errors.New("s3 unreachable")
	}
	return "snapshots/" + filepath.Base(localPath), nil
}

func (u *fakeUploader) PublicURL(key string) string {
	return "https://bucket.s3.us-east-1.amazonaws.com/" + key
}

func TestSnapshotWorker_UploadsAndRemovesLocal(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "20260828_101500_166123456789.png")
	if err := os.WriteFile(local, []byte("png"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	store := &fakeSnapshotStore{pending: []models.SnapshotArtifact{
		{ID: "a1", LocalPath: local, Status: models.SnapshotStatusPending},
	}}
	w := NewSnapshotWorker(store, &fakeUploader{})

	w.processBatch(context.Background(), 10)

	if len(store.updates) != 1 {
		t.Fatalf("expected 1 status update, got %d", len(store.updates))
	}
	u := store.updates[0]
	if u.status != models.SnapshotStatusUploaded {
		t.Fatalf("expected uploaded status, got %s", u.status)
	}
	if u.key != "snapshots/20260828_101500_166123456789.png" {
		t.Fatalf("unexpected remote key %q", u.key)
	}
	if _, err := os.Stat(local); !os.IsNotExist(err) {
		t.Fatalf("local file should be removed after upload")
	}
}

func TestSnapshotWorker_FailureCountsAttempts(t *testing.T) {
	store := &fakeSnapshotStore{pending: []models.SnapshotArtifact{
		{ID: "a1", LocalPath: "/nonexistent.png", Attempts: 0},
		{ID: "a2", LocalPath: "/nonexistent.png", Attempts: 2},
	}}
	w := NewSnapshotWorker(store, &fakeUploader{fail: true})

	w.processBatch(context.Background(), 10)

	if len(store.updates) != 2 {
		t.Fatalf("expected 2 status updates, got %d", len(store.updates))
	}
	if store.updates[0].status != models.SnapshotStatusPending || store.updates[0].attempts != 1 {
		t.Fatalf("first failure should stay pending with attempts 1, got %+v", store.updates[0])
	}
	// Third failure crosses the attempt ceiling.
	if store.updates[1].status != models.SnapshotStatusFailed || store.updates[1].attempts != 3 {
		t.Fatalf("exhausted artifact should be failed, got %+v", store.updates[1])
	}
}
