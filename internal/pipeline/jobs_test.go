package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	// SHA-256 of "hello world" is well-known.
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
}

func TestContentHashHex_DifferentInputs(t *testing.T) {
	h1 := ContentHashHex([]byte("aaa"))
	h2 := ContentHashHex([]byte("bbb"))
	if h1 == h2 {
		t.Error("expected different hashes for different inputs")
	}
}

func TestContentHashHex_EmptyInput(t *testing.T) {
	h := ContentHashHex([]byte{})
	// SHA-256 of empty input is well-known.
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if h != want {
		t.Errorf("expected hash %q, got %q", want, h)
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := NewJob("owner-1", "pack.docx", []byte("data"), 0)
	if job.Status != StatusQueued || job.MaxAttempts != DefaultMaxAttempts {
		t.Fatalf("unexpected new job %+v", job.Snapshot())
	}
	if job.ContentHash != ContentHashHex([]byte("data")) {
		t.Errorf("expected content hash of file data")
	}

	ctx, ok := job.begin(context.Background())
	if !ok || ctx == nil {
		t.Fatal("expected queued job to begin")
	}
	if job.Status != StatusRunning {
		t.Errorf("expected status %q, got %q", StatusRunning, job.Status)
	}

	before := job.UpdatedAt
	time.Sleep(time.Millisecond)
	n, ok := job.startAttempt()
	if !ok || n != 1 {
		t.Fatalf("expected attempt 1, got %d (ok=%v)", n, ok)
	}
	if !job.UpdatedAt.After(before) {
		t.Error("expected UpdatedAt to advance")
	}

	job.scheduleRetry(errors.New("database is locked"), time.Now().Add(time.Second))
	snap := job.Snapshot()
	if snap.Status != StatusQueued || snap.RetryAfter == nil || !snap.Retryable {
		t.Errorf("expected queued retry, got %+v", snap)
	}

	job.startAttempt()
	job.Succeed("pkg-1", []string{"w"})
	snap = job.Snapshot()
	if snap.Status != StatusSucceeded || snap.PackageID != "pkg-1" || snap.Attempts != 2 {
		t.Errorf("unexpected final snapshot %+v", snap)
	}
	if snap.RetryAfter != nil || snap.Error != "" {
		t.Errorf("expected retry state cleared, got %+v", snap)
	}
	if job.FileData() != nil {
		t.Error("expected file data released")
	}
}

func TestJob_FailRecordsRetryable(t *testing.T) {
	job := NewJob("o", "a.txt", nil, 1)
	job.Fail("importing", &RetryableError{Err: errors.New("busy")})
	snap := job.Snapshot()
	if snap.Status != StatusFailed || !snap.Retryable || snap.Phase != "importing" {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	job = NewJob("o", "a.txt", nil, 1)
	job.Fail("parsing", errors.New("no tours"))
	if job.Snapshot().Retryable {
		t.Error("expected plain error to be non-retryable")
	}
}

func TestJob_CancelQueued(t *testing.T) {
	job := NewJob("o", "a.txt", []byte("x"), 1)
	if !job.Cancel() {
		t.Fatal("expected queued job to cancel")
	}
	if _, ok := job.begin(context.Background()); ok {
		t.Error("expected cancelled job not to begin")
	}
	job.Fail("extracting", errors.New("late"))
	if job.Status != StatusCancelled {
		t.Errorf("expected cancelled status to stick, got %q", job.Status)
	}
	if job.Cancel() {
		t.Error("expected second cancel to report false")
	}
}

func TestJob_CancelRunningInterruptsContext(t *testing.T) {
	job := NewJob("o", "a.txt", []byte("x"), 1)
	ctx, _ := job.begin(context.Background())
	job.Cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("expected job context cancelled")
	}
	if _, ok := job.startAttempt(); ok {
		t.Error("expected no attempt after cancel")
	}
	job.Fail("importing", errors.New("late"))
	if job.Status != StatusCancelled {
		t.Errorf("expected cancelled status to stick, got %q", job.Status)
	}
}

func TestJob_SucceedOverridesLateCancel(t *testing.T) {
	job := NewJob("o", "a.txt", []byte("x"), 1)
	job.begin(context.Background())
	job.startAttempt()
	job.Cancel()
	job.Succeed("pkg-1", nil)
	snap := job.Snapshot()
	if snap.Status != StatusSucceeded || snap.PackageID != "pkg-1" {
		t.Errorf("expected committed import to win, got %+v", snap)
	}
}

func TestJob_SnapshotWarningsNotNil(t *testing.T) {
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Warnings == nil {
		t.Error("expected non-nil warnings slice in snapshot")
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
}

func TestJobStore_GetMissing(t *testing.T) {
	store := NewJobStore(time.Hour)
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := &Job{ID: "old", Status: StatusSucceeded, UpdatedAt: time.Now()}
	running := &Job{ID: "running", Status: StatusRunning, UpdatedAt: time.Now()}
	store.Put(expired)
	store.Put(running)

	// Wait for the TTL to pass.
	time.Sleep(100 * time.Millisecond)

	fresh := &Job{ID: "new", Status: StatusFailed, UpdatedAt: time.Now()}
	store.Put(fresh)

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("running") == nil {
		t.Error("expected unfinished job to survive cleanup")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
}

func TestJobStore_CleanupEmpty(t *testing.T) {
	store := NewJobStore(time.Hour)
	// Should not panic on empty store.
	store.Cleanup()
}
