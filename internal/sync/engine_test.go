package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/indianbuild/passport-core/internal/db"
	"github.com/indianbuild/passport-core/internal/errors"
	"github.com/indianbuild/passport-core/internal/models"
	"github.com/indianbuild/passport-core/internal/queue"
)

// stubSubmitter fails the IDs listed in failIDs and records call order.
type stubSubmitter struct {
	failIDs map[string]error
	calls   []string
	block   chan struct{}
}

func (s *stubSubmitter) Submit(_ context.Context, upload *models.PendingUpload) error {
	if s.block != nil {
		<-s.block
	}
	s.calls = append(s.calls, upload.ID.String())
	if err, ok := s.failIDs[upload.ID.String()]; ok {
		return err
	}
	return nil
}

func setupEngine(t *testing.T, submitter Submitter, online bool, cfg Config) (*Engine, *queue.Queue) {
	t.Helper()

	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := db.Migrate(database.DB); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	repo := db.NewRepository(database.DB)
	t.Cleanup(func() { repo.Close() })

	q := queue.New(repo)
	return NewEngine(q, submitter, NewMonitor(online), cfg), q
}

func enqueue(t *testing.T, q *queue.Queue, name string) models.UUID {
	t.Helper()
	id, err := q.EnqueueUpload(json.RawMessage(fmt.Sprintf(`{"productName":%q}`, name)))
	if err != nil {
		t.Fatalf("EnqueueUpload(%s) error = %v", name, err)
	}
	return id
}

// TestSync_MixedOutcomes runs a pass over three uploads where the middle one
// fails. Every record gets an outcome, the failure is isolated and the
// failed record stays pending with an incremented retry count.
func TestSync_MixedOutcomes(t *testing.T) {
	sub := &stubSubmitter{failIDs: map[string]error{}}
	engine, q := setupEngine(t, sub, true, DefaultConfig())

	idA := enqueue(t, q, "A")
	idB := enqueue(t, q, "B")
	idC := enqueue(t, q, "C")
	sub.failIDs[idB.String()] = fmt.Errorf("registry unavailable")

	result, err := engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync error = %v", err)
	}

	if result.Attempted != 3 || result.Synced != 2 || result.Failed != 1 {
		t.Errorf("result = attempted %d synced %d failed %d, want 3/2/1",
			result.Attempted, result.Synced, result.Failed)
	}
	if len(result.Outcomes) != 3 {
		t.Fatalf("len(Outcomes) = %d, want 3", len(result.Outcomes))
	}

	for _, outcome := range result.Outcomes {
		if outcome.ID == idB {
			if outcome.Success {
				t.Error("outcome for failed upload reports success")
			}
			if outcome.Error == "" {
				t.Error("outcome for failed upload has empty error")
			}
		} else if !outcome.Success {
			t.Errorf("outcome for %s = failure, want success", outcome.ID)
		}
	}

	for _, id := range []models.UUID{idA, idC} {
		upload, err := q.GetUpload(id.String())
		if err != nil {
			t.Fatalf("GetUpload(%s) error = %v", id, err)
		}
		if upload.Status != models.UploadStatusSynced {
			t.Errorf("upload %s status = %q, want synced", id, upload.Status)
		}
		if upload.SyncedAt == nil {
			t.Errorf("upload %s has nil SyncedAt after sync", id)
		}
	}

	failed, err := q.GetUpload(idB.String())
	if err != nil {
		t.Fatalf("GetUpload(failed) error = %v", err)
	}
	if failed.Status != models.UploadStatusPending {
		t.Errorf("failed upload status = %q, want pending", failed.Status)
	}
	if failed.RetryCount != 1 {
		t.Errorf("failed upload RetryCount = %d, want 1", failed.RetryCount)
	}
	if failed.LastError == "" {
		t.Error("failed upload LastError is empty")
	}
}

// TestSync_Offline verifies an offline pass touches nothing and is not an
// error.
func TestSync_Offline(t *testing.T) {
	sub := &stubSubmitter{}
	engine, q := setupEngine(t, sub, false, DefaultConfig())

	id := enqueue(t, q, "offline")

	result, err := engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync error = %v", err)
	}
	if !result.Offline {
		t.Error("result.Offline = false, want true")
	}
	if result.Attempted != 0 || len(sub.calls) != 0 {
		t.Errorf("offline pass attempted %d records, submitter called %d times",
			result.Attempted, len(sub.calls))
	}

	upload, err := q.GetUpload(id.String())
	if err != nil {
		t.Fatalf("GetUpload error = %v", err)
	}
	if upload.Status != models.UploadStatusPending || upload.RetryCount != 0 {
		t.Errorf("upload modified by offline pass: status=%q retries=%d",
			upload.Status, upload.RetryCount)
	}
}

// TestSync_OldestFirst verifies processing order follows enqueue order.
func TestSync_OldestFirst(t *testing.T) {
	sub := &stubSubmitter{}
	engine, q := setupEngine(t, sub, true, DefaultConfig())

	first := enqueue(t, q, "first")
	time.Sleep(1100 * time.Millisecond) // second-granularity timestamps
	second := enqueue(t, q, "second")

	if _, err := engine.Sync(context.Background()); err != nil {
		t.Fatalf("Sync error = %v", err)
	}

	want := []string{first.String(), second.String()}
	if len(sub.calls) != 2 || sub.calls[0] != want[0] || sub.calls[1] != want[1] {
		t.Errorf("submission order = %v, want %v", sub.calls, want)
	}
}

// TestSync_BackoffDefersRetry verifies a failed record is not re-attempted
// before its backoff window elapses.
func TestSync_BackoffDefersRetry(t *testing.T) {
	sub := &stubSubmitter{failIDs: map[string]error{}}
	engine, q := setupEngine(t, sub, true, DefaultConfig())

	id := enqueue(t, q, "flaky")
	sub.failIDs[id.String()] = fmt.Errorf("timeout")

	if _, err := engine.Sync(context.Background()); err != nil {
		t.Fatalf("first Sync error = %v", err)
	}

	result, err := engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("second Sync error = %v", err)
	}
	if result.Attempted != 0 {
		t.Errorf("second pass attempted %d records inside backoff window, want 0", result.Attempted)
	}

	upload, _ := q.GetUpload(id.String())
	if upload.NextRetryAt <= upload.CreatedAt {
		t.Errorf("NextRetryAt = %d not pushed past CreatedAt = %d", upload.NextRetryAt, upload.CreatedAt)
	}
}

// TestSync_MaxRetriesSkips verifies records at the retry cap are left alone.
func TestSync_MaxRetriesSkips(t *testing.T) {
	sub := &stubSubmitter{failIDs: map[string]error{}}
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	// Zero backoff keeps the record eligible for immediate re-attempts.
	cfg.BackoffBase = time.Nanosecond
	engine, q := setupEngine(t, sub, true, cfg)

	id := enqueue(t, q, "doomed")
	sub.failIDs[id.String()] = fmt.Errorf("permanent failure")

	for i := 0; i < 2; i++ {
		time.Sleep(1100 * time.Millisecond)
		if _, err := engine.Sync(context.Background()); err != nil {
			t.Fatalf("Sync #%d error = %v", i+1, err)
		}
	}

	time.Sleep(1100 * time.Millisecond)
	result, err := engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("final Sync error = %v", err)
	}
	if result.Attempted != 0 {
		t.Errorf("pass after retry cap attempted %d, want 0", result.Attempted)
	}

	upload, _ := q.GetUpload(id.String())
	if upload.RetryCount != 2 || upload.Status != models.UploadStatusPending {
		t.Errorf("capped upload = retries %d status %q, want 2/pending",
			upload.RetryCount, upload.Status)
	}

	// Manual retry clears the counter, making the record eligible again.
	if err := q.RetryUpload(id.String()); err != nil {
		t.Fatalf("RetryUpload error = %v", err)
	}
	delete(sub.failIDs, id.String())

	result, err = engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync after manual retry error = %v", err)
	}
	if result.Synced != 1 {
		t.Errorf("Synced after manual retry = %d, want 1", result.Synced)
	}
}

// TestSync_Reentrancy verifies a second concurrent pass is rejected.
func TestSync_Reentrancy(t *testing.T) {
	sub := &stubSubmitter{block: make(chan struct{})}
	engine, q := setupEngine(t, sub, true, DefaultConfig())
	enqueue(t, q, "slow")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := engine.Sync(context.Background()); err != nil {
			t.Errorf("background Sync error = %v", err)
		}
	}()

	// Wait until the first pass holds the guard.
	deadline := time.Now().Add(2 * time.Second)
	for !engine.InProgress() {
		if time.Now().After(deadline) {
			t.Fatal("first sync pass never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, err := engine.Sync(context.Background())
	if !errors.Is(err, errors.ErrSyncInProgress) {
		t.Errorf("concurrent Sync error = %v, want SYNC_IN_PROGRESS", err)
	}

	close(sub.block)
	<-done
}

// TestSync_RecordsAttemptHistory verifies each submission leaves a durable
// history row.
func TestSync_RecordsAttemptHistory(t *testing.T) {
	sub := &stubSubmitter{failIDs: map[string]error{}}
	engine, q := setupEngine(t, sub, true, DefaultConfig())

	id := enqueue(t, q, "tracked")
	sub.failIDs[id.String()] = fmt.Errorf("first attempt fails")

	if _, err := engine.Sync(context.Background()); err != nil {
		t.Fatalf("Sync error = %v", err)
	}

	attempts, err := q.Repository().ListSyncAttempts(id.String())
	if err != nil {
		t.Fatalf("ListSyncAttempts error = %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("len(attempts) = %d, want 1", len(attempts))
	}
	if attempts[0].Success || attempts[0].Error == "" {
		t.Errorf("attempt = success %v error %q, want recorded failure",
			attempts[0].Success, attempts[0].Error)
	}
}

type recordingListener struct {
	started   int
	completed []*Result
	failed    []error
}

func (l *recordingListener) SyncStarted()                 { l.started++ }
func (l *recordingListener) SyncCompleted(result *Result) { l.completed = append(l.completed, result) }
func (l *recordingListener) SyncFailed(err error)         { l.failed = append(l.failed, err) }

// TestSync_NotifiesListener verifies lifecycle callbacks fire on a pass.
func TestSync_NotifiesListener(t *testing.T) {
	sub := &stubSubmitter{}
	engine, q := setupEngine(t, sub, true, DefaultConfig())
	enqueue(t, q, "observed")

	listener := &recordingListener{}
	engine.SetListener(listener)

	if _, err := engine.Sync(context.Background()); err != nil {
		t.Fatalf("Sync error = %v", err)
	}

	if listener.started != 1 || len(listener.completed) != 1 || len(listener.failed) != 0 {
		t.Errorf("listener calls = started %d completed %d failed %d, want 1/1/0",
			listener.started, len(listener.completed), len(listener.failed))
	}
	if engine.LastSync() == nil {
		t.Error("LastSync is nil after a successful pass")
	}
}

func TestCalculateBackoff(t *testing.T) {
	base := time.Minute
	cap := time.Hour
	tests := []struct {
		retries int
		want    time.Duration
	}{
		{0, time.Minute},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{7, time.Hour}, // 2^6 minutes exceeds the cap
		{100, time.Hour},
	}

	for _, tt := range tests {
		if got := calculateBackoff(tt.retries, base, cap); got != tt.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.retries, got, tt.want)
		}
	}
}
