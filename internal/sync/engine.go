// Package sync provides the best-effort flush of pending uploads to the
// remote passport registry, plus connectivity tracking used to trigger it.
package sync

import (
	"context"
	"time"

	"github.com/indianbuild/passport-core/internal/errors"
	"github.com/indianbuild/passport-core/internal/logging"
	"github.com/indianbuild/passport-core/internal/models"
	"github.com/indianbuild/passport-core/internal/queue"
	gosync "sync"
)

// Submitter pushes one pending upload to the remote registry. The transport
// is injected: production uses HTTPSubmitter, tests use stubs. Submissions
// must be re-attemptable; the engine may retry the same record after a
// failure or an interrupted run.
type Submitter interface {
	Submit(ctx context.Context, upload *models.PendingUpload) error
}

// Listener receives engine lifecycle notifications (host UIs broadcast
// these over the event bridge). All methods may be called from the sync
// goroutine.
type Listener interface {
	SyncStarted()
	SyncCompleted(result *Result)
	SyncFailed(err error)
}

// Config controls retry and pacing behavior.
type Config struct {
	// MaxRetries caps automatic attempts per record; 0 means unbounded
	// (records retry until they sync or the user intervenes).
	MaxRetries int
	// SubmitTimeout bounds a single remote submission; 0 disables the bound.
	SubmitTimeout time.Duration
	// BackoffBase is the delay after the first failure; doubles per retry.
	BackoffBase time.Duration
	// BackoffCap bounds the exponential backoff delay.
	BackoffCap time.Duration
}

// DefaultConfig returns the default engine configuration: unbounded retries
// with a one minute base backoff capped at an hour, 30s per attempt.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    0,
		SubmitTimeout: 30 * time.Second,
		BackoffBase:   time.Minute,
		BackoffCap:    time.Hour,
	}
}

// Outcome is the per-record result of a sync pass.
type Outcome struct {
	ID      models.UUID `json:"id"`
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
}

// Result summarizes one sync pass.
type Result struct {
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Offline   bool          `json:"offline"`
	Attempted int           `json:"attempted"`
	Synced    int           `json:"synced"`
	Failed    int           `json:"failed"`
	Outcomes  []Outcome     `json:"outcomes"`
}

// Engine drains eligible pending uploads to the registry. A single engine
// serves the whole process; concurrent Sync calls are rejected rather than
// racing over the same records.
type Engine struct {
	queue     *queue.Queue
	submitter Submitter
	monitor   *Monitor
	cfg       Config

	mu         gosync.Mutex
	inProgress bool
	lastSync   *time.Time
	lastErr    error
	listener   Listener

	nowFunc func() time.Time
}

// NewEngine creates a sync engine over the given queue, submitter and
// connectivity monitor.
func NewEngine(q *queue.Queue, submitter Submitter, monitor *Monitor, cfg Config) *Engine {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Minute
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = time.Hour
	}
	return &Engine{
		queue:     q,
		submitter: submitter,
		monitor:   monitor,
		cfg:       cfg,
		nowFunc:   time.Now,
	}
}

// SetListener registers a lifecycle listener. Pass nil to remove it.
func (e *Engine) SetListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = l
}

// LastSync returns the completion time of the last finished sync pass.
func (e *Engine) LastSync() *time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync
}

// LastError returns the failure of the last pass, nil when it succeeded.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// InProgress reports whether a sync pass is currently running.
func (e *Engine) InProgress() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inProgress
}

// Sync attempts a remote submission for every eligible pending upload.
// Records are processed sequentially and failures are isolated: one bad
// record never aborts the rest. Per-record outcomes come back as data, not
// errors. When the device is offline the pass is a no-op reporting zero
// attempted records. A second concurrent call reports SYNC_IN_PROGRESS.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
	result := &Result{StartTime: e.nowFunc()}

	if !e.monitor.Online() {
		result.Offline = true
		result.EndTime = e.nowFunc()
		logging.Debug("Sync skipped - device offline", nil)
		return result, nil
	}

	e.mu.Lock()
	if e.inProgress {
		e.mu.Unlock()
		return nil, errors.New(errors.ErrSyncInProgress, "sync already in progress")
	}
	e.inProgress = true
	listener := e.listener
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.inProgress = false
		e.mu.Unlock()
	}()

	if listener != nil {
		listener.SyncStarted()
	}

	now := e.nowFunc()
	eligible, err := e.queue.Repository().ListEligibleUploads(now.Unix())
	if err != nil {
		wrapped := errors.Wrap(errors.ErrSyncFailed, "failed to load pending uploads", err)
		e.finish(result, wrapped, listener)
		return nil, wrapped
	}

	for _, upload := range eligible {
		select {
		case <-ctx.Done():
			// Partial result: records already processed keep their new state.
			e.finish(result, ctx.Err(), listener)
			return result, ctx.Err()
		default:
		}

		if e.cfg.MaxRetries > 0 && upload.RetryCount >= e.cfg.MaxRetries {
			// Out of automatic attempts; stays pending until a manual retry.
			continue
		}

		result.Attempted++
		e.syncOne(ctx, upload, result)
	}

	e.finish(result, nil, listener)

	logging.Info("Sync pass completed", map[string]interface{}{
		"attempted": result.Attempted,
		"synced":    result.Synced,
		"failed":    result.Failed,
	})

	return result, nil
}

// syncOne attempts a single upload and records the outcome durably.
func (e *Engine) syncOne(ctx context.Context, upload *models.PendingUpload, result *Result) {
	attemptCtx := ctx
	if e.cfg.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, e.cfg.SubmitTimeout)
		defer cancel()
	}

	repo := e.queue.Repository()
	err := e.submitter.Submit(attemptCtx, upload)

	if err == nil {
		syncedAt := e.nowFunc().Unix()
		if dbErr := repo.MarkUploadSynced(string(upload.ID), syncedAt); dbErr != nil {
			logging.Error("Failed to mark upload synced", dbErr,
				map[string]interface{}{"upload_id": upload.ID.String()})
		}
		if dbErr := repo.CreateSyncAttempt(&models.SyncAttempt{
			UploadID: upload.ID,
			Success:  true,
		}); dbErr != nil {
			logging.Error("Failed to record sync attempt", dbErr, nil)
		}

		result.Synced++
		result.Outcomes = append(result.Outcomes, Outcome{ID: upload.ID, Success: true})
		return
	}

	backoff := calculateBackoff(upload.RetryCount+1, e.cfg.BackoffBase, e.cfg.BackoffCap)
	nextRetryAt := e.nowFunc().Add(backoff).Unix()

	if dbErr := repo.RecordUploadFailure(string(upload.ID), err.Error(), nextRetryAt); dbErr != nil {
		logging.Error("Failed to record upload failure", dbErr,
			map[string]interface{}{"upload_id": upload.ID.String()})
	}
	if dbErr := repo.CreateSyncAttempt(&models.SyncAttempt{
		UploadID: upload.ID,
		Success:  false,
		Error:    err.Error(),
	}); dbErr != nil {
		logging.Error("Failed to record sync attempt", dbErr, nil)
	}

	logging.ErrorWithCode("Upload submission failed", string(errors.ErrSyncFailed), err,
		map[string]interface{}{
			"upload_id":       upload.ID.String(),
			"retries":         upload.RetryCount + 1,
			"backoff_seconds": int64(backoff.Seconds()),
		})

	result.Failed++
	result.Outcomes = append(result.Outcomes, Outcome{ID: upload.ID, Success: false, Error: err.Error()})
}

// finish stamps the result, updates engine state and notifies the listener.
func (e *Engine) finish(result *Result, err error, listener Listener) {
	result.EndTime = e.nowFunc()
	result.Duration = result.EndTime.Sub(result.StartTime)

	e.mu.Lock()
	e.lastErr = err
	if err == nil {
		end := result.EndTime
		e.lastSync = &end
	}
	e.mu.Unlock()

	if listener == nil {
		return
	}
	if err != nil {
		listener.SyncFailed(err)
	} else {
		listener.SyncCompleted(result)
	}
}

// calculateBackoff returns the exponential backoff delay for the given retry
// count: base * 2^(retries-1), capped.
func calculateBackoff(retries int, base, cap time.Duration) time.Duration {
	if retries < 1 {
		retries = 1
	}
	// Shift overflow guard for long-lived records
	if retries > 30 {
		retries = 30
	}

	backoff := base * time.Duration(int64(1)<<uint(retries-1))
	if backoff > cap || backoff <= 0 {
		backoff = cap
	}
	return backoff
}
