// Package scheduler runs the sync engine in the background: a periodic
// flush while online, plus an immediate one on every offline-to-online
// transition.
package scheduler

import (
	"context"
	gosync "sync"
	"time"

	"github.com/indianbuild/passport-core/internal/errors"
	"github.com/indianbuild/passport-core/internal/logging"
	"github.com/indianbuild/passport-core/internal/sync"
)

const (
	defaultSyncInterval = 15 * time.Minute
	syncPassTimeout     = 10 * time.Minute
)

// Scheduler drives automatic sync passes.
type Scheduler struct {
	engine  *sync.Engine
	monitor *sync.Monitor

	syncInterval time.Duration

	mu        gosync.RWMutex
	isRunning bool

	stopCh chan struct{}
	wg     gosync.WaitGroup
	unsub  func()
}

// NewScheduler creates a scheduler over the engine and monitor. A
// non-positive interval falls back to the 15 minute default.
func NewScheduler(engine *sync.Engine, monitor *sync.Monitor, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	return &Scheduler{
		engine:       engine,
		monitor:      monitor,
		syncInterval: interval,
	}
}

// Start launches the periodic and reconnect loops. Calling Start on a
// running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	transitions, unsub := s.monitor.Subscribe()
	s.unsub = unsub

	s.wg.Add(2)
	go s.periodicLoop(ctx)
	go s.reconnectLoop(ctx, transitions)

	logging.Info("Sync scheduler started", map[string]interface{}{
		"interval": s.syncInterval.String(),
	})
}

// Stop halts both loops and waits for them to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	if s.unsub != nil {
		s.unsub()
	}
	s.wg.Wait()

	logging.Info("Sync scheduler stopped", nil)
}

// IsRunning reports whether the scheduler loops are active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// TriggerSync runs one sync pass immediately, outside the schedule.
func (s *Scheduler) TriggerSync(ctx context.Context) (*sync.Result, error) {
	return s.engine.Sync(ctx)
}

// Status reports the scheduler and engine state for the status endpoint.
func (s *Scheduler) Status() map[string]interface{} {
	status := map[string]interface{}{
		"running":          s.IsRunning(),
		"online":           s.monitor.Online(),
		"sync_in_progress": s.engine.InProgress(),
		"interval":         s.syncInterval.String(),
	}
	if last := s.engine.LastSync(); last != nil {
		status["last_sync"] = last.UTC().Format(time.RFC3339)
	}
	if err := s.engine.LastError(); err != nil {
		status["last_error"] = err.Error()
	}
	return status
}

func (s *Scheduler) periodicLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.monitor.Online() {
				logging.Debug("Periodic sync skipped - device offline", nil)
				continue
			}
			s.runSync(ctx, "periodic")
		}
	}
}

func (s *Scheduler) reconnectLoop(ctx context.Context, transitions <-chan bool) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case online, ok := <-transitions:
			if !ok {
				return
			}
			if online {
				s.runSync(ctx, "reconnect")
			}
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context, trigger string) {
	passCtx, cancel := context.WithTimeout(ctx, syncPassTimeout)
	defer cancel()

	result, err := s.engine.Sync(passCtx)
	if err != nil {
		if errors.Is(err, errors.ErrSyncInProgress) {
			logging.Debug("Sync pass skipped - already in progress",
				map[string]interface{}{"trigger": trigger})
			return
		}
		logging.Error("Scheduled sync pass failed", err,
			map[string]interface{}{"trigger": trigger})
		return
	}

	if result.Attempted > 0 {
		logging.Info("Scheduled sync pass finished", map[string]interface{}{
			"trigger":   trigger,
			"attempted": result.Attempted,
			"synced":    result.Synced,
			"failed":    result.Failed,
		})
	}
}
