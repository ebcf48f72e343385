package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/leafwise/leafwise-sync/internal/domain"
)

// syncRunner is what the scheduler needs from the sync service.
type syncRunner interface {
	SyncNow(ctx context.Context) *domain.SyncResult
}

// Scheduler triggers periodic sync cycles. Start and stop are idempotent,
// and stopping waits for an in-flight cycle to finish rather than cutting
// it off mid-push.
type Scheduler struct {
	runner   syncRunner
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewScheduler creates a scheduler firing every interval.
func NewScheduler(runner syncRunner, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
	}
}

// StartAutoSync begins periodic syncing. The first cycle runs immediately;
// subsequent ones fire every interval. Calling it while already running is
// a no-op.
func (s *Scheduler) StartAutoSync() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.run(s.stopCh)

	s.logger.Info("auto sync started", "interval", s.interval)
}

// StopAutoSync halts periodic syncing and waits for any in-flight cycle to
// complete. Calling it while stopped is a no-op.
func (s *Scheduler) StopAutoSync() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("auto sync stopped")
}

// Running reports whether the scheduler is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(stopCh chan struct{}) {
	defer s.wg.Done()

	s.cycle()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.cycle()
		}
	}
}

func (s *Scheduler) cycle() {
	result := s.runner.SyncNow(context.Background())
	if result.AlreadyActive {
		s.logger.Debug("scheduled sync skipped, cycle already active")
		return
	}
	if !result.Success {
		s.logger.Warn("scheduled sync failed",
			"errors", result.Errors,
			"pushed", result.PushedCount,
			"pulled", result.PulledCount,
		)
	}
}
