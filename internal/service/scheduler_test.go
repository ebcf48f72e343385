package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafwise/leafwise-sync/internal/domain"
)

type countingRunner struct {
	mu        sync.Mutex
	started   int
	completed int
	delay     time.Duration
}

func (r *countingRunner) SyncNow(ctx context.Context) *domain.SyncResult {
	r.mu.Lock()
	r.started++
	r.mu.Unlock()

	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	r.completed++
	r.mu.Unlock()
	return &domain.SyncResult{Success: true}
}

func (r *countingRunner) counts() (started, completed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started, r.completed
}

func TestSchedulerRunsPeriodically(t *testing.T) {
	runner := &countingRunner{}
	s := NewScheduler(runner, 20*time.Millisecond, slog.New(slog.DiscardHandler))

	s.StartAutoSync()
	defer s.StopAutoSync()

	// One immediate cycle plus at least one tick.
	require.Eventually(t, func() bool {
		started, _ := runner.counts()
		return started >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestSchedulerStartIsIdempotent(t *testing.T) {
	runner := &countingRunner{}
	s := NewScheduler(runner, time.Hour, slog.New(slog.DiscardHandler))

	s.StartAutoSync()
	s.StartAutoSync()
	assert.True(t, s.Running())

	s.StopAutoSync()
	assert.False(t, s.Running())

	// Only the immediate cycle of the single loop ran.
	started, _ := runner.counts()
	assert.Equal(t, 1, started)
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	runner := &countingRunner{}
	s := NewScheduler(runner, time.Hour, slog.New(slog.DiscardHandler))

	// Stopping a never-started scheduler is a no-op.
	s.StopAutoSync()

	s.StartAutoSync()
	s.StopAutoSync()
	s.StopAutoSync()
	assert.False(t, s.Running())
}

func TestSchedulerStopWaitsForInflightCycle(t *testing.T) {
	runner := &countingRunner{delay: 50 * time.Millisecond}
	s := NewScheduler(runner, time.Hour, slog.New(slog.DiscardHandler))

	s.StartAutoSync()

	// Stop while the immediate cycle is still sleeping.
	require.Eventually(t, func() bool {
		started, _ := runner.counts()
		return started == 1
	}, time.Second, time.Millisecond)

	s.StopAutoSync()

	_, completed := runner.counts()
	assert.Equal(t, 1, completed, "the in-flight cycle must run to completion")
}

func TestSchedulerRestart(t *testing.T) {
	runner := &countingRunner{}
	s := NewScheduler(runner, time.Hour, slog.New(slog.DiscardHandler))

	s.StartAutoSync()
	s.StopAutoSync()
	s.StartAutoSync()
	defer s.StopAutoSync()

	require.Eventually(t, func() bool {
		started, _ := runner.counts()
		return started == 2
	}, time.Second, time.Millisecond)
	assert.True(t, s.Running())
}
