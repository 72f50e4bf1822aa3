package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/searchlight/internal/core/domain"
	"github.com/custodia-labs/searchlight/internal/core/ports/driving"
)

// defaultSyncInterval is how often scheduled sync cycles fire.
const defaultSyncInterval = 15 * time.Minute

// Scheduler triggers sync cycles on a fixed interval.
// It is a pure core service with no external control API.
type Scheduler struct {
	interval time.Duration
	syncOrch driving.SyncOrchestrator
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler that fires every interval.
// A non-positive interval falls back to the default.
func NewScheduler(interval time.Duration, syncOrch driving.SyncOrchestrator, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	return &Scheduler{
		interval: interval,
		syncOrch: syncOrch,
		logger:   logger.Named("scheduler"),
	}
}

// Start begins the scheduler loop. This method blocks until Stop is
// called or the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))

	// A fresh process should not wait a full interval before its first
	// index pass.
	s.runScheduledSync(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.runScheduledSync(ctx)
		}
	}
}

// Stop gracefully shuts down the scheduler and waits for an in-flight
// cycle to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// runScheduledSync fires one cycle. An overlapping cycle drops the tick
// rather than queueing it.
func (s *Scheduler) runScheduledSync(ctx context.Context) {
	_, err := s.syncOrch.RunCycle(ctx, domain.TriggerScheduled)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrSyncInProgress):
		s.logger.Info("skipping scheduled sync, previous cycle still running")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Debug("scheduled sync cancelled", zap.Error(err))
	default:
		// RunCycle already logged the details.
		s.logger.Warn("scheduled sync failed", zap.Error(err))
	}
}
