package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BatchRunner runs one reconciliation pass over the pending invoices
type BatchRunner interface {
	Run(ctx context.Context) error
}

// BatchRunnerFunc adapts a function to the BatchRunner interface
type BatchRunnerFunc func(ctx context.Context) error

// Run calls the wrapped function
func (f BatchRunnerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// SyncSchedulerConfig holds configuration for the periodic sync scheduler
type SyncSchedulerConfig struct {
	// Enabled indicates if periodic reconciliation is on
	Enabled bool
	// Interval is the time between reconciliation passes
	Interval time.Duration
	// RunTimeout is the maximum time a single pass can run
	RunTimeout time.Duration
}

// DefaultSyncSchedulerConfig returns default scheduler configuration
func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		Enabled:    true,
		Interval:   5 * time.Minute,
		RunTimeout: 30 * time.Minute,
	}
}

// SyncScheduler triggers reconciliation passes on a fixed interval. A pass
// that is still running when the next tick fires is not overlapped; the
// tick is skipped instead.
type SyncScheduler struct {
	config SyncSchedulerConfig
	runner BatchRunner
	logger *zap.Logger

	mu       sync.Mutex
	running  bool
	passBusy bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewSyncScheduler creates a new SyncScheduler
func NewSyncScheduler(config SyncSchedulerConfig, runner BatchRunner, logger *zap.Logger) *SyncScheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultSyncSchedulerConfig().Interval
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = DefaultSyncSchedulerConfig().RunTimeout
	}
	return &SyncScheduler{
		config: config,
		runner: runner,
		logger: logger,
	}
}

// Start launches the scheduling loop. It is a no-op when the scheduler is
// disabled or already started.
func (s *SyncScheduler) Start() {
	if !s.config.Enabled {
		s.logger.Info("Reconciliation sync scheduler disabled")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})

	s.wg.Add(1)
	go s.loop(s.stopChan)

	s.logger.Info("Reconciliation sync scheduler started",
		zap.Duration("interval", s.config.Interval))
}

// Stop halts the scheduling loop and waits for an in-flight pass to finish
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Reconciliation sync scheduler stopped")
}

func (s *SyncScheduler) loop(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.runOnce()
		}
	}
}

// runOnce executes a single pass, skipping the tick when the previous pass
// has not finished yet
func (s *SyncScheduler) runOnce() {
	s.mu.Lock()
	if s.passBusy {
		s.mu.Unlock()
		s.logger.Warn("Previous reconciliation pass still running, skipping tick")
		return
	}
	s.passBusy = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.passBusy = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.RunTimeout)
	defer cancel()

	start := time.Now()
	if err := s.runner.Run(ctx); err != nil {
		s.logger.Error("Reconciliation pass failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}

	s.logger.Info("Reconciliation pass finished",
		zap.Duration("elapsed", time.Since(start)))
}
