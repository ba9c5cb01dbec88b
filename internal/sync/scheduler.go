package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/portfolio-tracker/internal/logging"
)

// SyncFunc runs a full sync for one integration id.
type SyncFunc func(ctx context.Context, integrationID string) error

// IntegrationLister supplies the integrations due for a background sync.
type IntegrationLister interface {
	ListIntegrationIDs(ctx context.Context) ([]string, error)
}

// Scheduler periodically re-syncs every integration. Sync stays user-triggered
// when the interval is zero; the scheduler is a convenience on top of the same
// orchestrator path, not a separate write path.
type Scheduler struct {
	lister   IntegrationLister
	syncFn   SyncFunc
	interval time.Duration
	logger   *logging.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewScheduler creates a scheduler. interval must be positive.
func NewScheduler(lister IntegrationLister, syncFn SyncFunc, interval time.Duration, logger *logging.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive, got %v", interval)
	}
	if lister == nil || syncFn == nil {
		return nil, fmt.Errorf("scheduler requires a lister and a sync function")
	}
	return &Scheduler{
		lister:   lister,
		syncFn:   syncFn,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins the background loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.WithField("interval", s.interval.String()).Info("starting sync scheduler")
	go s.loop(ctx)
	return nil
}

// Stop signals the loop and waits for it to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.mu.Unlock()

	close(s.stopCh)
	select {
	case <-s.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	ids, err := s.lister.ListIntegrationIDs(ctx)
	if err != nil {
		s.logger.WithError(err).Error("scheduler failed to list integrations")
		return
	}

	for _, id := range ids {
		if err := s.syncFn(ctx, id); err != nil {
			// A locked or failing integration must not stop the rest.
			s.logger.WithError(err).WithField("integration", id).Warn("scheduled sync failed")
		}
	}
}
