/*
scheduler.go - Automated reconciliation scheduler

PURPOSE:
  Periodically runs the reconciliation sweep: removes duplicate package
  rows and promotes waiting packages for members whose active package
  drained without an inline promotion (legacy rows, manual edits).

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each pass is idempotent; a repeat pass over a clean database is a no-op
  - Promotion failures for one member do not stop the sweep

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewReconciliationScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: CleanupDuplicates endpoint (manual trigger)
  - reconcile/jobs.go: the jobs this scheduler drives
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReconciliationScheduler drives the periodic reconciliation sweep.
type ReconciliationScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReconciliationScheduler creates a new scheduler over the handler's
// domain components.
func NewReconciliationScheduler(handler *Handler) *ReconciliationScheduler {
	return &ReconciliationScheduler{
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (rs *ReconciliationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Handler.Log.Info("scheduler disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run()

	rs.Handler.Log.Info("scheduler started", zap.Duration("interval", rs.CheckInterval))
}

// Stop stops the scheduler.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.Handler.Log.Info("scheduler stopped")
	}
}

func (rs *ReconciliationScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.sweep()

	for {
		select {
		case <-rs.ticker.C:
			rs.sweep()
		case <-rs.stop:
			return
		}
	}
}

func (rs *ReconciliationScheduler) sweep() (deleted, promoted int) {
	ctx := context.Background()
	log := rs.Handler.Log

	deleted, err := rs.Handler.Jobs.CleanupDuplicatePackages(ctx)
	if err != nil {
		log.Error("duplicate cleanup failed", zap.Error(err))
	}

	members, err := rs.Handler.Store.ListMembers(ctx)
	if err != nil {
		log.Error("listing members failed", zap.Error(err))
		return deleted, 0
	}

	for _, m := range members {
		if !m.IsActive || !m.Exhausted() {
			continue
		}
		if err := rs.Handler.Activator.ActivateWaiting(ctx, m.ID); err != nil {
			log.Warn("activation sweep failed for member",
				zap.Int64("member_id", m.ID), zap.Error(err))
			continue
		}
		// ActivateWaiting is a no-op when nothing is queued; only count it
		// when the member's balance actually moved.
		after, err := rs.Handler.Store.GetMember(ctx, m.ID)
		if err != nil {
			log.Warn("re-reading member after activation failed",
				zap.Int64("member_id", m.ID), zap.Error(err))
			continue
		}
		if after != nil && !after.Exhausted() {
			promoted++
		}
	}

	if deleted > 0 || promoted > 0 {
		log.Info("reconciliation sweep completed",
			zap.Int("duplicates_deleted", deleted),
			zap.Int("packages_promoted", promoted))
	}
	return deleted, promoted
}

// RunNow triggers an immediate sweep and reports what it changed
// (for testing/admin).
func (rs *ReconciliationScheduler) RunNow() (deleted, promoted int) {
	return rs.sweep()
}

// NextRunTime returns when the next scheduled sweep will occur.
func (rs *ReconciliationScheduler) NextRunTime() time.Time {
	return time.Now().Add(rs.CheckInterval)
}
