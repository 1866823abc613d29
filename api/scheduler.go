/*
scheduler.go - Reconciliation sweep scheduler

PURPOSE:
  Runs the reconciliation sweep on a fixed interval and once at start, and
  serves manual triggers from the API and CLI. The engine holds no cron
  state of its own; this scheduler is owned by the host process.

DESIGN:
  - Background loop with a ticker at Interval (default 24h)
  - Single-flight: a manual trigger that arrives while a sweep is running
    joins it instead of starting a second one
  - Each sweep is recorded as a SweepRun (running, then completed/failed)
  - Sweeps run detached from the caller's context with their own Timeout,
    so an abandoned HTTP request does not abort a shared sweep

CONFIGURATION:
  - Interval:   How often to sweep
  - RunOnStart: Sweep immediately when started
  - Enabled:    Whether the background loop runs (manual triggers still work)
  - Timeout:    Upper bound for one sweep

USAGE:
  scheduler := NewSweepScheduler(reconciler, store, logger, cfg)
  go scheduler.Run(ctx) // returns when ctx is cancelled

SEE ALSO:
  - handlers.go: TriggerSweep endpoint (manual sweep)
  - lifecycle/reconcile.go: Reconciler
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/compliance-engine/lifecycle"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Sweep triggers recorded on SweepRun.Trigger.
const (
	TriggerSchedule = "schedule"
	TriggerStartup  = "startup"
	TriggerManual   = "manual"
	TriggerCLI      = "cli"
)

// SchedulerConfig configures a SweepScheduler.
type SchedulerConfig struct {
	Enabled    bool
	Interval   time.Duration
	RunOnStart bool
	Timeout    time.Duration
}

// SweepScheduler handles scheduled and manual reconciliation sweeps.
type SweepScheduler struct {
	Reconciler *lifecycle.Reconciler
	Runs       lifecycle.SweepRunStore
	Logger     *zap.Logger
	Config     SchedulerConfig

	// Clock supplies "now" for each sweep.
	Clock func() time.Time

	group   singleflight.Group
	mu      sync.Mutex
	nextRun time.Time
}

// NewSweepScheduler creates a new scheduler.
func NewSweepScheduler(rec *lifecycle.Reconciler, runs lifecycle.SweepRunStore, logger *zap.Logger, cfg SchedulerConfig) *SweepScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &SweepScheduler{
		Reconciler: rec,
		Runs:       runs,
		Logger:     logger.Named("scheduler"),
		Config:     cfg,
		Clock:      time.Now,
	}
}

// Run loops until ctx is done. When disabled it only waits; manual
// triggers through RunNow still work.
func (s *SweepScheduler) Run(ctx context.Context) error {
	if !s.Config.Enabled {
		s.Logger.Info("disabled, not starting")
		<-ctx.Done()
		return nil
	}
	s.loop(ctx)
	return nil
}

func (s *SweepScheduler) loop(ctx context.Context) {
	s.Logger.Info("started",
		zap.Duration("interval", s.Config.Interval),
		zap.Bool("run_on_start", s.Config.RunOnStart))

	if s.Config.RunOnStart {
		s.RunNow(ctx, TriggerStartup)
	}

	ticker := time.NewTicker(s.Config.Interval)
	defer ticker.Stop()
	s.setNextRun(s.Clock().Add(s.Config.Interval))
	defer s.setNextRun(time.Time{})

	for {
		select {
		case <-ticker.C:
			s.setNextRun(s.Clock().Add(s.Config.Interval))
			s.RunNow(ctx, TriggerSchedule)
		case <-ctx.Done():
			s.Logger.Info("stopped")
			return
		}
	}
}

func (s *SweepScheduler) setNextRun(t time.Time) {
	s.mu.Lock()
	s.nextRun = t
	s.mu.Unlock()
}

// RunNow runs a sweep, or joins the one already running. shared reports
// whether the result came from a sweep started by another caller.
func (s *SweepScheduler) RunNow(ctx context.Context, trigger string) (lifecycle.SweepRun, bool) {
	v, _, shared := s.group.Do("sweep", func() (any, error) {
		return s.sweep(context.WithoutCancel(ctx), trigger), nil
	})
	return v.(lifecycle.SweepRun), shared
}

func (s *SweepScheduler) sweep(ctx context.Context, trigger string) lifecycle.SweepRun {
	ctx, cancel := context.WithTimeout(ctx, s.Config.Timeout)
	defer cancel()

	started := s.Clock()
	run := lifecycle.SweepRun{
		ID:        uuid.NewString(),
		AsOf:      lifecycle.DateOf(started),
		Trigger:   trigger,
		Status:    lifecycle.SweepRunning,
		StartedAt: started,
	}
	s.save(ctx, run)

	res := s.Reconciler.Sweep(ctx, run.AsOf)

	completed := s.Clock()
	run.Scanned = res.Scanned
	run.Updated = res.Updated
	run.Skipped = res.Skipped
	run.ParseFailures = res.ParseFailures
	run.CompletedAt = &completed
	run.Status = lifecycle.SweepCompleted
	if res.Err != nil {
		run.Status = lifecycle.SweepFailed
		run.Error = res.Err.Error()
	}
	s.save(ctx, run)
	return run
}

func (s *SweepScheduler) save(ctx context.Context, run lifecycle.SweepRun) {
	if s.Runs == nil {
		return
	}
	if err := s.Runs.SaveSweepRun(ctx, run); err != nil {
		s.Logger.Error("failed to save sweep run",
			zap.String("run_id", run.ID),
			zap.Error(err))
	}
}

// NextRunTime returns when the next scheduled sweep will occur. ok is false
// when the background loop is not running.
func (s *SweepScheduler) NextRunTime() (next time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun, !s.nextRun.IsZero()
}
