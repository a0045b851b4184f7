// Package maintenance implements a cron-scheduled background maintainer,
// adapted from the teacher's internal/retention.RetentionManager: a
// gronx-driven scheduler goroutine that wakes at each cron tick and runs one
// sweep, instead of retention's "purge soft-deleted threads" sweep this one
// walks the primary index counting tombstones and flushes it to disk via
// EvictToDisk. The keyspace walk is paced with a golang.org/x/time/rate
// limiter, the same pattern the teacher's pkg/auth/limiter.go uses to bound
// per-key request rates, so a large index doesn't starve foreground writers.
package maintenance

import (
	"context"
	"time"

	"github.com/adhocore/gronx"
	"golang.org/x/time/rate"

	"fts/pkg/config"
	"fts/pkg/ftserrors"
	"fts/pkg/keys"
	"fts/pkg/kvstore"
	"fts/pkg/logger"
	"fts/pkg/telemetry"
)

// Maintainable is the slice of Index[T,R]'s method set the scheduler needs.
// Index[T,R] satisfies this for any T, R since neither method's signature
// mentions the type parameters.
type Maintainable interface {
	EvictToDisk() error
	Primary() kvstore.Store
}

// Scheduler runs periodic maintenance sweeps against a Maintainable index.
type Scheduler struct {
	target  Maintainable
	cfg     config.MaintainerConfig
	metrics *telemetry.Metrics
	limiter *rate.Limiter
}

// New builds a Scheduler. metrics may be nil, in which case sweep counters
// are simply not recorded.
func New(target Maintainable, cfg config.MaintainerConfig, metrics *telemetry.Metrics) *Scheduler {
	rps := cfg.ScanRPS
	if rps <= 0 {
		rps = 2000
	}
	burst := cfg.ScanBurst
	if burst <= 0 {
		burst = 500
	}
	return &Scheduler{
		target:  target,
		cfg:     cfg,
		metrics: metrics,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Start validates the configured cron expression and launches the scheduler
// goroutine, returning a cancel func. A disabled or empty-cron config is a
// no-op that returns an already-inert cancel func, mirroring the teacher's
// Start short-circuiting on cfg.Retention.Enabled/Paused.
func (s *Scheduler) Start(ctx context.Context) (context.CancelFunc, error) {
	if !s.cfg.Enabled || s.cfg.Cron == "" {
		logger.Info("maintenance_disabled")
		return func() {}, nil
	}
	if !gronx.IsValid(s.cfg.Cron) {
		return nil, ftserrors.InvalidConfiguration("maintenance: invalid cron expression " + s.cfg.Cron)
	}

	ctx2, cancel := context.WithCancel(ctx)
	logger.Info("maintenance_enabled", "cron", s.cfg.Cron)
	go s.runScheduler(ctx2)
	return cancel, nil
}

func (s *Scheduler) runScheduler(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("maintenance_scheduler_stopping")
			return
		default:
		}

		next, err := gronx.NextTickAfter(s.cfg.Cron, time.Now().UTC(), false)
		if err != nil {
			logger.Error("maintenance_nexttick_failed", "cron", s.cfg.Cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			if err := s.RunOnce(ctx); err != nil {
				logger.Error("maintenance_run_error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce performs a single sweep: a rate-limited forward walk of the
// primary store counting tombstoned triples, followed by EvictToDisk. It is
// exported so callers can trigger an immediate run outside the cron
// schedule (e.g. before a graceful shutdown).
func (s *Scheduler) RunOnce(ctx context.Context) error {
	swept, err := s.sweep(ctx)
	if err != nil {
		return err
	}
	if err := s.target.EvictToDisk(); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.MaintenanceRuns.Inc()
		s.metrics.TombstonesSwept.Add(float64(swept))
	}
	logger.Info("maintenance_run_complete", "tombstones_swept", swept)
	return nil
}

func (s *Scheduler) sweep(ctx context.Context) (int, error) {
	it, err := s.target.Primary().NewIter()
	if err != nil {
		return 0, err
	}
	defer it.Close()

	var swept int
	for ok := it.SeekGE(nil); ok; ok = it.Next() {
		if err := s.limiter.Wait(ctx); err != nil {
			return swept, nil
		}
		if it.Value()[0] == keys.Deleted {
			swept++
		}
	}
	return swept, it.Close()
}
