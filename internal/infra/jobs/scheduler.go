package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"rentguru/internal/app/dto"
)

// Job is one scheduled unit of work. Run receives a context that is
// canceled when the scheduler stops.
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs on cron schedules with second precision in UTC.
// A run that is still in progress when its next tick fires is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Scheduler) Register(job Job) error {
	_, err := s.cron.AddFunc(job.Schedule, func() { s.run(job) })
	if err != nil {
		return err
	}
	s.logger.Info("job registered", "job", job.Name, "schedule", job.Schedule)
	return nil
}

func (s *Scheduler) run(job Job) {
	ctx := s.ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}
	started := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("job failed", "job", job.Name, "error", err, "duration", time.Since(started))
		return
	}
	s.logger.Debug("job finished", "job", job.Name, "duration", time.Since(started))
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}

// Reconciler is satisfied by the booking reconciler.
type Reconciler interface {
	Run(ctx context.Context) (dto.ReconcileReport, error)
}

// ReconcileJob polls stale charges and retries refunds, logging what moved.
func ReconcileJob(schedule string, r Reconciler, logger *slog.Logger) Job {
	if logger == nil {
		logger = slog.Default()
	}
	return Job{
		Name:     "reconcile_payments",
		Schedule: schedule,
		Timeout:  time.Minute,
		Run: func(ctx context.Context) error {
			report, err := r.Run(ctx)
			if err != nil {
				return err
			}
			if report != (dto.ReconcileReport{}) {
				logger.Info("payments reconciled",
					"settled", report.Settled, "failed", report.Failed,
					"refunded", report.Refunded, "errors", report.Errors)
			}
			return nil
		},
	}
}

// Purger deletes delivered outbox records older than the cutoff.
type Purger interface {
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// PurgeOutboxJob keeps delivered events for the retention period.
func PurgeOutboxJob(schedule string, p Purger, retention time.Duration, logger *slog.Logger) Job {
	if logger == nil {
		logger = slog.Default()
	}
	return Job{
		Name:     "purge_outbox",
		Schedule: schedule,
		Timeout:  time.Minute,
		Run: func(ctx context.Context) error {
			removed, err := p.Purge(ctx, time.Now().UTC().Add(-retention))
			if err != nil {
				return err
			}
			if removed > 0 {
				logger.Info("outbox purged", "removed", removed, "retention", retention)
			}
			return nil
		},
	}
}
