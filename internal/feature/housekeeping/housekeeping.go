// Package housekeeping periodically reports on the durable job store.
package housekeeping

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"opportunity/internal/adapter/scheduler"
	"opportunity/internal/feature"
)

// JobID is the fixed id of the report job.
const JobID = "housekeeping"

// FuncReport is the registered name of the report callable.
const FuncReport = "housekeeping.report"

// Report summarizes the durable store.
type Report struct {
	Pending int
	// Overdue counts jobs whose run time passed more than a minute ago.
	Overdue int
	Users   int
	// Runs and Failures count job executions since the previous report.
	Runs     int64
	Failures int64
}

// Feature logs a Report every interval.
type Feature struct {
	interval time.Duration

	sched  *scheduler.Scheduler
	logger *slog.Logger
	now    func() time.Time

	runs     atomic.Int64
	failures atomic.Int64
}

// New creates the feature. Zero interval means hourly.
func New(interval time.Duration) *Feature {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Feature{interval: interval}
}

// Hooks returns scheduler hooks that feed the run counters of the report.
func (f *Feature) Hooks() scheduler.JobHooks {
	return scheduler.JobHooks{
		OnJobFinish: func(_ string, _ time.Duration, err error) {
			f.runs.Add(1)
			if err != nil {
				f.failures.Add(1)
			}
		},
	}
}

// Name implements feature.Feature.
func (f *Feature) Name() string { return "housekeeping" }

// Register implements feature.Feature.
func (f *Feature) Register(ctx context.Context, env *feature.Env) error {
	f.sched = env.Scheduler
	f.logger = env.FeatureLogger(f.Name())
	f.now = env.Clock

	if err := f.sched.Register(FuncReport, f.report); err != nil {
		return err
	}
	_, err := f.sched.Schedule(ctx, scheduler.Request{
		Func:            FuncReport,
		Trigger:         scheduler.Every(f.interval),
		Store:           scheduler.StoreMemory,
		ID:              JobID,
		ReplaceExisting: true,
	})
	return err
}

// Collect builds a Report from the durable store.
func (f *Feature) Collect(ctx context.Context) (Report, error) {
	jobs, err := f.sched.Jobs(ctx, scheduler.StoreDefault)
	if err != nil {
		return Report{}, err
	}
	cutoff := f.now().Add(-time.Minute)
	users := make(map[string]struct{})
	r := Report{Pending: len(jobs)}
	for _, j := range jobs {
		if j.NextRunTime != nil && j.NextRunTime.Before(cutoff) {
			r.Overdue++
		}
		if u, ok := j.User(); ok {
			users[u] = struct{}{}
		}
	}
	r.Users = len(users)
	return r, nil
}

func (f *Feature) report(ctx context.Context, _ scheduler.Kwargs) error {
	r, err := f.Collect(ctx)
	if err != nil {
		return err
	}
	r.Runs, r.Failures = f.runs.Swap(0), f.failures.Swap(0)
	level := slog.LevelInfo
	if r.Overdue > 0 || r.Failures > 0 {
		level = slog.LevelWarn
	}
	f.logger.Log(ctx, level, "Durable job store report",
		"pending", r.Pending,
		"overdue", r.Overdue,
		"users", r.Users,
		"runs", r.Runs,
		"failures", r.Failures,
	)
	return nil
}
