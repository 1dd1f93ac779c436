// Package scheduler runs the platform's background jobs on a cron schedule:
// snapshot flushing, automatic poll finalization and session cleanup.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bengol30/bandgo/internal/application"
	"github.com/bengol30/bandgo/internal/persistence"
)

// Job names reported to the Recorder.
const (
	JobFlushSnapshot = "flush_snapshot"
	JobFinalizePolls = "finalize_polls"
	JobPurgeSessions = "purge_sessions"
)

// Recorder receives job outcomes. metrics.Recorder satisfies it.
type Recorder interface {
	JobCompleted(job string, err error, elapsed time.Duration)
	SnapshotSaved(backend string, err error)
}

type noopRecorder struct{}

func (noopRecorder) JobCompleted(string, error, time.Duration) {}
func (noopRecorder) SnapshotSaved(string, error)               {}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithSnapshotStore enables the flush job. backend labels the metric.
func WithSnapshotStore(store persistence.SnapshotStore, backend string) Option {
	return func(s *Scheduler) {
		s.snapshots = store
		s.backend = backend
	}
}

// WithFlushInterval sets how often the snapshot is flushed. Defaults to one minute.
func WithFlushInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.flushInterval = interval
		}
	}
}

// WithRecorder reports job outcomes.
func WithRecorder(recorder Recorder) Option {
	return func(s *Scheduler) {
		if recorder != nil {
			s.recorder = recorder
		}
	}
}

// WithLogger sets the job logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithJobTimeout bounds a single job run. Defaults to thirty seconds.
func WithJobTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// Scheduler owns the cron runner and the jobs registered on it.
type Scheduler struct {
	platform      *application.Platform
	snapshots     persistence.SnapshotStore
	backend       string
	flushInterval time.Duration
	timeout       time.Duration
	recorder      Recorder
	logger        *slog.Logger

	cron *cron.Cron

	// flushMu keeps the final flush from interleaving with a scheduled one.
	flushMu sync.Mutex
}

// New builds a Scheduler for platform. Jobs are registered by Start.
func New(platform *application.Platform, opts ...Option) *Scheduler {
	s := &Scheduler{
		platform:      platform,
		flushInterval: time.Minute,
		timeout:       30 * time.Second,
		recorder:      noopRecorder{},
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduler")
	s.cron = cron.New(cron.WithChain(cron.Recover(cronLogger{s.logger}), cron.SkipIfStillRunning(cronLogger{s.logger})))
	return s
}

type job struct {
	spec string
	name string
	run  func(context.Context) error
}

// Start registers every job and starts the runner.
func (s *Scheduler) Start() error {
	jobs := []job{
		{"@every 1m", JobFinalizePolls, s.FinalizePolls},
		{"@hourly", JobPurgeSessions, s.PurgeSessions},
	}
	if s.snapshots != nil {
		jobs = append(jobs, job{"@every " + s.flushInterval.String(), JobFlushSnapshot, s.FlushSnapshot})
	}
	for _, j := range jobs {
		if _, err := s.cron.AddFunc(j.spec, s.wrap(j.name, j.run)); err != nil {
			return fmt.Errorf("schedule %s: %w", j.name, err)
		}
		s.logger.Info("job scheduled", "job", j.name, "spec", j.spec)
	}
	s.cron.Start()
	return nil
}

// Stop halts the runner and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) wrap(name string, run func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_ = s.RunJob(ctx, name, run)
	}
}

// RunJob executes one job, logging and recording its outcome.
func (s *Scheduler) RunJob(ctx context.Context, name string, run func(context.Context) error) error {
	start := time.Now()
	err := run(ctx)
	elapsed := time.Since(start)
	s.recorder.JobCompleted(name, err, elapsed)
	if err != nil {
		s.logger.ErrorContext(ctx, "job failed", "job", name, "error", err, "elapsed", elapsed)
		return err
	}
	s.logger.DebugContext(ctx, "job completed", "job", name, "elapsed", elapsed)
	return nil
}

// FlushSnapshot exports the platform state and saves it to the snapshot store.
func (s *Scheduler) FlushSnapshot(ctx context.Context) error {
	if s.snapshots == nil {
		return errors.New("no snapshot store configured")
	}
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	snapshot, err := s.platform.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("export snapshot: %w", err)
	}
	err = s.snapshots.SaveSnapshot(ctx, snapshot)
	s.recorder.SnapshotSaved(s.backend, err)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// FinalizePolls settles expired rehearsal polls.
func (s *Scheduler) FinalizePolls(ctx context.Context) error {
	_, err := s.platform.Rehearsals.AutoFinalizeExpiredPolls(ctx)
	return err
}

// PurgeSessions drops expired and revoked sessions.
func (s *Scheduler) PurgeSessions(ctx context.Context) error {
	_, err := s.platform.Auth.PurgeExpiredSessions(ctx)
	return err
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
