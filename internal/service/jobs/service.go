// Package jobs implements the scheduled jobs. Each job is idempotent per
// period: a run takes an advisory lock, skips when the period already has a
// finished execution and records one execution row otherwise. When jobs
// run is decided by an external scheduler.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/config"
	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/hook"
	"github.com/heartmarshall/engagement-backend/internal/metrics"
	"github.com/heartmarshall/engagement-backend/internal/service/lifecycle"
	"github.com/heartmarshall/engagement-backend/internal/spec"
)

// Job names, also used as lock keys and job log names.
const (
	JobAutoTransition = "auto-transition"
	JobRotateAudit    = "rotate-audit"
	JobRFIExpiry      = "rfi-expiry"
)

// ---------------------------------------------------------------------------
// Consumer-defined interfaces (private)
// ---------------------------------------------------------------------------

type specRegistry interface {
	All() []*spec.EntitySpec
	Get(name string) (*spec.EntitySpec, error)
}

type recordLister interface {
	List(ctx context.Context, s *spec.EntitySpec, q domain.RecordQuery) ([]domain.Record, error)
}

type autoTransitioner interface {
	AutoTransition(ctx context.Context, entity string, id uuid.UUID) (lifecycle.AutoResult, error)
}

type auditRotator interface {
	Rotate(ctx context.Context, olderThanDays int) (domain.RotationResult, error)
}

type notifier interface {
	Notify(ctx context.Context, n hook.Notification) error
}

type locker interface {
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}

type jobLog interface {
	Completed(ctx context.Context, job, period string) (bool, error)
	Record(ctx context.Context, e domain.JobExecution) error
	Last(ctx context.Context, job string) (domain.JobExecution, error)
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Deps groups the collaborators of the jobs Service.
type Deps struct {
	Registry  specRegistry
	Records   recordLister
	Lifecycle autoTransitioner
	Audit     auditRotator
	Notifier  notifier
	Locker    locker
	Runs      jobLog
}

// Service runs the scheduled jobs.
type Service struct {
	log       *slog.Logger
	reg       specRegistry
	records   recordLister
	lifecycle autoTransitioner
	audit     auditRotator
	notes     notifier
	locks     locker
	runs      jobLog
	cfg       config.JobsConfig
	system    uuid.UUID

	now   func() time.Time
	newID func() uuid.UUID
}

// NewService creates a new jobs Service. system is recorded as the actor of
// notifications the jobs send.
func NewService(logger *slog.Logger, deps Deps, cfg config.JobsConfig, system uuid.UUID) *Service {
	return &Service{
		log:       logger.With("service", "jobs"),
		reg:       deps.Registry,
		records:   deps.Records,
		lifecycle: deps.Lifecycle,
		audit:     deps.Audit,
		notes:     deps.Notifier,
		locks:     deps.Locker,
		runs:      deps.Runs,
		cfg:       cfg,
		system:    system,
		now:       time.Now,
		newID:     uuid.New,
	}
}

// LastRun returns the most recent execution of job.
func (s *Service) LastRun(ctx context.Context, job string) (domain.JobExecution, error) {
	return s.runs.Last(ctx, job)
}

// outcome is what a job body reports back to run.
type outcome struct {
	processed int
	succeeded int
	failures  []domain.ItemFailure
	details   map[string]any
}

func (o *outcome) fail(id uuid.UUID, reason string) {
	o.failures = append(o.failures, domain.ItemFailure{ID: id.String(), Reason: reason})
}

// run executes body at most once per period of job. A run that finds the
// lock taken or the period completed returns a skipped result.
func (s *Service) run(ctx context.Context, job, period string, body func(ctx context.Context) (outcome, error)) (domain.JobResult, error) {
	log := s.log.With(slog.String("job", job), slog.String("period", period))

	unlock, ok, err := s.locks.TryLock(ctx, "job:"+job)
	if err != nil {
		return domain.JobResult{}, fmt.Errorf("lock %s: %w", job, err)
	}
	if !ok {
		log.InfoContext(ctx, "job already running")
		return domain.JobResult{Success: true, Skipped: true}, nil
	}
	defer unlock()

	done, err := s.runs.Completed(ctx, job, period)
	if err != nil {
		return domain.JobResult{}, fmt.Errorf("check %s %s: %w", job, period, err)
	}
	if done {
		log.InfoContext(ctx, "job period already completed")
		return domain.JobResult{Success: true, Skipped: true}, nil
	}

	start := s.now()
	out, bodyErr := body(ctx)
	finished := s.now()

	res := domain.JobResult{
		Success:   bodyErr == nil,
		Processed: out.processed,
		Succeeded: out.succeeded,
		Failed:    len(out.failures),
		Duration:  finished.Sub(start),
		Failures:  out.failures,
	}

	details := out.details
	if details == nil {
		details = map[string]any{}
	}
	if bodyErr != nil {
		details["error"] = bodyErr.Error()
	}
	if len(out.failures) > 0 {
		details["failures"] = out.failures
	}

	execution := domain.JobExecution{
		ID:         s.newID(),
		JobName:    job,
		PeriodKey:  period,
		Status:     res.Status(),
		Processed:  res.Processed,
		Succeeded:  res.Succeeded,
		Failed:     res.Failed,
		DurationMS: res.Duration.Milliseconds(),
		Details:    details,
		StartedAt:  start.Unix(),
		FinishedAt: finished.Unix(),
	}
	if err := s.runs.Record(context.WithoutCancel(ctx), execution); err != nil {
		log.ErrorContext(ctx, "job execution not recorded", slog.String("error", err.Error()))
	}
	metrics.RecordJob(job, res.Status().String(), res.Succeeded, res.Failed, res.Duration)

	log.InfoContext(ctx, "job finished",
		slog.String("status", res.Status().String()),
		slog.Int("processed", res.Processed),
		slog.Int("succeeded", res.Succeeded),
		slog.Int("failed", res.Failed),
		slog.Duration("duration", res.Duration),
	)
	if bodyErr != nil {
		return res, fmt.Errorf("job %s: %w", job, bodyErr)
	}
	return res, nil
}

func hourly(t time.Time) string { return t.UTC().Format("2006-01-02T15") }

func daily(t time.Time) string { return t.UTC().Format(time.DateOnly) }
