// Package joblog records scheduled job runs in job_execution_log. A period
// with a finished run is considered done, which makes jobs re-entrant.
package joblog

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	postgres "github.com/heartmarshall/engagement-backend/internal/adapter/postgres"
	"github.com/heartmarshall/engagement-backend/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repo provides job execution log persistence backed by PostgreSQL.
type Repo struct {
	db postgres.Querier
}

// New creates a new job log repository.
func New(db postgres.Querier) *Repo {
	return &Repo{db: db}
}

var columns = []string{
	"id", "job_name", "period_key", "status", "processed", "succeeded", "failed",
	"duration_ms", "details", "started_at", "finished_at",
}

// Completed reports whether job already finished a run for period. A run
// with per-item failures still finishes the period: its failed items are
// retried next period. Only a run that aborted with an error is retried.
func (r *Repo) Completed(ctx context.Context, job, period string) (bool, error) {
	sql, args, err := psql.Select("1").From("job_execution_log").
		Where(sq.Eq{
			"job_name":   job,
			"period_key": period,
			"status":     []string{string(domain.JobStatusSuccess), string(domain.JobStatusPartialFailure)},
		}).
		Prefix("SELECT EXISTS (").
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build job_execution_log lookup: %w", err)
	}

	var done bool
	if err := postgres.QuerierFromCtx(ctx, r.db).QueryRow(ctx, sql, args...).Scan(&done); err != nil {
		return false, postgres.MapError(err, "job_execution_log "+job)
	}
	return done, nil
}

// Record inserts one execution row.
func (r *Repo) Record(ctx context.Context, e domain.JobExecution) error {
	var details []byte
	if e.Details != nil {
		var err error
		if details, err = json.Marshal(e.Details); err != nil {
			return fmt.Errorf("job_execution_log %s marshal details: %w", e.ID, err)
		}
	}

	sql, args, err := psql.Insert("job_execution_log").
		Columns(columns...).
		Values(e.ID, e.JobName, e.PeriodKey, string(e.Status), e.Processed, e.Succeeded, e.Failed,
			e.DurationMS, details, e.StartedAt, e.FinishedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build job_execution_log insert: %w", err)
	}

	if _, err := postgres.QuerierFromCtx(ctx, r.db).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "job_execution_log "+e.JobName)
	}
	return nil
}

// Last returns the most recent run of job or domain.ErrNotFound.
func (r *Repo) Last(ctx context.Context, job string) (domain.JobExecution, error) {
	sql, args, err := psql.Select(columns...).From("job_execution_log").
		Where(sq.Eq{"job_name": job}).
		OrderBy("started_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return domain.JobExecution{}, fmt.Errorf("build job_execution_log last: %w", err)
	}

	rows, err := postgres.QuerierFromCtx(ctx, r.db).Query(ctx, sql, args...)
	if err != nil {
		return domain.JobExecution{}, postgres.MapError(err, "job_execution_log "+job)
	}
	e, err := pgx.CollectExactlyOneRow(rows, scanExecution)
	if err != nil {
		return domain.JobExecution{}, postgres.MapError(err, "job_execution_log "+job)
	}
	return e, nil
}

func scanExecution(row pgx.CollectableRow) (domain.JobExecution, error) {
	var e domain.JobExecution
	var status string
	var details []byte
	if err := row.Scan(&e.ID, &e.JobName, &e.PeriodKey, &status, &e.Processed, &e.Succeeded, &e.Failed,
		&e.DurationMS, &details, &e.StartedAt, &e.FinishedAt); err != nil {
		return domain.JobExecution{}, err
	}
	e.Status = domain.JobStatus(status)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return domain.JobExecution{}, fmt.Errorf("job_execution_log %s details: %w", e.ID, err)
		}
	}
	return e, nil
}
