package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
)

// JobLog is the job execution log view of a Store.
type JobLog struct {
	s *Store
}

// JobLog returns the job execution log store.
func (s *Store) JobLog() *JobLog {
	return &JobLog{s: s}
}

// Completed reports whether job has a finished run for period. Runs that
// aborted with an error do not count.
func (j *JobLog) Completed(ctx context.Context, job, period string) (bool, error) {
	defer j.s.lock(ctx)()
	return slices.ContainsFunc(j.s.st.jobs, func(e domain.JobExecution) bool {
		return e.JobName == job && e.PeriodKey == period && e.Status.Finished()
	}), nil
}

// Record adds one execution row.
func (j *JobLog) Record(ctx context.Context, e domain.JobExecution) error {
	defer j.s.lock(ctx)()
	j.s.st.jobs = append(j.s.st.jobs, e)
	return nil
}

// Last returns the most recent run of job or domain.ErrNotFound.
func (j *JobLog) Last(ctx context.Context, job string) (domain.JobExecution, error) {
	defer j.s.lock(ctx)()

	var last *domain.JobExecution
	for i := range j.s.st.jobs {
		e := &j.s.st.jobs[i]
		if e.JobName == job && (last == nil || e.StartedAt >= last.StartedAt) {
			last = e
		}
	}
	if last == nil {
		return domain.JobExecution{}, fmt.Errorf("job_execution_log %s: %w", job, domain.ErrNotFound)
	}
	return *last, nil
}

// Transitions is the workflow transition log view of a Store.
type Transitions struct {
	s *Store
}

// Transitions returns the transition log store.
func (s *Store) Transitions() *Transitions {
	return &Transitions{s: s}
}

// Append adds one attempt.
func (t *Transitions) Append(ctx context.Context, l domain.TransitionLog) error {
	defer t.s.lock(ctx)()
	t.s.st.transitions = append(t.s.st.transitions, l)
	return nil
}

// List returns the latest attempts for one record, newest first.
func (t *Transitions) List(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]domain.TransitionLog, error) {
	defer t.s.lock(ctx)()

	var out []domain.TransitionLog
	for _, l := range t.s.st.transitions {
		if l.EntityType == entityType && l.EntityID == entityID {
			out = append(out, l)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.TransitionLog) int {
		return cmp.Compare(b.CreatedAt, a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
