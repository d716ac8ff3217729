// Package transitionlog stores every manual and automatic workflow
// transition attempt in workflow_transition_log.
package transitionlog

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	postgres "github.com/heartmarshall/engagement-backend/internal/adapter/postgres"
	"github.com/heartmarshall/engagement-backend/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var columns = []string{
	"id", "entity_type", "entity_id", "from_stage", "to_stage", "user_id",
	"reason", "automatic", "success", "error", "created_at",
}

// Repo provides transition log persistence backed by PostgreSQL.
type Repo struct {
	db postgres.Querier
}

// New creates a new transition log repository.
func New(db postgres.Querier) *Repo {
	return &Repo{db: db}
}

// Append inserts one attempt.
func (r *Repo) Append(ctx context.Context, l domain.TransitionLog) error {
	sql, args, err := psql.Insert("workflow_transition_log").
		Columns(columns...).
		Values(l.ID, l.EntityType, l.EntityID, l.FromStage, l.ToStage, l.UserID,
			l.Reason, l.Automatic, l.Success, l.Error, l.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build workflow_transition_log insert: %w", err)
	}

	if _, err := postgres.QuerierFromCtx(ctx, r.db).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "workflow_transition_log "+l.ID.String())
	}
	return nil
}

// List returns the latest attempts for one record, newest first.
func (r *Repo) List(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]domain.TransitionLog, error) {
	b := psql.Select(columns...).From("workflow_transition_log").
		Where(sq.Eq{"entity_type": entityType, "entity_id": entityID}).
		OrderBy("created_at DESC", "id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	sql, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build workflow_transition_log list: %w", err)
	}

	rows, err := postgres.QuerierFromCtx(ctx, r.db).Query(ctx, sql, args...)
	if err != nil {
		return nil, postgres.MapError(err, "workflow_transition_log list")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TransitionLog, error) {
		var l domain.TransitionLog
		err := row.Scan(&l.ID, &l.EntityType, &l.EntityID, &l.FromStage, &l.ToStage, &l.UserID,
			&l.Reason, &l.Automatic, &l.Success, &l.Error, &l.CreatedAt)
		return l, err
	})
	if err != nil {
		return nil, postgres.MapError(err, "workflow_transition_log list")
	}
	return out, nil
}
