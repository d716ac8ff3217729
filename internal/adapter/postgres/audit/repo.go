// Package audit implements the audit log repository using PostgreSQL.
// audit_log is append-only: rows are inserted, read, and relocated to
// audit_log_archive by Rotate, never updated.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	postgres "github.com/heartmarshall/engagement-backend/internal/adapter/postgres"
	"github.com/heartmarshall/engagement-backend/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repo provides audit log persistence backed by PostgreSQL.
type Repo struct {
	db postgres.Querier
}

// New creates a new audit repository.
func New(db postgres.Querier) *Repo {
	return &Repo{db: db}
}

var entryColumns = []string{
	"id", "entity_type", "entity_id", "action", "user_id",
	"before_state", "after_state", "changes", "message", "details", "reason_code", "created_at",
}

// ---------------------------------------------------------------------------
// Write operations
// ---------------------------------------------------------------------------

// Append inserts one audit entry.
func (r *Repo) Append(ctx context.Context, e domain.AuditEntry) error {
	before, err := marshalNullable(e.BeforeState)
	if err != nil {
		return fmt.Errorf("audit_log %s marshal before_state: %w", e.ID, err)
	}
	after, err := marshalNullable(e.AfterState)
	if err != nil {
		return fmt.Errorf("audit_log %s marshal after_state: %w", e.ID, err)
	}
	changes := e.Changes
	if changes == nil {
		changes = []domain.Change{}
	}
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("audit_log %s marshal changes: %w", e.ID, err)
	}
	details, err := marshalNullable(e.Details)
	if err != nil {
		return fmt.Errorf("audit_log %s marshal details: %w", e.ID, err)
	}

	sql, args, err := psql.Insert("audit_log").
		Columns(entryColumns...).
		Values(e.ID, e.EntityType, e.EntityID, string(e.Action), e.UserID,
			before, after, changesJSON, e.Message, details, e.ReasonCode, e.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build audit_log insert: %w", err)
	}

	if _, err := postgres.QuerierFromCtx(ctx, r.db).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "audit_log "+e.ID.String())
	}
	return nil
}

// RecordActivity inserts one activity_log row written by an audit-kind hook.
func (r *Repo) RecordActivity(ctx context.Context, a domain.Activity) error {
	data, err := marshalNullable(a.Data)
	if err != nil {
		return fmt.Errorf("activity_log %s marshal data: %w", a.ID, err)
	}

	sql, args, err := psql.Insert("activity_log").
		Columns("id", "action", "entity_type", "entity_id", "user_id", "data", "created_at").
		Values(a.ID, a.Action, a.EntityType, a.EntityID, a.UserID, data, a.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build activity_log insert: %w", err)
	}

	if _, err := postgres.QuerierFromCtx(ctx, r.db).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "activity_log "+a.ID.String())
	}
	return nil
}

// Rotate relocates every entry created before cutoff into audit_log_archive
// under archiveID and returns how many rows moved. The move is a single
// statement, so it is atomic even outside a transaction.
func (r *Repo) Rotate(ctx context.Context, cutoff int64, archiveID string, archivedAt int64) (int64, error) {
	const rotateSQL = `
WITH moved AS (
    DELETE FROM audit_log WHERE created_at < $1
    RETURNING seq, id, entity_type, entity_id, action, user_id,
              before_state, after_state, changes, message, details, reason_code, created_at
)
INSERT INTO audit_log_archive (
    archive_id, archived_at, seq, id, entity_type, entity_id, action, user_id,
    before_state, after_state, changes, message, details, reason_code, created_at
)
SELECT $2, $3, seq, id, entity_type, entity_id, action, user_id,
       before_state, after_state, changes, message, details, reason_code, created_at
FROM moved`

	tag, err := postgres.QuerierFromCtx(ctx, r.db).Exec(ctx, rotateSQL, cutoff, archiveID, archivedAt)
	if err != nil {
		return 0, postgres.MapError(err, "audit_log rotate")
	}
	return tag.RowsAffected(), nil
}

// ---------------------------------------------------------------------------
// Read operations
// ---------------------------------------------------------------------------

// Search returns entries matching f, newest first.
func (r *Repo) Search(ctx context.Context, f domain.AuditFilter, limit, offset int) ([]domain.AuditEntry, error) {
	b := applyFilter(psql.Select(entryColumns...).From("audit_log"), f).
		OrderBy("created_at DESC", "seq DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	if offset > 0 {
		b = b.Offset(uint64(offset))
	}
	return r.queryEntries(ctx, b, "audit_log search")
}

// Count returns the number of entries matching f.
func (r *Repo) Count(ctx context.Context, f domain.AuditFilter) (int, error) {
	sql, args, err := applyFilter(psql.Select("count(*)").From("audit_log"), f).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build audit_log count: %w", err)
	}

	var n int
	if err := postgres.QuerierFromCtx(ctx, r.db).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, postgres.MapError(err, "audit_log count")
	}
	return n, nil
}

// History returns the latest limit entries of one record in commit order.
func (r *Repo) History(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]domain.AuditEntry, error) {
	b := psql.Select(entryColumns...).From("audit_log").
		Where(sq.Eq{"entity_type": entityType, "entity_id": entityID}).
		OrderBy("seq DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	entries, err := r.queryEntries(ctx, b, "audit_log history")
	if err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	return entries, nil
}

// ActionStats counts entries per action created within [from, to].
func (r *Repo) ActionStats(ctx context.Context, from, to int64) ([]domain.CountByKey, error) {
	return r.countBy(ctx, "action", sq.And{createdBetween(from, to)}, "audit_log action stats")
}

// UserStats counts entries per acting user created within [from, to].
func (r *Repo) UserStats(ctx context.Context, from, to int64) ([]domain.CountByKey, error) {
	return r.countBy(ctx, "user_id::text", sq.And{createdBetween(from, to)}, "audit_log user stats")
}

// ReasonCodeBreakdown counts permission changes per reason code within [from, to].
func (r *Repo) ReasonCodeBreakdown(ctx context.Context, from, to int64) ([]domain.CountByKey, error) {
	where := sq.And{
		createdBetween(from, to),
		sq.Eq{"entity_type": "permission"},
		sq.NotEq{"reason_code": nil},
	}
	return r.countBy(ctx, "reason_code", where, "audit_log reason codes")
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func createdBetween(from, to int64) sq.Sqlizer {
	return sq.And{sq.GtOrEq{"created_at": from}, sq.LtOrEq{"created_at": to}}
}

func applyFilter(b sq.SelectBuilder, f domain.AuditFilter) sq.SelectBuilder {
	if f.EntityType != nil {
		b = b.Where(sq.Eq{"entity_type": *f.EntityType})
	}
	if f.EntityID != nil {
		b = b.Where(sq.Eq{"entity_id": *f.EntityID})
	}
	if f.UserID != nil {
		b = b.Where(sq.Eq{"user_id": *f.UserID})
	}
	if f.Action != nil {
		b = b.Where(sq.Eq{"action": string(*f.Action)})
	}
	if f.Search != nil && *f.Search != "" {
		pattern := "%" + *f.Search + "%"
		b = b.Where(sq.Or{
			sq.ILike{"message": pattern},
			sq.ILike{"details::text": pattern},
		})
	}
	if f.From != 0 {
		b = b.Where(sq.GtOrEq{"created_at": f.From})
	}
	if f.To != 0 {
		b = b.Where(sq.LtOrEq{"created_at": f.To})
	}
	return b
}

func (r *Repo) countBy(ctx context.Context, keyExpr string, where sq.Sqlizer, op string) ([]domain.CountByKey, error) {
	sql, args, err := psql.Select(keyExpr+" AS key", "count(*) AS count").
		From("audit_log").
		Where(where).
		GroupBy(keyExpr).
		OrderBy("count DESC", "key ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", op, err)
	}

	rows, err := postgres.QuerierFromCtx(ctx, r.db).Query(ctx, sql, args...)
	if err != nil {
		return nil, postgres.MapError(err, op)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CountByKey, error) {
		var c domain.CountByKey
		err := row.Scan(&c.Key, &c.Count)
		return c, err
	})
	if err != nil {
		return nil, postgres.MapError(err, op)
	}
	return out, nil
}

func (r *Repo) queryEntries(ctx context.Context, b sq.SelectBuilder, op string) ([]domain.AuditEntry, error) {
	sql, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", op, err)
	}

	rows, err := postgres.QuerierFromCtx(ctx, r.db).Query(ctx, sql, args...)
	if err != nil {
		return nil, postgres.MapError(err, op)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, postgres.MapError(err, op)
	}
	return entries, nil
}

func scanEntry(row pgx.CollectableRow) (domain.AuditEntry, error) {
	var e domain.AuditEntry
	var action string
	var before, after, changes, details []byte
	if err := row.Scan(&e.ID, &e.EntityType, &e.EntityID, &action, &e.UserID,
		&before, &after, &changes, &e.Message, &details, &e.ReasonCode, &e.CreatedAt); err != nil {
		return domain.AuditEntry{}, err
	}
	e.Action = domain.AuditAction(action)

	if err := unmarshalNullable(before, &e.BeforeState); err != nil {
		return domain.AuditEntry{}, fmt.Errorf("audit_log %s before_state: %w", e.ID, err)
	}
	if err := unmarshalNullable(after, &e.AfterState); err != nil {
		return domain.AuditEntry{}, fmt.Errorf("audit_log %s after_state: %w", e.ID, err)
	}
	e.Changes = []domain.Change{}
	if err := unmarshalNullable(changes, &e.Changes); err != nil {
		return domain.AuditEntry{}, fmt.Errorf("audit_log %s changes: %w", e.ID, err)
	}
	if err := unmarshalNullable(details, &e.Details); err != nil {
		return domain.AuditEntry{}, fmt.Errorf("audit_log %s details: %w", e.ID, err)
	}
	return e, nil
}

// marshalNullable encodes v as JSON, keeping nil maps as SQL NULL.
func marshalNullable[T ~map[string]any](v T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalNullable(b []byte, dst any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}
