// Package record implements generic persistence for spec-defined entities.
// Every statement is built with squirrel from the entity's field list, so one
// repository serves every table declared in internal/spec/entities.
package record

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	postgres "github.com/heartmarshall/engagement-backend/internal/adapter/postgres"
	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/spec"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repo provides record persistence backed by PostgreSQL.
type Repo struct {
	db postgres.Querier
}

// New creates a new record repository. db is normally the *pgxpool.Pool;
// statements run on the context transaction when one is present.
func New(db postgres.Querier) *Repo {
	return &Repo{db: db}
}

func quote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quote(n)
	}
	return out
}

// ---------------------------------------------------------------------------
// Read operations
// ---------------------------------------------------------------------------

// Get returns the live record with id. Inside a transaction the row is
// locked FOR UPDATE. Returns domain.ErrNotFound when absent or soft-deleted.
func (r *Repo) Get(ctx context.Context, s *spec.EntitySpec, id uuid.UUID) (domain.Record, error) {
	b := r.selectFrom(s).Where(sq.Eq{quote(domain.FieldID): id})
	if postgres.InTx(ctx) {
		b = b.Suffix("FOR UPDATE")
	}

	recs, err := r.query(ctx, s, b)
	if err != nil {
		return nil, postgres.MapError(err, fmt.Sprintf("%s %s", s.Name, id))
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s %s: %w", s.Name, id, domain.ErrNotFound)
	}
	return recs[0], nil
}

// List returns the live records matching q.
func (r *Repo) List(ctx context.Context, s *spec.EntitySpec, q domain.RecordQuery) ([]domain.Record, error) {
	b := applyQuery(r.selectFrom(s), q)

	order := q.OrderBy
	if order == "" {
		order = domain.FieldCreatedAt
	}
	dir := " ASC"
	if q.Desc {
		dir = " DESC"
	}
	b = b.OrderBy(quote(order)+dir, quote(domain.FieldID)+dir)

	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}
	if q.Offset > 0 {
		b = b.Offset(uint64(q.Offset))
	}

	recs, err := r.query(ctx, s, b)
	if err != nil {
		return nil, postgres.MapError(err, s.Name+" list")
	}
	return recs, nil
}

// Count returns the number of live records matching q. Limit, offset and
// ordering are ignored.
func (r *Repo) Count(ctx context.Context, s *spec.EntitySpec, q domain.RecordQuery) (int, error) {
	b := psql.Select("count(*)").From(quote(s.Table))
	b = applyQuery(liveOnly(s, b), q)

	sql, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s count: %w", s.Name, err)
	}

	var n int
	if err := postgres.QuerierFromCtx(ctx, r.db).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, postgres.MapError(err, s.Name+" count")
	}
	return n, nil
}

// FindIDs returns the ids of live records matching an equality filter.
func (r *Repo) FindIDs(ctx context.Context, s *spec.EntitySpec, filter map[string]any) ([]uuid.UUID, error) {
	b := psql.Select(quote(domain.FieldID)).From(quote(s.Table))
	b = applyQuery(liveOnly(s, b), domain.RecordQuery{Filter: filter})

	sql, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s ids: %w", s.Name, err)
	}

	rows, err := postgres.QuerierFromCtx(ctx, r.db).Query(ctx, sql, args...)
	if err != nil {
		return nil, postgres.MapError(err, s.Name+" ids")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, postgres.MapError(err, s.Name+" ids")
	}
	return ids, nil
}

// ---------------------------------------------------------------------------
// Write operations
// ---------------------------------------------------------------------------

// Insert stores rec, which must carry every column, and returns the stored row.
func (r *Repo) Insert(ctx context.Context, s *spec.EntitySpec, rec domain.Record) (domain.Record, error) {
	cols := s.Columns()
	vals := make([]any, len(cols))
	for i, c := range cols {
		vals[i] = rec[c]
	}

	b := psql.Insert(quote(s.Table)).
		Columns(quoteAll(cols)...).
		Values(vals...).
		Suffix("RETURNING " + strings.Join(quoteAll(cols), ", "))

	recs, err := r.query(ctx, s, b)
	if err != nil {
		return nil, postgres.MapError(err, fmt.Sprintf("%s %s", s.Name, rec.ID()))
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s %s: insert returned no row", s.Name, rec.ID())
	}
	return recs[0], nil
}

// Update writes changes to the live record with id and returns the stored row.
func (r *Repo) Update(ctx context.Context, s *spec.EntitySpec, id uuid.UUID, changes domain.Record) (domain.Record, error) {
	if len(changes) == 0 {
		return r.Get(ctx, s, id)
	}

	set := make(map[string]any, len(changes))
	for k, v := range changes {
		set[quote(k)] = v
	}

	b := psql.Update(quote(s.Table)).
		SetMap(set).
		Where(sq.Eq{quote(domain.FieldID): id})
	if s.IsSoftDelete() {
		b = b.Where(sq.Eq{quote(domain.FieldDeletedAt): nil})
	}
	b = b.Suffix("RETURNING " + strings.Join(quoteAll(s.Columns()), ", "))

	recs, err := r.query(ctx, s, b)
	if err != nil {
		return nil, postgres.MapError(err, fmt.Sprintf("%s %s", s.Name, id))
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s %s: %w", s.Name, id, domain.ErrNotFound)
	}
	return recs[0], nil
}

// Delete removes the row with id.
func (r *Repo) Delete(ctx context.Context, s *spec.EntitySpec, id uuid.UUID) error {
	sql, args, err := psql.Delete(quote(s.Table)).
		Where(sq.Eq{quote(domain.FieldID): id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build %s delete: %w", s.Name, err)
	}

	tag, err := postgres.QuerierFromCtx(ctx, r.db).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, fmt.Sprintf("%s %s", s.Name, id))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", s.Name, id, domain.ErrNotFound)
	}
	return nil
}

// SoftDelete stamps deleted_at on the live row with id.
func (r *Repo) SoftDelete(ctx context.Context, s *spec.EntitySpec, id uuid.UUID, at int64) error {
	sql, args, err := psql.Update(quote(s.Table)).
		Set(quote(domain.FieldDeletedAt), at).
		Set(quote(domain.FieldUpdatedAt), at).
		Where(sq.Eq{quote(domain.FieldID): id, quote(domain.FieldDeletedAt): nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build %s soft delete: %w", s.Name, err)
	}

	tag, err := postgres.QuerierFromCtx(ctx, r.db).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, fmt.Sprintf("%s %s", s.Name, id))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", s.Name, id, domain.ErrNotFound)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (r *Repo) selectFrom(s *spec.EntitySpec) sq.SelectBuilder {
	return liveOnly(s, psql.Select(quoteAll(s.Columns())...).From(quote(s.Table)))
}

func liveOnly(s *spec.EntitySpec, b sq.SelectBuilder) sq.SelectBuilder {
	if s.IsSoftDelete() {
		return b.Where(sq.Eq{quote(domain.FieldDeletedAt): nil})
	}
	return b
}

func applyQuery(b sq.SelectBuilder, q domain.RecordQuery) sq.SelectBuilder {
	if len(q.Filter) > 0 {
		eq := sq.Eq{}
		for k, v := range q.Filter {
			eq[quote(k)] = v
		}
		b = b.Where(eq)
	}
	if len(q.Exclude) > 0 {
		neq := sq.NotEq{}
		for k, v := range q.Exclude {
			neq[quote(k)] = v
		}
		b = b.Where(neq)
	}
	for _, rg := range q.Ranges {
		if rg.From != nil {
			b = b.Where(sq.GtOrEq{quote(rg.Field): *rg.From})
		}
		if rg.To != nil {
			b = b.Where(sq.LtOrEq{quote(rg.Field): *rg.To})
		}
	}
	if q.Search != "" && len(q.SearchFields) > 0 {
		pattern := "%" + escapeLike(q.Search) + "%"
		or := sq.Or{}
		for _, f := range q.SearchFields {
			or = append(or, sq.ILike{quote(f): pattern})
		}
		b = b.Where(or)
	}
	return b
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

type sqlizer interface {
	ToSql() (string, []any, error)
}

// query runs a statement returning full rows and decodes them through the
// entity's field types.
func (r *Repo) query(ctx context.Context, s *spec.EntitySpec, b sqlizer) ([]domain.Record, error) {
	sql, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", s.Name, err)
	}

	rows, err := postgres.QuerierFromCtx(ctx, r.db).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		out = append(out, decode(s, rows.FieldDescriptions(), vals))
	}
	return out, rows.Err()
}

func decode(s *spec.EntitySpec, fields []pgconn.FieldDescription, vals []any) domain.Record {
	rec := make(domain.Record, len(vals))
	for i, fd := range fields {
		key := fd.Name
		if f, ok := s.Field(key); ok {
			rec[key] = f.FromStorage(vals[i])
			continue
		}
		rec[key] = vals[i]
	}
	return rec
}
