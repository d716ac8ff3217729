package memstore

import (
	"cmp"
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/spec"
)

// Records is the record store view of a Store.
type Records struct {
	s *Store
}

// Records returns the generic entity store.
func (s *Store) Records() *Records {
	return &Records{s: s}
}

func (r *Records) table(s *spec.EntitySpec) map[uuid.UUID]domain.Record {
	t, ok := r.s.st.tables[s.Table]
	if !ok {
		t = make(map[uuid.UUID]domain.Record)
		r.s.st.tables[s.Table] = t
	}
	return t
}

func live(s *spec.EntitySpec, rec domain.Record) bool {
	return !s.IsSoftDelete() || !rec.IsSet(domain.FieldDeletedAt)
}

// Get returns the live record with id or domain.ErrNotFound.
func (r *Records) Get(ctx context.Context, s *spec.EntitySpec, id uuid.UUID) (domain.Record, error) {
	defer r.s.lock(ctx)()

	rec, ok := r.table(s)[id]
	if !ok || !live(s, rec) {
		return nil, fmt.Errorf("%s %s: %w", s.Name, id, domain.ErrNotFound)
	}
	return rec.Clone(), nil
}

// List returns the live records matching q.
func (r *Records) List(ctx context.Context, s *spec.EntitySpec, q domain.RecordQuery) ([]domain.Record, error) {
	defer r.s.lock(ctx)()

	matched := r.match(s, q)

	order := cmp.Or(q.OrderBy, domain.FieldCreatedAt)
	slices.SortStableFunc(matched, func(a, b domain.Record) int {
		c := compareValues(a[order], b[order])
		if c == 0 {
			c = strings.Compare(a.ID().String(), b.ID().String())
		}
		if q.Desc {
			return -c
		}
		return c
	})

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return []domain.Record{}, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}

	out := make([]domain.Record, len(matched))
	for i, rec := range matched {
		out[i] = rec.Clone()
	}
	return out, nil
}

// Count returns the number of live records matching q.
func (r *Records) Count(ctx context.Context, s *spec.EntitySpec, q domain.RecordQuery) (int, error) {
	defer r.s.lock(ctx)()
	return len(r.match(s, q)), nil
}

// FindIDs returns the ids of live records matching filter.
func (r *Records) FindIDs(ctx context.Context, s *spec.EntitySpec, filter map[string]any) ([]uuid.UUID, error) {
	defer r.s.lock(ctx)()

	recs := r.match(s, domain.RecordQuery{Filter: filter})
	ids := make([]uuid.UUID, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID()
	}
	return ids, nil
}

// Insert stores rec and returns a copy of it.
func (r *Records) Insert(ctx context.Context, s *spec.EntitySpec, rec domain.Record) (domain.Record, error) {
	defer r.s.lock(ctx)()

	id := rec.ID()
	t := r.table(s)
	if _, dup := t[id]; dup {
		return nil, fmt.Errorf("%s %s: %w", s.Name, id, domain.ErrAlreadyExists)
	}
	if err := r.checkUnique(s, t, rec, id); err != nil {
		return nil, err
	}

	stored := make(domain.Record, len(s.Fields))
	for _, f := range s.Fields {
		stored[f.Key] = rec[f.Key]
	}
	t[id] = stored.Clone()
	return stored, nil
}

// Update merges changes into the live record with id.
func (r *Records) Update(ctx context.Context, s *spec.EntitySpec, id uuid.UUID, changes domain.Record) (domain.Record, error) {
	defer r.s.lock(ctx)()

	t := r.table(s)
	cur, ok := t[id]
	if !ok || !live(s, cur) {
		return nil, fmt.Errorf("%s %s: %w", s.Name, id, domain.ErrNotFound)
	}

	next := cur.Clone()
	for k, v := range changes {
		if s.HasField(k) {
			next[k] = v
		}
	}
	if err := r.checkUnique(s, t, next, id); err != nil {
		return nil, err
	}
	t[id] = next
	return next.Clone(), nil
}

// Delete removes the row with id.
func (r *Records) Delete(ctx context.Context, s *spec.EntitySpec, id uuid.UUID) error {
	defer r.s.lock(ctx)()

	t := r.table(s)
	if _, ok := t[id]; !ok {
		return fmt.Errorf("%s %s: %w", s.Name, id, domain.ErrNotFound)
	}
	delete(t, id)
	return nil
}

// SoftDelete stamps deleted_at on the live row with id.
func (r *Records) SoftDelete(ctx context.Context, s *spec.EntitySpec, id uuid.UUID, at int64) error {
	defer r.s.lock(ctx)()

	t := r.table(s)
	cur, ok := t[id]
	if !ok || !live(s, cur) {
		return fmt.Errorf("%s %s: %w", s.Name, id, domain.ErrNotFound)
	}
	next := cur.Clone()
	next[domain.FieldDeletedAt] = at
	next[domain.FieldUpdatedAt] = at
	t[id] = next
	return nil
}

func (r *Records) checkUnique(s *spec.EntitySpec, t map[uuid.UUID]domain.Record, rec domain.Record, self uuid.UUID) error {
	for _, f := range s.Fields {
		if !f.Unique || rec[f.Key] == nil {
			continue
		}
		for id, other := range t {
			if id != self && equalValues(other[f.Key], rec[f.Key]) {
				return fmt.Errorf("%s %s: %s: %w", s.Name, self, f.Key, domain.ErrAlreadyExists)
			}
		}
	}
	return nil
}

func (r *Records) match(s *spec.EntitySpec, q domain.RecordQuery) []domain.Record {
	var out []domain.Record
	needle := strings.ToLower(q.Search)
	for _, rec := range r.table(s) {
		if !live(s, rec) {
			continue
		}
		if !matchesQuery(rec, q, needle) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func matchesQuery(rec domain.Record, q domain.RecordQuery, needle string) bool {
	for k, want := range q.Filter {
		if !matchesAny(rec[k], want) {
			return false
		}
	}
	for k, unwanted := range q.Exclude {
		// SQL semantics: NULL <> x is not true.
		if rec[k] == nil || matchesAny(rec[k], unwanted) {
			return false
		}
	}
	for _, rg := range q.Ranges {
		if !rg.Matches(rec[rg.Field]) {
			return false
		}
	}
	if needle != "" && len(q.SearchFields) > 0 {
		found := false
		for _, f := range q.SearchFields {
			if v, ok := rec[f].(string); ok && strings.Contains(strings.ToLower(v), needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// matchesAny compares v against want, or against each element when want is
// a list.
func matchesAny(v, want any) bool {
	rv := reflect.ValueOf(want)
	if want != nil && rv.Kind() == reflect.Slice {
		for i := range rv.Len() {
			if equalValues(v, rv.Index(i).Interface()) {
				return true
			}
		}
		return false
	}
	return equalValues(v, want)
}

func equalValues(a, b any) bool {
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			return fa == fb
		}
	}
	if ua, ok := a.(uuid.UUID); ok {
		if sb, ok := b.(string); ok {
			return ua.String() == sb
		}
	}
	return reflect.DeepEqual(a, b)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// compareValues orders nil first, then by the natural order of the type.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			return cmp.Compare(fa, fb)
		}
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	case uuid.UUID:
		if y, ok := b.(uuid.UUID); ok {
			return strings.Compare(x.String(), y.String())
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
