package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/spec"
)

// List returns the records matching filter that the user may see. Unknown
// filter keys are ignored.
func (s *Service) List(ctx context.Context, entity string, filter map[string]any, opts ListOptions, user domain.User) ([]domain.Record, error) {
	es, q, visible, err := s.prepareQuery(entity, filter, user)
	if err != nil {
		return nil, err
	}
	if !visible {
		return []domain.Record{}, nil
	}
	if err := window(es, &q, opts); err != nil {
		return nil, err
	}
	return s.records.List(ctx, es, q)
}

// ListWithPagination returns one 1-based page of List.
func (s *Service) ListWithPagination(ctx context.Context, entity string, filter map[string]any, page, pageSize int, user domain.User) (domain.Page[domain.Record], error) {
	if err := domain.ValidatePageRequest(page, pageSize); err != nil {
		return domain.Page[domain.Record]{}, err
	}

	es, q, visible, err := s.prepareQuery(entity, filter, user)
	if err != nil {
		return domain.Page[domain.Record]{}, err
	}
	if !visible {
		return domain.Page[domain.Record]{Items: []domain.Record{}, Pagination: domain.NewPagination(page, pageSize, 0)}, nil
	}

	total, err := s.records.Count(ctx, es, q)
	if err != nil {
		return domain.Page[domain.Record]{}, fmt.Errorf("count %s: %w", entity, err)
	}
	p := domain.NewPagination(page, pageSize, total)
	if total == 0 {
		return domain.Page[domain.Record]{Items: []domain.Record{}, Pagination: p}, nil
	}

	if err := window(es, &q, ListOptions{Limit: p.PageSize, Offset: p.Offset()}); err != nil {
		return domain.Page[domain.Record]{}, err
	}
	items, err := s.records.List(ctx, es, q)
	if err != nil {
		return domain.Page[domain.Record]{}, fmt.Errorf("list %s: %w", entity, err)
	}
	return domain.Page[domain.Record]{Items: items, Pagination: p}, nil
}

// Search matches query case-insensitively against the searchable fields, or
// the given subset of them. An empty query is a plain List.
func (s *Service) Search(ctx context.Context, entity, query string, fields []string, filter map[string]any, opts ListOptions, user domain.User) ([]domain.Record, error) {
	es, q, visible, err := s.prepareQuery(entity, filter, user)
	if err != nil {
		return nil, err
	}
	if !visible {
		return []domain.Record{}, nil
	}

	if query != "" {
		searchable := es.Searchable()
		if len(fields) == 0 {
			fields = searchable
		}
		for _, f := range fields {
			if !slices.Contains(searchable, f) {
				return nil, domain.NewValidationError("fields", fmt.Sprintf("%q is not searchable", f))
			}
		}
		if len(fields) == 0 {
			return []domain.Record{}, nil
		}
		q.Search = query
		q.SearchFields = fields
	}

	if err := window(es, &q, opts); err != nil {
		return nil, err
	}
	return s.records.List(ctx, es, q)
}

// prepareQuery resolves the spec, checks the list permission and folds the
// row-rule scope into the filter. visible is false when no row can match.
func (s *Service) prepareQuery(entity string, filter map[string]any, user domain.User) (*spec.EntitySpec, domain.RecordQuery, bool, error) {
	es, err := s.reg.Get(entity)
	if err != nil {
		return nil, domain.RecordQuery{}, false, err
	}
	if err := s.perms.Check(user, es, domain.ActionList, nil); err != nil {
		return nil, domain.RecordQuery{}, false, err
	}

	f, err := queryFilter(es, filter)
	if err != nil {
		return nil, domain.RecordQuery{}, false, err
	}
	scope, visible := s.perms.Scope(user, es, domain.ActionList)
	if !visible {
		return es, domain.RecordQuery{}, false, nil
	}
	f, visible = narrow(f, scope)
	return es, domain.RecordQuery{Filter: f}, visible, nil
}

func window(es *spec.EntitySpec, q *domain.RecordQuery, opts ListOptions) error {
	order, err := orderField(es, opts)
	if err != nil {
		return err
	}
	if opts.Limit < 0 || opts.Offset < 0 {
		return domain.NewValidationError("limit", "limit and offset must not be negative")
	}
	q.OrderBy = order
	q.Desc = !opts.Asc
	q.Limit = opts.Limit
	q.Offset = opts.Offset
	return nil
}
