package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
)

// Get returns the record with id, or nil when it does not exist. A record
// the user's row rule hides yields a PermissionError.
func (s *Service) Get(ctx context.Context, entity string, id uuid.UUID, user domain.User) (domain.Record, error) {
	es, err := s.reg.Get(entity)
	if err != nil {
		return nil, err
	}
	if err := s.perms.Check(user, es, domain.ActionGet, nil); err != nil {
		return nil, err
	}

	rec, err := s.records.Get(ctx, es, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.perms.Check(user, es, domain.ActionGet, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
