package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/hook"
	"github.com/heartmarshall/engagement-backend/internal/metrics"
	"github.com/heartmarshall/engagement-backend/internal/spec"
)

// Create validates data against the entity's fields, persists a new record
// and audits it. afterCreate validate hooks can still veto the insert.
func (s *Service) Create(ctx context.Context, entity string, data map[string]any, user domain.User) (_ domain.Record, err error) {
	es, err := s.reg.Get(entity)
	if err != nil {
		return nil, err
	}
	defer func() { metrics.RecordOperation(es.Name, "create", err) }()

	if err := s.perms.Check(user, es, domain.ActionCreate, nil); err != nil {
		return nil, err
	}
	rec, err := s.newRecord(es, data, user)
	if err != nil {
		return nil, err
	}

	var created domain.Record
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var insertErr error
		created, insertErr = s.records.Insert(txCtx, es, rec)
		if insertErr != nil {
			return fmt.Errorf("insert %s: %w", es.Name, insertErr)
		}
		return s.hooks.RunInTx(txCtx, hook.Event{Spec: es, Point: spec.PointAfterCreate, After: created, User: user}, false)
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, es, spec.PointAfterCreate, domain.AuditActionCreate, user, nil, created, mutationMeta{})

	s.log.InfoContext(ctx, "record created",
		slog.String("entity", es.Name),
		slog.String("id", created.ID().String()),
		slog.String("user_id", user.ID.String()),
	)
	return created, nil
}
