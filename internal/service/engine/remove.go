package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/hook"
	"github.com/heartmarshall/engagement-backend/internal/metrics"
	"github.com/heartmarshall/engagement-backend/internal/spec"
)

// Remove deletes the record with id and, depth-first, every child record
// declared in the spec. Each record is removed per its own entity's delete
// policy. Everything happens in one transaction and only the root is
// audited.
func (s *Service) Remove(ctx context.Context, entity string, id uuid.UUID, user domain.User) (err error) {
	es, err := s.reg.Get(entity)
	if err != nil {
		return err
	}
	defer func() { metrics.RecordOperation(es.Name, "delete", err) }()

	if err := s.perms.Check(user, es, domain.ActionDelete, nil); err != nil {
		return err
	}

	var before domain.Record
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		cur, getErr := s.records.Get(txCtx, es, id)
		if getErr != nil {
			return getErr
		}
		if err := s.perms.Check(user, es, domain.ActionDelete, cur); err != nil {
			return err
		}
		if err := checkDeleteGuard(es, cur); err != nil {
			return err
		}

		now := s.nowUnix()
		if err := s.removeChildren(txCtx, es, id, now); err != nil {
			return err
		}
		if err := s.removeOne(txCtx, es, id, now); err != nil {
			return err
		}
		before = cur
		return s.hooks.RunInTx(txCtx, hook.Event{Spec: es, Point: spec.PointAfterDelete, Before: cur, User: user}, false)
	})
	if err != nil {
		return err
	}

	s.committed(ctx, es, spec.PointAfterDelete, domain.AuditActionDelete, user, before, nil, mutationMeta{})

	s.log.InfoContext(ctx, "record removed",
		slog.String("entity", es.Name),
		slog.String("id", id.String()),
		slog.String("policy", string(es.Delete)),
		slog.String("user_id", user.ID.String()),
	)
	return nil
}

func (s *Service) removeChildren(ctx context.Context, parent *spec.EntitySpec, parentID uuid.UUID, now int64) error {
	for _, c := range parent.Children {
		child, err := s.reg.Get(c.Entity)
		if err != nil {
			return err
		}
		ids, err := s.records.FindIDs(ctx, child, map[string]any{c.ForeignKey: parentID})
		if err != nil {
			return fmt.Errorf("find %s children of %s %s: %w", child.Name, parent.Name, parentID, err)
		}
		for _, id := range ids {
			if err := s.removeChildren(ctx, child, id, now); err != nil {
				return err
			}
			if err := s.removeOne(ctx, child, id, now); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) removeOne(ctx context.Context, es *spec.EntitySpec, id uuid.UUID, now int64) error {
	if es.IsSoftDelete() {
		if err := s.records.SoftDelete(ctx, es, id, now); err != nil {
			return fmt.Errorf("soft delete %s %s: %w", es.Name, id, err)
		}
		return nil
	}
	if err := s.records.Delete(ctx, es, id); err != nil {
		return fmt.Errorf("delete %s %s: %w", es.Name, id, err)
	}
	return nil
}

// checkDeleteGuard rejects removal of a record outside the deletable stages
// or with recorded progress.
func checkDeleteGuard(es *spec.EntitySpec, rec domain.Record) error {
	g := es.DeleteGuard
	if g == nil {
		return nil
	}
	var errs []domain.FieldError
	if stage := rec.String(es.StageField()); !slices.Contains(g.Stages, stage) {
		errs = append(errs, domain.FieldError{
			Field:   es.StageField(),
			Message: fmt.Sprintf("cannot delete %s in stage %s", es.Name, stage),
		})
	}
	if g.ProgressField != "" && rec.Float(g.ProgressField) > 0 {
		errs = append(errs, domain.FieldError{
			Field:   g.ProgressField,
			Message: fmt.Sprintf("cannot delete %s with %s %v", es.Name, g.ProgressField, rec[g.ProgressField]),
		})
	}
	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}
