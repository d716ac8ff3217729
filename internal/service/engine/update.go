package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/hook"
	"github.com/heartmarshall/engagement-backend/internal/metrics"
	"github.com/heartmarshall/engagement-backend/internal/spec"
)

// Update merges data into the record with id. See UpdateWith.
func (s *Service) Update(ctx context.Context, entity string, id uuid.UUID, data map[string]any, user domain.User) (domain.Record, error) {
	res, err := s.UpdateWith(ctx, entity, id, data, user, UpdateOptions{})
	if err != nil {
		return nil, err
	}
	return res.After, nil
}

// UpdateWith merges data into the record with id inside one transaction.
// A change of the workflow field passes the workflow gate and the
// beforeStatusChange hooks and is audited as a transition. An update that
// changes nothing is not written and not audited.
func (s *Service) UpdateWith(ctx context.Context, entity string, id uuid.UUID, data map[string]any, user domain.User, opts UpdateOptions) (_ UpdateResult, err error) {
	es, err := s.reg.Get(entity)
	if err != nil {
		return UpdateResult{}, err
	}
	if opts.Action == "" {
		opts.Action = domain.ActionUpdate
	}
	defer func() { metrics.RecordOperation(es.Name, string(opts.Action), err) }()

	if err := s.perms.Check(user, es, opts.Action, nil); err != nil {
		return UpdateResult{}, err
	}
	changes, stage, err := changeSet(es, data)
	if err != nil {
		return UpdateResult{}, err
	}

	var res UpdateResult
	var meta mutationMeta
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		cur, getErr := s.records.Get(txCtx, es, id)
		if getErr != nil {
			return getErr
		}
		if err := s.perms.Check(user, es, opts.Action, cur); err != nil {
			return err
		}

		now := s.nowUnix()
		next := cur.Clone()
		for k, v := range changes {
			next[k] = v
		}
		for k, v := range opts.Internal {
			next[k] = v
		}
		if missing := missingRequired(es, next); len(missing) > 0 {
			return domain.NewValidationErrors(missing)
		}

		if stage != nil && *stage != cur.String(es.StageField()) {
			from, to := cur.String(es.StageField()), *stage
			if opts.Action != domain.ActionTransition {
				if err := s.perms.Check(user, es, domain.ActionTransition, cur); err != nil {
					return err
				}
			}
			next[es.StageField()] = to
			if err := s.gate.Gate(txCtx, es, from, to, user, next); err != nil {
				return err
			}
			// A stage change clears the auto transition circuit breaker.
			next[domain.FieldLastTransitionAt] = now
			next[domain.FieldTransitionAttempts] = int64(0)
			next[domain.FieldAutoTransitionEnabled] = true
			res.StageChanged = true
			meta = mutationMeta{reason: opts.Reason, automatic: opts.Automatic, from: from, to: to}
		} else if opts.Reason != "" {
			meta.reason = opts.Reason
		}

		delta := domain.Record{}
		for _, c := range domain.Diff(cur, next) {
			delta[c.Field] = next[c.Field]
		}
		if len(delta) == 0 {
			res.Before, res.After = cur, cur
			return nil
		}
		for _, f := range es.Fields {
			switch f.Auto {
			case spec.AutoNowUpdate:
				delta[f.Key] = now
			case spec.AutoUpdatedBy:
				delta[f.Key] = user.ID
			}
		}

		updated, updateErr := s.records.Update(txCtx, es, id, delta)
		if updateErr != nil {
			return fmt.Errorf("update %s: %w", es.Name, updateErr)
		}
		res.Before, res.After = cur, updated

		e := hook.Event{Spec: es, Point: spec.PointAfterUpdate, Before: cur, After: updated, User: user, Reason: opts.Reason}
		return s.hooks.RunInTx(txCtx, e, res.StageChanged)
	})
	if err != nil {
		return UpdateResult{}, err
	}

	if !observable(es, res.Before, res.After) {
		return res, nil
	}

	action := domain.AuditActionUpdate
	if res.StageChanged {
		action = domain.AuditActionTransition
	}
	s.committed(ctx, es, spec.PointAfterUpdate, action, user, res.Before, res.After, meta)

	s.log.InfoContext(ctx, "record updated",
		slog.String("entity", es.Name),
		slog.String("id", id.String()),
		slog.String("action", string(action)),
		slog.String("user_id", user.ID.String()),
	)
	return res, nil
}

// observable reports whether an update changed anything outside bookkeeping
// fields and updated_at.
func observable(es *spec.EntitySpec, before, after domain.Record) bool {
	b := withoutKeys(auditState(es, before), domain.FieldUpdatedAt)
	a := withoutKeys(auditState(es, after), domain.FieldUpdatedAt)
	return len(domain.Diff(b, a)) > 0
}
