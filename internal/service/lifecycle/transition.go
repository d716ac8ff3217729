package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/metrics"
	"github.com/heartmarshall/engagement-backend/internal/service/engine"
	"github.com/heartmarshall/engagement-backend/internal/spec"
)

// Transition moves the record with id to stage to on behalf of user. The
// move goes through the engine's update path, so it passes the same
// permission check, workflow gate and hooks and is audited as a transition.
func (s *Service) Transition(ctx context.Context, entity string, id uuid.UUID, to string, user domain.User, reason string) (_ TransitionResult, err error) {
	es, err := s.workflowSpec(entity)
	if err != nil {
		return TransitionResult{}, err
	}
	defer func() { metrics.RecordTransition(es.Name, false, err) }()

	cur, err := s.engine.Get(ctx, entity, id, user)
	if err != nil {
		return TransitionResult{}, err
	}
	if cur == nil {
		return TransitionResult{}, fmt.Errorf("%s %s: %w", entity, id, domain.ErrNotFound)
	}
	from := cur.String(es.StageField())
	if from == to {
		err := &domain.TransitionError{Entity: es.Name, From: from, To: to, Reason: "already in stage"}
		s.recordAttempt(ctx, es, id, from, to, user, reason, false, err)
		return TransitionResult{}, err
	}

	res, err := s.engine.UpdateWith(ctx, entity, id, map[string]any{es.StageField(): to}, user, engine.UpdateOptions{
		Action: domain.ActionTransition,
		Reason: reason,
	})
	if res.Before != nil {
		from = res.Before.String(es.StageField())
	}
	s.recordAttempt(ctx, es, id, from, to, user, reason, false, err)
	if err != nil {
		return TransitionResult{}, err
	}

	s.log.InfoContext(ctx, "transition",
		slog.String("entity", es.Name),
		slog.String("id", id.String()),
		slog.String("from", from),
		slog.String("to", to),
		slog.String("user_id", user.ID.String()),
	)
	return TransitionResult{From: from, To: to}, nil
}

// ValidateTransition checks the edge and the role without touching a record.
func (s *Service) ValidateTransition(ctx context.Context, entity, from, to string, user domain.User) error {
	es, err := s.workflowSpec(entity)
	if err != nil {
		return err
	}
	return s.machine.ValidateTransition(ctx, es, from, to, user)
}

// AvailableTransitions lists the stages user can move the record with id
// to right now.
func (s *Service) AvailableTransitions(ctx context.Context, entity string, id uuid.UUID, user domain.User) ([]spec.Stage, error) {
	es, err := s.workflowSpec(entity)
	if err != nil {
		return nil, err
	}
	cur, err := s.engine.Get(ctx, entity, id, user)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, fmt.Errorf("%s %s: %w", entity, id, domain.ErrNotFound)
	}
	return s.machine.AvailableTransitions(ctx, es, cur.String(es.StageField()), user, cur)
}

// History returns the latest transition attempts of the record with id,
// newest first.
func (s *Service) History(ctx context.Context, entity string, id uuid.UUID, user domain.User, limit int) ([]domain.TransitionLog, error) {
	es, err := s.workflowSpec(entity)
	if err != nil {
		return nil, err
	}
	cur, err := s.engine.Get(ctx, entity, id, user)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, fmt.Errorf("%s %s: %w", entity, id, domain.ErrNotFound)
	}
	if limit <= 0 || limit > domain.MaxPageSize {
		limit = domain.MaxPageSize
	}
	return s.history.List(ctx, es.Name, id, limit)
}

func (s *Service) workflowSpec(entity string) (*spec.EntitySpec, error) {
	es, err := s.reg.Get(entity)
	if err != nil {
		return nil, err
	}
	if !es.IsWorkflow() {
		return nil, domain.NewValidationError("entity", fmt.Sprintf("%s has no workflow", entity))
	}
	return es, nil
}
