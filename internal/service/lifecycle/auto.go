package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/metrics"
	"github.com/heartmarshall/engagement-backend/internal/service/engine"
	"github.com/heartmarshall/engagement-backend/internal/spec"
)

// AutoTransition attempts the automatic edge leaving the record's current
// stage, acting as the edge's role. A rejected attempt increments
// transition_attempts; the attempt that reaches the limit disables auto
// transitions for the record until ResetAutoTransition. Storage failures
// are returned and never counted as attempts.
func (s *Service) AutoTransition(ctx context.Context, entity string, id uuid.UUID) (AutoResult, error) {
	es, err := s.workflowSpec(entity)
	if err != nil {
		return AutoResult{}, err
	}

	cur, err := s.records.Get(ctx, es, id)
	if err != nil {
		return AutoResult{}, err
	}
	from := cur.String(es.StageField())
	res := AutoResult{From: from, Attempts: cur.Int(domain.FieldTransitionAttempts)}

	if !cur.Bool(domain.FieldAutoTransitionEnabled) {
		res.Skipped = "auto transitions disabled"
		return res, nil
	}
	edge, ok := autoEdge(es, from)
	if !ok {
		res.Skipped = fmt.Sprintf("no automatic edge from %s", from)
		return res, nil
	}
	res.To = edge.To

	actor := s.system
	actor.Role = edge.Role

	_, err = s.engine.UpdateWith(ctx, entity, id, map[string]any{es.StageField(): edge.To}, actor, engine.UpdateOptions{
		Action:    domain.ActionTransition,
		Reason:    "automatic",
		Automatic: true,
	})
	metrics.RecordTransition(es.Name, true, err)
	if err == nil {
		s.recordAttempt(ctx, es, id, from, edge.To, actor, "automatic", true, nil)
		res.Transitioned = true
		res.Attempts = 0
		return res, nil
	}
	if !rejected(err) {
		return AutoResult{}, err
	}

	s.recordAttempt(ctx, es, id, from, edge.To, actor, "automatic", true, err)
	res.Reason = err.Error()
	res.Attempts++
	internal := domain.Record{domain.FieldTransitionAttempts: res.Attempts}
	if res.Attempts >= domain.MaxAutoTransitionAttempts {
		internal[domain.FieldAutoTransitionEnabled] = false
		res.Disabled = true
	}

	_, updErr := s.engine.UpdateWith(ctx, entity, id, nil, actor, engine.UpdateOptions{
		Action:    domain.ActionTransition,
		Reason:    res.Reason,
		Automatic: true,
		Internal:  internal,
	})
	if updErr != nil {
		return AutoResult{}, fmt.Errorf("record failed attempt on %s %s: %w", entity, id, updErr)
	}

	if res.Disabled {
		metrics.RecordAutoTransitionDisabled(es.Name)
		s.log.WarnContext(ctx, "auto transitions disabled",
			slog.String("entity", es.Name),
			slog.String("id", id.String()),
			slog.Int64("attempts", res.Attempts),
			slog.String("reason", res.Reason),
		)
	}
	return res, nil
}

// ResetAutoTransition re-enables automatic transitions for the record with
// id and clears its failure count.
func (s *Service) ResetAutoTransition(ctx context.Context, entity string, id uuid.UUID, user domain.User) (domain.Record, error) {
	if _, err := s.workflowSpec(entity); err != nil {
		return nil, err
	}
	res, err := s.engine.UpdateWith(ctx, entity, id, nil, user, engine.UpdateOptions{
		Reason: "auto transition reset",
		Internal: domain.Record{
			domain.FieldAutoTransitionEnabled: true,
			domain.FieldTransitionAttempts:    int64(0),
		},
	})
	if err != nil {
		return nil, err
	}
	return res.After, nil
}

func autoEdge(es *spec.EntitySpec, from string) (spec.AutoEdge, bool) {
	for _, a := range es.Workflow.Auto {
		if a.From == from {
			return a, true
		}
	}
	return spec.AutoEdge{}, false
}

// rejected reports whether err is a business rejection of the attempt
// rather than an infrastructure failure.
func rejected(err error) bool {
	return errors.Is(err, domain.ErrTransition) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrForbidden)
}
