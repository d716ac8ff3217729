package jobs

import (
	"context"
	"fmt"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/spec"
)

// AutoTransitions attempts every automatic edge of every workflow entity on
// the records that currently sit in the edge's source stage and still have
// auto transitions enabled. Rejected attempts count as failed items.
func (s *Service) AutoTransitions(ctx context.Context) (domain.JobResult, error) {
	return s.run(ctx, JobAutoTransition, hourly(s.now()), func(ctx context.Context) (outcome, error) {
		var out outcome
		perEntity := map[string]any{}

		for _, es := range s.reg.All() {
			if !es.IsWorkflow() || len(es.Workflow.Auto) == 0 {
				continue
			}
			moved := 0
			for _, edge := range es.Workflow.Auto {
				n, err := s.sweepEdge(ctx, es, edge, &out)
				moved += n
				if err != nil {
					return out, err
				}
			}
			perEntity[es.Name] = moved
		}
		out.details = map[string]any{"transitioned": perEntity}
		return out, nil
	})
}

func (s *Service) sweepEdge(ctx context.Context, es *spec.EntitySpec, edge spec.AutoEdge, out *outcome) (int, error) {
	candidates, err := s.records.List(ctx, es, domain.RecordQuery{
		Filter: map[string]any{
			es.StageField():                   edge.From,
			domain.FieldAutoTransitionEnabled: true,
		},
		OrderBy: domain.FieldUpdatedAt,
		Limit:   s.cfg.AutoTransitionBatch,
	})
	if err != nil {
		return 0, fmt.Errorf("list %s in %s: %w", es.Name, edge.From, err)
	}

	moved := 0
	for _, rec := range candidates {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		out.processed++

		res, err := s.lifecycle.AutoTransition(ctx, es.Name, rec.ID())
		switch {
		case err != nil:
			out.fail(rec.ID(), err.Error())
		case res.Transitioned:
			out.succeeded++
			moved++
		case res.Skipped != "":
			out.succeeded++
		default:
			reason := res.Reason
			if res.Disabled {
				reason += " (auto transitions disabled)"
			}
			out.fail(rec.ID(), reason)
		}
	}
	return moved, nil
}
