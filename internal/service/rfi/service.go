// Package rfi implements batch operations over requests for information.
package rfi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
)

const entity = "rfi"

// Reasons reported for items a batch could not update.
const (
	ReasonNotFound  = "RFI not found"
	ReasonForbidden = "permission denied"
	ReasonFailed    = "update failed"
)

type recordEngine interface {
	Update(ctx context.Context, entity string, id uuid.UUID, data map[string]any, user domain.User) (domain.Record, error)
}

// Service implements RFI batch operations.
type Service struct {
	log    *slog.Logger
	engine recordEngine
}

// NewService creates a new rfi Service.
func NewService(logger *slog.Logger, eng recordEngine) *Service {
	return &Service{
		log:    logger.With("service", "rfi"),
		engine: eng,
	}
}

// BulkUpdateDeadline sets deadline on every RFI in ids. Each RFI is updated
// in its own transaction: a failing id is reported in the result and does
// not undo or stop the others. Only cancellation of ctx ends the batch early.
func (s *Service) BulkUpdateDeadline(ctx context.Context, ids []uuid.UUID, deadline string, user domain.User) (domain.BatchResult, error) {
	if deadline == "" {
		return domain.BatchResult{}, domain.NewValidationError("deadline", "required")
	}
	return s.bulkUpdate(ctx, "deadline", ids, map[string]any{"deadline": deadline}, user)
}

// BulkAssign sets the assignee of every RFI in ids, with the same per-item
// semantics as BulkUpdateDeadline.
func (s *Service) BulkAssign(ctx context.Context, ids []uuid.UUID, assignee uuid.UUID, user domain.User) (domain.BatchResult, error) {
	if assignee == uuid.Nil {
		return domain.BatchResult{}, domain.NewValidationError("assigned_to", "required")
	}
	return s.bulkUpdate(ctx, "assign", ids, map[string]any{"assigned_to": assignee.String()}, user)
}

func (s *Service) bulkUpdate(ctx context.Context, op string, ids []uuid.UUID, data map[string]any, user domain.User) (domain.BatchResult, error) {
	if len(ids) == 0 {
		return domain.BatchResult{}, domain.NewValidationError("ids", "at least one id is required")
	}
	if len(ids) > domain.MaxPageSize {
		return domain.BatchResult{}, domain.NewValidationError("ids", fmt.Sprintf("at most %d ids per batch", domain.MaxPageSize))
	}

	res := domain.BatchResult{Total: len(ids), Failed: []domain.ItemFailure{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if _, err := s.engine.Update(ctx, entity, id, data, user); err != nil {
			if ctx.Err() != nil {
				return res, fmt.Errorf("bulk %s %s: %w", op, id, err)
			}
			if !isItemError(err) {
				s.log.ErrorContext(ctx, "rfi batch item failed",
					slog.String("op", op),
					slog.String("rfi_id", id.String()),
					slog.String("error", err.Error()),
				)
			}
			res.Failed = append(res.Failed, domain.ItemFailure{ID: id.String(), Reason: reason(err)})
			continue
		}
		res.Updated++
	}

	s.log.InfoContext(ctx, "rfi batch finished",
		slog.String("op", op),
		slog.Int("total", res.Total),
		slog.Int("updated", res.Updated),
		slog.Int("failed", res.FailedCount()),
		slog.String("user_id", user.ID.String()),
	)
	return res, nil
}

// isItemError reports whether err concerns the item itself rather than the
// storage behind it.
func isItemError(err error) bool {
	for _, target := range []error{
		domain.ErrNotFound, domain.ErrForbidden, domain.ErrValidation,
		domain.ErrConflict, domain.ErrTransition,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func reason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, domain.ErrForbidden):
		return ReasonForbidden
	case isItemError(err):
		return err.Error()
	default:
		return ReasonFailed
	}
}
