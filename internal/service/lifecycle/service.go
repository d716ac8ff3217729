// Package lifecycle drives workflow transitions on top of the engine's
// update path and keeps the auto-transition circuit breaker.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/service/engine"
	"github.com/heartmarshall/engagement-backend/internal/spec"
)

// ---------------------------------------------------------------------------
// Consumer-defined interfaces (private)
// ---------------------------------------------------------------------------

type specRegistry interface {
	Get(name string) (*spec.EntitySpec, error)
}

type recordEngine interface {
	Get(ctx context.Context, entity string, id uuid.UUID, user domain.User) (domain.Record, error)
	UpdateWith(ctx context.Context, entity string, id uuid.UUID, data map[string]any, user domain.User, opts engine.UpdateOptions) (engine.UpdateResult, error)
}

type recordReader interface {
	Get(ctx context.Context, s *spec.EntitySpec, id uuid.UUID) (domain.Record, error)
}

type stateMachine interface {
	ValidateTransition(ctx context.Context, s *spec.EntitySpec, from, to string, user domain.User) error
	AvailableTransitions(ctx context.Context, s *spec.EntitySpec, current string, user domain.User, record domain.Record) ([]spec.Stage, error)
}

type transitionLog interface {
	Append(ctx context.Context, l domain.TransitionLog) error
	List(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]domain.TransitionLog, error)
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Service implements the workflow lifecycle operations.
type Service struct {
	log     *slog.Logger
	reg     specRegistry
	engine  recordEngine
	records recordReader
	machine stateMachine
	history transitionLog
	system  domain.User

	now   func() time.Time
	newID func() uuid.UUID
}

// NewService creates a new lifecycle Service. system is the identity
// automatic transitions are recorded under; its role is replaced by the
// acting role of each automatic edge.
func NewService(
	logger *slog.Logger,
	reg specRegistry,
	eng recordEngine,
	records recordReader,
	machine stateMachine,
	history transitionLog,
	system domain.User,
) *Service {
	return &Service{
		log:     logger.With("service", "lifecycle"),
		reg:     reg,
		engine:  eng,
		records: records,
		machine: machine,
		history: history,
		system:  system,
		now:     time.Now,
		newID:   uuid.New,
	}
}

// recordAttempt writes one transition log row. The log is diagnostic, so a
// failed write is only logged.
func (s *Service) recordAttempt(ctx context.Context, es *spec.EntitySpec, id uuid.UUID, from, to string, user domain.User, reason string, automatic bool, err error) {
	entry := domain.TransitionLog{
		ID:         s.newID(),
		EntityType: es.Name,
		EntityID:   id,
		FromStage:  from,
		ToStage:    to,
		UserID:     user.ID,
		Reason:     reason,
		Automatic:  automatic,
		Success:    err == nil,
		CreatedAt:  s.now().Unix(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if logErr := s.history.Append(context.WithoutCancel(ctx), entry); logErr != nil {
		s.log.ErrorContext(ctx, "transition log append failed",
			slog.String("entity", es.Name),
			slog.String("id", id.String()),
			slog.String("error", logErr.Error()),
		)
	}
}
