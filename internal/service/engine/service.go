// Package engine runs permission-checked CRUD over spec-defined entities.
// One Service serves every entity in the registry; nothing here is written
// per entity type.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/hook"
	"github.com/heartmarshall/engagement-backend/internal/metrics"
	"github.com/heartmarshall/engagement-backend/internal/spec"
)

// ---------------------------------------------------------------------------
// Consumer-defined interfaces (private)
// ---------------------------------------------------------------------------

type specRegistry interface {
	Get(name string) (*spec.EntitySpec, error)
}

type recordStore interface {
	Get(ctx context.Context, s *spec.EntitySpec, id uuid.UUID) (domain.Record, error)
	List(ctx context.Context, s *spec.EntitySpec, q domain.RecordQuery) ([]domain.Record, error)
	Count(ctx context.Context, s *spec.EntitySpec, q domain.RecordQuery) (int, error)
	FindIDs(ctx context.Context, s *spec.EntitySpec, filter map[string]any) ([]uuid.UUID, error)
	Insert(ctx context.Context, s *spec.EntitySpec, rec domain.Record) (domain.Record, error)
	Update(ctx context.Context, s *spec.EntitySpec, id uuid.UUID, changes domain.Record) (domain.Record, error)
	Delete(ctx context.Context, s *spec.EntitySpec, id uuid.UUID) error
	SoftDelete(ctx context.Context, s *spec.EntitySpec, id uuid.UUID, at int64) error
}

type permissions interface {
	Check(user domain.User, s *spec.EntitySpec, action domain.Action, record domain.Record) error
	Scope(user domain.User, s *spec.EntitySpec, action domain.Action) (map[string]any, bool)
}

type workflowGate interface {
	Gate(ctx context.Context, s *spec.EntitySpec, from, to string, user domain.User, record domain.Record) error
}

type hookRunner interface {
	RunInTx(ctx context.Context, e hook.Event, statusChange bool) error
	RunAfterCommit(ctx context.Context, e hook.Event) error
}

type auditLog interface {
	Append(ctx context.Context, e domain.AuditEntry) error
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Service implements the persistence/query engine.
type Service struct {
	log     *slog.Logger
	reg     specRegistry
	perms   permissions
	records recordStore
	gate    workflowGate
	hooks   hookRunner
	audit   auditLog
	tx      txManager

	now   func() time.Time
	newID func() uuid.UUID
}

// NewService creates a new engine Service.
func NewService(
	logger *slog.Logger,
	reg specRegistry,
	perms permissions,
	records recordStore,
	gate workflowGate,
	hooks hookRunner,
	audit auditLog,
	tx txManager,
) *Service {
	return &Service{
		log:     logger.With("service", "engine"),
		reg:     reg,
		perms:   perms,
		records: records,
		gate:    gate,
		hooks:   hooks,
		audit:   audit,
		tx:      tx,
		now:     time.Now,
		newID:   uuid.New,
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *Service) nowUnix() int64 {
	return s.now().Unix()
}

// committed appends the audit entry of a committed mutation and runs the
// after-commit hooks. Neither can undo the mutation, so failures are logged.
func (s *Service) committed(ctx context.Context, es *spec.EntitySpec, point string, action domain.AuditAction, user domain.User, before, after domain.Record, meta mutationMeta) {
	ctx = context.WithoutCancel(ctx)

	entry := s.auditEntry(es, action, user, before, after, meta)
	if err := s.audit.Append(ctx, entry); err != nil {
		metrics.RecordAuditAppendFailure()
		s.log.ErrorContext(ctx, "audit append failed",
			slog.String("entity", es.Name),
			slog.String("entity_id", entry.EntityID.String()),
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
	}

	err := s.hooks.RunAfterCommit(ctx, hook.Event{Spec: es, Point: point, Before: before, After: after, User: user, Reason: meta.reason})
	if err != nil {
		s.log.WarnContext(ctx, "after-commit hooks failed",
			slog.String("entity", es.Name),
			slog.String("point", point),
			slog.String("error", err.Error()),
		)
	}
}

type mutationMeta struct {
	reason    string
	automatic bool
	from, to  string
}

func (s *Service) auditEntry(es *spec.EntitySpec, action domain.AuditAction, user domain.User, before, after domain.Record, meta mutationMeta) domain.AuditEntry {
	b, a := auditState(es, before), auditState(es, after)
	changes := domain.Diff(withoutKeys(b, domain.FieldUpdatedAt), withoutKeys(a, domain.FieldUpdatedAt))

	subject := after
	if subject == nil {
		subject = before
	}

	entry := domain.AuditEntry{
		ID:          s.newID(),
		EntityType:  es.Name,
		EntityID:    subject.ID(),
		Action:      action,
		UserID:      user.ID,
		BeforeState: b,
		AfterState:  a,
		Changes:     changes,
		Message:     fmt.Sprintf("%s %s", es.Name, action),
		CreatedAt:   s.nowUnix(),
	}
	if action == domain.AuditActionTransition {
		entry.Message = fmt.Sprintf("%s %s -> %s", es.Name, meta.from, meta.to)
		entry.Details = map[string]any{"from": meta.from, "to": meta.to, "automatic": meta.automatic}
	}
	if meta.reason != "" {
		if entry.Details == nil {
			entry.Details = map[string]any{}
		}
		entry.Details["reason"] = meta.reason
	}
	if es.ReasonField != "" {
		if code := subject.String(es.ReasonField); code != "" {
			entry.ReasonCode = &code
		}
	}
	return entry
}

// auditState drops bookkeeping fields from a snapshot.
func auditState(es *spec.EntitySpec, rec domain.Record) domain.Record {
	if rec == nil {
		return nil
	}
	out := make(domain.Record, len(rec))
	for k, v := range rec {
		if f, ok := es.Field(k); ok && f.Internal {
			continue
		}
		out[k] = v
	}
	return out
}

func withoutKeys(rec domain.Record, keys ...string) domain.Record {
	if rec == nil {
		return nil
	}
	out := rec.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}
