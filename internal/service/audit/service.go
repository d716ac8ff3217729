// Package audit serves reads over the audit trail and its archival.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/config"
	"github.com/heartmarshall/engagement-backend/internal/domain"
)

const day = int64(24 * 60 * 60)

// ---------------------------------------------------------------------------
// Consumer-defined interfaces (private)
// ---------------------------------------------------------------------------

type auditRepo interface {
	Append(ctx context.Context, e domain.AuditEntry) error
	Search(ctx context.Context, f domain.AuditFilter, limit, offset int) ([]domain.AuditEntry, error)
	Count(ctx context.Context, f domain.AuditFilter) (int, error)
	History(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]domain.AuditEntry, error)
	ActionStats(ctx context.Context, from, to int64) ([]domain.CountByKey, error)
	UserStats(ctx context.Context, from, to int64) ([]domain.CountByKey, error)
	ReasonCodeBreakdown(ctx context.Context, from, to int64) ([]domain.CountByKey, error)
	Rotate(ctx context.Context, cutoff int64, archiveID string, archivedAt int64) (int64, error)
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Service implements audit log operations.
type Service struct {
	log  *slog.Logger
	repo auditRepo
	tx   txManager
	cfg  config.AuditConfig

	now   func() time.Time
	newID func() uuid.UUID
}

// NewService creates a new audit Service.
func NewService(logger *slog.Logger, repo auditRepo, tx txManager, cfg config.AuditConfig) *Service {
	return &Service{
		log:   logger.With("service", "audit"),
		repo:  repo,
		tx:    tx,
		cfg:   cfg,
		now:   time.Now,
		newID: uuid.New,
	}
}

// Append writes e, filling in its id, timestamp and changes when unset.
// Entries are never updated afterwards.
func (s *Service) Append(ctx context.Context, e domain.AuditEntry) error {
	if !e.Action.IsValid() {
		return domain.NewValidationError("action", fmt.Sprintf("unknown audit action %q", e.Action))
	}
	if e.ID == uuid.Nil {
		e.ID = s.newID()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = s.now().Unix()
	}
	if e.Changes == nil {
		e.Changes = domain.Diff(e.BeforeState, e.AfterState)
	}

	if err := s.repo.Append(ctx, e); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Diff returns the field changes between two snapshots.
func (s *Service) Diff(before, after domain.Record) []domain.Change {
	return domain.Diff(before, after)
}

// Search returns one page of entries matching f, newest first. Without a
// date range the search covers the trailing search window.
func (s *Service) Search(ctx context.Context, f domain.AuditFilter, page, pageSize int, user domain.User) (domain.Page[domain.AuditEntry], error) {
	if err := canRead(user); err != nil {
		return domain.Page[domain.AuditEntry]{}, err
	}
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = s.cfg.DefaultPageSize
	}
	if err := domain.ValidatePageRequest(page, pageSize); err != nil {
		return domain.Page[domain.AuditEntry]{}, err
	}
	if f.From != 0 && f.To != 0 && f.From > f.To {
		return domain.Page[domain.AuditEntry]{}, domain.NewValidationError("from", "must not be after to")
	}
	f.From, f.To = s.window(f.From, f.To)

	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return domain.Page[domain.AuditEntry]{}, fmt.Errorf("count audit entries: %w", err)
	}
	p := domain.NewPagination(page, pageSize, total)
	if total == 0 {
		return domain.Page[domain.AuditEntry]{Items: []domain.AuditEntry{}, Pagination: p}, nil
	}

	items, err := s.repo.Search(ctx, f, p.PageSize, p.Offset())
	if err != nil {
		return domain.Page[domain.AuditEntry]{}, fmt.Errorf("search audit entries: %w", err)
	}
	return domain.Page[domain.AuditEntry]{Items: items, Pagination: p}, nil
}

// History returns the trail of one record in commit order, capped at the
// configured history limit.
func (s *Service) History(ctx context.Context, entityType string, entityID uuid.UUID, limit int, user domain.User) ([]domain.AuditEntry, error) {
	if err := canRead(user); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}
	return s.repo.History(ctx, entityType, entityID, limit)
}

// ActionStats counts entries per action in [from, to].
func (s *Service) ActionStats(ctx context.Context, from, to int64, user domain.User) ([]domain.CountByKey, error) {
	return s.stats(ctx, from, to, user, s.repo.ActionStats)
}

// UserStats counts entries per acting user in [from, to].
func (s *Service) UserStats(ctx context.Context, from, to int64, user domain.User) ([]domain.CountByKey, error) {
	return s.stats(ctx, from, to, user, s.repo.UserStats)
}

// ReasonCodeBreakdown counts permission changes per reason code in [from, to].
func (s *Service) ReasonCodeBreakdown(ctx context.Context, from, to int64, user domain.User) ([]domain.CountByKey, error) {
	return s.stats(ctx, from, to, user, s.repo.ReasonCodeBreakdown)
}

func (s *Service) stats(ctx context.Context, from, to int64, user domain.User, query func(context.Context, int64, int64) ([]domain.CountByKey, error)) ([]domain.CountByKey, error) {
	if err := canRead(user); err != nil {
		return nil, err
	}
	from, to = s.window(from, to)
	if from > to {
		return nil, domain.NewValidationError("from", "must not be after to")
	}
	return query(ctx, from, to)
}

// Rotate moves every entry older than olderThanDays into the archive in one
// transaction. Zero means the configured retention.
func (s *Service) Rotate(ctx context.Context, olderThanDays int) (domain.RotationResult, error) {
	if olderThanDays == 0 {
		olderThanDays = s.cfg.RetentionDays
	}
	if olderThanDays <= 0 {
		return domain.RotationResult{}, domain.NewValidationError("olderThanDays", "must be positive")
	}

	now := s.now()
	cutoff := now.Unix() - int64(olderThanDays)*day
	archiveID := fmt.Sprintf("audit-%s-%s", now.UTC().Format("20060102T150405"), s.newID().String()[:8])

	var archived int64
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		n, err := s.repo.Rotate(ctx, cutoff, archiveID, now.Unix())
		if err != nil {
			return err
		}
		archived = n
		return nil
	})
	if err != nil {
		return domain.RotationResult{}, fmt.Errorf("rotate audit log: %w", err)
	}

	s.log.InfoContext(ctx, "audit log rotated",
		slog.String("archive_id", archiveID),
		slog.Int64("archived", archived),
		slog.Int("older_than_days", olderThanDays),
	)
	return domain.RotationResult{Archived: archived, ArchiveID: archiveID}, nil
}

// window fills an open date range with the trailing search window ending now.
func (s *Service) window(from, to int64) (int64, int64) {
	if to == 0 {
		to = s.now().Unix()
	}
	if from == 0 {
		from = to - int64(s.cfg.SearchWindowDays)*day
	}
	return from, to
}

// canRead restricts the audit trail to firm staff.
func canRead(user domain.User) error {
	if user.IsInternal() {
		return nil
	}
	return &domain.PermissionError{Entity: "audit_log", Action: "read", Role: user.Role, Reason: "audit trail is internal"}
}
