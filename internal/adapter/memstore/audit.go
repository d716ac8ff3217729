package memstore

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
)

type auditRow struct {
	seq   int64
	entry domain.AuditEntry
}

type archivedRow struct {
	archiveID  string
	archivedAt int64
	auditRow
}

// Audit is the audit log view of a Store.
type Audit struct {
	s *Store
}

// Audit returns the audit log store.
func (s *Store) Audit() *Audit {
	return &Audit{s: s}
}

// Append adds one entry.
func (a *Audit) Append(ctx context.Context, e domain.AuditEntry) error {
	defer a.s.lock(ctx)()

	for _, row := range a.s.st.audit {
		if row.entry.ID == e.ID {
			return fmt.Errorf("audit_log %s: %w", e.ID, domain.ErrAlreadyExists)
		}
	}
	a.s.seq++
	e.BeforeState = e.BeforeState.Clone()
	e.AfterState = e.AfterState.Clone()
	e.Changes = slices.Clone(e.Changes)
	a.s.st.audit = append(a.s.st.audit, auditRow{seq: a.s.seq, entry: e})
	return nil
}

// RecordActivity adds one activity row.
func (a *Audit) RecordActivity(ctx context.Context, act domain.Activity) error {
	defer a.s.lock(ctx)()
	a.s.st.activity = append(a.s.st.activity, act)
	return nil
}

// Activities returns every recorded activity in insertion order.
func (a *Audit) Activities(ctx context.Context) []domain.Activity {
	defer a.s.lock(ctx)()
	return slices.Clone(a.s.st.activity)
}

// Search returns entries matching f, newest first.
func (a *Audit) Search(ctx context.Context, f domain.AuditFilter, limit, offset int) ([]domain.AuditEntry, error) {
	defer a.s.lock(ctx)()

	rows := a.filter(f)
	slices.SortFunc(rows, func(x, y auditRow) int {
		if c := cmp.Compare(y.entry.CreatedAt, x.entry.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(y.seq, x.seq)
	})
	if offset >= len(rows) {
		return []domain.AuditEntry{}, nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return entries(rows), nil
}

// Count returns the number of entries matching f.
func (a *Audit) Count(ctx context.Context, f domain.AuditFilter) (int, error) {
	defer a.s.lock(ctx)()
	return len(a.filter(f)), nil
}

// History returns the latest limit entries of one record in commit order.
func (a *Audit) History(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]domain.AuditEntry, error) {
	defer a.s.lock(ctx)()

	var rows []auditRow
	for _, row := range a.s.st.audit {
		if row.entry.EntityType == entityType && row.entry.EntityID == entityID {
			rows = append(rows, row)
		}
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return entries(rows), nil
}

// ActionStats counts entries per action created within [from, to].
func (a *Audit) ActionStats(ctx context.Context, from, to int64) ([]domain.CountByKey, error) {
	defer a.s.lock(ctx)()
	return a.countBy(from, to, func(e domain.AuditEntry) (string, bool) {
		return string(e.Action), true
	}), nil
}

// UserStats counts entries per acting user created within [from, to].
func (a *Audit) UserStats(ctx context.Context, from, to int64) ([]domain.CountByKey, error) {
	defer a.s.lock(ctx)()
	return a.countBy(from, to, func(e domain.AuditEntry) (string, bool) {
		return e.UserID.String(), true
	}), nil
}

// ReasonCodeBreakdown counts permission changes per reason code within [from, to].
func (a *Audit) ReasonCodeBreakdown(ctx context.Context, from, to int64) ([]domain.CountByKey, error) {
	defer a.s.lock(ctx)()
	return a.countBy(from, to, func(e domain.AuditEntry) (string, bool) {
		if e.EntityType != "permission" || e.ReasonCode == nil {
			return "", false
		}
		return *e.ReasonCode, true
	}), nil
}

// Rotate moves every entry created before cutoff into the archive.
func (a *Audit) Rotate(ctx context.Context, cutoff int64, archiveID string, archivedAt int64) (int64, error) {
	defer a.s.lock(ctx)()

	var kept []auditRow
	var moved int64
	for _, row := range a.s.st.audit {
		if row.entry.CreatedAt < cutoff {
			a.s.st.archive = append(a.s.st.archive, archivedRow{archiveID: archiveID, archivedAt: archivedAt, auditRow: row})
			moved++
			continue
		}
		kept = append(kept, row)
	}
	a.s.st.audit = kept
	return moved, nil
}

// Archived returns the ids of entries archived under archiveID.
func (a *Audit) Archived(ctx context.Context, archiveID string) []uuid.UUID {
	defer a.s.lock(ctx)()

	var ids []uuid.UUID
	for _, row := range a.s.st.archive {
		if row.archiveID == archiveID {
			ids = append(ids, row.entry.ID)
		}
	}
	return ids
}

func (a *Audit) filter(f domain.AuditFilter) []auditRow {
	var needle string
	if f.Search != nil {
		needle = strings.ToLower(*f.Search)
	}

	var out []auditRow
	for _, row := range a.s.st.audit {
		e := row.entry
		switch {
		case f.EntityType != nil && e.EntityType != *f.EntityType,
			f.EntityID != nil && e.EntityID != *f.EntityID,
			f.UserID != nil && e.UserID != *f.UserID,
			f.Action != nil && e.Action != *f.Action,
			f.From != 0 && e.CreatedAt < f.From,
			f.To != 0 && e.CreatedAt > f.To:
			continue
		}
		if needle != "" && !containsText(e, needle) {
			continue
		}
		out = append(out, row)
	}
	return out
}

func containsText(e domain.AuditEntry, needle string) bool {
	if strings.Contains(strings.ToLower(e.Message), needle) {
		return true
	}
	if e.Details == nil {
		return false
	}
	b, err := json.Marshal(e.Details)
	return err == nil && strings.Contains(strings.ToLower(string(b)), needle)
}

func (a *Audit) countBy(from, to int64, key func(domain.AuditEntry) (string, bool)) []domain.CountByKey {
	counts := map[string]int{}
	for _, row := range a.s.st.audit {
		if row.entry.CreatedAt < from || row.entry.CreatedAt > to {
			continue
		}
		if k, ok := key(row.entry); ok {
			counts[k]++
		}
	}

	out := make([]domain.CountByKey, 0, len(counts))
	for k, n := range counts {
		out = append(out, domain.CountByKey{Key: k, Count: n})
	}
	slices.SortFunc(out, func(x, y domain.CountByKey) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return strings.Compare(x.Key, y.Key)
	})
	return out
}

func entries(rows []auditRow) []domain.AuditEntry {
	out := make([]domain.AuditEntry, len(rows))
	for i, row := range rows {
		out[i] = row.entry
	}
	return out
}
