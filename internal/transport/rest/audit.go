package rest

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/pkg/ctxutil"
)

type auditService interface {
	Search(ctx context.Context, f domain.AuditFilter, page, pageSize int, user domain.User) (domain.Page[domain.AuditEntry], error)
	History(ctx context.Context, entityType string, entityID uuid.UUID, limit int, user domain.User) ([]domain.AuditEntry, error)
	ActionStats(ctx context.Context, from, to int64, user domain.User) ([]domain.CountByKey, error)
	UserStats(ctx context.Context, from, to int64, user domain.User) ([]domain.CountByKey, error)
	ReasonCodeBreakdown(ctx context.Context, from, to int64, user domain.User) ([]domain.CountByKey, error)
}

// AuditHandler serves audit log reads.
type AuditHandler struct {
	svc auditService
	log *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(svc auditService, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{svc: svc, log: logger.With("handler", "audit")}
}

// Search handles GET /api/audit?entityType=&entityId=&userId=&action=&q=&from=&to=&page=&pageSize=.
func (h *AuditHandler) Search(w http.ResponseWriter, r *http.Request) {
	user, _ := ctxutil.UserFromCtx(r.Context())
	q := r.URL.Query()

	var f domain.AuditFilter
	if v := q.Get("entityType"); v != "" {
		f.EntityType = &v
	}
	if v := q.Get("action"); v != "" {
		a := domain.AuditAction(v)
		f.Action = &a
	}
	if v := q.Get("q"); v != "" {
		f.Search = &v
	}
	var err error
	if f.EntityID, err = uuidParam(r, "entityId"); err != nil {
		handleError(h.log, w, r, err)
		return
	}
	if f.UserID, err = uuidParam(r, "userId"); err != nil {
		handleError(h.log, w, r, err)
		return
	}
	if f.From, f.To, err = rangeParams(r); err != nil {
		handleError(h.log, w, r, err)
		return
	}
	page, err := intParam(r, "page", 1)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	pageSize, err := intParam(r, "pageSize", 0)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}

	res, err := h.svc.Search(r.Context(), f, page, pageSize, user)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// History handles GET /api/entities/{entity}/{id}/audit?limit=.
func (h *AuditHandler) History(w http.ResponseWriter, r *http.Request) {
	user, _ := ctxutil.UserFromCtx(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}

	entries, err := h.svc.History(r.Context(), r.PathValue("entity"), id, limit, user)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeData(w, http.StatusOK, entries)
}

// Stats handles GET /api/audit/stats/{kind}?from=&to= where kind is
// actions, users or reasons.
func (h *AuditHandler) Stats(w http.ResponseWriter, r *http.Request) {
	user, _ := ctxutil.UserFromCtx(r.Context())

	var query func(context.Context, int64, int64, domain.User) ([]domain.CountByKey, error)
	switch r.PathValue("kind") {
	case "actions":
		query = h.svc.ActionStats
	case "users":
		query = h.svc.UserStats
	case "reasons":
		query = h.svc.ReasonCodeBreakdown
	default:
		writeError(w, http.StatusNotFound, APIError{Code: "NOT_FOUND", Message: "unknown statistic"})
		return
	}

	from, to, err := rangeParams(r)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	rows, err := query(r.Context(), from, to, user)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeData(w, http.StatusOK, rows)
}

func uuidParam(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, domain.NewValidationError(name, "must be a UUID")
	}
	return &id, nil
}

// rangeParams reads from and to as Unix seconds or YYYY-MM-DD. A date in to
// covers the whole day.
func rangeParams(r *http.Request) (from, to int64, err error) {
	if from, err = unixParam(r, "from", false); err != nil {
		return 0, 0, err
	}
	if to, err = unixParam(r, "to", true); err != nil {
		return 0, 0, err
	}
	return from, to, nil
}

func unixParam(r *http.Request, name string, endOfDay bool) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.Unix(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return 0, domain.NewValidationError(name, "must be Unix seconds or a date")
	}
	if endOfDay {
		return t.AddDate(0, 0, 1).Unix() - 1, nil
	}
	return t.Unix(), nil
}
