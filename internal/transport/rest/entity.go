package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/service/engine"
	"github.com/heartmarshall/engagement-backend/internal/spec"
	"github.com/heartmarshall/engagement-backend/pkg/ctxutil"
)

type specRegistry interface {
	Get(name string) (*spec.EntitySpec, error)
}

type recordService interface {
	Create(ctx context.Context, entity string, data map[string]any, user domain.User) (domain.Record, error)
	Get(ctx context.Context, entity string, id uuid.UUID, user domain.User) (domain.Record, error)
	ListWithPagination(ctx context.Context, entity string, filter map[string]any, page, pageSize int, user domain.User) (domain.Page[domain.Record], error)
	Search(ctx context.Context, entity, query string, fields []string, filter map[string]any, opts engine.ListOptions, user domain.User) ([]domain.Record, error)
	Update(ctx context.Context, entity string, id uuid.UUID, data map[string]any, user domain.User) (domain.Record, error)
	Remove(ctx context.Context, entity string, id uuid.UUID, user domain.User) error
}

// EntityHandler serves the generic CRUD endpoints of every registered entity.
type EntityHandler struct {
	reg     specRegistry
	records recordService
	log     *slog.Logger
}

// NewEntityHandler creates an EntityHandler.
func NewEntityHandler(reg specRegistry, records recordService, logger *slog.Logger) *EntityHandler {
	return &EntityHandler{reg: reg, records: records, log: logger.With("handler", "entity")}
}

const defaultPageSize = 20

// Query parameters that are not field filters.
var reservedParams = map[string]bool{
	"page": true, "pageSize": true, "q": true, "fields": true,
	"limit": true, "offset": true, "order": true, "asc": true,
}

// List handles GET /api/entities/{entity}?page=&pageSize=&<field>=<value>.
func (h *EntityHandler) List(w http.ResponseWriter, r *http.Request) {
	user, _ := ctxutil.UserFromCtx(r.Context())
	entity := r.PathValue("entity")

	filter, err := h.filter(entity, r)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	page, err := intParam(r, "page", 1)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	pageSize, err := intParam(r, "pageSize", defaultPageSize)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}

	res, err := h.records.ListWithPagination(r.Context(), entity, filter, page, pageSize, user)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// Search handles GET /api/entities/{entity}/search?q=&fields=a,b&limit=&offset=.
func (h *EntityHandler) Search(w http.ResponseWriter, r *http.Request) {
	user, _ := ctxutil.UserFromCtx(r.Context())
	entity := r.PathValue("entity")

	filter, err := h.filter(entity, r)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	var opts engine.ListOptions
	if opts.Limit, err = intParam(r, "limit", defaultPageSize); err != nil {
		handleError(h.log, w, r, err)
		return
	}
	if opts.Offset, err = intParam(r, "offset", 0); err != nil {
		handleError(h.log, w, r, err)
		return
	}
	opts.OrderBy = r.URL.Query().Get("order")
	opts.Asc = r.URL.Query().Get("asc") == "true"

	var fields []string
	if raw := r.URL.Query().Get("fields"); raw != "" {
		fields = strings.Split(raw, ",")
	}

	items, err := h.records.Search(r.Context(), entity, r.URL.Query().Get("q"), fields, filter, opts, user)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeData(w, http.StatusOK, items)
}

// Get handles GET /api/entities/{entity}/{id}.
func (h *EntityHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, _ := ctxutil.UserFromCtx(r.Context())
	entity := r.PathValue("entity")
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	rec, err := h.records.Get(r.Context(), entity, id, user)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, APIError{Code: "NOT_FOUND", Message: entity + " not found"})
		return
	}
	writeData(w, http.StatusOK, rec)
}

// Create handles POST /api/entities/{entity}.
func (h *EntityHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, _ := ctxutil.UserFromCtx(r.Context())

	var data map[string]any
	if err := decodeBody(r, &data); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	rec, err := h.records.Create(r.Context(), r.PathValue("entity"), data, user)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeData(w, http.StatusCreated, rec)
}

// Update handles PATCH /api/entities/{entity}/{id}.
func (h *EntityHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, _ := ctxutil.UserFromCtx(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var data map[string]any
	if err := decodeBody(r, &data); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	rec, err := h.records.Update(r.Context(), r.PathValue("entity"), id, data, user)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeData(w, http.StatusOK, rec)
}

// Remove handles DELETE /api/entities/{entity}/{id}.
func (h *EntityHandler) Remove(w http.ResponseWriter, r *http.Request) {
	user, _ := ctxutil.UserFromCtx(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.records.Remove(r.Context(), r.PathValue("entity"), id, user); err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

// filter turns the non-reserved query parameters into a field filter,
// typed per the entity's declared fields. Repeated parameters match any of
// their values.
func (h *EntityHandler) filter(entity string, r *http.Request) (map[string]any, error) {
	es, err := h.reg.Get(entity)
	if err != nil {
		return nil, err
	}
	filter := map[string]any{}
	for key, vals := range r.URL.Query() {
		if reservedParams[key] {
			continue
		}
		f, ok := es.Field(key)
		if !ok {
			return nil, domain.NewValidationError(key, "unknown filter field")
		}
		typed := make([]any, 0, len(vals))
		for _, v := range vals {
			tv, err := queryValue(f, v)
			if err != nil {
				return nil, domain.NewValidationError(key, err.Error())
			}
			typed = append(typed, tv)
		}
		if len(typed) == 1 {
			filter[key] = typed[0]
		} else {
			filter[key] = typed
		}
	}
	return filter, nil
}

func queryValue(f spec.Field, raw string) (any, error) {
	switch f.Type {
	case spec.TypeInt, spec.TypeNumber:
		return json.Number(raw), nil
	case spec.TypeBool:
		return strconv.ParseBool(raw)
	}
	return raw, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(name, "must be an integer")
	}
	return n, nil
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		badRequest(w, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
