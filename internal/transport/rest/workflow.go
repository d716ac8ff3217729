package rest

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/service/lifecycle"
	"github.com/heartmarshall/engagement-backend/internal/spec"
	"github.com/heartmarshall/engagement-backend/pkg/ctxutil"
)

type lifecycleService interface {
	Transition(ctx context.Context, entity string, id uuid.UUID, to string, user domain.User, reason string) (lifecycle.TransitionResult, error)
	AvailableTransitions(ctx context.Context, entity string, id uuid.UUID, user domain.User) ([]spec.Stage, error)
	History(ctx context.Context, entity string, id uuid.UUID, user domain.User, limit int) ([]domain.TransitionLog, error)
	ResetAutoTransition(ctx context.Context, entity string, id uuid.UUID, user domain.User) (domain.Record, error)
}

// WorkflowHandler serves stage transitions of workflow entities.
type WorkflowHandler struct {
	svc lifecycleService
	log *slog.Logger
}

// NewWorkflowHandler creates a WorkflowHandler.
func NewWorkflowHandler(svc lifecycleService, logger *slog.Logger) *WorkflowHandler {
	return &WorkflowHandler{svc: svc, log: logger.With("handler", "workflow")}
}

type transitionRequest struct {
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// Transition handles POST /api/entities/{entity}/{id}/transition.
func (h *WorkflowHandler) Transition(w http.ResponseWriter, r *http.Request) {
	user, _ := ctxutil.UserFromCtx(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.To == "" {
		handleError(h.log, w, r, domain.NewValidationError("to", "required"))
		return
	}

	res, err := h.svc.Transition(r.Context(), r.PathValue("entity"), id, req.To, user, req.Reason)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// Available handles GET /api/entities/{entity}/{id}/transitions.
func (h *WorkflowHandler) Available(w http.ResponseWriter, r *http.Request) {
	user, _ := ctxutil.UserFromCtx(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	stages, err := h.svc.AvailableTransitions(r.Context(), r.PathValue("entity"), id, user)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeData(w, http.StatusOK, stages)
}

// History handles GET /api/entities/{entity}/{id}/transitions/history?limit=.
func (h *WorkflowHandler) History(w http.ResponseWriter, r *http.Request) {
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

	logs, err := h.svc.History(r.Context(), r.PathValue("entity"), id, user, limit)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeData(w, http.StatusOK, logs)
}

// ResetAuto handles POST /api/entities/{entity}/{id}/auto-transition/reset.
func (h *WorkflowHandler) ResetAuto(w http.ResponseWriter, r *http.Request) {
	user, _ := ctxutil.UserFromCtx(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	rec, err := h.svc.ResetAutoTransition(r.Context(), r.PathValue("entity"), id, user)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeData(w, http.StatusOK, rec)
}
