package rest

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/pkg/ctxutil"
)

type rfiService interface {
	BulkUpdateDeadline(ctx context.Context, ids []uuid.UUID, deadline string, user domain.User) (domain.BatchResult, error)
	BulkAssign(ctx context.Context, ids []uuid.UUID, assignee uuid.UUID, user domain.User) (domain.BatchResult, error)
}

// RFIHandler serves RFI batch operations.
type RFIHandler struct {
	svc rfiService
	log *slog.Logger
}

// NewRFIHandler creates an RFIHandler.
func NewRFIHandler(svc rfiService, logger *slog.Logger) *RFIHandler {
	return &RFIHandler{svc: svc, log: logger.With("handler", "rfi")}
}

type bulkDeadlineRequest struct {
	IDs      []uuid.UUID `json:"ids"`
	Deadline string      `json:"deadline"`
}

type bulkAssignRequest struct {
	IDs      []uuid.UUID `json:"ids"`
	Assignee uuid.UUID   `json:"assignee"`
}

// BulkDeadline handles POST /api/rfi/bulk/deadline. Items fail independently;
// the response is 200 with the per-item outcome.
func (h *RFIHandler) BulkDeadline(w http.ResponseWriter, r *http.Request) {
	user, _ := ctxutil.UserFromCtx(r.Context())

	var req bulkDeadlineRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	res, err := h.svc.BulkUpdateDeadline(r.Context(), req.IDs, req.Deadline, user)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// BulkAssign handles POST /api/rfi/bulk/assign.
func (h *RFIHandler) BulkAssign(w http.ResponseWriter, r *http.Request) {
	user, _ := ctxutil.UserFromCtx(r.Context())

	var req bulkAssignRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Assignee == uuid.Nil {
		handleError(h.log, w, r, domain.NewValidationError("assignee", "required"))
		return
	}

	res, err := h.svc.BulkAssign(r.Context(), req.IDs, req.Assignee, user)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}
