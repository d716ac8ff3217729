package rest

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/service/jobs"
	"github.com/heartmarshall/engagement-backend/pkg/ctxutil"
)

type jobRunner interface {
	AutoTransitions(ctx context.Context) (domain.JobResult, error)
	RotateAudit(ctx context.Context, olderThanDays int) (domain.JobResult, error)
	RFIExpiry(ctx context.Context) (domain.JobResult, error)
	LastRun(ctx context.Context, job string) (domain.JobExecution, error)
}

// JobsHandler lets an external scheduler trigger jobs over HTTP. Only
// internal partners may run or inspect jobs.
type JobsHandler struct {
	svc jobRunner
	log *slog.Logger
}

// NewJobsHandler creates a JobsHandler.
func NewJobsHandler(svc jobRunner, logger *slog.Logger) *JobsHandler {
	return &JobsHandler{svc: svc, log: logger.With("handler", "jobs")}
}

// Run handles POST /api/jobs/{job}. rotate-audit accepts ?olderThanDays=.
func (h *JobsHandler) Run(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r) {
		return
	}

	var (
		res domain.JobResult
		err error
	)
	switch r.PathValue("job") {
	case jobs.JobAutoTransition:
		res, err = h.svc.AutoTransitions(r.Context())
	case jobs.JobRotateAudit:
		days, perr := intParam(r, "olderThanDays", 0)
		if perr != nil {
			handleError(h.log, w, r, perr)
			return
		}
		res, err = h.svc.RotateAudit(r.Context(), days)
	case jobs.JobRFIExpiry:
		res, err = h.svc.RFIExpiry(r.Context())
	default:
		writeError(w, http.StatusNotFound, APIError{Code: "NOT_FOUND", Message: "unknown job"})
		return
	}
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

// Last handles GET /api/jobs/{job}.
func (h *JobsHandler) Last(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r) {
		return
	}
	exec, err := h.svc.LastRun(r.Context(), r.PathValue("job"))
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeData(w, http.StatusOK, exec)
}

func (h *JobsHandler) allowed(w http.ResponseWriter, r *http.Request) bool {
	user, _ := ctxutil.UserFromCtx(r.Context())
	if !user.IsInternal() || user.Role != domain.RolePartner {
		handleError(h.log, w, r, &domain.PermissionError{Entity: "job", Action: "run", Role: user.Role, Reason: "partners only"})
		return false
	}
	return true
}
