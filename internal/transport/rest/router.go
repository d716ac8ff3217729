package rest

import (
	"net/http"

	"github.com/heartmarshall/engagement-backend/internal/transport/middleware"
)

// Handlers groups every handler the router mounts. Nil handlers are skipped.
type Handlers struct {
	Health   *HealthHandler
	Entity   *EntityHandler
	Workflow *WorkflowHandler
	Audit    *AuditHandler
	RFI      *RFIHandler
	Jobs     *JobsHandler
	// Metrics is served at MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string
}

// NewRouter registers all routes. Probes and metrics are public; everything
// under /api/ requires an authenticated user.
func NewRouter(h Handlers) *http.ServeMux {
	root := http.NewServeMux()
	mux := http.NewServeMux()

	if h.Health != nil {
		root.HandleFunc("GET /live", h.Health.Live)
		root.HandleFunc("GET /ready", h.Health.Ready)
		root.HandleFunc("GET /health", h.Health.Health)
	}
	if h.Metrics != nil && h.MetricsPath != "" {
		root.Handle("GET "+h.MetricsPath, h.Metrics)
	}

	if e := h.Entity; e != nil {
		mux.HandleFunc("GET /api/entities/{entity}", e.List)
		mux.HandleFunc("POST /api/entities/{entity}", e.Create)
		mux.HandleFunc("GET /api/entities/{entity}/search", e.Search)
		mux.HandleFunc("GET /api/entities/{entity}/{id}", e.Get)
		mux.HandleFunc("PATCH /api/entities/{entity}/{id}", e.Update)
		mux.HandleFunc("DELETE /api/entities/{entity}/{id}", e.Remove)
	}
	if wf := h.Workflow; wf != nil {
		mux.HandleFunc("POST /api/entities/{entity}/{id}/transition", wf.Transition)
		mux.HandleFunc("GET /api/entities/{entity}/{id}/transitions", wf.Available)
		mux.HandleFunc("GET /api/entities/{entity}/{id}/transitions/history", wf.History)
		mux.HandleFunc("POST /api/entities/{entity}/{id}/auto-transition/reset", wf.ResetAuto)
	}
	if a := h.Audit; a != nil {
		mux.HandleFunc("GET /api/audit", a.Search)
		mux.HandleFunc("GET /api/audit/stats/{kind}", a.Stats)
		mux.HandleFunc("GET /api/entities/{entity}/{id}/audit", a.History)
	}
	if rfi := h.RFI; rfi != nil {
		mux.HandleFunc("POST /api/rfi/bulk/deadline", rfi.BulkDeadline)
		mux.HandleFunc("POST /api/rfi/bulk/assign", rfi.BulkAssign)
	}
	if j := h.Jobs; j != nil {
		mux.HandleFunc("POST /api/jobs/{job}", j.Run)
		mux.HandleFunc("GET /api/jobs/{job}", j.Last)
	}

	root.Handle("/api/", middleware.RequireUser(mux))
	return root
}
