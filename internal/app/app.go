package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/heartmarshall/engagement-backend/internal/config"
	"github.com/heartmarshall/engagement-backend/internal/transport/middleware"
	"github.com/heartmarshall/engagement-backend/internal/transport/rest"
)

// Run is the server entry point. It loads configuration, wires the
// services, serves HTTP until ctx is cancelled and then shuts down
// gracefully, draining in-flight hooks before closing connections.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := NewLogger(cfg.Log)
	logger.Info("starting application",
		slog.String("version", BuildVersion()),
		slog.String("log_level", cfg.Log.Level),
	)

	c, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	limiter := middleware.NewRateLimiter(time.Minute)
	defer limiter.Stop()

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      Handler(c, limiter),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		if err := c.Drain(shutdownCtx); err != nil {
			logger.Warn("hooks not drained", slog.String("error", err.Error()))
		}
		return nil
	})

	return g.Wait()
}

// Handler builds the HTTP handler with the full middleware chain. A nil
// limiter or a zero rate limit disables rate limiting.
func Handler(c *Container, limiter *middleware.RateLimiter) http.Handler {
	cfg := c.Config

	h := rest.Handlers{
		Health:   rest.NewHealthHandler(BuildVersion(), c.Checks...),
		Entity:   rest.NewEntityHandler(c.Registry, c.Engine, c.Log),
		Workflow: rest.NewWorkflowHandler(c.Lifecycle, c.Log),
		Audit:    rest.NewAuditHandler(c.Audit, c.Log),
		RFI:      rest.NewRFIHandler(c.RFI, c.Log),
		Jobs:     rest.NewJobsHandler(c.Jobs, c.Log),
	}
	if cfg.Metrics.Enabled {
		h.Metrics = promhttp.Handler()
		h.MetricsPath = cfg.Metrics.Path
	}

	var limit middleware.Middleware
	if limiter != nil && cfg.Server.RateLimit > 0 {
		limit = limiter.Limit(cfg.Server.RateLimit)
	}

	return middleware.Chain(
		middleware.RequestID(),
		middleware.Logger(c.Log),
		middleware.Recovery(c.Log),
		middleware.CORS(cfg.CORS),
		limit,
		middleware.Auth(c.Authenticator, c.Log),
	)(rest.NewRouter(h))
}
