package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/heartmarshall/engagement-backend/internal/adapter/memstore"
	"github.com/heartmarshall/engagement-backend/internal/adapter/notify"
	"github.com/heartmarshall/engagement-backend/internal/adapter/postgres"
	pgaudit "github.com/heartmarshall/engagement-backend/internal/adapter/postgres/audit"
	"github.com/heartmarshall/engagement-backend/internal/adapter/postgres/joblog"
	"github.com/heartmarshall/engagement-backend/internal/adapter/postgres/record"
	"github.com/heartmarshall/engagement-backend/internal/adapter/postgres/transitionlog"
	"github.com/heartmarshall/engagement-backend/internal/auth"
	"github.com/heartmarshall/engagement-backend/internal/config"
	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/hook"
	"github.com/heartmarshall/engagement-backend/internal/permission"
	"github.com/heartmarshall/engagement-backend/internal/service/audit"
	"github.com/heartmarshall/engagement-backend/internal/service/engine"
	"github.com/heartmarshall/engagement-backend/internal/service/jobs"
	"github.com/heartmarshall/engagement-backend/internal/service/lifecycle"
	"github.com/heartmarshall/engagement-backend/internal/service/rfi"
	"github.com/heartmarshall/engagement-backend/internal/spec"
	"github.com/heartmarshall/engagement-backend/internal/transport/rest"
	"github.com/heartmarshall/engagement-backend/internal/workflow"
)

// ---------------------------------------------------------------------------
// Storage ports satisfied by both the postgres adapters and memstore
// ---------------------------------------------------------------------------

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

type auditStore interface {
	Append(ctx context.Context, e domain.AuditEntry) error
	RecordActivity(ctx context.Context, a domain.Activity) error
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

type jobLogStore interface {
	Completed(ctx context.Context, job, period string) (bool, error)
	Record(ctx context.Context, e domain.JobExecution) error
	Last(ctx context.Context, job string) (domain.JobExecution, error)
}

type transitionStore interface {
	Append(ctx context.Context, l domain.TransitionLog) error
	List(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]domain.TransitionLog, error)
}

type locker interface {
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}

type notifier interface {
	Notify(ctx context.Context, n hook.Notification) error
}

type storage struct {
	records     recordStore
	audit       auditStore
	tx          txManager
	runs        jobLogStore
	transitions transitionStore
	locker      locker
	checks      []rest.Check
	close       func()
}

// ---------------------------------------------------------------------------
// Container
// ---------------------------------------------------------------------------

// Container holds the wired services shared by the server and the jobs CLI.
type Container struct {
	Config        *config.Config
	Log           *slog.Logger
	Registry      *spec.Registry
	Engine        *engine.Service
	Lifecycle     *lifecycle.Service
	Audit         *audit.Service
	RFI           *rfi.Service
	Jobs          *jobs.Service
	Authenticator *auth.Authenticator
	Hooks         *hook.Dispatcher
	// Checks are the dependencies probed by the readiness endpoints.
	Checks []rest.Check

	closers []func()
}

// Build connects storage and the notification broker and wires every
// service. Close must be called once the container is no longer used.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	reg, err := spec.Load(spec.Builtin(), spec.Known{
		Validators: workflow.ValidatorNames(),
		Predicates: permission.PredicateNames(),
		HookRules:  hook.RuleNames(),
	})
	if err != nil {
		return nil, fmt.Errorf("load entity specs: %w", err)
	}

	c := &Container{Config: cfg, Log: logger, Registry: reg}

	store, err := openStorage(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, store.close)
	c.Checks = append(c.Checks, store.checks...)

	notes, err := c.openNotifier(cfg.Notify)
	if err != nil {
		c.Close()
		return nil, err
	}

	system := cfg.Jobs.SystemUser()
	c.Audit = audit.NewService(logger, store.audit, store.tx, cfg.Audit)
	c.Hooks = hook.NewDispatcher(logger, reg, notes, store.audit, hook.Options{
		MaxInFlight: cfg.Notify.MaxInFlight,
		SendTimeout: cfg.Notify.SendTimeout,
	})
	machine := workflow.NewMachine(reg, workflow.NewValidators(engine.NewFinder(reg, store.records)))
	c.Engine = engine.NewService(logger, reg, permission.NewEvaluator(logger), store.records, machine, c.Hooks, c.Audit, store.tx)
	c.Lifecycle = lifecycle.NewService(logger, reg, c.Engine, store.records, machine, store.transitions, system)
	c.RFI = rfi.NewService(logger, c.Engine)
	c.Jobs = jobs.NewService(logger, jobs.Deps{
		Registry:  reg,
		Records:   store.records,
		Lifecycle: c.Lifecycle,
		Audit:     c.Audit,
		Notifier:  notes,
		Locker:    store.locker,
		Runs:      store.runs,
	}, cfg.Jobs, system.ID)
	c.Authenticator = auth.NewAuthenticator(auth.NewVerifier(cfg.Auth.TokenSecret, cfg.Auth.TokenIssuer), reg, store.records)

	logger.Info("services wired",
		slog.String("driver", cfg.Database.Driver),
		slog.Int("entities", len(reg.Names())),
	)
	return c, nil
}

// Drain waits for in-flight asynchronous hooks.
func (c *Container) Drain(ctx context.Context) error {
	if c.Hooks == nil {
		return nil
	}
	return c.Hooks.Drain(ctx)
}

// Close releases connections in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func openStorage(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*storage, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory storage; data is lost on exit")
		m := memstore.New()
		return &storage{
			records:     m.Records(),
			audit:       m.Audit(),
			tx:          m,
			runs:        m.JobLog(),
			transitions: m.Transitions(),
			locker:      m,
			close:       func() {},
		}, nil

	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		return &storage{
			records:     record.New(pool),
			audit:       pgaudit.New(pool),
			tx:          postgres.NewTxManager(pool),
			runs:        joblog.New(pool),
			transitions: transitionlog.New(pool),
			locker:      postgres.NewLocker(pool),
			checks:      []rest.Check{{Name: "database", Ping: pool.Ping}},
			close:       pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

func (c *Container) openNotifier(cfg config.NotifyConfig) (notifier, error) {
	if cfg.NatsURL == "" {
		return notify.NewLogger(c.Log), nil
	}
	pub, conn, err := notify.Connect(cfg, c.Log)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func() {
		if err := conn.Drain(); err != nil {
			c.Log.Warn("nats drain", slog.String("error", err.Error()))
		}
	})
	c.Checks = append(c.Checks, rest.Check{Name: "notify", Ping: func(context.Context) error {
		if conn.Status() != nats.CONNECTED {
			return errors.New("nats " + conn.Status().String())
		}
		return nil
	}})
	return pub, nil
}
