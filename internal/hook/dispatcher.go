package hook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/metrics"
	"github.com/heartmarshall/engagement-backend/internal/spec"
)

// Notification is what an email hook hands to the delivery collaborator.
type Notification struct {
	Template   string        `json:"template"`
	Entity     string        `json:"entity"`
	EntityID   uuid.UUID     `json:"entity_id"`
	Recipients []uuid.UUID   `json:"recipients"`
	ActorID    uuid.UUID     `json:"actor_id"`
	Record     domain.Record `json:"record"`
	SentAt     int64         `json:"sent_at"`
}

type notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type activityRecorder interface {
	RecordActivity(ctx context.Context, a domain.Activity) error
}

type specRegistry interface {
	All() []*spec.EntitySpec
}

// Options tunes the dispatcher.
type Options struct {
	// MaxInFlight bounds concurrently delivered async emails.
	MaxInFlight int64
	// SendTimeout bounds one async delivery.
	SendTimeout time.Duration
}

// Dispatcher runs registered hooks for entity mutations.
type Dispatcher struct {
	hooks    map[string]map[string][]Registration
	notifier notifier
	activity activityRecorder
	sem      *semaphore.Weighted
	max      int64
	timeout  time.Duration
	now      func() time.Time
	log      *slog.Logger
}

// NewDispatcher compiles the hooks of every registered spec.
func NewDispatcher(log *slog.Logger, reg specRegistry, n notifier, activity activityRecorder, opts Options) *Dispatcher {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 16
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	return &Dispatcher{
		hooks:    compile(reg.All()),
		notifier: n,
		activity: activity,
		sem:      semaphore.NewWeighted(opts.MaxInFlight),
		max:      opts.MaxInFlight,
		timeout:  opts.SendTimeout,
		now:      time.Now,
		log:      log.With("service", "hook"),
	}
}

// Registrations returns the ordered hooks of entity at point.
func (d *Dispatcher) Registrations(entity, point string) []Registration {
	return d.hooks[entity][point]
}

// RunInTx runs the hooks that belong inside the mutation's transaction:
// validate hooks at e.Point, and every hook at beforeStatusChange when
// statusChange is set. The first error aborts the mutation.
func (d *Dispatcher) RunInTx(ctx context.Context, e Event, statusChange bool) error {
	for _, r := range d.hooks[e.Spec.Name][e.Point] {
		if _, ok := r.Hook.(Validate); !ok {
			continue
		}
		if err := d.run(ctx, r, e); err != nil {
			return err
		}
	}
	if !statusChange {
		return nil
	}
	before := e
	before.Point = spec.PointBeforeStatusChange
	for _, r := range d.hooks[e.Spec.Name][spec.PointBeforeStatusChange] {
		if err := d.run(ctx, r, before); err != nil {
			return err
		}
	}
	return nil
}

// RunAfterCommit runs the audit and email hooks at e.Point. Email failures
// are logged only; audit failures are returned so the caller can log them
// against the already committed mutation.
func (d *Dispatcher) RunAfterCommit(ctx context.Context, e Event) error {
	var errs []error
	for _, r := range d.hooks[e.Spec.Name][e.Point] {
		if _, ok := r.Hook.(Validate); ok {
			continue
		}
		if err := d.run(ctx, r, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Drain waits until every async email in flight has been delivered.
func (d *Dispatcher) Drain(ctx context.Context) error {
	if err := d.sem.Acquire(ctx, d.max); err != nil {
		return err
	}
	d.sem.Release(d.max)
	return nil
}

func (d *Dispatcher) run(ctx context.Context, r Registration, e Event) error {
	if !r.Cond.matches(e) {
		return nil
	}

	var err error
	switch h := r.Hook.(type) {
	case Validate:
		err = d.validate(h, r.Cond.Field, e)
	case Audit:
		err = d.record(ctx, h, e)
	case Email:
		d.email(ctx, h, e)
		return nil
	default:
		err = fmt.Errorf("unsupported hook %T", h)
	}
	metrics.RecordHook(r.Hook.kind(), err)
	return err
}

func (d *Dispatcher) validate(h Validate, field string, e Event) error {
	fn, ok := rules[h.Rule]
	if !ok {
		return fmt.Errorf("unknown validate rule %q", h.Rule)
	}
	return fn(e, field, d.now())
}

func (d *Dispatcher) record(ctx context.Context, h Audit, e Event) error {
	cur := e.current()
	data := map[string]any{"point": e.Point}
	if e.Reason != "" {
		data["reason"] = e.Reason
	}
	if e.Before != nil && e.After != nil {
		data["changes"] = domain.Diff(e.Before, e.After)
	}

	err := d.activity.RecordActivity(ctx, domain.Activity{
		ID:         uuid.New(),
		Action:     h.Action,
		EntityType: e.Spec.Name,
		EntityID:   cur.ID(),
		UserID:     e.User.ID,
		Data:       data,
		CreatedAt:  d.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("record activity %s: %w", h.Action, err)
	}
	return nil
}

func (d *Dispatcher) email(ctx context.Context, h Email, e Event) {
	cur := e.current()
	n := Notification{
		Template:   h.Template,
		Entity:     e.Spec.Name,
		EntityID:   cur.ID(),
		Recipients: recipients(cur, h.Recipients),
		ActorID:    e.User.ID,
		Record:     cur.Clone(),
		SentAt:     d.now().Unix(),
	}
	if len(n.Recipients) == 0 {
		d.log.DebugContext(ctx, "email hook has no recipients",
			slog.String("template", h.Template),
			slog.String("entity", e.Spec.Name),
		)
		return
	}

	if !h.Async {
		d.send(ctx, n)
		return
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.log.WarnContext(ctx, "email dropped", slog.String("template", h.Template), slog.String("error", err.Error()))
		metrics.RecordHook(spec.KindEmail, err)
		return
	}
	sendCtx := context.WithoutCancel(ctx)
	go func() {
		defer d.sem.Release(1)
		ctx, cancel := context.WithTimeout(sendCtx, d.timeout)
		defer cancel()
		d.send(ctx, n)
	}()
}

func (d *Dispatcher) send(ctx context.Context, n Notification) {
	err := d.notifier.Notify(ctx, n)
	metrics.RecordHook(spec.KindEmail, err)
	if err != nil {
		d.log.ErrorContext(ctx, "email hook failed",
			slog.String("template", n.Template),
			slog.String("entity", n.Entity),
			slog.String("entity_id", n.EntityID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func recipients(r domain.Record, fields []string) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(fields))
	var out []uuid.UUID
	for _, f := range fields {
		id := r.UUID(f)
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
