package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/engagement-backend/internal/adapter/memstore"
	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/hook"
	"github.com/heartmarshall/engagement-backend/internal/permission"
	"github.com/heartmarshall/engagement-backend/internal/spec"
	"github.com/heartmarshall/engagement-backend/internal/workflow"
)

var registry = spec.MustLoad(spec.Builtin(), spec.Known{
	Validators: workflow.ValidatorNames(),
	Predicates: permission.PredicateNames(),
	HookRules:  hook.RuleNames(),
})

var (
	partner     = domain.User{ID: uuid.New(), Role: domain.RolePartner, Type: domain.UserTypeInternal}
	manager     = domain.User{ID: uuid.New(), Role: domain.RoleManager, Type: domain.UserTypeInternal}
	clerk       = domain.User{ID: uuid.New(), Role: domain.RoleClerk, Type: domain.UserTypeInternal}
	clientAdmin = domain.User{ID: uuid.New(), Role: domain.RoleClientAdmin, Type: domain.UserTypeExternal}
	clientUser  = domain.User{ID: uuid.New(), Role: domain.RoleClientUser, Type: domain.UserTypeExternal}
)

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type sentNotes struct {
	mu   sync.Mutex
	sent []hook.Notification
}

func (n *sentNotes) Notify(_ context.Context, x hook.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, x)
	return nil
}

type fixture struct {
	svc   *Service
	store *memstore.Store
	hooks *hook.Dispatcher
	notes *sentNotes
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	records := store.Records()
	notes := &sentNotes{}

	machine := workflow.NewMachine(registry, workflow.NewValidators(NewFinder(registry, records)))
	hooks := hook.NewDispatcher(log, registry, notes, store.Audit(), hook.Options{MaxInFlight: 4})
	svc := NewService(log, registry, permission.NewEvaluator(log), records, machine, hooks, store.Audit(), store)
	svc.now = func() time.Time { return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC) }

	return &fixture{svc: svc, store: store, hooks: hooks, notes: notes}
}

func (f *fixture) auditEntries(t *testing.T) []domain.AuditEntry {
	t.Helper()
	entries, err := f.store.Audit().Search(context.Background(), domain.AuditFilter{}, 1000, 0)
	require.NoError(t, err)
	return entries
}

func (f *fixture) engagement(t *testing.T, extra map[string]any) domain.Record {
	t.Helper()
	data := map[string]any{
		"code":      uuid.NewString()[:8],
		"name":      "Acme statutory audit",
		"client_id": uuid.NewString(),
		"year":      float64(2024),
	}
	for k, v := range extra {
		data[k] = v
	}
	rec, err := f.svc.Create(context.Background(), "engagement", data, partner)
	require.NoError(t, err)
	return rec
}

func (f *fixture) rfi(t *testing.T, engagementID uuid.UUID, title string, extra map[string]any) domain.Record {
	t.Helper()
	data := map[string]any{"engagement_id": engagementID.String(), "title": title}
	for k, v := range extra {
		data[k] = v
	}
	rec, err := f.svc.Create(context.Background(), "rfi", data, manager)
	require.NoError(t, err)
	return rec
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreate_AppliesDefaultsAndAutoFields(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.engagement(t, nil)

	assert.NotEqual(t, uuid.Nil, rec.ID())
	assert.Equal(t, "draft", rec["stage"])
	assert.Equal(t, int64(0), rec["progress"])
	assert.Equal(t, int64(2024), rec["year"])
	assert.Equal(t, false, rec["client_visible"])
	assert.Equal(t, partner.ID, rec["created_by"])
	assert.Equal(t, true, rec[domain.FieldAutoTransitionEnabled])
	assert.Equal(t, int64(0), rec[domain.FieldTransitionAttempts])
	assert.Equal(t, f.svc.nowUnix(), rec[domain.FieldCreatedAt])

	entries := f.auditEntries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditActionCreate, entries[0].Action)
	assert.Equal(t, rec.ID(), entries[0].EntityID)
	assert.Nil(t, entries[0].BeforeState)
	assert.NotContains(t, entries[0].AfterState, domain.FieldTransitionAttempts)

	acts := f.store.Audit().Activities(context.Background())
	require.Len(t, acts, 1)
	assert.Equal(t, "engagement_opened", acts[0].Action)
}

func TestCreate_CollectsAllFieldErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), "rfi", map[string]any{"priority": "extreme"}, manager)

	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	fields := ve.Fields()
	assert.Contains(t, fields, "engagement_id")
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "priority")
	assert.Empty(t, f.auditEntries(t))
}

func TestCreate_IgnoresEngineFields(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.engagement(t, map[string]any{"stage": "closed", "created_by": uuid.NewString(), "unknown": 1})

	assert.Equal(t, "draft", rec["stage"])
	assert.Equal(t, partner.ID, rec["created_by"])
	assert.NotContains(t, rec, "unknown")
}

func TestCreate_PermissionDenied(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	eng := f.engagement(t, nil)

	_, err := f.svc.Create(context.Background(), "rfi", map[string]any{"engagement_id": eng.ID().String(), "title": "x"}, clientUser)
	require.ErrorIs(t, err, domain.ErrForbidden)

	n, err := f.store.Records().Count(context.Background(), mustSpec(t, "rfi"), domain.RecordQuery{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreate_UnknownEntity(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), "invoice", map[string]any{}, partner)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreate_EmailHookFires(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	eng := f.engagement(t, nil)
	assignee := uuid.New()
	f.rfi(t, eng.ID(), "Bank statements", map[string]any{"assigned_to": assignee.String()})
	require.NoError(t, f.hooks.Drain(context.Background()))

	f.notes.mu.Lock()
	defer f.notes.mu.Unlock()
	require.Len(t, f.notes.sent, 1)
	assert.Equal(t, "rfi_assigned", f.notes.sent[0].Template)
	assert.Equal(t, []uuid.UUID{assignee}, f.notes.sent[0].Recipients)
}

// ---------------------------------------------------------------------------
// Get / List / Search
// ---------------------------------------------------------------------------

func TestGet(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	eng := f.engagement(t, nil)

	got, err := f.svc.Get(ctx, "engagement", eng.ID(), manager)
	require.NoError(t, err)
	assert.Equal(t, eng.ID(), got.ID())

	missing, err := f.svc.Get(ctx, "engagement", uuid.New(), manager)
	require.NoError(t, err)
	assert.Nil(t, missing)

	// client_visible defaults to false for engagements.
	_, err = f.svc.Get(ctx, "engagement", eng.ID(), clientAdmin)
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.Get(ctx, "engagement", eng.ID(), clientUser)
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestList_ScopesRowsForClients(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	eng := f.engagement(t, nil)
	f.rfi(t, eng.ID(), "Visible", nil)
	f.rfi(t, eng.ID(), "Internal", map[string]any{"client_visible": false})

	all, err := f.svc.List(ctx, "rfi", map[string]any{"engagement_id": eng.ID().String()}, ListOptions{}, manager)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	visible, err := f.svc.List(ctx, "rfi", nil, ListOptions{}, clientUser)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "Visible", visible[0]["title"])

	none, err := f.svc.List(ctx, "rfi", map[string]any{"client_visible": false}, ListOptions{}, clientUser)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.svc.List(ctx, "rfi", nil, ListOptions{OrderBy: "nope"}, manager)
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.List(ctx, "permission", nil, ListOptions{}, clerk)
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestListWithPagination(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	eng := f.engagement(t, nil)
	for _, title := range []string{"a", "b", "c", "d", "e"} {
		f.rfi(t, eng.ID(), title, nil)
	}

	tests := []struct {
		name      string
		page      int
		pageSize  int
		wantPage  int
		wantItems int
		wantPages int
	}{
		{"first", 1, 2, 1, 2, 3},
		{"last partial", 3, 2, 3, 1, 3},
		{"clamped", 10, 2, 3, 1, 3},
		{"single page", 1, 200, 1, 5, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.ListWithPagination(ctx, "rfi", nil, tt.page, tt.pageSize, manager)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, got.Pagination.Page)
			assert.Equal(t, tt.wantPages, got.Pagination.TotalPages)
			assert.Equal(t, 5, got.Pagination.Total)
			assert.Len(t, got.Items, tt.wantItems)
		})
	}

	empty, err := f.svc.ListWithPagination(ctx, "section", nil, 4, 10, manager)
	require.NoError(t, err)
	assert.Equal(t, domain.Pagination{Page: 1, PageSize: 10, Total: 0, TotalPages: 0}, empty.Pagination)

	for _, bad := range [][2]int{{0, 10}, {1, 0}, {1, 201}} {
		_, err := f.svc.ListWithPagination(ctx, "rfi", nil, bad[0], bad[1], manager)
		require.ErrorIs(t, err, domain.ErrValidation, "page=%d pageSize=%d", bad[0], bad[1])
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	eng := f.engagement(t, nil)
	f.rfi(t, eng.ID(), "Bank statements", nil)
	f.rfi(t, eng.ID(), "Payroll", map[string]any{"question": "Provide the BANK reconciliation"})
	f.rfi(t, eng.ID(), "Fixed assets", nil)

	got, err := f.svc.Search(ctx, "rfi", "bank", nil, nil, ListOptions{Asc: true}, manager)
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = f.svc.Search(ctx, "rfi", "bank", []string{"title"}, nil, ListOptions{}, manager)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Bank statements", got[0]["title"])

	got, err = f.svc.Search(ctx, "rfi", "", nil, nil, ListOptions{}, manager)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = f.svc.Search(ctx, "rfi", "bank", []string{"deadline"}, nil, ListOptions{}, manager)
	require.ErrorIs(t, err, domain.ErrValidation)
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func TestUpdate_AuditsDiff(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	eng := f.engagement(t, nil)

	got, err := f.svc.Update(ctx, "engagement", eng.ID(), map[string]any{"name": "Renamed", "created_by": uuid.NewString()}, clerk)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got["name"])
	assert.Equal(t, partner.ID, got["created_by"], "auto fields are ignored on update")
	assert.Equal(t, clerk.ID, got["updated_by"])

	entries := f.auditEntries(t)
	require.Len(t, entries, 2)
	upd := entries[0]
	assert.Equal(t, domain.AuditActionUpdate, upd.Action)
	assert.Equal(t, clerk.ID, upd.UserID)

	fields := map[string]bool{}
	for _, c := range upd.Changes {
		fields[c.Field] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["updated_by"])
	assert.False(t, fields[domain.FieldUpdatedAt])
}

func TestUpdate_NoChangeIsNotAudited(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	eng := f.engagement(t, nil)

	_, err := f.svc.Update(context.Background(), "engagement", eng.ID(), map[string]any{"name": eng["name"]}, manager)
	require.NoError(t, err)
	assert.Len(t, f.auditEntries(t), 1)
}

func TestUpdate_NotFoundAndValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	eng := f.engagement(t, nil)

	_, err := f.svc.Update(ctx, "engagement", uuid.New(), map[string]any{"name": "x"}, manager)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Update(ctx, "engagement", eng.ID(), map[string]any{"name": ""}, manager)
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.Update(ctx, "engagement", eng.ID(), map[string]any{"stage": "shipped"}, manager)
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.Update(ctx, "engagement", eng.ID(), map[string]any{"name": "x"}, clientAdmin)
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestUpdate_StageChangePassesWorkflowGate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	eng := f.engagement(t, nil)

	_, err := f.svc.Update(ctx, "engagement", eng.ID(), map[string]any{"stage": "execution"}, manager)
	require.ErrorIs(t, err, domain.ErrTransition)

	_, err = f.svc.Update(ctx, "engagement", eng.ID(), map[string]any{"stage": "planning"}, manager)
	var te *domain.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, []string{workflow.ValidatorHasBudget}, te.Failed)

	res, err := f.svc.UpdateWith(ctx, "engagement", eng.ID(), map[string]any{"stage": "planning", "budget": 25000.0}, manager, UpdateOptions{Reason: "kick-off"})
	require.NoError(t, err)
	assert.True(t, res.StageChanged)
	assert.Equal(t, "planning", res.After["stage"])
	assert.Equal(t, f.svc.nowUnix(), res.After[domain.FieldLastTransitionAt])

	entries := f.auditEntries(t)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.AuditActionTransition, entries[0].Action)
	assert.Equal(t, "kick-off", entries[0].Details["reason"])
	assert.Equal(t, "draft", entries[0].Details["from"])
}

func TestUpdate_ManualTransitionReenablesAutoTransitions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	eng := f.engagement(t, map[string]any{"budget": 25000.0})

	es, err := registry.Get("engagement")
	require.NoError(t, err)
	_, err = f.store.Records().Update(ctx, es, eng.ID(), domain.Record{
		domain.FieldAutoTransitionEnabled: false,
		domain.FieldTransitionAttempts:    int64(domain.MaxAutoTransitionAttempts),
	})
	require.NoError(t, err)

	res, err := f.svc.UpdateWith(ctx, "engagement", eng.ID(), map[string]any{"stage": "planning"}, manager, UpdateOptions{})
	require.NoError(t, err)
	require.True(t, res.StageChanged)
	assert.Equal(t, true, res.After[domain.FieldAutoTransitionEnabled])
	assert.Equal(t, int64(0), res.After.Int(domain.FieldTransitionAttempts))
}

func TestUpdate_ValidateHookVetoesStatusChange(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	eng := f.engagement(t, nil)
	rfi := f.rfi(t, eng.ID(), "Bank statements", nil)

	_, err := f.svc.Update(ctx, "rfi", rfi.ID(), map[string]any{"status": "sent"}, manager)
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, "rfi", rfi.ID(), map[string]any{"status": "responded"}, clientUser)
	require.ErrorIs(t, err, domain.ErrTransition, "has_response validator")

	_, err = f.svc.Update(ctx, "rfi", rfi.ID(), map[string]any{"status": "responded", "response": "attached"}, clientUser)
	require.NoError(t, err)

	cur, err := f.svc.Get(ctx, "rfi", rfi.ID(), manager)
	require.NoError(t, err)
	assert.Equal(t, "responded", cur["status"])
}

// ---------------------------------------------------------------------------
// Remove
// ---------------------------------------------------------------------------

func TestRemove_CascadesChildren(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	eng := f.engagement(t, nil)
	r1 := f.rfi(t, eng.ID(), "one", nil)
	r2 := f.rfi(t, eng.ID(), "two", nil)
	sec, err := f.svc.Create(ctx, "section", map[string]any{"engagement_id": eng.ID().String(), "title": "Planning memo"}, manager)
	require.NoError(t, err)
	before := len(f.auditEntries(t))

	require.NoError(t, f.svc.Remove(ctx, "engagement", eng.ID(), partner))

	for _, c := range []struct {
		entity string
		id     uuid.UUID
	}{{"engagement", eng.ID()}, {"rfi", r1.ID()}, {"rfi", r2.ID()}, {"section", sec.ID()}} {
		_, err := f.store.Records().Get(ctx, mustSpec(t, c.entity), c.id)
		assert.ErrorIs(t, err, domain.ErrNotFound, "%s %s", c.entity, c.id)
	}

	entries := f.auditEntries(t)
	require.Len(t, entries, before+1)
	assert.Equal(t, domain.AuditActionDelete, entries[0].Action)
	assert.Equal(t, eng.ID(), entries[0].EntityID)
	assert.Nil(t, entries[0].AfterState)
}

func TestRemove_DeleteGuard(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	eng := f.engagement(t, map[string]any{"progress": float64(40)})
	rfi := f.rfi(t, eng.ID(), "one", nil)

	es := mustSpec(t, "engagement")
	_, err := f.store.Records().Update(ctx, es, eng.ID(), domain.Record{"stage": "execution"})
	require.NoError(t, err)
	before := len(f.auditEntries(t))

	err = f.svc.Remove(ctx, "engagement", eng.ID(), partner)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	fields := ve.Fields()
	assert.Contains(t, fields["stage"][0], "execution")
	assert.Contains(t, fields["progress"][0], "40")

	_, err = f.store.Records().Get(ctx, es, eng.ID())
	require.NoError(t, err)
	_, err = f.store.Records().Get(ctx, mustSpec(t, "rfi"), rfi.ID())
	require.NoError(t, err)
	assert.Len(t, f.auditEntries(t), before)
}

func TestRemove_SoftDeletePolicy(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	eng := f.engagement(t, nil)
	review, err := f.svc.Create(ctx, "review", map[string]any{"engagement_id": eng.ID().String(), "title": "FS review"}, manager)
	require.NoError(t, err)
	hl, err := f.svc.Create(ctx, "highlight", map[string]any{"review_id": review.ID().String(), "page": float64(3)}, clerk)
	require.NoError(t, err)

	require.NoError(t, f.svc.Remove(ctx, "review", review.ID(), manager))

	got, err := f.svc.Get(ctx, "review", review.ID(), manager)
	require.NoError(t, err)
	assert.Nil(t, got, "soft-deleted rows are hidden")
	_, err = f.store.Records().Get(ctx, mustSpec(t, "highlight"), hl.ID())
	require.ErrorIs(t, err, domain.ErrNotFound)

	err = f.svc.Remove(ctx, "review", review.ID(), manager)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRemove_RowRule(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	eng := f.engagement(t, nil)
	msg, err := f.svc.Create(ctx, "message", map[string]any{"engagement_id": eng.ID().String(), "body": "hello"}, clientUser)
	require.NoError(t, err)

	err = f.svc.Remove(ctx, "message", msg.ID(), clientAdmin)
	require.ErrorIs(t, err, domain.ErrForbidden)
	require.NoError(t, f.svc.Remove(ctx, "message", msg.ID(), clientUser))
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

func TestOneAuditEntryPerMutation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	eng := f.engagement(t, nil)
	rfi := f.rfi(t, eng.ID(), "one", nil)
	_, err := f.svc.Update(ctx, "rfi", rfi.ID(), map[string]any{"title": "two"}, manager)
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, "rfi", rfi.ID(), map[string]any{"status": "sent"}, manager)
	require.NoError(t, err)
	require.NoError(t, f.svc.Remove(ctx, "rfi", rfi.ID(), manager))

	want := []struct {
		id     uuid.UUID
		action domain.AuditAction
	}{
		{eng.ID(), domain.AuditActionCreate},
		{rfi.ID(), domain.AuditActionCreate},
		{rfi.ID(), domain.AuditActionUpdate},
		{rfi.ID(), domain.AuditActionTransition},
		{rfi.ID(), domain.AuditActionDelete},
	}
	hist, err := f.store.Audit().History(ctx, "rfi", rfi.ID(), 0)
	require.NoError(t, err)
	require.Len(t, hist, 4)
	for i, e := range hist {
		assert.Equal(t, want[i+1].action, e.Action, "entry %d", i)
		assert.Equal(t, want[i+1].id, e.EntityID)
	}
	assert.Len(t, f.auditEntries(t), len(want))
}

type failingAudit struct{}

func (failingAudit) Append(context.Context, domain.AuditEntry) error {
	return errors.New("audit_log unavailable")
}

func TestAuditFailureDoesNotRollBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.svc.audit = failingAudit{}

	rec := f.engagement(t, nil)
	got, err := f.svc.Get(context.Background(), "engagement", rec.ID(), partner)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func mustSpec(t *testing.T, name string) *spec.EntitySpec {
	t.Helper()
	s, err := registry.Get(name)
	require.NoError(t, err)
	return s
}
