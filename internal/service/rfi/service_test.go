package rfi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmarshall/engagement-backend/internal/adapter/memstore"
	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/hook"
	"github.com/heartmarshall/engagement-backend/internal/permission"
	"github.com/heartmarshall/engagement-backend/internal/service/engine"
	"github.com/heartmarshall/engagement-backend/internal/spec"
	"github.com/heartmarshall/engagement-backend/internal/workflow"
)

//go:generate moq -out record_engine_mock_test.go -pkg rfi . recordEngine

var (
	partner = domain.User{ID: uuid.New(), Role: domain.RolePartner, Type: domain.UserTypeInternal}
	manager = domain.User{ID: uuid.New(), Role: domain.RoleManager, Type: domain.UserTypeInternal}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type noNotes struct{}

func (noNotes) Notify(context.Context, hook.Notification) error { return nil }

func newEngine(t *testing.T) (*engine.Service, *memstore.Store) {
	t.Helper()

	reg := spec.MustLoad(spec.Builtin(), spec.Known{
		Validators: workflow.ValidatorNames(),
		Predicates: permission.PredicateNames(),
		HookRules:  hook.RuleNames(),
	})
	log := discardLogger()
	store := memstore.New()
	records := store.Records()
	machine := workflow.NewMachine(reg, workflow.NewValidators(engine.NewFinder(reg, records)))
	hooks := hook.NewDispatcher(log, reg, noNotes{}, store.Audit(), hook.Options{})
	return engine.NewService(log, reg, permission.NewEvaluator(log), records, machine, hooks, store.Audit(), store), store
}

func TestBulkUpdateDeadline_Scenario(t *testing.T) {
	t.Parallel()

	eng, _ := newEngine(t)
	svc := NewService(discardLogger(), eng)
	ctx := context.Background()

	engagement, err := eng.Create(ctx, "engagement", map[string]any{
		"code": "ACME-24", "name": "Acme statutory audit", "client_id": uuid.NewString(),
	}, partner)
	require.NoError(t, err)

	var ids []uuid.UUID
	for i := range 4 {
		rec, err := eng.Create(ctx, "rfi", map[string]any{
			"engagement_id": engagement.ID().String(),
			"title":         fmt.Sprintf("Request %d", i+1),
		}, manager)
		require.NoError(t, err)
		ids = append(ids, rec.ID())
	}
	missing := uuid.New()
	ids = append(ids[:2], append([]uuid.UUID{missing}, ids[2:]...)...)

	res, err := svc.BulkUpdateDeadline(ctx, ids, "2099-12-31", manager)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 4, res.Updated)
	require.Equal(t, []domain.ItemFailure{{ID: missing.String(), Reason: ReasonNotFound}}, res.Failed)

	for _, id := range ids {
		if id == missing {
			continue
		}
		rec, err := eng.Get(ctx, "rfi", id, manager)
		require.NoError(t, err)
		assert.True(t, rec.IsSet("deadline"), "update of %s must persist", id)
	}
}

func TestBulkUpdateDeadline_PastDeadlineFailsPerItem(t *testing.T) {
	t.Parallel()

	eng, _ := newEngine(t)
	svc := NewService(discardLogger(), eng)
	ctx := context.Background()

	engagement, err := eng.Create(ctx, "engagement", map[string]any{
		"code": "ACME-23", "name": "Acme", "client_id": uuid.NewString(),
	}, partner)
	require.NoError(t, err)
	rec, err := eng.Create(ctx, "rfi", map[string]any{"engagement_id": engagement.ID().String(), "title": "Ledger"}, manager)
	require.NoError(t, err)

	res, err := svc.BulkUpdateDeadline(ctx, []uuid.UUID{rec.ID()}, "2001-01-01", manager)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated)
	require.Len(t, res.Failed, 1)
	assert.Contains(t, res.Failed[0].Reason, "deadline")
}

func TestBulkUpdate_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	boom := errors.New("connection reset")

	tests := []struct {
		name      string
		ids       []uuid.UUID
		deadline  string
		updateErr error
		wantErr   error
		wantCalls int
		wantFail  string
	}{
		{name: "no ids", deadline: "2099-01-01", wantErr: domain.ErrValidation},
		{name: "no deadline", ids: []uuid.UUID{uuid.New()}, wantErr: domain.ErrValidation},
		{name: "too many ids", ids: make([]uuid.UUID, domain.MaxPageSize+1), deadline: "2099-01-01", wantErr: domain.ErrValidation},
		{name: "forbidden is per item", ids: []uuid.UUID{uuid.New(), uuid.New()}, deadline: "2099-01-01", updateErr: &domain.PermissionError{}, wantCalls: 2, wantFail: ReasonForbidden},
		{name: "storage failure is per item", ids: []uuid.UUID{uuid.New(), uuid.New()}, deadline: "2099-01-01", updateErr: boom, wantCalls: 2, wantFail: ReasonFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := &recordEngineMock{UpdateFunc: func(context.Context, string, uuid.UUID, map[string]any, domain.User) (domain.Record, error) {
				return nil, tt.updateErr
			}}
			svc := NewService(discardLogger(), mock)

			res, err := svc.BulkUpdateDeadline(ctx, tt.ids, tt.deadline, manager)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Len(t, mock.UpdateCalls(), tt.wantCalls)
			if tt.wantFail != "" {
				require.Len(t, res.Failed, tt.wantCalls)
				assert.Equal(t, tt.wantFail, res.Failed[0].Reason)
			}
		})
	}
}

func TestBulkUpdate_StorageErrorDoesNotStopBatch(t *testing.T) {
	t.Parallel()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	serialization := &domain.DatabaseError{Op: "update rfi", Err: errors.New("could not serialize access")}
	mock := &recordEngineMock{UpdateFunc: func(_ context.Context, _ string, id uuid.UUID, _ map[string]any, _ domain.User) (domain.Record, error) {
		if id == ids[1] {
			return nil, serialization
		}
		return domain.Record{}, nil
	}}
	svc := NewService(discardLogger(), mock)

	res, err := svc.BulkUpdateDeadline(context.Background(), ids, "2099-01-01", manager)
	require.NoError(t, err)
	assert.Len(t, mock.UpdateCalls(), len(ids))
	assert.Equal(t, 4, res.Updated)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, domain.ItemFailure{ID: ids[1].String(), Reason: ReasonFailed}, res.Failed[0])
}

func TestBulkUpdate_CancelledContextStops(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	mock := &recordEngineMock{UpdateFunc: func(ctx context.Context, _ string, _ uuid.UUID, _ map[string]any, _ domain.User) (domain.Record, error) {
		cancel()
		return nil, ctx.Err()
	}}
	svc := NewService(discardLogger(), mock)

	res, err := svc.BulkUpdateDeadline(ctx, ids, "2099-01-01", manager)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, mock.UpdateCalls(), 1)
	assert.Zero(t, res.Updated)
}

func TestBulkAssign(t *testing.T) {
	t.Parallel()

	mock := &recordEngineMock{UpdateFunc: func(_ context.Context, entity string, _ uuid.UUID, data map[string]any, _ domain.User) (domain.Record, error) {
		return domain.Record{}, nil
	}}
	svc := NewService(discardLogger(), mock)
	assignee := uuid.New()

	res, err := svc.BulkAssign(context.Background(), []uuid.UUID{uuid.New()}, assignee, manager)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	call := mock.UpdateCalls()[0]
	assert.Equal(t, "rfi", call.Entity)
	assert.Equal(t, assignee.String(), call.Data["assigned_to"])

	_, err = svc.BulkAssign(context.Background(), []uuid.UUID{uuid.New()}, uuid.Nil, manager)
	require.ErrorIs(t, err, domain.ErrValidation)
}
