// Package memstore is an in-process implementation of every persistence port
// the services use. It backs `database.driver: memory` for local runs and the
// service scenario tests. Records are deep-copied on the way in and out, so
// callers never share maps with the store.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
)

type state struct {
	tables      map[string]map[uuid.UUID]domain.Record
	audit       []auditRow
	archive     []archivedRow
	activity    []domain.Activity
	jobs        []domain.JobExecution
	transitions []domain.TransitionLog
}

// Store holds all tables. Transactions are serialized: RunInTx holds the
// store lock for the whole callback and restores a snapshot on error.
type Store struct {
	mu    sync.Mutex
	st    state
	seq   int64
	locks map[string]bool
}

// New creates an empty store.
func New() *Store {
	return &Store{
		st:    state{tables: make(map[string]map[uuid.UUID]domain.Record)},
		locks: make(map[string]bool),
	}
}

type txKey struct{}

// RunInTx runs fn atomically with respect to every other store operation.
// Nested calls join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() {
		if r := recover(); r != nil {
			s.st = snapshot
			panic(r)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock takes the store lock unless ctx already runs inside this store's
// transaction, which holds it.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (st state) clone() state {
	out := state{
		tables:      make(map[string]map[uuid.UUID]domain.Record, len(st.tables)),
		audit:       slices.Clone(st.audit),
		archive:     slices.Clone(st.archive),
		activity:    slices.Clone(st.activity),
		jobs:        slices.Clone(st.jobs),
		transitions: slices.Clone(st.transitions),
	}
	for name, rows := range st.tables {
		// Stored records are never mutated in place, so sharing them is safe.
		out.tables[name] = maps.Clone(rows)
	}
	return out
}

// TryLock is the in-process counterpart of the Postgres advisory lock.
func (s *Store) TryLock(ctx context.Context, key string) (func(), bool, error) {
	unlock := s.lock(ctx)
	defer unlock()

	if s.locks[key] {
		return nil, false, nil
	}
	s.locks[key] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.locks, key)
			s.mu.Unlock()
		})
	}, true, nil
}
