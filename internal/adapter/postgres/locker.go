package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const unlockTimeout = 5 * time.Second

// Locker hands out session-level advisory locks. A lock lives on one pooled
// connection, which stays checked out until the returned unlock is called.
type Locker struct {
	pool *pgxpool.Pool
}

// NewLocker creates a Locker.
func NewLocker(pool *pgxpool.Pool) *Locker {
	return &Locker{pool: pool}
}

// TryLock attempts to take the advisory lock named key without waiting.
// ok is false when another session holds it.
func (l *Locker) TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, key).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, MapError(err, "advisory lock "+key)
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}

	s := pooledSession{conn}
	return func() {
		// The unlock must not be skipped because the caller's context ended.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
		defer cancel()
		_ = unlockSession(ctx, s, key)
	}, true, nil
}

// lockSession is the connection an advisory lock lives on.
type lockSession interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Release()
	Discard(ctx context.Context) error
}

type pooledSession struct {
	*pgxpool.Conn
}

// Discard takes the connection out of the pool and closes it, which ends the
// session and every advisory lock it holds.
func (s pooledSession) Discard(ctx context.Context) error {
	return s.Hijack().Close(ctx)
}

// unlockSession releases key and returns the session to the pool. A session
// that could not confirm the unlock is closed instead, so no idle pooled
// connection keeps holding the lock.
func unlockSession(ctx context.Context, s lockSession, key string) error {
	var released bool
	err := s.QueryRow(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, key).Scan(&released)
	if err == nil && released {
		s.Release()
		return nil
	}
	if err == nil {
		err = fmt.Errorf("advisory lock %s was not held", key)
	}
	if closeErr := s.Discard(ctx); closeErr != nil {
		return fmt.Errorf("unlock %s: %w (close: %v)", key, err, closeErr)
	}
	return fmt.Errorf("unlock %s: %w", key, err)
}
