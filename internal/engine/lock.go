package engine

import (
	"context"
	"database/sql"
	"sync"

	"github.com/dmschema/migrate/internal/sqlschema"
)

// migrationLockKey is the fixed advisory-lock key guarding the apply
// pipeline; every migration against one Postgres database contends for the
// same key, which is all §5 requires (no intra-migration parallelism, total
// ordering across requests on a given database).
const migrationLockKey = 0x6c6f636b706c616e // "lockplan" as eight ASCII bytes

// Locker serializes the apply pipeline (Inferring -> Applied) across
// concurrent requests against the same database. Postgres gets a real
// advisory lock so it also serializes across separate processes; other
// dialects fall back to an in-process mutex, which only protects against
// concurrent requests within this one engine instance.
type Locker interface {
	Lock(ctx context.Context) (unlock func(context.Context) error, err error)
}

// NewLocker picks the locking strategy for a dialect.
func NewLocker(dialect sqlschema.Dialect, db *sql.DB) Locker {
	if dialect.SupportsAdvisoryLock() {
		return &advisoryLocker{db: db}
	}
	return &mutexLocker{}
}

type advisoryLocker struct {
	db *sql.DB
}

func (l *advisoryLocker) Lock(ctx context.Context) (func(context.Context) error, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, &ConnectionError{Target: "advisory lock", Err: err}
	}
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		conn.Close()
		return nil, &ConnectionError{Target: "advisory lock", Err: err}
	}
	return func(ctx context.Context) error {
		_, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", migrationLockKey)
		closeErr := conn.Close()
		if err != nil {
			return err
		}
		return closeErr
	}, nil
}

type mutexLocker struct {
	mu sync.Mutex
}

func (l *mutexLocker) Lock(ctx context.Context) (func(context.Context) error, error) {
	l.mu.Lock()
	return func(context.Context) error {
		l.mu.Unlock()
		return nil
	}, nil
}
