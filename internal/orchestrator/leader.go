package orchestrator

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vidyabase/vidya-backend/internal/logger"
)

// LeaderElector is a non-blocking try-acquire distributed mutex. Only the
// replica holding it reconciles cluster state in k8s mode.
type LeaderElector interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
	Close(ctx context.Context) error
}

// advisoryLockElector holds a Postgres session advisory lock on a dedicated
// connection. The lock lives as long as the session, so a crashed leader
// releases it implicitly.
type advisoryLockElector struct {
	log    *logger.Logger
	conn   *pgx.Conn
	lockID int64
	held   bool
}

func NewAdvisoryLockElector(ctx context.Context, baseLog *logger.Logger, databaseURL string, lockID int64) (LeaderElector, error) {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect for advisory lock: %w", err)
	}
	return &advisoryLockElector{
		log:    baseLog.With("component", "AdvisoryLockElector"),
		conn:   conn,
		lockID: lockID,
	}, nil
}

func (e *advisoryLockElector) TryAcquire(ctx context.Context) (bool, error) {
	if e.held {
		return true, nil
	}
	var acquired bool
	if err := e.conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", e.lockID).Scan(&acquired); err != nil {
		return false, fmt.Errorf("pg_try_advisory_lock: %w", err)
	}
	if acquired {
		e.held = true
		e.log.Info("Leader lock acquired", "lock_id", e.lockID)
	}
	return acquired, nil
}

func (e *advisoryLockElector) Release(ctx context.Context) error {
	if !e.held {
		return nil
	}
	var released bool
	if err := e.conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", e.lockID).Scan(&released); err != nil {
		return fmt.Errorf("pg_advisory_unlock: %w", err)
	}
	e.held = false
	return nil
}

func (e *advisoryLockElector) Close(ctx context.Context) error {
	_ = e.Release(ctx)
	return e.conn.Close(ctx)
}
