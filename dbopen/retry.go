package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Crawl workers write concurrently; under WAL a writer can still hit
// SQLITE_BUSY while another transaction commits. Those are transient, so
// write paths retry a few times with linear backoff before giving up.
const (
	busyAttempts = 3
	busyBackoff  = 100 * time.Millisecond
)

// IsBusy reports whether err is a transient SQLite lock contention error.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// withBusyRetry runs op, retrying BUSY failures with 100/200/300 ms
// pauses. Any other error, or context cancellation, stops immediately.
func withBusyRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = op()
		if err == nil || !IsBusy(err) || attempt == busyAttempts {
			return err
		}
		pause := time.Duration(attempt) * busyBackoff
		select {
		case <-ctx.Done():
			return fmt.Errorf("dbopen: cancelled waiting out SQLITE_BUSY: %w", ctx.Err())
		case <-time.After(pause):
		}
	}
}

// RunTx executes fn inside a transaction, retrying the whole transaction
// on SQLITE_BUSY. fn may run more than once and must be safe to repeat;
// a non-BUSY error from fn rolls back and is returned as-is.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return withBusyRetry(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("dbopen: begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("dbopen: commit: %w", err)
		}
		return nil
	})
}

// Exec executes a single statement with BUSY retry.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := withBusyRetry(ctx, func() error {
		var err error
		res, err = db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
