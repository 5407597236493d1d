// Package sqlite is the persistent store for feed sources and entries.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-retry"
	"modernc.org/sqlite"

	"github.com/jdholdren/feedreader/internal/feedreader"
)

// Ensure Repo implements the Repository interface
var _ feedreader.Repository = (*Repo)(nil)

// Unique and primary key constraint failures, see https://sqlite.org/rescode.html.
const (
	codeConstraintUnique     = 2067
	codeConstraintPrimaryKey = 1555
)

type Repo struct {
	db  *sqlx.DB
	now func() time.Time
}

// Option configures a Repo.
type Option func(*Repo)

// WithClock overrides the clock used for the updated_at bookkeeping column.
func WithClock(now func() time.Time) Option {
	return func(r *Repo) {
		r.now = now
	}
}

func New(db *sqlx.DB, opts ...Option) Repo {
	r := Repo{db: db, now: time.Now}
	for _, opt := range opts {
		opt(&r)
	}

	return r
}

// DSN builds the connection string for a database file with foreign keys on,
// WAL journaling and immediate write transactions.
func DSN(path string) string {
	return fmt.Sprintf(
		"%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate&_time_format=sqlite",
		path,
	)
}

// Open connects to the database file and waits until it answers a ping.
func Open(ctx context.Context, path string) (*sqlx.DB, error) {
	dbx, err := sqlx.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(200*time.Millisecond))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := dbx.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		dbx.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}

	return dbx, nil
}

// InTx runs fn inside one transaction. The transaction is rolled back on
// every path that doesn't reach the commit, including panics.
func (r Repo) InTx(ctx context.Context, fn func(feedreader.EntryTx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(entryTx{q: tx, now: r.now}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}

// asConflict turns a sqlite uniqueness failure into a typed conflict naming
// the offending column. It returns nil for any other error.
func asConflict(err error) *feedreader.ConflictError {
	sqliteErr := &sqlite.Error{}
	if !errors.As(err, &sqliteErr) {
		return nil
	}
	if sqliteErr.Code() != codeConstraintUnique && sqliteErr.Code() != codeConstraintPrimaryKey {
		return nil
	}

	// The message looks like "UNIQUE constraint failed: feed_sources.name (2067)".
	// Composite keys list every column; the last one is the distinguishing one.
	msg := sqliteErr.Error()
	if idx := strings.LastIndex(msg, "constraint failed: "); idx >= 0 {
		msg = msg[idx+len("constraint failed: "):]
	}
	if idx := strings.Index(msg, " ("); idx >= 0 {
		msg = msg[:idx]
	}
	cols := strings.Split(msg, ",")
	col := strings.TrimSpace(cols[len(cols)-1])
	if idx := strings.LastIndex(col, "."); idx >= 0 {
		col = col[idx+1:]
	}
	if col == "" {
		col = "id"
	}

	return &feedreader.ConflictError{Field: col}
}
