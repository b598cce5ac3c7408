package checkpoint

import (
	"context"
	"database/sql"
	"fmt"

	// registers the "sqlite3" driver with database/sql.
	_ "github.com/mattn/go-sqlite3"
)

const initialSchema = `
create table if not exists checkpoints (
	client_id text primary key,
	revision_millis bigint not null
);
`

// SQLiteRegistry is a Registry backed by a single SQLite table mapping
// client id to its pinned revision. The caller owns the *sql.DB, matching
// the reference repository's convention of injecting an already-opened
// handle rather than each store owning its own connection pool.
type SQLiteRegistry struct {
	db *sql.DB
}

// NewSQLiteRegistry runs the registry's migration against db and returns a
// ready-to-use SQLiteRegistry.
func NewSQLiteRegistry(ctx context.Context, db *sql.DB) (*SQLiteRegistry, error) {
	if _, err := db.ExecContext(ctx, initialSchema); err != nil {
		return nil, fmt.Errorf("checkpoint: failed to migrate schema: %w", err)
	}
	return &SQLiteRegistry{db: db}, nil
}

// Register pins revisionMillis under clientID, replacing any revision the
// client previously held.
func (r *SQLiteRegistry) Register(ctx context.Context, clientID string, revisionMillis int64) error {
	_, err := r.db.ExecContext(ctx,
		`insert into checkpoints (client_id, revision_millis) values ($1, $2)
		 on conflict(client_id) do update set revision_millis = excluded.revision_millis`,
		clientID, revisionMillis)
	if err != nil {
		return fmt.Errorf("checkpoint: failed to register %q: %w", clientID, err)
	}
	return nil
}

// Release removes clientID's pinned revision, if any.
func (r *SQLiteRegistry) Release(ctx context.Context, clientID string) error {
	if _, err := r.db.ExecContext(ctx, `delete from checkpoints where client_id = $1`, clientID); err != nil {
		return fmt.Errorf("checkpoint: failed to release %q: %w", clientID, err)
	}
	return nil
}

// OldestRevisionToKeep returns the oldest currently-registered revision, or
// nil if no client has one registered.
func (r *SQLiteRegistry) OldestRevisionToKeep(ctx context.Context) (*Revision, error) {
	var millis sql.NullInt64
	err := r.db.QueryRowContext(ctx, `select min(revision_millis) from checkpoints`).Scan(&millis)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: failed to query oldest revision: %w", err)
	}
	if !millis.Valid {
		return nil, nil
	}
	rev := NewRevision(millis.Int64)
	return &rev, nil
}
