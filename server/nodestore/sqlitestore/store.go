package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	gojson "github.com/goccy/go-json"
	// registers the "sqlite3" driver with database/sql.
	_ "github.com/mattn/go-sqlite3"

	"github.com/tidecore/revgc/server/nodestore"
)

const initialSchema = `
create table if not exists nodes (
	id text primary key,
	modified bigint not null,
	has_children boolean not null default false,
	previous_ranges text not null default '{}',
	deleted boolean not null default false,
	main_id text,
	split_type integer,
	owner_modified bigint
);
create index if not exists idx_nodes_modified on nodes(modified);
create index if not exists idx_nodes_main_id on nodes(main_id) where main_id is not null;
`

// Store is a nodestore.DocumentStore backed by a single SQLite table. The
// caller owns db, matching the convention used by server/checkpoint.
type Store struct {
	db *sql.DB
}

// New runs the store's migration against db and returns a ready-to-use
// Store.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, initialSchema); err != nil {
		return nil, fmt.Errorf("sqlitestore: failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Put inserts or replaces doc. It is not part of nodestore.DocumentStore;
// it exists for tests and for seeding the store outside of normal GC flow.
func (s *Store) Put(ctx context.Context, doc *nodestore.NodeDocument) error {
	ranges, err := gojson.Marshal(doc.PreviousRanges)
	if err != nil {
		return fmt.Errorf("sqlitestore: failed to marshal previous ranges: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`insert into nodes (id, modified, has_children, previous_ranges, deleted)
		 values ($1, $2, $3, $4, $5)
		 on conflict(id) do update set
			modified = excluded.modified,
			has_children = excluded.has_children,
			previous_ranges = excluded.previous_ranges,
			deleted = excluded.deleted`,
		doc.ID, doc.ModifiedInSecs, doc.HasChildren, string(ranges), doc.Deleted)
	if err != nil {
		return fmt.Errorf("sqlitestore: failed to put %q: %w", doc.ID, err)
	}
	return nil
}

// PutPrevious inserts a previous (split) document owned by mainID, tagged
// with splitType and the owning main document's modification time, so that
// AllPreviousDocs and the split-doc delegate can find it later.
func (s *Store) PutPrevious(ctx context.Context, doc *nodestore.NodeDocument, mainID string, splitType int, ownerModifiedSecs int64) error {
	_, err := s.db.ExecContext(ctx,
		`insert into nodes (id, modified, has_children, previous_ranges, deleted, main_id, split_type, owner_modified)
		 values ($1, $2, false, '{}', false, $3, $4, $5)
		 on conflict(id) do update set
			modified = excluded.modified,
			main_id = excluded.main_id,
			split_type = excluded.split_type,
			owner_modified = excluded.owner_modified`,
		doc.ID, doc.ModifiedInSecs, mainID, splitType, ownerModifiedSecs)
	if err != nil {
		return fmt.Errorf("sqlitestore: failed to put previous doc %q: %w", doc.ID, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, cutoff nodestore.ModifiedBefore) (nodestore.NodeDocumentIterator, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, modified, has_children, previous_ranges, deleted from nodes
		 where modified < $1 and main_id is null
		 order by id`,
		int64(cutoff))
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query failed: %w", err)
	}
	return &docRowIterator{rows: rows}, nil
}

func (s *Store) Find(ctx context.Context, id string) (*nodestore.NodeDocument, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, modified, has_children, previous_ranges, deleted from nodes where id = $1`, id)
	doc, err := scanDoc(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: find %q failed: %w", id, err)
	}
	return doc, nil
}

// Remove deletes every id in conditions whose current modified column
// equals the paired value. Each delete statement's WHERE clause makes the
// check-and-delete atomic per id without an explicit transaction.
func (s *Store) Remove(ctx context.Context, conditions map[string]nodestore.ModifiedEquals) (int, error) {
	removed := 0
	for id, want := range conditions {
		res, err := s.db.ExecContext(ctx, `delete from nodes where id = $1 and modified = $2`, id, int64(want))
		if err != nil {
			return removed, fmt.Errorf("sqlitestore: remove %q failed: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("sqlitestore: remove %q: rows affected: %w", id, err)
		}
		removed += int(n)
	}
	return removed, nil
}

// RemoveAll unconditionally deletes every id given.
func (s *Store) RemoveAll(ctx context.Context, ids []string) (int, error) {
	removed := 0
	for _, id := range ids {
		res, err := s.db.ExecContext(ctx, `delete from nodes where id = $1`, id)
		if err != nil {
			return removed, fmt.Errorf("sqlitestore: remove-all %q failed: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("sqlitestore: remove-all %q: rows affected: %w", id, err)
		}
		removed += int(n)
	}
	return removed, nil
}

// AllPreviousDocs enumerates previous documents owned by doc.ID, used for
// the case where not every range is first-level and so cannot be derived
// without a read.
func (s *Store) AllPreviousDocs(ctx context.Context, doc *nodestore.NodeDocument) (nodestore.IDIterator, error) {
	rows, err := s.db.QueryContext(ctx, `select id from nodes where main_id = $1`, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: all-previous-docs %q failed: %w", doc.ID, err)
	}
	return &idRowIterator{rows: rows}, nil
}

func scanDoc(scan func(dest ...any) error) (*nodestore.NodeDocument, error) {
	var doc nodestore.NodeDocument
	var ranges string
	if err := scan(&doc.ID, &doc.ModifiedInSecs, &doc.HasChildren, &ranges, &doc.Deleted); err != nil {
		return nil, err
	}
	if err := gojson.Unmarshal([]byte(ranges), &doc.PreviousRanges); err != nil {
		return nil, fmt.Errorf("sqlitestore: failed to unmarshal previous ranges for %q: %w", doc.ID, err)
	}
	return &doc, nil
}

type docRowIterator struct {
	rows *sql.Rows
}

func (it *docRowIterator) Next() (*nodestore.NodeDocument, bool, error) {
	if !it.rows.Next() {
		return nil, false, it.rows.Err()
	}
	doc, err := scanDoc(it.rows.Scan)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (it *docRowIterator) Close() error {
	return it.rows.Close()
}

type idRowIterator struct {
	rows *sql.Rows
}

func (it *idRowIterator) Next() (string, bool, error) {
	if !it.rows.Next() {
		return "", false, it.rows.Err()
	}
	var id string
	if err := it.rows.Scan(&id); err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (it *idRowIterator) Close() error {
	return it.rows.Close()
}
