// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package recordstore

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/fenceline-dev/fenceline/lib/identity"
	"github.com/fenceline-dev/fenceline/lib/policy"
)

// Entry is a dependent resource: a row owned transitively through its
// parent record. Entries carry no owner column of their own.
type Entry struct {
	ID        string    `json:"id"`
	RecordID  string    `json:"record_id"`
	BlobKey   string    `json:"blob_key,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateEntry adds an entry under a record the scope owner holds. The
// ownership check and the insert are one INSERT...SELECT statement:
// the row only materializes if the parent record matches both the ID
// and the owner, so there is no window where an entry attaches to a
// foreign record.
func (s *Store) CreateEntry(ctx context.Context, scope policy.Scope, recordID, blobKey, note string) (Entry, error) {
	if scope.OwnerID() == "" {
		return Entry{}, ErrUnscopedQuery
	}

	id, err := identity.NewID()
	if err != nil {
		return Entry{}, fmt.Errorf("recordstore: generating entry ID: %w", err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Entry{}, err
	}
	defer s.pool.Put(conn)

	now := s.clock.Now()
	err = sqlitex.Execute(conn,
		`INSERT INTO entries (id, record_id, blob_key, note, created_at)
		 SELECT ?, id, ?, ?, ? FROM records WHERE id = ? AND owner_id = ?`,
		&sqlitex.ExecOptions{Args: []any{id, blobKey, note, now.Unix(), recordID, scope.OwnerID()}})
	if err != nil {
		return Entry{}, fmt.Errorf("recordstore: inserting entry: %w", err)
	}
	if conn.Changes() == 0 {
		return Entry{}, ErrNotFound
	}

	return Entry{
		ID:        id,
		RecordID:  recordID,
		BlobKey:   blobKey,
		Note:      note,
		CreatedAt: now,
	}, nil
}

// EntryByID fetches one entry within the scope. Ownership is resolved
// through the parent record in the same query.
func (s *Store) EntryByID(ctx context.Context, scope policy.Scope, entryID string) (Entry, error) {
	if scope.OwnerID() == "" {
		return Entry{}, ErrUnscopedQuery
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Entry{}, err
	}
	defer s.pool.Put(conn)

	var (
		entry Entry
		found bool
	)
	err = sqlitex.Execute(conn,
		`SELECT e.id, e.record_id, e.blob_key, e.note, e.created_at
		 FROM entries e JOIN records r ON e.record_id = r.id
		 WHERE e.id = ? AND r.owner_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{entryID, scope.OwnerID()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				entry = scanEntry(stmt)
				return nil
			},
		})
	if err != nil {
		return Entry{}, fmt.Errorf("recordstore: fetching entry: %w", err)
	}
	if !found {
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

// ListEntries returns the entries of one record within the scope,
// oldest first. A foreign or unknown record yields ErrNotFound, not
// an empty list, to match single-resource semantics.
func (s *Store) ListEntries(ctx context.Context, scope policy.Scope, recordID string) ([]Entry, error) {
	if scope.OwnerID() == "" {
		return nil, ErrUnscopedQuery
	}

	// Confirm the parent is in scope first, so "record you don't
	// own" and "record that does not exist" respond identically.
	if _, err := s.RecordByID(ctx, scope, recordID); err != nil {
		return nil, err
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	entries := []Entry{}
	err = sqlitex.Execute(conn,
		`SELECT e.id, e.record_id, e.blob_key, e.note, e.created_at
		 FROM entries e JOIN records r ON e.record_id = r.id
		 WHERE e.record_id = ? AND r.owner_id = ?
		 ORDER BY e.created_at, e.id`,
		&sqlitex.ExecOptions{
			Args: []any{recordID, scope.OwnerID()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entries = append(entries, scanEntry(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("recordstore: listing entries: %w", err)
	}
	return entries, nil
}

func scanEntry(stmt *sqlite.Stmt) Entry {
	return Entry{
		ID:        stmt.ColumnText(0),
		RecordID:  stmt.ColumnText(1),
		BlobKey:   stmt.ColumnText(2),
		Note:      stmt.ColumnText(3),
		CreatedAt: time.Unix(stmt.ColumnInt64(4), 0),
	}
}
