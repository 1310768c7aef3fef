// Copyright 2026 The Fenceline Authors
// SPDX-License-Identifier: Apache-2.0

package recordstore

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// The Store implements policy.OwnerResolver. These lookups return
// owners without a predicate; they exist only so the policy gate can
// make its decision and are never exposed through the HTTP layer.

// OwnerOfRecord resolves a record ID to its owner.
func (s *Store) OwnerOfRecord(ctx context.Context, recordID string) (string, bool, error) {
	return s.ownerQuery(ctx,
		`SELECT owner_id FROM records WHERE id = ?`, recordID)
}

// OwnerOfEntry resolves an entry ID to its transitive owner: the
// owner of the parent record, looked up through the join, never from
// the entry row itself.
func (s *Store) OwnerOfEntry(ctx context.Context, entryID string) (string, bool, error) {
	return s.ownerQuery(ctx,
		`SELECT r.owner_id FROM entries e JOIN records r ON e.record_id = r.id WHERE e.id = ?`,
		entryID)
}

// OwnerOfCode resolves a record code to its owner. Because codes are
// globally unique, a blob key prefix resolves to at most one owner.
func (s *Store) OwnerOfCode(ctx context.Context, code string) (string, bool, error) {
	return s.ownerQuery(ctx,
		`SELECT owner_id FROM records WHERE code = ?`, code)
}

func (s *Store) ownerQuery(ctx context.Context, query, arg string) (string, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", false, err
	}
	defer s.pool.Put(conn)

	var (
		owner  string
		exists bool
	)
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: []any{arg},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			owner = stmt.ColumnText(0)
			exists = true
			return nil
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("recordstore: resolving owner: %w", err)
	}
	return owner, exists, nil
}
